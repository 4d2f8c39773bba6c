package anonymize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/quill/internal/span"
	"github.com/dativo-io/quill/patterns"
)

// Kind selects a transform strategy.
type Kind string

// Transform kinds.
const (
	// KindMask replaces the span text with a <CATEGORY> tag.
	KindMask Kind = "mask"
	// KindPartial masks all but the last Keep characters, preserving
	// length and trailing characters.
	KindPartial Kind = "partial"
	// KindSynthetic replaces the span with a fixed, category-typed
	// placeholder of plausible shape.
	KindSynthetic Kind = "synthetic"
	// KindNone leaves the span untouched.
	KindNone Kind = "none"
)

// Transform is the per-category rewrite rule.
type Transform struct {
	Kind        Kind   `yaml:"kind" json:"kind"`
	Keep        int    `yaml:"keep,omitempty" json:"keep,omitempty"`
	MaskChar    string `yaml:"mask_char,omitempty" json:"mask_char,omitempty"`
	Placeholder string `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
}

func (t Transform) maskChar() rune {
	if t.MaskChar == "" {
		return '*'
	}
	return []rune(t.MaskChar)[0]
}

// Config maps canonical categories to transforms, with an explicit
// default for unlisted categories. Loaded once per run; read-only during
// processing.
type Config struct {
	Default    Transform                   `yaml:"default" json:"default"`
	Categories map[span.Category]Transform `yaml:"categories,omitempty" json:"categories,omitempty"`
}

// ParseConfig parses transform YAML bytes.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parsing transform YAML: %w", err)
	}
	return c, nil
}

// LoadConfig reads a transform YAML file from disk.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading transform file %s: %w", path, err)
	}
	return ParseConfig(data)
}

// DefaultConfig returns the embedded default transforms.
func DefaultConfig() (Config, error) {
	return ParseConfig(patterns.TransformsDefaultYAML())
}

// MustDefaultConfig is like DefaultConfig but panics on error.
func MustDefaultConfig() Config {
	c, err := DefaultConfig()
	if err != nil {
		panic(fmt.Sprintf("anonymize.DefaultConfig: %v", err))
	}
	return c
}

// Validate checks every transform, including the default, at startup.
func (c Config) Validate() error {
	if err := c.Default.validate(); err != nil {
		return fmt.Errorf("default transform: %w", err)
	}
	for cat, t := range c.Categories {
		if err := t.validate(); err != nil {
			return fmt.Errorf("category %s: %w", cat, err)
		}
	}
	return nil
}

func (t Transform) validate() error {
	switch t.Kind {
	case KindMask, KindSynthetic, KindNone:
		return nil
	case KindPartial:
		if t.Keep < 0 {
			return fmt.Errorf("partial transform keep must be >= 0, got %d", t.Keep)
		}
		return nil
	case "":
		return fmt.Errorf("transform kind is required")
	default:
		return fmt.Errorf("unknown transform kind %q", t.Kind)
	}
}

// transformFor returns the transform for a category, falling back to the
// explicit default.
func (c Config) transformFor(cat span.Category) Transform {
	if t, ok := c.Categories[cat]; ok {
		return t
	}
	return c.Default
}
