package detect

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/quill/patterns"
)

// RecognizerFile is the top-level YAML structure for a recognizer config
// file. Mirrors Presidio's recognizer registry format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema with Quill
// extensions (validate_luhn, validate_iban).
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	ValidateLuhn       bool              `yaml:"validate_luhn,omitempty" json:"validate_luhn,omitempty"`
	ValidateIBAN       bool              `yaml:"validate_iban,omitempty" json:"validate_iban,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// contextWords flattens the context words across languages.
func (r *RecognizerConfig) contextWords() []string {
	var words []string
	for _, lc := range r.SupportedLanguages {
		words = append(words, lc.Context...)
	}
	return words
}

// ParseRecognizerFile parses recognizer YAML bytes.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing override file as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// DefaultRecognizers returns the built-in recognizers parsed from the
// embedded pii_default.yaml.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIDefaultYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded recognizers: %w", err)
	}
	return rf.Recognizers, nil
}

// MergeRecognizers layers recognizer lists: defaults first, then override
// files. Later layers replace earlier ones by matching Name; new
// recognizers are appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, rc)
			}
		}
	}
	return merged
}

// FilterByEntities applies enabled/disabled entity filters. A non-empty
// enabled list is a whitelist on supported_entity; the disabled list is
// then removed.
func FilterByEntities(recognizers []RecognizerConfig, enabled, disabled []string) []RecognizerConfig {
	result := recognizers

	if len(enabled) > 0 {
		allowed := make(map[string]bool, len(enabled))
		for _, e := range enabled {
			allowed[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabled) > 0 {
		blocked := make(map[string]bool, len(disabled))
		for _, e := range disabled {
			blocked[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}

// compiledPattern is one regex ready for scanning, with its recognizer's
// validation gates and context words attached.
type compiledPattern struct {
	entity       string
	regex        *regexp.Regexp
	score        float64
	contextWords []string
	validateLuhn bool
	validateIBAN bool
}

// compileRecognizers converts recognizer configs into the compiled
// pattern list the detector scans with. Disabled recognizers are skipped;
// each regex in a recognizer produces one compiled pattern.
func compileRecognizers(recognizers []RecognizerConfig) ([]compiledPattern, error) {
	var compiled []compiledPattern
	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		words := rec.contextWords()
		for _, p := range rec.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			compiled = append(compiled, compiledPattern{
				entity:       rec.SupportedEntity,
				regex:        re,
				score:        p.Score,
				contextWords: words,
				validateLuhn: rec.ValidateLuhn,
				validateIBAN: rec.ValidateIBAN,
			})
		}
	}
	return compiled, nil
}
