// Package taxonomy maps detector-native entity labels onto the shared
// canonical category vocabulary. The table must be total over the labels
// the configured detectors can emit; a missing entry is a startup-time
// configuration error, never a per-span runtime failure. Labels from
// sources that were never registered for validation fall back to
// CategoryOther so recall is preserved for audit.
package taxonomy

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/quill/internal/span"
	"github.com/dativo-io/quill/patterns"
)

// ErrUnmappedLabel is returned by Validate when a detector can emit a
// label the taxonomy has no entry for.
var ErrUnmappedLabel = errors.New("native label has no taxonomy entry")

// File is the YAML structure for a taxonomy table. The top-level labels
// section is shared across sources; per-source overrides take precedence.
type File struct {
	Labels  map[string]span.Category            `yaml:"labels"`
	Sources map[string]map[string]span.Category `yaml:"sources,omitempty"`
}

// Mapper resolves native labels to canonical categories. Immutable after
// construction, so concurrent pipeline invocations can share one instance.
type Mapper struct {
	labels   map[string]span.Category
	bySource map[string]map[string]span.Category
}

// Parse builds a Mapper from taxonomy YAML bytes. Label keys are
// normalized to upper case so lookups are case-insensitive.
func Parse(data []byte) (*Mapper, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing taxonomy YAML: %w", err)
	}

	m := &Mapper{
		labels:   make(map[string]span.Category, len(f.Labels)),
		bySource: make(map[string]map[string]span.Category, len(f.Sources)),
	}
	for label, cat := range f.Labels {
		m.labels[strings.ToUpper(label)] = cat
	}
	for source, table := range f.Sources {
		st := make(map[string]span.Category, len(table))
		for label, cat := range table {
			st[strings.ToUpper(label)] = cat
		}
		m.bySource[source] = st
	}
	return m, nil
}

// Load reads a taxonomy YAML file from disk.
func Load(path string) (*Mapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy file %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns a Mapper built from the embedded default taxonomy.
func Default() (*Mapper, error) {
	return Parse(patterns.TaxonomyDefaultYAML())
}

// MustDefault is like Default but panics on error. The embedded table is
// expected to always parse.
func MustDefault() *Mapper {
	m, err := Default()
	if err != nil {
		panic(fmt.Sprintf("taxonomy.Default: %v", err))
	}
	return m
}

// lookup returns the category for a native label, checking per-source
// overrides first. The second return reports whether an entry existed.
func (m *Mapper) lookup(sourceID, nativeLabel string) (span.Category, bool) {
	key := strings.ToUpper(nativeLabel)
	if st, ok := m.bySource[sourceID]; ok {
		if cat, ok := st[key]; ok {
			return cat, true
		}
	}
	cat, ok := m.labels[key]
	return cat, ok
}

// Map returns the canonical category for a native label. Unmapped labels
// return CategoryOther; totality over registered detectors is enforced
// separately by Validate at startup.
func (m *Mapper) Map(sourceID, nativeLabel string) span.Category {
	if cat, ok := m.lookup(sourceID, nativeLabel); ok {
		return cat
	}
	return span.CategoryOther
}

// Validate checks that every label a source can emit has a taxonomy
// entry. Call once per configured detector at startup; the joined error
// lists all missing labels so the operator can fix the table in one pass.
func (m *Mapper) Validate(sourceID string, labels []string) error {
	var missing []string
	for _, l := range labels {
		if _, ok := m.lookup(sourceID, l); !ok {
			missing = append(missing, l)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: source %q labels %s", ErrUnmappedLabel, sourceID, strings.Join(missing, ", "))
	}
	return nil
}

// Apply maps normalized raw spans to NormalizedSpans, substituting each
// native label with its canonical category. Order is preserved.
func (m *Mapper) Apply(raws []span.RawSpan) []span.NormalizedSpan {
	out := make([]span.NormalizedSpan, len(raws))
	for i, r := range raws {
		out[i] = span.NormalizedSpan{
			Start:      r.Start,
			End:        r.End,
			Category:   m.Map(r.SourceID, r.NativeLabel),
			Confidence: r.Confidence,
			SourceID:   r.SourceID,
		}
	}
	return out
}
