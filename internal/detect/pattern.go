package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/quill/internal/span"
)

const (
	// DefaultMinScore is the Presidio-compatible minimum confidence
	// threshold. Matches below this score are discarded unless boosted by
	// context words.
	DefaultMinScore = 0.5

	// ContextSimilarityFactor is the score boost applied when context
	// words are found near a match.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the number of characters searched before and
	// after a match for context words.
	ContextWindowChars = 100
)

// PatternDetector detects entities with configurable regex recognizers.
// Matches pass hard validation gates (IBAN MOD-97 and country length,
// Luhn) and score-based context filtering before being emitted as raw
// spans. Never returns ErrUnavailable: regex scanning has no external
// dependency to fail.
type PatternDetector struct {
	id       string
	patterns []compiledPattern
	minScore float64
}

// PatternOption configures a PatternDetector.
type PatternOption func(*patternConfig)

type patternConfig struct {
	id               string
	patternFile      string
	enabledEntities  []string
	disabledEntities []string
	extraRecognizers []RecognizerConfig
	minScore         float64
}

// WithPatternID overrides the detector's source id (default "pattern").
func WithPatternID(id string) PatternOption {
	return func(c *patternConfig) { c.id = id }
}

// WithMinScore overrides the minimum confidence threshold.
func WithMinScore(score float64) PatternOption {
	return func(c *patternConfig) { c.minScore = score }
}

// WithPatternFile layers recognizers from a YAML file over the embedded
// defaults. A missing file is silently skipped.
func WithPatternFile(path string) PatternOption {
	return func(c *patternConfig) { c.patternFile = path }
}

// WithEnabledEntities sets a whitelist of entity types.
func WithEnabledEntities(entities []string) PatternOption {
	return func(c *patternConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities sets a blacklist of entity types.
func WithDisabledEntities(entities []string) PatternOption {
	return func(c *patternConfig) { c.disabledEntities = entities }
}

// WithExtraRecognizers layers additional recognizer definitions on top of
// the defaults and any pattern file.
func WithExtraRecognizers(recognizers []RecognizerConfig) PatternOption {
	return func(c *patternConfig) { c.extraRecognizers = recognizers }
}

// NewPatternDetector creates a pattern detector. Without options it uses
// the embedded default recognizers.
func NewPatternDetector(opts ...PatternOption) (*PatternDetector, error) {
	cfg := patternConfig{id: "pattern"}
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	layers := [][]RecognizerConfig{defaults}
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			layers = append(layers, rf.Recognizers)
		}
	}
	if len(cfg.extraRecognizers) > 0 {
		layers = append(layers, cfg.extraRecognizers)
	}

	merged := MergeRecognizers(layers...)
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := compileRecognizers(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling recognizers: %w", err)
	}

	minScore := DefaultMinScore
	if cfg.minScore > 0 {
		minScore = cfg.minScore
	}

	return &PatternDetector{id: cfg.id, patterns: compiled, minScore: minScore}, nil
}

// MustNewPatternDetector is like NewPatternDetector but panics on error.
// Useful for zero-config startup where the embedded defaults are expected
// to always compile.
func MustNewPatternDetector(opts ...PatternOption) *PatternDetector {
	d, err := NewPatternDetector(opts...)
	if err != nil {
		panic(fmt.Sprintf("detect.NewPatternDetector: %v", err))
	}
	return d
}

// ID implements Detector.
func (d *PatternDetector) ID() string { return d.id }

// Labels implements Detector: the distinct supported entities of the
// compiled recognizers.
func (d *PatternDetector) Labels() []string {
	seen := make(map[string]struct{}, len(d.patterns))
	var labels []string
	for _, p := range d.patterns {
		if _, ok := seen[p.entity]; ok {
			continue
		}
		seen[p.entity] = struct{}{}
		labels = append(labels, p.entity)
	}
	sort.Strings(labels)
	return labels
}

// Detect scans the text with every compiled pattern. Each match goes
// through its recognizer's validation gates, then context-based score
// enhancement against the minimum threshold.
func (d *PatternDetector) Detect(ctx context.Context, text string) ([]span.RawSpan, error) {
	_, sp := tracer.Start(ctx, "detect.pattern")
	defer sp.End()

	var spans []span.RawSpan
	for _, p := range d.patterns {
		for _, match := range p.regex.FindAllStringIndex(text, -1) {
			value := text[match[0]:match[1]]

			if p.validateIBAN {
				clean := strings.ReplaceAll(value, " ", "")
				if !validIBANLength(clean) || !validIBANChecksum(clean) {
					continue
				}
			}
			if p.validateLuhn {
				if !luhnValid(stripNonDigits(value)) {
					continue
				}
			}

			confidence := enhanceScoreWithContext(text, match[0], p.score, p.contextWords)
			if confidence < d.minScore {
				continue
			}

			spans = append(spans, span.RawSpan{
				Start:       match[0],
				End:         match[1],
				NativeLabel: p.entity,
				Confidence:  confidence,
				SourceID:    d.id,
			})
		}
	}

	sp.SetAttributes(attribute.Int("detect.spans", len(spans)))
	return spans, nil
}

// enhanceScoreWithContext boosts a match's base score when a context word
// appears within ContextWindowChars characters of the match position.
func enhanceScoreWithContext(text string, position int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	start := position - ContextWindowChars
	if start < 0 {
		start = 0
	}
	end := position + ContextWindowChars
	if end > len(text) {
		end = len(text)
	}
	window := strings.ToLower(text[start:end])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			return baseScore + ContextSimilarityFactor
		}
	}
	return baseScore
}
