// Package anonymize rewrites text by applying per-category transforms to
// canonical spans. Replacements are applied in descending start order so
// earlier offsets stay valid without cumulative-shift bookkeeping.
package anonymize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	quillotel "github.com/dativo-io/quill/internal/otel"
	"github.com/dativo-io/quill/internal/span"
)

var tracer = quillotel.Tracer("github.com/dativo-io/quill/internal/anonymize")

// ErrNotCanonical is returned when the span set handed to the engine is
// not sorted and non-overlapping. The resolver's output always satisfies
// the contract; hand-built span sets must be resolved first.
var ErrNotCanonical = errors.New("span set is not sorted and non-overlapping")

// Replacement records one applied transform: the span it covered and the
// text that replaced it. The original text is not retained, so redactions
// are not reversible from the result alone.
type Replacement struct {
	Span        span.CanonicalSpan `json:"span"`
	Replacement string             `json:"replacement"`
}

// Result is the anonymization output: the rewritten text plus the ordered
// (ascending by span start) replacement sequence. Never mutated after
// creation.
type Result struct {
	Text         string        `json:"text"`
	Replacements []Replacement `json:"replacements"`
}

// Engine applies a validated transform configuration. Immutable after
// construction; safe for concurrent use.
type Engine struct {
	cfg Config
}

// New creates an Engine from a transform configuration. Configuration
// problems (unknown kind, negative keep, empty default) are startup
// errors, never per-text failures.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid anonymization config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Anonymize rewrites text by replacing each canonical span with its
// category's transform output. Spans must be sorted by start and pairwise
// non-overlapping. An empty span set returns the input unchanged, which
// makes re-running the engine over already-anonymized text a no-op as
// long as no detector fires on the tags themselves.
func (e *Engine) Anonymize(ctx context.Context, text string, spans []span.CanonicalSpan) (*Result, error) {
	_, sp := tracer.Start(ctx, "anonymize.anonymize")
	defer sp.End()

	if err := checkCanonical(spans, len(text)); err != nil {
		return nil, err
	}

	replacements := make([]Replacement, len(spans))
	out := text
	// Back to front: replacing [start, end) never disturbs the offsets of
	// spans that start earlier.
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		repl := e.cfg.transformFor(s.Category).apply(out[s.Start:s.End], s.Category)
		out = out[:s.Start] + repl + out[s.End:]
		replacements[i] = Replacement{Span: s, Replacement: repl}
	}

	sp.SetAttributes(
		attribute.Int("anonymize.spans", len(spans)),
		attribute.Int("anonymize.output_len", len(out)),
	)
	return &Result{Text: out, Replacements: replacements}, nil
}

// apply produces the replacement text for one span.
func (t Transform) apply(original string, cat span.Category) string {
	switch t.Kind {
	case KindMask:
		return "<" + string(cat) + ">"
	case KindPartial:
		return partialMask(original, t.Keep, t.maskChar())
	case KindSynthetic:
		if t.Placeholder != "" {
			return t.Placeholder
		}
		return syntheticPlaceholder(cat)
	case KindNone:
		return original
	default:
		// Validate rejects unknown kinds; unreachable in a constructed Engine.
		return "<" + string(cat) + ">"
	}
}

// partialMask masks all but the trailing keep runes, preserving rune
// length and the trailing characters (partial visibility aids customer
// verification of financial identifiers).
func partialMask(s string, keep int, mask rune) string {
	runes := []rune(s)
	if keep >= len(runes) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	cut := len(runes) - keep
	for i, r := range runes {
		if i < cut {
			b.WriteRune(mask)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// syntheticPlaceholder returns a fixed, type-consistent placeholder of
// plausible shape for categories without an explicit placeholder. Values
// are deliberately reserved/example identifiers, never real ones.
func syntheticPlaceholder(cat span.Category) string {
	switch cat {
	case span.CategoryPerson:
		return "Jane Doe"
	case span.CategoryEmail:
		return "user@example.com"
	case span.CategoryPhone:
		return "+1-555-0100"
	case span.CategoryAddress:
		return "123 Main Street"
	case span.CategoryLocation:
		return "Springfield"
	case span.CategoryDate:
		return "January 1, 1970"
	case span.CategorySSN:
		return "000-00-0000"
	case span.CategoryCreditCard:
		return "0000-0000-0000-0000"
	case span.CategoryIBAN:
		return "XX00000000000000000000"
	case span.CategoryBankAcct:
		return "00000000"
	case span.CategoryIPAddress:
		return "192.0.2.0"
	case span.CategoryURL:
		return "https://example.com"
	case span.CategoryPassport:
		return "X00000000"
	default:
		return "<" + string(cat) + ">"
	}
}

func checkCanonical(spans []span.CanonicalSpan, textLen int) error {
	for i, s := range spans {
		if s.Start < 0 || s.End > textLen || s.End <= s.Start {
			return fmt.Errorf("%w: span %d has bounds [%d,%d) for text of length %d", ErrNotCanonical, i, s.Start, s.End, textLen)
		}
		if i > 0 && s.Start < spans[i-1].End {
			return fmt.Errorf("%w: span %d at %d overlaps previous ending at %d", ErrNotCanonical, i, s.Start, spans[i-1].End)
		}
	}
	return nil
}
