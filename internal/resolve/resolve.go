// Package resolve reduces the unioned, taxonomy-mapped span set for one
// text to a canonical non-overlapping set. This is the algorithmic core of
// the pipeline: a single sweep over spans sorted by start, with a
// configurable tie-break chain deciding overlaps and an optional gap
// threshold merging adjacent same-category fragments.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	quillotel "github.com/dativo-io/quill/internal/otel"
	"github.com/dativo-io/quill/internal/span"
)

var tracer = quillotel.Tracer("github.com/dativo-io/quill/internal/resolve")

// ErrUnsortedInput is returned when the candidate list is not sorted by
// start with ties in descending confidence. This is an implementer bug,
// not a recoverable runtime condition: span.Normalize produces the
// required ordering.
var ErrUnsortedInput = errors.New("resolver input not sorted by start, confidence desc")

// TieBreak identifies one rule in the overlap tie-break chain.
type TieBreak int

// Tie-break rules. The default chain is Confidence, Length, Category,
// which favors detectors committing to complete semantic units over
// sub-token pattern matches, while a highly confident validated match
// still overrides a lower-confidence contextual guess. When the whole
// chain ties, the first-seen span wins.
const (
	// TieBreakConfidence prefers the higher-confidence span.
	TieBreakConfidence TieBreak = iota
	// TieBreakLength prefers the longer span (more complete boundary).
	TieBreakLength
	// TieBreakCategory prefers the span whose category is not OTHER.
	TieBreakCategory
)

// DefaultTieBreaks is the tie-break chain used when none is configured.
var DefaultTieBreaks = []TieBreak{TieBreakConfidence, TieBreakLength, TieBreakCategory}

// Resolver turns sorted normalized spans into canonical spans.
// Immutable after construction.
type Resolver struct {
	gapThreshold int
	tieBreaks    []TieBreak
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGapThreshold merges a candidate into the previous accepted span when
// both share a category and the gap between them is at most n bytes.
// Absorbs detectors that split one logical entity into adjacent tokens.
// Default 0: only directly adjacent spans merge.
func WithGapThreshold(n int) Option {
	return func(r *Resolver) { r.gapThreshold = n }
}

// WithTieBreakOrder overrides the overlap tie-break chain.
func WithTieBreakOrder(order ...TieBreak) Option {
	return func(r *Resolver) { r.tieBreaks = order }
}

// New creates a Resolver with the default tie-break chain and gap
// threshold 0.
func New(opts ...Option) *Resolver {
	r := &Resolver{tieBreaks: DefaultTieBreaks}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve sweeps the sorted candidates and returns the canonical set,
// which by construction is sorted by start and pairwise non-overlapping.
// It never fails on well-formed input; unsorted input returns
// ErrUnsortedInput.
func (r *Resolver) Resolve(ctx context.Context, candidates []span.NormalizedSpan) ([]span.CanonicalSpan, error) {
	_, sp := tracer.Start(ctx, "resolve.resolve")
	defer sp.End()

	if err := checkSorted(candidates); err != nil {
		return nil, err
	}

	accepted := make([]span.CanonicalSpan, 0, len(candidates))
	for _, cand := range candidates {
		if len(accepted) == 0 {
			accepted = append(accepted, newCanonical(cand))
			continue
		}
		last := &accepted[len(accepted)-1]

		if cand.Start >= last.End {
			// No overlap. Merge across the gap when close enough and
			// same category, otherwise open a new canonical span.
			if cand.Start-last.End <= r.gapThreshold && cand.Category == last.Category {
				last.End = max(last.End, cand.End)
				if cand.Confidence > last.Confidence {
					last.Confidence = cand.Confidence
				}
				last.AddSource(cand.SourceID)
				continue
			}
			accepted = append(accepted, newCanonical(cand))
			continue
		}

		// Overlap. Identical boundaries and category count as agreement
		// between sources, not a conflict.
		if cand.Start == last.Start && cand.End == last.End && cand.Category == last.Category {
			last.AddSource(cand.SourceID)
			if cand.Confidence > last.Confidence {
				last.Confidence = cand.Confidence
			}
			continue
		}

		if r.candidateWins(cand, *last) {
			// The winner's boundaries are kept as-is; the incumbent
			// becomes a recorded alternative, its sources retained for
			// provenance.
			winner := newCanonical(cand)
			for _, s := range last.Sources {
				winner.AddSource(s)
			}
			winner.Alternatives = append(winner.Alternatives, last.Alternatives...)
			winner.Alternatives = append(winner.Alternatives, span.Alternative{
				Start:      last.Start,
				End:        last.End,
				Category:   last.Category,
				Confidence: last.Confidence,
				SourceID:   primarySource(*last),
			})
			*last = winner
		} else {
			last.AddSource(cand.SourceID)
			last.Alternatives = append(last.Alternatives, span.Alternative{
				Start:      cand.Start,
				End:        cand.End,
				Category:   cand.Category,
				Confidence: cand.Confidence,
				SourceID:   cand.SourceID,
			})
		}
	}

	sp.SetAttributes(
		attribute.Int("resolve.candidates", len(candidates)),
		attribute.Int("resolve.accepted", len(accepted)),
	)
	return accepted, nil
}

// candidateWins runs the tie-break chain. The incumbent wins a full tie:
// it was seen first in source order.
func (r *Resolver) candidateWins(cand span.NormalizedSpan, last span.CanonicalSpan) bool {
	for _, tb := range r.tieBreaks {
		switch tb {
		case TieBreakConfidence:
			if cand.Confidence != last.Confidence {
				return cand.Confidence > last.Confidence
			}
		case TieBreakLength:
			if cand.Len() != last.Len() {
				return cand.Len() > last.Len()
			}
		case TieBreakCategory:
			candOther := cand.Category == span.CategoryOther
			lastOther := last.Category == span.CategoryOther
			if candOther != lastOther {
				return lastOther
			}
		}
	}
	return false
}

func newCanonical(n span.NormalizedSpan) span.CanonicalSpan {
	return span.CanonicalSpan{
		Start:      n.Start,
		End:        n.End,
		Category:   n.Category,
		Confidence: n.Confidence,
		Sources:    []string{n.SourceID},
	}
}

// primarySource picks a representative source id for an alternative record
// when a whole canonical span is displaced.
func primarySource(c span.CanonicalSpan) string {
	if len(c.Sources) == 0 {
		return ""
	}
	return c.Sources[0]
}

func checkSorted(spans []span.NormalizedSpan) error {
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if cur.Start < prev.Start {
			return fmt.Errorf("%w: index %d starts at %d after %d", ErrUnsortedInput, i, cur.Start, prev.Start)
		}
		if cur.Start == prev.Start && cur.Confidence > prev.Confidence {
			return fmt.Errorf("%w: index %d breaks descending confidence at start %d", ErrUnsortedInput, i, cur.Start)
		}
	}
	return nil
}
