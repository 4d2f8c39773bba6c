// Package score computes precision, recall, and F1 for a candidate span
// set against a ground-truth annotation set over the same text. Matching
// is a greedy one-to-one assignment in descending overlap order, so the
// result is deterministic and lenient about boundary differences between
// detectors.
package score

import (
	"sort"

	"github.com/dativo-io/quill/internal/span"
)

// Ref is the (start, end, category) triple both span sets are expressed
// as. Raw, normalized, and canonical spans all reduce to this shape.
type Ref struct {
	Start    int           `json:"start"`
	End      int           `json:"end"`
	Category span.Category `json:"category"`
}

// FromNormalized converts normalized spans to scoring refs.
func FromNormalized(spans []span.NormalizedSpan) []Ref {
	refs := make([]Ref, len(spans))
	for i, s := range spans {
		refs[i] = Ref{Start: s.Start, End: s.End, Category: s.Category}
	}
	return refs
}

// FromCanonical converts canonical spans to scoring refs.
func FromCanonical(spans []span.CanonicalSpan) []Ref {
	refs := make([]Ref, len(spans))
	for i, s := range spans {
		refs[i] = Ref{Start: s.Start, End: s.End, Category: s.Category}
	}
	return refs
}

// CategoryScore holds counts and derived rates for one category.
type CategoryScore struct {
	TruePositive  int     `json:"true_positive"`
	FalsePositive int     `json:"false_positive"`
	FalseNegative int     `json:"false_negative"`
	Precision     float64 `json:"precision"`
	Recall        float64 `json:"recall"`
	F1            float64 `json:"f1"`
}

// Report is the scoring output: per-category rows plus an aggregate
// computed over summed counts.
type Report struct {
	PerCategory map[span.Category]CategoryScore `json:"per_category"`
	Aggregate   CategoryScore                   `json:"aggregate"`
}

// Categories returns the per-category keys in sorted order for stable
// rendering.
func (r *Report) Categories() []span.Category {
	cats := make([]span.Category, 0, len(r.PerCategory))
	for c := range r.PerCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// Option configures scoring.
type Option func(*scorer)

// WithMinOverlap sets the minimum overlap fraction (intersection over
// union) for a candidate to match a ground-truth span. The default 0
// means any non-zero overlap counts.
func WithMinOverlap(frac float64) Option {
	return func(s *scorer) { s.minOverlap = frac }
}

type scorer struct {
	minOverlap float64
}

// Score compares candidates against ground truth. A candidate is a true
// positive when its category matches a truth span and their intervals
// overlap by at least the configured fraction; each truth span satisfies
// at most one candidate and vice versa. Unmatched truth spans are false
// negatives, unmatched candidates false positives.
func Score(candidates, truth []Ref, opts ...Option) *Report {
	var s scorer
	for _, o := range opts {
		o(&s)
	}

	type pair struct {
		cand, truth int
		frac        float64
	}
	var pairs []pair
	for i, c := range candidates {
		for j, t := range truth {
			if c.Category != t.Category {
				continue
			}
			frac := overlapFraction(c, t)
			if frac <= 0 || frac < s.minOverlap {
				continue
			}
			pairs = append(pairs, pair{cand: i, truth: j, frac: frac})
		}
	}

	// Greedy assignment in descending overlap order maximizes matched
	// pairs deterministically; index order settles exact-fraction ties.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].frac != pairs[j].frac {
			return pairs[i].frac > pairs[j].frac
		}
		if pairs[i].cand != pairs[j].cand {
			return pairs[i].cand < pairs[j].cand
		}
		return pairs[i].truth < pairs[j].truth
	})

	candMatched := make([]bool, len(candidates))
	truthMatched := make([]bool, len(truth))
	counts := make(map[span.Category]*CategoryScore)

	row := func(cat span.Category) *CategoryScore {
		if c, ok := counts[cat]; ok {
			return c
		}
		c := &CategoryScore{}
		counts[cat] = c
		return c
	}

	for _, p := range pairs {
		if candMatched[p.cand] || truthMatched[p.truth] {
			continue
		}
		candMatched[p.cand] = true
		truthMatched[p.truth] = true
		row(candidates[p.cand].Category).TruePositive++
	}
	for i, c := range candidates {
		if !candMatched[i] {
			row(c.Category).FalsePositive++
		}
	}
	for j, t := range truth {
		if !truthMatched[j] {
			row(t.Category).FalseNegative++
		}
	}

	report := &Report{PerCategory: make(map[span.Category]CategoryScore, len(counts))}
	var agg CategoryScore
	for cat, c := range counts {
		c.derive()
		report.PerCategory[cat] = *c
		agg.TruePositive += c.TruePositive
		agg.FalsePositive += c.FalsePositive
		agg.FalseNegative += c.FalseNegative
	}
	agg.derive()
	report.Aggregate = agg
	return report
}

// overlapFraction is intersection over union of two half-open intervals.
// Zero when the intervals are disjoint.
func overlapFraction(a, b Ref) float64 {
	lo := a.Start
	if b.Start > lo {
		lo = b.Start
	}
	hi := a.End
	if b.End < hi {
		hi = b.End
	}
	if hi <= lo {
		return 0
	}
	inter := hi - lo
	union := (a.End - a.Start) + (b.End - b.Start) - inter
	return float64(inter) / float64(union)
}

func (c *CategoryScore) derive() {
	if c.TruePositive+c.FalsePositive > 0 {
		c.Precision = float64(c.TruePositive) / float64(c.TruePositive+c.FalsePositive)
	}
	if c.TruePositive+c.FalseNegative > 0 {
		c.Recall = float64(c.TruePositive) / float64(c.TruePositive+c.FalseNegative)
	}
	if c.Precision+c.Recall > 0 {
		c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
	}
}
