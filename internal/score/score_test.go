package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/quill/internal/span"
)

func TestScoreSpuriousCandidate(t *testing.T) {
	truth := []Ref{
		{Start: 0, End: 5, Category: span.CategoryPerson},
		{Start: 10, End: 13, Category: span.CategorySSN},
	}
	candidates := []Ref{
		{Start: 0, End: 5, Category: span.CategoryPerson},
		{Start: 10, End: 13, Category: span.CategorySSN},
		{Start: 20, End: 25, Category: span.CategoryOther},
	}

	r := Score(candidates, truth)
	assert.InDelta(t, 2.0/3.0, r.Aggregate.Precision, 1e-9)
	assert.InDelta(t, 1.0, r.Aggregate.Recall, 1e-9)
	assert.Equal(t, 2, r.Aggregate.TruePositive)
	assert.Equal(t, 1, r.Aggregate.FalsePositive)
	assert.Equal(t, 0, r.Aggregate.FalseNegative)

	person := r.PerCategory[span.CategoryPerson]
	assert.Equal(t, 1, person.TruePositive)
	assert.InDelta(t, 1.0, person.F1, 1e-9)

	other := r.PerCategory[span.CategoryOther]
	assert.Equal(t, 1, other.FalsePositive)
	assert.InDelta(t, 0.0, other.Precision, 1e-9)
}

func TestScorePerfectMatch(t *testing.T) {
	refs := []Ref{
		{Start: 0, End: 5, Category: span.CategoryPerson},
		{Start: 10, End: 20, Category: span.CategoryEmail},
	}
	r := Score(refs, refs)
	assert.InDelta(t, 1.0, r.Aggregate.Precision, 1e-9)
	assert.InDelta(t, 1.0, r.Aggregate.Recall, 1e-9)
	assert.InDelta(t, 1.0, r.Aggregate.F1, 1e-9)
}

func TestScoreMissedTruth(t *testing.T) {
	truth := []Ref{
		{Start: 0, End: 5, Category: span.CategoryPerson},
		{Start: 10, End: 13, Category: span.CategorySSN},
	}
	candidates := []Ref{
		{Start: 0, End: 5, Category: span.CategoryPerson},
	}

	r := Score(candidates, truth)
	assert.InDelta(t, 1.0, r.Aggregate.Precision, 1e-9)
	assert.InDelta(t, 0.5, r.Aggregate.Recall, 1e-9)
	assert.Equal(t, 1, r.PerCategory[span.CategorySSN].FalseNegative)
}

func TestScoreCategoryMismatchNeverMatches(t *testing.T) {
	truth := []Ref{{Start: 0, End: 5, Category: span.CategoryPerson}}
	candidates := []Ref{{Start: 0, End: 5, Category: span.CategoryLocation}}

	r := Score(candidates, truth)
	assert.Equal(t, 0, r.Aggregate.TruePositive)
	assert.Equal(t, 1, r.Aggregate.FalsePositive)
	assert.Equal(t, 1, r.Aggregate.FalseNegative)
}

func TestScorePartialOverlapCounts(t *testing.T) {
	truth := []Ref{{Start: 0, End: 10, Category: span.CategoryPerson}}

	// Any non-zero overlap matches by default.
	r := Score([]Ref{{Start: 8, End: 15, Category: span.CategoryPerson}}, truth)
	assert.Equal(t, 1, r.Aggregate.TruePositive)

	// A threshold filters weak overlaps. IoU here is 2/15.
	r = Score([]Ref{{Start: 8, End: 15, Category: span.CategoryPerson}}, truth, WithMinOverlap(0.5))
	assert.Equal(t, 0, r.Aggregate.TruePositive)
	assert.Equal(t, 1, r.Aggregate.FalsePositive)
	assert.Equal(t, 1, r.Aggregate.FalseNegative)
}

func TestScoreOneToOneAssignment(t *testing.T) {
	// Two candidates overlap the same truth span; only one may match, the
	// other is a false positive.
	truth := []Ref{{Start: 0, End: 10, Category: span.CategoryPerson}}
	candidates := []Ref{
		{Start: 0, End: 10, Category: span.CategoryPerson},
		{Start: 2, End: 8, Category: span.CategoryPerson},
	}

	r := Score(candidates, truth)
	assert.Equal(t, 1, r.Aggregate.TruePositive)
	assert.Equal(t, 1, r.Aggregate.FalsePositive)
	assert.Equal(t, 0, r.Aggregate.FalseNegative)
}

func TestScoreGreedyPrefersStrongerOverlap(t *testing.T) {
	// The exact-boundary candidate takes the truth span; the looser one is
	// left to match the second truth span.
	truth := []Ref{
		{Start: 0, End: 10, Category: span.CategoryPerson},
		{Start: 8, End: 20, Category: span.CategoryPerson},
	}
	candidates := []Ref{
		{Start: 5, End: 18, Category: span.CategoryPerson},
		{Start: 0, End: 10, Category: span.CategoryPerson},
	}

	r := Score(candidates, truth)
	assert.Equal(t, 2, r.Aggregate.TruePositive)
	assert.Equal(t, 0, r.Aggregate.FalsePositive)
	assert.Equal(t, 0, r.Aggregate.FalseNegative)
}

func TestScoreEmptyInputs(t *testing.T) {
	r := Score(nil, nil)
	assert.Empty(t, r.PerCategory)
	assert.Zero(t, r.Aggregate.Precision)
	assert.Zero(t, r.Aggregate.Recall)
	assert.Zero(t, r.Aggregate.F1)

	r = Score(nil, []Ref{{Start: 0, End: 5, Category: span.CategoryEmail}})
	assert.Equal(t, 1, r.Aggregate.FalseNegative)
	assert.Zero(t, r.Aggregate.Recall)
}

func TestOverlapFraction(t *testing.T) {
	tests := []struct {
		name string
		a, b Ref
		want float64
	}{
		{"identical", Ref{Start: 0, End: 10}, Ref{Start: 0, End: 10}, 1.0},
		{"disjoint", Ref{Start: 0, End: 5}, Ref{Start: 5, End: 10}, 0.0},
		{"half inside", Ref{Start: 0, End: 10}, Ref{Start: 5, End: 15}, 5.0 / 15.0},
		{"contained", Ref{Start: 0, End: 10}, Ref{Start: 2, End: 7}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, overlapFraction(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, overlapFraction(tt.b, tt.a), 1e-9)
		})
	}
}

func TestReportCategoriesSorted(t *testing.T) {
	r := Score(
		[]Ref{
			{Start: 0, End: 3, Category: span.CategorySSN},
			{Start: 5, End: 8, Category: span.CategoryEmail},
			{Start: 10, End: 14, Category: span.CategoryPerson},
		},
		nil,
	)
	assert.Equal(t,
		[]span.Category{span.CategoryEmail, span.CategoryPerson, span.CategorySSN},
		r.Categories())
}

func TestFromCanonicalAndNormalized(t *testing.T) {
	canonical := []span.CanonicalSpan{{Start: 1, End: 4, Category: span.CategoryDate}}
	require.Equal(t, []Ref{{Start: 1, End: 4, Category: span.CategoryDate}}, FromCanonical(canonical))

	normalized := []span.NormalizedSpan{{Start: 2, End: 9, Category: span.CategoryURL}}
	require.Equal(t, []Ref{{Start: 2, End: 9, Category: span.CategoryURL}}, FromNormalized(normalized))
}
