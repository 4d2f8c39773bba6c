package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/quill/internal/detect"
	"github.com/dativo-io/quill/internal/span"
	"github.com/dativo-io/quill/internal/taxonomy"
	"github.com/dativo-io/quill/internal/testutil"
)

func TestPipelineProcess(t *testing.T) {
	text := "Alice mailed alice@example.com"
	ner := &testutil.MockDetector{
		SourceID:     "ner",
		NativeLabels: []string{"PER"},
		Spans: []span.RawSpan{
			{Start: 0, End: 5, NativeLabel: "PER", Confidence: 0.9, SourceID: "ner"},
		},
	}
	pattern := &testutil.MockDetector{
		SourceID:     "pattern",
		NativeLabels: []string{"EMAIL_ADDRESS"},
		Spans: []span.RawSpan{
			{Start: 13, End: 30, NativeLabel: "EMAIL_ADDRESS", Confidence: 0.85, SourceID: "pattern"},
		},
	}

	p, err := New([]detect.Detector{ner, pattern})
	require.NoError(t, err)

	result, err := p.Process(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "<PERSON> mailed <EMAIL>", result.Text)
	require.Len(t, result.Replacements, 2)
	assert.Equal(t, span.CategoryPerson, result.Replacements[0].Span.Category)
	assert.Equal(t, span.CategoryEmail, result.Replacements[1].Span.Category)
}

func TestPipelineResolveMergesSources(t *testing.T) {
	text := "Bob Smith called"
	ner := &testutil.MockDetector{
		SourceID:     "ner",
		NativeLabels: []string{"PER"},
		Spans: []span.RawSpan{
			{Start: 0, End: 9, NativeLabel: "PER", Confidence: 0.92, SourceID: "ner"},
		},
	}
	llm := &testutil.MockDetector{
		SourceID:     "llm",
		NativeLabels: []string{"FIRSTNAME"},
		Spans: []span.RawSpan{
			{Start: 0, End: 9, NativeLabel: "FIRSTNAME", Confidence: 0.95, SourceID: "llm"},
		},
	}

	p, err := New([]detect.Detector{ner, llm})
	require.NoError(t, err)

	spans, err := p.Resolve(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, span.CategoryPerson, spans[0].Category)
	assert.Equal(t, []string{"llm", "ner"}, spans[0].Sources)
	assert.InDelta(t, 0.95, spans[0].Confidence, 1e-9)
}

func TestPipelinePartialDegradation(t *testing.T) {
	text := "mail alice@example.com"
	ok := &testutil.MockDetector{
		SourceID:     "pattern",
		NativeLabels: []string{"EMAIL_ADDRESS"},
		Spans: []span.RawSpan{
			{Start: 5, End: 22, NativeLabel: "EMAIL_ADDRESS", Confidence: 0.85, SourceID: "pattern"},
		},
	}
	broken := &testutil.MockDetector{
		SourceID:     "ner",
		NativeLabels: []string{"PER"},
		Err:          detect.ErrUnavailable,
	}

	p, err := New([]detect.Detector{ok, broken})
	require.NoError(t, err)

	spans, err := p.Resolve(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, span.CategoryEmail, spans[0].Category)
}

func TestPipelineAllDetectorsUnavailable(t *testing.T) {
	broken1 := &testutil.MockDetector{SourceID: "ner", NativeLabels: []string{"PER"}, Err: detect.ErrUnavailable}
	broken2 := &testutil.MockDetector{SourceID: "llm", NativeLabels: []string{"SSN"}, Err: detect.ErrUnavailable}

	p, err := New([]detect.Detector{broken1, broken2})
	require.NoError(t, err)

	_, err = p.Resolve(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrAllDetectorsUnavailable)

	_, err = p.Process(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrAllDetectorsUnavailable)
}

func TestPipelineNoDetectorsIsCleanRun(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)

	result, err := p.Process(context.Background(), "untouched text")
	require.NoError(t, err)
	assert.Equal(t, "untouched text", result.Text)
	assert.Empty(t, result.Replacements)
}

func TestPipelineRejectsIncompleteTaxonomy(t *testing.T) {
	d := &testutil.MockDetector{
		SourceID:     "custom",
		NativeLabels: []string{"WILDLY_UNKNOWN_LABEL"},
	}

	_, err := New([]detect.Detector{d})
	require.Error(t, err)
	assert.ErrorIs(t, err, taxonomy.ErrUnmappedLabel)
	assert.Contains(t, err.Error(), "WILDLY_UNKNOWN_LABEL")
}

func TestPipelineCustomTaxonomy(t *testing.T) {
	mapper, err := taxonomy.Parse([]byte(`
labels:
  BADGE: OTHER
`))
	require.NoError(t, err)

	d := &testutil.MockDetector{
		SourceID:     "custom",
		NativeLabels: []string{"BADGE"},
		Spans: []span.RawSpan{
			{Start: 0, End: 6, NativeLabel: "BADGE", Confidence: 0.8, SourceID: "custom"},
		},
	}

	p, err := New([]detect.Detector{d}, WithTaxonomy(mapper))
	require.NoError(t, err)

	spans, err := p.Resolve(context.Background(), "X-1234 granted access")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, span.CategoryOther, spans[0].Category)
}

func TestPipelineAuditRecords(t *testing.T) {
	store := testutil.NewTestAuditStore(t)
	text := "Alice mailed alice@example.com"

	d := &testutil.MockDetector{
		SourceID:     "ner",
		NativeLabels: []string{"PER"},
		Spans: []span.RawSpan{
			{Start: 0, End: 5, NativeLabel: "PER", Confidence: 0.9, SourceID: "ner"},
		},
	}

	p, err := New([]detect.Detector{d}, WithAuditStore(store))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Process(ctx, text)
	require.NoError(t, err)

	records, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, len(text), rec.TextLen)
	assert.NotContains(t, rec.TextHash, "Alice")
	require.Len(t, rec.Detectors, 1)
	assert.True(t, rec.Detectors[0].Available)
	assert.Equal(t, 1, rec.SpanCounts[span.CategoryPerson])
	assert.Equal(t, 1, rec.Replacements)
}
