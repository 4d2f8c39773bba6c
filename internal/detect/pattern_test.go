package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/quill/internal/span"
)

func labelsOf(spans []span.RawSpan) []string {
	labels := make([]string, len(spans))
	for i, s := range spans {
		labels[i] = s.NativeLabel
	}
	return labels
}

func TestPatternDetectorDefaults(t *testing.T) {
	d := MustNewPatternDetector()
	ctx := context.Background()

	tests := []struct {
		name       string
		text       string
		wantLabels []string
	}{
		{
			name:       "no PII",
			text:       "hello world, nothing to see",
			wantLabels: nil,
		},
		{
			name:       "email address",
			text:       "reach me at user@example.com",
			wantLabels: []string{"EMAIL_ADDRESS"},
		},
		{
			name:       "US SSN",
			text:       "SSN 123-45-6789 on record",
			wantLabels: []string{"US_SSN"},
		},
		{
			name:       "IPv4 address",
			text:       "server at 192.168.1.100",
			wantLabels: []string{"IP_ADDRESS"},
		},
		{
			name:       "separated phone with context",
			text:       "call 555-010-0123 now",
			wantLabels: []string{"PHONE_NUMBER"},
		},
		{
			name:       "E.164 phone",
			text:       "mobile +4915112345678",
			wantLabels: []string{"PHONE_NUMBER"},
		},
		{
			name:       "URL",
			text:       "docs at https://example.org/start",
			wantLabels: []string{"URL"},
		},
		{
			name:       "valid IBAN with context",
			text:       "IBAN: DE89370400440532013000",
			wantLabels: []string{"IBAN_CODE"},
		},
		{
			name:       "IBAN with failing checksum is dropped",
			text:       "IBAN: DE89370400440532013001",
			wantLabels: nil,
		},
		{
			name:       "credit card with context passes Luhn",
			text:       "card: 4111111111111111",
			wantLabels: []string{"CREDIT_CARD"},
		},
		{
			name:       "credit card failing Luhn is dropped",
			text:       "card: 4111111111111112",
			wantLabels: nil,
		},
		{
			name:       "ISO date alone scores below threshold",
			text:       "released 2024-06-01 worldwide",
			wantLabels: nil,
		},
		{
			name:       "ISO date with context word",
			text:       "date of birth 1990-06-01",
			wantLabels: []string{"DATE_TIME"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans, err := d.Detect(ctx, tt.text)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.wantLabels, labelsOf(spans))
		})
	}
}

func TestPatternDetectorOffsets(t *testing.T) {
	d := MustNewPatternDetector()
	text := "write to user@example.com today"

	spans, err := d.Detect(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "user@example.com", text[s.Start:s.End])
	assert.Equal(t, "pattern", s.SourceID)
	assert.InDelta(t, 0.85, s.Confidence, 1e-9)
}

func TestContextBoost(t *testing.T) {
	d := MustNewPatternDetector()
	ctx := context.Background()

	// Passport base score 0.3 clears the 0.5 threshold only with a
	// context word in the window.
	spans, err := d.Detect(ctx, "document K12345678 attached")
	require.NoError(t, err)
	assert.NotEmpty(t, spans)
	assert.InDelta(t, 0.3+ContextSimilarityFactor, spans[0].Confidence, 1e-9)

	spans, err = d.Detect(ctx, "reference K12345678 attached")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestEnhanceScoreWithContext(t *testing.T) {
	text := "my phone number is 555 and nothing else"

	boosted := enhanceScoreWithContext(text, 19, 0.5, []string{"phone"})
	assert.InDelta(t, 0.85, boosted, 1e-9)

	// Case-insensitive match.
	boosted = enhanceScoreWithContext("PHONE: x", 7, 0.5, []string{"phone"})
	assert.InDelta(t, 0.85, boosted, 1e-9)

	// No context words configured, score unchanged.
	assert.InDelta(t, 0.5, enhanceScoreWithContext(text, 19, 0.5, nil), 1e-9)

	// Context word outside the window does not boost.
	far := "phone" + string(make([]byte, 200)) + "5551234"
	assert.InDelta(t, 0.5, enhanceScoreWithContext(far, 205, 0.5, []string{"phone"}), 1e-9)
}

func TestPatternDetectorEntityFilters(t *testing.T) {
	d := MustNewPatternDetector(WithEnabledEntities([]string{"EMAIL_ADDRESS"}))
	assert.Equal(t, []string{"EMAIL_ADDRESS"}, d.Labels())

	spans, err := d.Detect(context.Background(), "SSN 123-45-6789, mail user@example.com")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "EMAIL_ADDRESS", spans[0].NativeLabel)

	d = MustNewPatternDetector(WithDisabledEntities([]string{"EMAIL_ADDRESS"}))
	assert.NotContains(t, d.Labels(), "EMAIL_ADDRESS")
}

func TestPatternDetectorExtraRecognizers(t *testing.T) {
	extra := []RecognizerConfig{{
		Name:            "EmployeeIDRecognizer",
		SupportedEntity: "EMPLOYEE_ID",
		Patterns: []PatternConfig{
			{Name: "employee_id", Regex: `\bEMP-[0-9]{6}\b`, Score: 0.9},
		},
	}}
	d := MustNewPatternDetector(WithExtraRecognizers(extra))
	assert.Contains(t, d.Labels(), "EMPLOYEE_ID")

	spans, err := d.Detect(context.Background(), "badge EMP-004711 issued")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "EMPLOYEE_ID", spans[0].NativeLabel)
}

func TestPatternDetectorInvalidRegex(t *testing.T) {
	_, err := NewPatternDetector(WithExtraRecognizers([]RecognizerConfig{{
		Name:            "Broken",
		SupportedEntity: "X",
		Patterns:        []PatternConfig{{Name: "bad", Regex: "([", Score: 0.5}},
	}}))
	assert.Error(t, err)
}

func TestPatternDetectorCustomID(t *testing.T) {
	d := MustNewPatternDetector(WithPatternID("presidio"))
	assert.Equal(t, "presidio", d.ID())

	spans, err := d.Detect(context.Background(), "mail user@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, spans)
	assert.Equal(t, "presidio", spans[0].SourceID)
}
