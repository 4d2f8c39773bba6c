package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/quill/internal/span"
)

// DefaultNERChunkChars bounds the characters sent per inference call,
// leaving headroom for model special tokens.
const DefaultNERChunkChars = 450

// nerLabels is the entity-group vocabulary of the default token
// classification model.
var nerLabels = []string{"PER", "ORG", "LOC", "MISC", "DATE", "EMAIL", "PHONE"}

// NERDetector calls a remote token-classification service over a small
// JSON contract: POST {"text": ...} to the configured endpoint, expecting
// {"entities": [{"entity_group", "start", "end", "score", "word"}]}.
// Long texts are split at word boundaries to respect model input limits;
// entity offsets come back chunk-relative and are re-based onto the
// original text.
type NERDetector struct {
	id         string
	endpoint   string
	client     *http.Client
	chunkChars int
	labels     []string
}

// NEROption configures a NERDetector.
type NEROption func(*NERDetector)

// WithNERID overrides the detector's source id (default "ner").
func WithNERID(id string) NEROption {
	return func(d *NERDetector) { d.id = id }
}

// WithNERClient sets the HTTP client (e.g. an httptest client).
func WithNERClient(c *http.Client) NEROption {
	return func(d *NERDetector) { d.client = c }
}

// WithNERChunkChars overrides the per-call character budget.
func WithNERChunkChars(n int) NEROption {
	return func(d *NERDetector) { d.chunkChars = n }
}

// WithNERLabels declares the label vocabulary of the deployed model for
// taxonomy validation.
func WithNERLabels(labels []string) NEROption {
	return func(d *NERDetector) { d.labels = labels }
}

// NewNERDetector creates a token-classification adapter for the given
// service endpoint.
func NewNERDetector(endpoint string, opts ...NEROption) *NERDetector {
	d := &NERDetector{
		id:         "ner",
		endpoint:   endpoint,
		client:     http.DefaultClient,
		chunkChars: DefaultNERChunkChars,
		labels:     nerLabels,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ID implements Detector.
func (d *NERDetector) ID() string { return d.id }

// Labels implements Detector.
func (d *NERDetector) Labels() []string { return d.labels }

type nerRequest struct {
	Text string `json:"text"`
}

type nerEntity struct {
	EntityGroup string  `json:"entity_group"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Score       float64 `json:"score"`
	Word        string  `json:"word"`
}

type nerResponse struct {
	Entities []nerEntity `json:"entities"`
}

// Detect sends each chunk to the service and re-bases the returned
// offsets. Any transport or service failure wraps ErrUnavailable so the
// pipeline degrades instead of aborting.
func (d *NERDetector) Detect(ctx context.Context, text string) ([]span.RawSpan, error) {
	ctx, sp := tracer.Start(ctx, "detect.ner")
	defer sp.End()

	var spans []span.RawSpan
	for _, c := range chunkText(text, d.chunkChars) {
		entities, err := d.infer(ctx, c.text)
		if err != nil {
			sp.RecordError(err)
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, d.id, err)
		}
		for _, e := range entities {
			spans = append(spans, span.RawSpan{
				Start:       c.offset + e.Start,
				End:         c.offset + e.End,
				NativeLabel: e.EntityGroup,
				Confidence:  e.Score,
				SourceID:    d.id,
			})
		}
	}

	sp.SetAttributes(attribute.Int("detect.spans", len(spans)))
	return spans, nil
}

func (d *NERDetector) infer(ctx context.Context, text string) ([]nerEntity, error) {
	body, err := json.Marshal(nerRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling NER service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NER service returned %d", resp.StatusCode)
	}

	var nr nerResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return nil, fmt.Errorf("decoding NER response: %w", err)
	}
	return nr.Entities, nil
}

// chunk is a slice of the original text together with its byte offset, so
// chunk-relative entity positions re-base exactly.
type chunk struct {
	text   string
	offset int
}

// chunkText splits text into chunks of at most maxChars bytes, breaking
// at whitespace so no word is cut. Chunks are literal slices of the
// original text, never rejoined, which keeps offset re-basing exact even
// across runs of whitespace. A single word longer than maxChars becomes
// its own oversized chunk rather than being split mid-token.
func chunkText(text string, maxChars int) []chunk {
	if maxChars <= 0 || len(text) <= maxChars {
		return []chunk{{text: text, offset: 0}}
	}

	var chunks []chunk
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			chunks = append(chunks, chunk{text: text[start:], offset: start})
			break
		}
		// Walk back to the last whitespace inside the budget.
		cut := -1
		for i := end; i > start; i-- {
			if isSpaceByte(text[i-1]) {
				cut = i
				break
			}
		}
		if cut <= start {
			// No break point: extend forward to the next whitespace.
			cut = end
			for cut < len(text) && !isSpaceByte(text[cut]) {
				cut++
			}
		}
		chunks = append(chunks, chunk{text: text[start:cut], offset: start})
		start = cut
	}
	return chunks
}

func isSpaceByte(b byte) bool {
	return b < 0x80 && unicode.IsSpace(rune(b))
}
