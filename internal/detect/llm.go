package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/dativo-io/quill/internal/span"
)

// DefaultLLMConfidence is assigned when the model omits a score; the
// extraction prompt asks for 0.95 on all detections since the model runs
// at temperature 0.
const DefaultLLMConfidence = 0.95

// llmLabels is the entity vocabulary the extraction prompt offers the
// model. The prompt constrains output to this list, so it doubles as the
// detector's native label set for taxonomy validation.
var llmLabels = []string{
	"firstname", "middlename", "lastname", "dob", "email", "phonenumber",
	"url", "street", "buildingnumber", "secondaryaddress", "city", "state",
	"county", "zipcode", "country", "accountnumber", "creditcardnumber",
	"creditcardcvv", "iban", "ssn", "passportnumber", "ip", "ipv4", "ipv6",
}

const llmSystemPrompt = "You are an expert in identifying and extracting " +
	"Personally Identifiable Information (PII) from text. Your response must " +
	"be only the JSON content, without any markdown formatting or other text."

// LLMDetector extracts entities zero-shot via an OpenAI-compatible chat
// completion API. The model returns entity texts, not offsets; every
// occurrence of each returned text is located in the source to recover
// spans. Calls are rate limited so batch runs stay within API quotas.
type LLMDetector struct {
	id      string
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	labels  []string
}

// LLMOption configures an LLMDetector.
type LLMOption func(*LLMDetector)

// WithLLMID overrides the detector's source id (default "llm").
func WithLLMID(id string) LLMOption {
	return func(d *LLMDetector) { d.id = id }
}

// WithLLMModel sets the model (default gpt-4o-mini).
func WithLLMModel(model string) LLMOption {
	return func(d *LLMDetector) { d.model = model }
}

// WithLLMRateLimit caps calls per second (default 1, burst 1).
func WithLLMRateLimit(perSecond float64, burst int) LLMOption {
	return func(d *LLMDetector) { d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithLLMLabels overrides the entity vocabulary offered to the model.
func WithLLMLabels(labels []string) LLMOption {
	return func(d *LLMDetector) { d.labels = labels }
}

// NewLLMDetector creates a zero-shot LLM adapter.
func NewLLMDetector(client *openai.Client, opts ...LLMOption) *LLMDetector {
	d := &LLMDetector{
		id:      "llm",
		client:  client,
		model:   openai.GPT4oMini,
		limiter: rate.NewLimiter(1, 1),
		labels:  llmLabels,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ID implements Detector.
func (d *LLMDetector) ID() string { return d.id }

// Labels implements Detector.
func (d *LLMDetector) Labels() []string { return d.labels }

type llmResult struct {
	Type  string  `json:"type"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type llmResponse struct {
	PIIResults []llmResult `json:"pii_results"`
}

// Detect prompts the model for a JSON object of detections and maps each
// returned text back to source offsets. API failures and unparseable
// responses wrap ErrUnavailable.
func (d *LLMDetector) Detect(ctx context.Context, text string) ([]span.RawSpan, error) {
	ctx, sp := tracer.Start(ctx, "detect.llm",
		trace.WithAttributes(attribute.String("llm.model", d.model)))
	defer sp.End()

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: rate limit wait: %v", ErrUnavailable, d.id, err)
	}

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llmSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: d.prompt(text)},
		},
	})
	if err != nil {
		sp.RecordError(err)
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, d.id, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s: no choices returned", ErrUnavailable, d.id)
	}

	var parsed llmResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		sp.RecordError(err)
		return nil, fmt.Errorf("%w: %s: decoding model output: %v", ErrUnavailable, d.id, err)
	}

	spans := d.locate(text, parsed.PIIResults)
	sp.SetAttributes(attribute.Int("detect.spans", len(spans)))
	return spans, nil
}

// locate maps each detection's text to every occurrence in the source.
// Detections whose text does not appear (model hallucination) are
// skipped.
func (d *LLMDetector) locate(text string, results []llmResult) []span.RawSpan {
	var spans []span.RawSpan
	for _, r := range results {
		if r.Text == "" {
			continue
		}
		score := r.Score
		if score <= 0 || score > 1 {
			score = DefaultLLMConfidence
		}
		for from := 0; ; {
			idx := strings.Index(text[from:], r.Text)
			if idx < 0 {
				break
			}
			start := from + idx
			spans = append(spans, span.RawSpan{
				Start:       start,
				End:         start + len(r.Text),
				NativeLabel: r.Type,
				Confidence:  score,
				SourceID:    d.id,
			})
			from = start + len(r.Text)
		}
	}
	return spans
}

func (d *LLMDetector) prompt(text string) string {
	var b strings.Builder
	b.WriteString("Analyze the following text and identify any Personally Identifiable Information (PII).\n")
	b.WriteString("The PII types to detect are: ")
	b.WriteString(strings.Join(d.labels, ", "))
	b.WriteString(".\n\n")
	b.WriteString("Return the results as a JSON object with a single key \"pii_results\", ")
	b.WriteString("a list of objects with keys:\n")
	b.WriteString("- \"type\": the PII entity type from the list above.\n")
	b.WriteString("- \"text\": the detected PII text, exactly as it appears in the input.\n")
	b.WriteString("- \"score\": a confidence between 0.0 and 1.0; use 0.95 for all detections.\n\n")
	b.WriteString("Text to analyze:\n---\n")
	b.WriteString(text)
	b.WriteString("\n---\n")
	return b.String()
}
