package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// llmServer returns an OpenAI-compatible chat completions server whose
// assistant message is the given content.
func llmServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func llmClient(srv *httptest.Server) *openai.Client {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestLLMDetector(t *testing.T) {
	content := `{"pii_results": [
		{"type": "email", "text": "bob@x.io", "score": 0.95},
		{"type": "firstname", "text": "Bob", "score": 0.95}
	]}`
	d := NewLLMDetector(llmClient(llmServer(t, content)))

	text := "Bob can be reached at bob@x.io"
	spans, err := d.Detect(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, spans, 2)

	for _, s := range spans {
		assert.Equal(t, "llm", s.SourceID)
		assert.InDelta(t, 0.95, s.Confidence, 1e-9)
	}
	assert.Equal(t, "bob@x.io", text[spans[0].Start:spans[0].End])
	assert.Equal(t, "Bob", text[spans[1].Start:spans[1].End])
}

func TestLLMDetectorLocatesEveryOccurrence(t *testing.T) {
	content := `{"pii_results": [{"type": "firstname", "text": "Ana", "score": 0.9}]}`
	d := NewLLMDetector(llmClient(llmServer(t, content)))

	text := "Ana met Ana's sister"
	spans, err := d.Detect(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 8, spans[1].Start)
}

func TestLLMDetectorSkipsHallucinations(t *testing.T) {
	content := `{"pii_results": [
		{"type": "firstname", "text": "Zelda", "score": 0.9},
		{"type": "firstname", "text": "", "score": 0.9}
	]}`
	d := NewLLMDetector(llmClient(llmServer(t, content)))

	spans, err := d.Detect(context.Background(), "no such name here")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestLLMDetectorDefaultsMissingScore(t *testing.T) {
	content := `{"pii_results": [{"type": "city", "text": "Berlin"}]}`
	d := NewLLMDetector(llmClient(llmServer(t, content)))

	spans, err := d.Detect(context.Background(), "flights to Berlin daily")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.InDelta(t, DefaultLLMConfidence, spans[0].Confidence, 1e-9)
}

func TestLLMDetectorUnparseableOutput(t *testing.T) {
	d := NewLLMDetector(llmClient(llmServer(t, "I found no PII, have a nice day!")))

	_, err := d.Detect(context.Background(), "whatever")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLLMDetectorAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	d := NewLLMDetector(llmClient(srv))
	_, err := d.Detect(context.Background(), "whatever")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLLMDetectorOptions(t *testing.T) {
	d := NewLLMDetector(nil,
		WithLLMID("azure"),
		WithLLMModel("gpt-4o"),
		WithLLMLabels([]string{"email"}),
	)
	assert.Equal(t, "azure", d.ID())
	assert.Equal(t, []string{"email"}, d.Labels())
}

func TestLLMPromptListsLabels(t *testing.T) {
	d := NewLLMDetector(nil, WithLLMLabels([]string{"email", "ssn"}))
	p := d.prompt("body")
	assert.Contains(t, p, "email, ssn")
	assert.Contains(t, p, "pii_results")
	assert.Contains(t, p, "body")
}
