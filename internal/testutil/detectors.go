// Package testutil provides shared test helpers and mocks for Quill tests.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dativo-io/quill/internal/audit"
	"github.com/dativo-io/quill/internal/span"
)

// MockDetector implements detect.Detector for tests without live detectors.
// Set Err to simulate an unavailable adapter.
type MockDetector struct {
	SourceID     string         // detector identifier, e.g. "pattern"
	NativeLabels []string       // labels reported for taxonomy validation
	Spans        []span.RawSpan // canned detections returned by Detect
	Err          error          // if set, Detect returns this error
	CallCount    int            // incremented on each Detect call
}

// ID returns the detector identifier (implements detect.Detector).
func (m *MockDetector) ID() string { return m.SourceID }

// Labels returns the configured native label vocabulary.
func (m *MockDetector) Labels() []string {
	if m.NativeLabels != nil {
		return m.NativeLabels
	}
	labels := make([]string, 0, len(m.Spans))
	seen := make(map[string]bool)
	for _, s := range m.Spans {
		if !seen[s.NativeLabel] {
			seen[s.NativeLabel] = true
			labels = append(labels, s.NativeLabel)
		}
	}
	return labels
}

// Detect returns the canned spans or the configured error.
func (m *MockDetector) Detect(_ context.Context, _ string) ([]span.RawSpan, error) {
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]span.RawSpan, len(m.Spans))
	copy(out, m.Spans)
	return out, nil
}

// BlockingDetector implements detect.Detector and blocks until its context
// is cancelled, for timeout tests.
type BlockingDetector struct {
	SourceID string
}

func (b *BlockingDetector) ID() string       { return b.SourceID }
func (b *BlockingDetector) Labels() []string { return []string{"PER"} }

func (b *BlockingDetector) Detect(ctx context.Context, _ string) ([]span.RawSpan, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// NEREntity mirrors the token-classification service response shape.
type NEREntity struct {
	EntityGroup string  `json:"entity_group"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Score       float64 `json:"score"`
	Word        string  `json:"word"`
}

// NewNERServer starts an httptest.Server that answers every POST with the
// given entities. Caller registers t.Cleanup(server.Close).
func NewNERServer(entities []NEREntity) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"entities": entities})
	}))
}

// NewTestAuditStore creates an audit store in a temp dir and registers
// t.Cleanup to close it.
func NewTestAuditStore(t *testing.T) *audit.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := audit.NewStore(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
