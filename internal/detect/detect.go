// Package detect defines the detector adapter contract and runs
// heterogeneous detectors concurrently. Shipped adapters cover the three
// detector shapes the pipeline reconciles: regex recognizers
// (PatternDetector), a remote token-classification service (NERDetector),
// and zero-shot LLM extraction (LLMDetector).
package detect

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	quillotel "github.com/dativo-io/quill/internal/otel"
	"github.com/dativo-io/quill/internal/span"
)

var tracer = quillotel.Tracer("github.com/dativo-io/quill/internal/detect")

// DefaultTimeout bounds a single detector call when the caller does not
// configure one.
const DefaultTimeout = 30 * time.Second

// ErrUnavailable marks an adapter-level failure (timeout, network error,
// model load failure). The pipeline recovers by proceeding without that
// source; absence of a source is not itself a pipeline error.
var ErrUnavailable = errors.New("detector unavailable")

// Detector is the contract every adapter implements.
type Detector interface {
	// ID identifies the source in span provenance and logs.
	ID() string
	// Labels returns every native label this detector can emit, used to
	// validate taxonomy totality at startup.
	Labels() []string
	// Detect returns raw spans for the text, or an error wrapping
	// ErrUnavailable when the underlying detector cannot run.
	Detect(ctx context.Context, text string) ([]span.RawSpan, error)
}

// Result is one detector's outcome from a fan-out run.
type Result struct {
	SourceID string
	Spans    []span.RawSpan
	Err      error
}

// RunAll invokes every detector concurrently, each under its own timeout,
// and returns results in detector order once all have settled. A slow or
// failing detector never blocks the others; its Result carries the error
// instead. Cancelling ctx before the detectors settle discards in-flight
// calls.
func RunAll(ctx context.Context, detectors []Detector, text string, timeout time.Duration) []Result {
	ctx, sp := tracer.Start(ctx, "detect.run_all")
	defer sp.End()

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	results := make([]Result, len(detectors))
	g, ctx := errgroup.WithContext(ctx)
	for i, d := range detectors {
		i, d := i, d
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			spans, err := d.Detect(dctx, text)
			results[i] = Result{SourceID: d.ID(), Spans: spans, Err: err}
			if err != nil {
				log.Warn().
					Err(err).
					Str("detector", d.ID()).
					Dur("elapsed", time.Since(start)).
					Msg("detector unavailable, proceeding without it")
				return nil // failures degrade, they do not cancel siblings
			}
			log.Debug().
				Str("detector", d.ID()).
				Int("spans", len(spans)).
				Dur("elapsed", time.Since(start)).
				Msg("detector finished")
			return nil
		})
	}
	_ = g.Wait()

	available := 0
	for _, r := range results {
		if r.Err == nil {
			available++
		}
	}
	sp.SetAttributes(
		attribute.Int("detect.detectors", len(detectors)),
		attribute.Int("detect.available", available),
	)
	return results
}
