package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dativo-io/quill/internal/pipeline"

var (
	runCounter        metric.Int64Counter
	spanHistogram     metric.Int64Histogram
	durationHistogram metric.Float64Histogram
	metricsOnce       sync.Once
	metricsRegistered bool
)

func initRunMetrics() {
	meter := otel.Meter(meterName)
	var err error
	runCounter, err = meter.Int64Counter(
		"quill.pipeline.runs",
		metric.WithDescription("Completed pipeline runs"),
	)
	if err != nil {
		return
	}
	spanHistogram, err = meter.Int64Histogram(
		"quill.pipeline.spans",
		metric.WithDescription("Canonical spans per run"),
	)
	if err != nil {
		return
	}
	durationHistogram, err = meter.Float64Histogram(
		"quill.pipeline.duration",
		metric.WithDescription("Pipeline run duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	metricsRegistered = true
}

// recordRunMetrics emits per-run counters after a successful Process.
func recordRunMetrics(ctx context.Context, spans int, elapsed time.Duration) {
	metricsOnce.Do(initRunMetrics)
	if !metricsRegistered {
		return
	}
	runCounter.Add(ctx, 1)
	spanHistogram.Record(ctx, int64(spans))
	durationHistogram.Record(ctx, float64(elapsed.Milliseconds()))
}
