package otel

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceContextFromNoSpan(t *testing.T) {
	traceID, spanID := TraceContextFrom(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestLogTraceFieldsNoSpanNoFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().Func(LogTraceFields(context.Background())).Msg("hello")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestLogTraceFieldsWithSpan(t *testing.T) {
	shutdown, err := Setup("log-test", "0.0.1", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	ctx, span := Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().Func(LogTraceFields(ctx)).Msg("hello")
	assert.Contains(t, buf.String(), "trace_id")
	assert.Contains(t, buf.String(), "span_id")
}

func TestLogTraceFieldsNoPanicOnDiscard(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ev := logger.Info()
	LogTraceFields(context.Background())(ev)
	ev.Msg("")
}
