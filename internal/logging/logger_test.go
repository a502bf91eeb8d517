package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	t.Run("no span", func(t *testing.T) {
		buf.Reset()
		logger := WithTrace(context.Background(), base)
		logger.Info().Msg("hello")
		assert.NotContains(t, buf.String(), "trace_id")
	})

	t.Run("with span", func(t *testing.T) {
		buf.Reset()
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{1, 2, 3},
			SpanID:  trace.SpanID{4, 5, 6},
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		logger := WithTrace(ctx, base)
		logger.Info().Msg("hello")

		assert.Contains(t, buf.String(), `"trace_id":"01020300000000000000000000000000"`)
		assert.Contains(t, buf.String(), `"span_id":"0405060000000000"`)
	})
}

func TestNew_FallsBackToInfo(t *testing.T) {
	logger := New("booking", "prod", "nonsense")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
