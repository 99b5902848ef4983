package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

func TestTracingHandler_AttachesServiceMetadata(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	handler := NewTracingHandler(inner, "deltasched", "staging", ModeServe)
	logger := slog.New(handler)

	logger.Info("hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "deltasched", decoded[attrService])
	assert.Equal(t, "staging", decoded[attrEnv])
	assert.Equal(t, string(ModeServe), decoded[attrMode])
}

func TestTracingHandler_OmitsEnvWhenEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(NewTracingHandler(inner, "deltasched", "", ModeCLI))

	logger.Info("hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	_, hasEnv := decoded[attrEnv]
	assert.False(t, hasEnv)
}

func TestTracingHandler_InjectsTraceContextFromSpan(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(NewTracingHandler(inner, "deltasched", "", ModeCLI))

	tp := tracesdk.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := tp.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "op")
	defer span.End()

	logger.InfoContext(ctx, "hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, span.SpanContext().TraceID().String(), decoded[attrTraceID])
	assert.Equal(t, span.SpanContext().SpanID().String(), decoded[attrSpanID])
}

func TestTracingHandler_NoTraceContextWithoutSpan(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(NewTracingHandler(inner, "deltasched", "", ModeCLI))

	logger.InfoContext(context.Background(), "hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	_, hasTraceID := decoded[attrTraceID]
	assert.False(t, hasTraceID)
}

func TestTracingHandler_WithAttrsAndWithGroupPreserveWrapping(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	handler := NewTracingHandler(inner, "deltasched", "", ModeCLI)

	grouped := handler.WithGroup("req").WithAttrs([]slog.Attr{slog.String("id", "abc")})
	_, ok := grouped.(*TracingHandler)
	assert.True(t, ok)

	logger := slog.New(grouped)
	logger.Info("hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "deltasched", decoded[attrService])
}
