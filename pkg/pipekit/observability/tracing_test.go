package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest installs a tracer provider with an in-memory exporter and
// returns the exporter plus a cleanup restoring the original provider.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	// Rebind the package-level tracer to the test provider.
	tracer = otel.Tracer("pipekit")

	cleanup := func() {
		otel.SetTracerProvider(original)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}
	return exporter, cleanup
}

func TestStartRunSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("creates span with correct name and attributes", func(t *testing.T) {
		_, span := StartRunSpan(context.Background(), "run-123")
		require.NotNil(t, span)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, "pipekit.run", s.Name)

		var runID string
		for _, attr := range s.Attributes {
			if attr.Key == "run.id" {
				runID = attr.Value.AsString()
			}
		}
		assert.Equal(t, "run-123", runID)
	})

	t.Run("returns context carrying the span", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		newCtx, span := StartRunSpan(ctx, "run-456")
		assert.NotEqual(t, ctx, newCtx)

		span.End()
		require.Len(t, exporter.GetSpans(), 1)
	})
}

func TestStartStageSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("creates span with verb suffix", func(t *testing.T) {
		_, span := StartStageSpan(context.Background(), "mutate")
		require.NotNil(t, span)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, "pipekit.stage.mutate", s.Name)

		var verb string
		for _, attr := range s.Attributes {
			if attr.Key == "verb" {
				verb = attr.Value.AsString()
			}
		}
		assert.Equal(t, "mutate", verb)
	})

	t.Run("stage spans are children of the run span", func(t *testing.T) {
		exporter.Reset()

		ctx, runSpan := StartRunSpan(context.Background(), "run-1")
		_, stageSpan := StartStageSpan(ctx, "mutate")
		stageSpan.End()
		runSpan.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)

		var stage *tracetest.SpanStub
		for i := range spans {
			if spans[i].Name == "pipekit.stage.mutate" {
				stage = &spans[i]
				break
			}
		}
		require.NotNil(t, stage)
		assert.True(t, stage.Parent.IsValid())
	})
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("sets OK status for nil error", func(t *testing.T) {
		_, span := StartRunSpan(context.Background(), "run-1")
		EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
		assert.Equal(t, "", spans[0].Status.Description)
	})

	t.Run("sets Error status and records the error", func(t *testing.T) {
		exporter.Reset()

		_, span := StartRunSpan(context.Background(), "run-2")
		EndSpanWithError(span, errors.New("something went wrong"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, codes.Error, s.Status.Code)
		assert.Equal(t, "something went wrong", s.Status.Description)

		require.NotEmpty(t, s.Events)
		found := false
		for _, event := range s.Events {
			if event.Name == "exception" {
				found = true
			}
		}
		assert.True(t, found, "Expected exception event")
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			EndSpanWithError(nil, nil)
			EndSpanWithError(nil, errors.New("test"))
		})
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("adds event to current span", func(t *testing.T) {
		ctx, span := StartRunSpan(context.Background(), "run-1")

		AddSpanEvent(ctx, "journal_appended",
			attribute.String("verb", "mutate"),
			attribute.Int64("seq", 3),
		)
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		require.NotEmpty(t, spans[0].Events)

		var found bool
		for _, event := range spans[0].Events {
			if event.Name == "journal_appended" {
				found = true
				var verb string
				var seq int64
				for _, attr := range event.Attributes {
					switch attr.Key {
					case "verb":
						verb = attr.Value.AsString()
					case "seq":
						seq = attr.Value.AsInt64()
					}
				}
				assert.Equal(t, "mutate", verb)
				assert.Equal(t, int64(3), seq)
			}
		}
		assert.True(t, found, "Expected to find journal_appended event")
	})

	t.Run("no panic with no current span", func(t *testing.T) {
		assert.NotPanics(t, func() {
			AddSpanEvent(context.Background(), "test_event")
		})
	})
}

func TestSpanManager_Interface(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()
	require.NotNil(t, sm)

	t.Run("StartRunSpan via interface", func(t *testing.T) {
		_, span := sm.StartRunSpan(context.Background(), "run-if")
		require.NotNil(t, span)

		sm.EndSpanWithError(span, nil)
		require.NotEmpty(t, exporter.GetSpans())
	})

	t.Run("StartStageSpan via interface", func(t *testing.T) {
		exporter.Reset()

		_, span := sm.StartStageSpan(context.Background(), "head")
		require.NotNil(t, span)

		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.NotEmpty(t, spans)
		assert.Equal(t, "pipekit.stage.head", spans[0].Name)
	})

	t.Run("AddSpanEvent via interface", func(t *testing.T) {
		exporter.Reset()

		ctx, span := sm.StartRunSpan(context.Background(), "run-1")
		sm.AddSpanEvent(ctx, "custom_event", attribute.String("key", "value"))
		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.NotEmpty(t, spans)
		require.NotEmpty(t, spans[0].Events)
	})
}

func TestNoopSpanManager(t *testing.T) {
	sm := NoopSpanManager{}
	ctx, span := sm.StartRunSpan(context.Background(), "run-1")
	assert.NotNil(t, span)

	_, stageSpan := sm.StartStageSpan(ctx, "verb")
	assert.NotPanics(t, func() {
		sm.EndSpanWithError(stageSpan, errors.New("test"))
		sm.EndSpanWithError(span, nil)
		sm.AddSpanEvent(ctx, "event")
	})
}
