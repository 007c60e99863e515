package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
)

func observed(level zap.AtomicLevel) (*logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &logging.Logger{Logger: zap.New(core)}, logs
}

func TestStartSpanPropagatesTrace(t *testing.T) {
	tracer := New(logging.NewNop())
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "envelope")
	child, childCtx := tracer.StartSpan(ctx, "launch")

	assert.NotEmpty(t, root.TraceID)
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
	assert.Equal(t, root.TraceID, GetTraceID(childCtx))
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
}

func TestWithTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc")
	assert.Equal(t, TraceID("abc"), GetTraceID(ctx))

	assert.Equal(t, context.Background(), WithTraceID(context.Background(), ""))
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestField(t *testing.T) {
	assert.Equal(t, zap.Skip(), Field(context.Background()))
	assert.Equal(t, zap.String("trace_id", "abc"), Field(WithTraceID(context.Background(), "abc")))
}

func TestSubmitLogsByOutcome(t *testing.T) {
	tests := []struct {
		name      string
		configure func(span *Span)
		wantMsg   string
	}{
		{
			name:      "success",
			configure: func(*Span) {},
			wantMsg:   "Span completed",
		},
		{
			name:      "error",
			configure: func(span *Span) { span.SetError(errors.New("boom")) },
			wantMsg:   "Span completed with error",
		},
		{
			name: "slow",
			configure: func(span *Span) {
				span.StartTime = time.Now().Add(-time.Minute)
			},
			wantMsg: "Slow span",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := observed(zap.NewAtomicLevelAt(zap.DebugLevel))
			tracer := NewWithConfig(Config{Buffer: 4, SlowThreshold: time.Second}, logger)

			span, _ := tracer.StartSpan(context.Background(), "envelope")
			span.SetTag("namespace", "Experience")
			tt.configure(span)
			tracer.Submit(span)
			tracer.Close()

			entries := logs.FilterMessage(tt.wantMsg).All()
			require.Len(t, entries, 1)
			assert.Equal(t, "Experience", entries[0].ContextMap()["namespace"])
			assert.Equal(t, "envelope", entries[0].ContextMap()["operation"])
		})
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer

	span, ctx := tracer.StartSpan(context.Background(), "envelope")
	require.NotNil(t, span)
	assert.NotEmpty(t, GetTraceID(ctx))
	span.StartTime = span.StartTime.Add(-time.Millisecond)

	tracer.Submit(span)
	tracer.Close()
	assert.Positive(t, span.Duration)
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New(logging.NewNop())
	defer tracer.Close()

	var seen TraceID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/state", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("generates trace id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/state", nil))

		assert.NotEmpty(t, w.Header().Get(HeaderTraceID))
		assert.Equal(t, TraceID(w.Header().Get(HeaderTraceID)), seen)
	})

	t.Run("continues caller trace", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/state", nil)
		req.Header.Set(HeaderTraceID, "caller-trace")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "caller-trace", w.Header().Get(HeaderTraceID))
		assert.Equal(t, TraceID("caller-trace"), seen)
	})
}
