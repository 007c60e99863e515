package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
)

// TraceID identifies one inbound command or request
type TraceID string

// SpanID identifies one operation within a trace
type SpanID string

// Span represents a single operation in a trace
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Error     error
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	if s == nil {
		return
	}
	s.Tags[key] = value
}

// SetError records an error in the span
func (s *Span) SetError(err error) {
	if s == nil {
		return
	}
	s.Error = err
}

// Finish marks the span as complete. Later calls keep the first duration.
func (s *Span) Finish() {
	if s == nil || s.Duration > 0 {
		return
	}
	s.Duration = time.Since(s.StartTime)
}

// Config tunes the span collector
type Config struct {
	Buffer int
	// Spans slower than this are logged at Warn instead of Debug
	SlowThreshold time.Duration
}

// DefaultConfig returns the collector defaults
func DefaultConfig() Config {
	return Config{Buffer: 1000, SlowThreshold: 2 * time.Second}
}

// Tracer creates spans and logs them once submitted. A nil *Tracer
// still propagates trace ids but records nothing.
type Tracer struct {
	cfg    Config
	logger *logging.Logger
	spans  chan *Span

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a tracer with default settings
func New(logger *logging.Logger) *Tracer {
	return NewWithConfig(DefaultConfig(), logger)
}

// NewWithConfig creates a tracer and starts its collector
func NewWithConfig(cfg Config, logger *logging.Logger) *Tracer {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}
	t := &Tracer{
		cfg:    cfg,
		logger: logger.Component("tracing"),
		spans:  make(chan *Span, cfg.Buffer),
		done:   make(chan struct{}),
	}
	go t.collectSpans()
	return t
}

// StartSpan opens a span, continuing the trace carried by ctx if any
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = TraceID(uuid.NewString())
	}
	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(uuid.NewString()),
		ParentID:  GetSpanID(ctx),
		Name:      name,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// Submit finishes span and hands it to the collector
func (t *Tracer) Submit(span *Span) {
	span.Finish()
	if t == nil || span == nil {
		return
	}
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("Span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("operation", span.Name),
		)
	}
}

// Close stops the collector after draining queued spans
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.closeOnce.Do(func() {
		close(t.spans)
		<-t.done
	})
}

func (t *Tracer) collectSpans() {
	defer close(t.done)
	for span := range t.spans {
		t.processSpan(span)
	}
}

func (t *Tracer) processSpan(span *Span) {
	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	switch {
	case span.Error != nil:
		t.logger.Warn("Span completed with error", append(fields, zap.Error(span.Error))...)
	case t.cfg.SlowThreshold > 0 && span.Duration > t.cfg.SlowThreshold:
		t.logger.Warn("Slow span", fields...)
	default:
		t.logger.Debug("Span completed", fields...)
	}
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// WithTraceID returns ctx carrying id
func WithTraceID(ctx context.Context, id TraceID) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, id)
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) TraceID {
	if traceID, ok := ctx.Value(traceIDKey).(TraceID); ok {
		return traceID
	}
	return ""
}

// GetSpanID retrieves the span ID from context
func GetSpanID(ctx context.Context) SpanID {
	if spanID, ok := ctx.Value(spanIDKey).(SpanID); ok {
		return spanID
	}
	return ""
}

// Field returns the trace id of ctx as a log field
func Field(ctx context.Context) zap.Field {
	if id := GetTraceID(ctx); id != "" {
		return zap.String("trace_id", string(id))
	}
	return zap.Skip()
}
