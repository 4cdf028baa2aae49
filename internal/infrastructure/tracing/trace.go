package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/interpol/internal/shared/id"
)

// TraceID identifies one traced batch.
type TraceID string

// SpanID identifies one phase within a trace.
type SpanID string

// Span is one timed phase of a batch.
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Error     error

	tracer *Tracer
	once   sync.Once
}

// Tracer times the phases of offline batches and logs each finished span.
type Tracer struct {
	logger *zap.Logger
	ids    *id.Generator
	now    func() time.Time

	mu    sync.Mutex
	spans []*Span
}

// New creates a tracer that logs to logger.
func New(logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{logger: logger.Named("trace"), ids: id.Default(), now: time.Now}
}

// StartSpan opens a span named name, nested under the span carried by ctx if
// there is one. A nil tracer returns a span that records nothing.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	if t == nil {
		return &Span{Name: name, Tags: map[string]string{}}, ctx
	}
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = TraceID(t.ids.GenerateWithPrefix("trace"))
	}
	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(t.ids.GenerateWithPrefix("span")),
		ParentID:  GetSpanID(ctx),
		Name:      name,
		StartTime: t.now(),
		Tags:      make(map[string]string),
		tracer:    t,
	}
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// SetTag adds a tag to the span.
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError records err as the span's outcome.
func (s *Span) SetError(err error) {
	s.Error = err
}

// Finish closes the span and hands it to its tracer. Later calls do nothing.
func (s *Span) Finish() {
	s.once.Do(func() {
		if s.tracer == nil {
			return
		}
		s.Duration = s.tracer.now().Sub(s.StartTime)
		s.tracer.record(s)
	})
}

func (t *Tracer) record(span *Span) {
	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()

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
	if span.Error != nil {
		t.logger.Warn("Span failed", append(fields, zap.Error(span.Error))...)
		return
	}
	t.logger.Debug("Span completed", fields...)
}

// Spans returns the finished spans in completion order.
func (t *Tracer) Spans() []*Span {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Span, len(t.spans))
	copy(out, t.spans)
	return out
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// GetTraceID returns the trace ID carried by ctx.
func GetTraceID(ctx context.Context) TraceID {
	if traceID, ok := ctx.Value(traceIDKey).(TraceID); ok {
		return traceID
	}
	return ""
}

// GetSpanID returns the innermost span ID carried by ctx.
func GetSpanID(ctx context.Context) SpanID {
	if spanID, ok := ctx.Value(spanIDKey).(SpanID); ok {
		return spanID
	}
	return ""
}
