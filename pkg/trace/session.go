// session.go provides span helpers for call and leg lifecycle events.

package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys used throughout the bridge
const (
	AttrSessionID  = "session.id"
	AttrStreamSid  = "call.stream_sid"
	AttrCallSid    = "call.call_sid"
	AttrLeg        = "call.leg" // "telephony" or "engine"
	AttrLegState   = "leg.state"
	AttrSampleRate = "audio.sample_rate"
	AttrFrameSize  = "audio.frame_size"
	AttrDataSize   = "message.size"
	AttrDirection  = "message.direction"
)

// SessionAttrs creates attributes identifying one bridged call
func SessionAttrs(sessionID, streamSid, callSid string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrStreamSid, streamSid),
		attribute.String(AttrCallSid, callSid),
	}
}

// StartSession creates the root span for one bridged call
func StartSession(ctx context.Context, sessionID, streamSid, callSid string) (context.Context, trace.Span) {
	return StartSpan(ctx, "bridge.session",
		trace.WithAttributes(SessionAttrs(sessionID, streamSid, callSid)...),
	)
}

// InstrumentLegStateChange records a leg lifecycle transition
func InstrumentLegStateChange(ctx context.Context, sessionID, leg, state string) (context.Context, trace.Span) {
	return StartSpan(ctx, "leg.state_change",
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.String(AttrLeg, leg),
			attribute.String(AttrLegState, state),
		),
	)
}

// InstrumentLegError records a leg failure
func InstrumentLegError(ctx context.Context, sessionID, leg string, err error) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, "leg.error",
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.String(AttrLeg, leg),
		),
	)
	RecordError(span, err)
	return ctx, span
}

// WithSpan executes a function within a new span
func WithSpan(ctx context.Context, spanName string, fn func(context.Context) error, opts ...trace.SpanStartOption) error {
	ctx, span := StartSpan(ctx, spanName, opts...)
	defer span.End()

	if err := fn(ctx); err != nil {
		RecordError(span, err)
		return err
	}

	return nil
}

// RecordError records an error on a span
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent adds an event to a span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// TraceID returns the trace ID from the current span in context
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
