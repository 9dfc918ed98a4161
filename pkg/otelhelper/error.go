package otelhelper

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorTypeKey holds the Go type of the error that failed a span.
const ErrorTypeKey = "error.type"

// SetError fails the span with err. attrs land on the recorded exception event, next to
// the step or instance the error belongs to.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil || !span.IsRecording() {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(ErrorTypeKey, fmt.Sprintf("%T", err)))
}
