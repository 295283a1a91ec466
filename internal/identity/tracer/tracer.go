// Package tracer provides a lightweight tracing abstraction for the identity pipelines.
//
// The pipelines emit spans through this interface instead of the OpenTelemetry API
// so tests can run with the no-op implementation and production can plug in OTel.
//
// Implementations:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording err when non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span; the returned context carries it to child operations.
	//
	// Example:
	//   ctx, span := tr.Start(ctx, tracer.SpanPublish,
	//       tracer.String(tracer.AttrAddress, caller.String()),
	//   )
	//   defer span.End(err)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an int attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Float64 creates a float64 attribute.
func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the identity pipelines.
const (
	SpanPublish      = "publication.publish"
	SpanPublishStage = "publication.stage"
	SpanClear        = "publication.clear"
	SpanResolve      = "resolution.resolve"
	SpanFetch        = "contentstore.fetch"
	SpanUpload       = "contentstore.upload"
)

// Attribute keys used by the identity pipelines.
const (
	AttrAddress      = "owner.address"
	AttrStage        = "publication.stage"
	AttrContentRef   = "content.ref"
	AttrGateway      = "gateway"
	AttrAttempts     = "gateway.attempts"
	AttrUploadKind   = "upload.kind"
	AttrPayloadBytes = "upload.bytes"
	AttrPhase        = "resolution.phase"
	AttrSubmission   = "registry.submission"
)

// Event names used by the identity pipelines.
const (
	EventGatewayFailed = "gateway.failed"
	EventTransition    = "resolution.transition"
	EventPublished     = "identity.published"
)
