// Package contextkey attaches and retrieves per-request correlation
// identifiers on a context.Context. The key type is unexported and every
// read goes through a typed accessor, so a caller can never reach for the
// wrong dynamic type the way a raw exported key constant invites — writing
// with contextkey.WithTraceID and reading with ctx.Value("trace_id") simply
// isn't expressible.
package contextkey

import "context"

type correlationField int

const (
	traceIDField correlationField = iota
	requestIDField
	userIDField
)

// WithTraceID returns a copy of ctx carrying the trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDField, id)
}

// TraceID reports the trace ID attached to ctx, if any.
func TraceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceIDField).(string)
	return id, ok
}

// WithRequestID returns a copy of ctx carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDField, id)
}

// RequestID reports the request ID attached to ctx, if any.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDField).(string)
	return id, ok
}

// WithUserID returns a copy of ctx carrying the user ID.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDField, id)
}

// UserID reports the user ID attached to ctx, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDField).(string)
	return id, ok
}
