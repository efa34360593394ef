// Package requestctx carries request-scoped identifiers from the HTTP layer
// into domain code without importing transport packages.
package requestctx

import "context"

type key int

const (
	requestIDKey key = iota
	actorIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithActor records the authenticated user that triggered the work.
func WithActor(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorIDKey, userID)
}

func Actor(ctx context.Context) string {
	value, _ := ctx.Value(actorIDKey).(string)
	return value
}

// Attrs returns the identifiers present on ctx as slog key/value pairs.
func Attrs(ctx context.Context) []any {
	attrs := make([]any, 0, 4)
	if id := RequestID(ctx); id != "" {
		attrs = append(attrs, "requestId", id)
	}
	if actor := Actor(ctx); actor != "" {
		attrs = append(attrs, "actorId", actor)
	}
	return attrs
}
