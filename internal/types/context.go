package types

import "context"

type contextKey string

const (
	tickIDKey contextKey = "tick_id"
)

// WithTickID stores the tick correlation ID in the context.
func WithTickID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tickIDKey, id)
}

// GetTickID retrieves the tick correlation ID from the context.
func GetTickID(ctx context.Context) string {
	id, _ := ctx.Value(tickIDKey).(string)
	return id
}
