package types

import "context"

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID stores a correlation id (SQS message id, Lambda request id)
// in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the correlation id from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
