package goSession

import "context"

type requestIDContextKey struct{}

// WithRequestID attaches a request identifier to ctx. The Engine copies it
// into log entries and audit events so a theft report can be traced back to
// the request that triggered it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
