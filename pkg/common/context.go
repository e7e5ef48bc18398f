package common

import (
	"context"
	"time"
)

type contextKey string

const startTimeKey contextKey = "request_start"

// WithStartTime records when request processing began; the response envelope
// reports the elapsed duration from it.
func WithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey, t)
}

// StartTimeFromContext returns the request start time, if recorded.
func StartTimeFromContext(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startTimeKey).(time.Time)
	return t, ok
}
