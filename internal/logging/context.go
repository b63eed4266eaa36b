package logging

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	loggerKey
)

// RequestIDHeader carries the request ID in and out of the HTTP API.
const RequestIDHeader = "X-Request-Id"

// EnsureRunID attaches a run_id to the context if absent and returns the
// updated context plus the ID. One simulation session shares one run_id.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id := RunIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return context.WithValue(ctx, runIDKey, id), id
}

// RunIDFromContext extracts run_id from context.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// WithRunLogger ensures a run_id exists and returns a logger annotated
// with it.
func WithRunLogger(ctx context.Context, base Logger) (context.Context, Logger) {
	if base == nil {
		base = Noop()
	}
	ctx, id := EnsureRunID(ctx)
	return ctx, base.With(String("run_id", id))
}

// ContextWithLogger stores a logger on the context.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	if l == nil {
		l = Noop()
	}
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored on ctx, or fallback.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(Logger); ok {
			return l
		}
	}
	if fallback == nil {
		return Noop()
	}
	return fallback
}

// RequestLogger wraps next so that every request carries a logger tagged
// with its request ID and path. The ID is taken from RequestIDHeader when
// the caller sent one and echoed back on the response.
func RequestLogger(base Logger, next http.Handler) http.Handler {
	if base == nil {
		base = Noop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		reqLog := base.With(String("request_id", id), String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ContextWithLogger(r.Context(), reqLog)))
	})
}
