package apiserver

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("akidb/apiserver")

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// RequestIDFromContext extracts the request ID assigned by requestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// requestIDMiddleware assigns a unique request ID to each request, accepting
// a client-supplied X-Request-ID if it is a reasonable length of printable
// ASCII, and generating a fresh UUID otherwise.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !isValidRequestID(reqID) {
			reqID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), contextKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isValidRequestID(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs each request with structured fields once it completes.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	next = requestIDMiddleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		level := slog.LevelInfo
		switch {
		case wrapped.statusCode >= 500:
			level = slog.LevelError
		case wrapped.statusCode >= 400:
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "apiserver: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", wrapped.Header().Get("X-Request-ID"),
		)
	})
}

// routePattern extracts the registered mux pattern for span names, bounding
// cardinality against arbitrary path segments (collection/database IDs).
// Falls back to method + first two path segments when r.Pattern is empty,
// which is always the case for the request tracingMiddleware holds: the mux
// sets Pattern only on the request copy it passes to the handler.
func routePattern(r *http.Request) string {
	if pat := r.Pattern; pat != "" {
		return pat
	}
	parts := strings.SplitN(r.URL.Path, "/", 4)
	if len(parts) >= 3 {
		return r.Method + " /" + parts[1] + "/" + parts[2]
	}
	return r.Method + " " + r.URL.Path
}

// tracingMiddleware opens one span per request — covering the handler's
// full Insert/Delete/Query/CreateCollection/etc. call, since those run
// synchronously inside the handler — and injects the trace context into the
// response headers so a caller can correlate its own downstream operations.
// After dispatch the span is renamed via routePattern; since this middleware
// never sees the mux's matched pattern, the name is the method plus the first
// two path segments.
func tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "http.request",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.Path),
			),
		)
		defer span.End()

		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(w.Header()))

		sw, ok := w.(*statusWriter)
		if !ok {
			sw = &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		}
		next.ServeHTTP(sw, r.WithContext(ctx))

		span.SetName(routePattern(r))
		span.SetAttributes(attribute.Int("http.status_code", sw.statusCode))
	})
}

// recoveryMiddleware converts a panic in a handler into a 500 response
// instead of taking down the listener.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("apiserver: panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				)
				writeJSON(w, http.StatusInternalServerError, apiError{Error: errorDetail{
					Code:    "internal_error",
					Message: "internal server error",
				}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
