package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/oidcware/rp/internal/logging"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// RequestID assigns each inbound request a correlation id (honoring an
// upstream X-Request-ID if the proxy already set one), echoes it back in
// the response header, and attaches a request-scoped logger carrying that
// id plus the request's method and path. Code that logs through
// logging.Ctx(r.Context()) picks those fields up. rp.Controller reads the
// context logger only for HandleBackchannelLogout's missing-sid warning;
// its other log lines and its audit events (callback success/failure,
// token refresh, logout) go to the logger it was constructed with and do
// not carry the request id.
func RequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = logging.ContextWithRequestID(ctx, requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)

		scoped := logging.Logger().With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		ctx = logging.ContextWithLogger(ctx, scoped)

		next(w, r.WithContext(ctx))
	}
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
