/*
Package middleware provides the request-id middleware used by
cmd/example's chi router.

RequestID assigns a request correlation id (from X-Request-ID if the
caller/proxy already set one, otherwise a generated UUID), echoes it in
the response header, and wires it into internal/logging's context-scoped
logger so every log line for a request carries the same id.

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
	    return middleware.RequestID(next.ServeHTTP)
	})
*/
package middleware
