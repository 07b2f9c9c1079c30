package rp

import (
	"context"
	"net/http"
)

// Request is the narrow view of an inbound HTTP request the controller
// needs, per Design Note 9: a web-runtime adapter (cmd/example's chi
// adapter, or any other) implements this over its native request type so
// the core never imports net/http's server-side types directly.
type Request interface {
	Context() context.Context
	Method() string
	// URL returns the request's full URL including query string.
	URL() string
	// QueryParam returns a single query string value, "" if absent.
	QueryParam(name string) string
	// Cookie returns a cookie's value and whether it was present.
	Cookie(name string) (string, bool)
}

// Response is the narrow view of an outbound HTTP response the controller
// drives: setting a redirect, a cookie, or an error status.
type Response interface {
	// SetStatus sets the response status code. Must be called before Write.
	SetStatus(code int)
	// SetCookie appends a Set-Cookie header.
	SetCookie(cookie *http.Cookie)
	// Redirect sets Location and the given status code (no body written).
	Redirect(location string, code int)
	// Write writes the response body, implicitly using 200 if SetStatus
	// was never called.
	Write(body []byte) (int, error)
}
