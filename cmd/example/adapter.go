package main

import (
	"context"
	"net/http"

	"github.com/oidcware/rp"
	"github.com/oidcware/rp/session"
)

type sessionContextKey struct{}

// sessionFromContext returns the *session.Data a requireAuth middleware
// placed on the request context, if any.
func sessionFromContext(ctx context.Context) (*session.Data, bool) {
	data, ok := ctx.Value(sessionContextKey{}).(*session.Data)
	return data, ok
}

// httpRequest adapts *http.Request to rp.Request.
type httpRequest struct {
	r *http.Request
}

func (a httpRequest) Context() context.Context { return a.r.Context() }
func (a httpRequest) Method() string            { return a.r.Method }
func (a httpRequest) URL() string               { return a.r.URL.String() }
func (a httpRequest) QueryParam(name string) string {
	return a.r.URL.Query().Get(name)
}
func (a httpRequest) Cookie(name string) (string, bool) {
	c, err := a.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// httpResponse adapts http.ResponseWriter to rp.Response.
type httpResponse struct {
	w http.ResponseWriter
}

func (a httpResponse) SetStatus(code int)       { a.w.WriteHeader(code) }
func (a httpResponse) SetCookie(c *http.Cookie) { http.SetCookie(a.w, c) }
func (a httpResponse) Redirect(location string, code int) {
	a.w.Header().Set("Location", location)
	a.w.WriteHeader(code)
}
func (a httpResponse) Write(body []byte) (int, error) { return a.w.Write(body) }

var _ rp.Request = httpRequest{}
var _ rp.Response = httpResponse{}

// loginHandler starts the authorization-code flow.
func loginHandler(ctrl *rp.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := httpResponse{w}
		if err := ctrl.StartLogin(r.Context(), res, nil); err != nil {
			http.Error(w, "login failed", http.StatusInternalServerError)
		}
	}
}

// callbackHandler completes the authorization-code flow and lands the user
// on successRedirect.
func callbackHandler(ctrl *rp.Controller, successRedirect string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, res := httpRequest{r}, httpResponse{w}
		if err := ctrl.HandleCallback(r.Context(), req, res, successRedirect); err != nil {
			http.Error(w, "callback failed", http.StatusBadRequest)
		}
	}
}

// logoutHandler destroys the caller's session and redirects to the
// provider's end_session_endpoint if published.
func logoutHandler(ctrl *rp.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, res := httpRequest{r}, httpResponse{w}
		if err := ctrl.Logout(r.Context(), req, res, ""); err != nil {
			http.Error(w, "logout failed", http.StatusInternalServerError)
		}
	}
}

// backchannelLogoutHandler consumes an OIDC Back-Channel Logout 1.0
// `logout_token` form post from the provider.
func backchannelLogoutHandler(ctrl *rp.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		logoutToken := r.PostForm.Get("logout_token")
		if logoutToken == "" {
			http.Error(w, "missing logout_token", http.StatusBadRequest)
			return
		}
		if err := ctrl.HandleBackchannelLogout(r.Context(), logoutToken); err != nil {
			http.Error(w, "rejected", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// requireAuth is middleware that resolves the caller's session via
// ctrl.RequireAuth, rejecting with 401 when absent or invalid, and places
// the resolved *session.Data on the request context for next to read via
// sessionFromContext.
func requireAuth(ctrl *rp.Controller, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := ctrl.RequireAuth(r.Context(), httpRequest{r})
		if err != nil {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, data)
		next(w, r.WithContext(ctx))
	}
}
