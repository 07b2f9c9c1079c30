package session

import (
	"context"
	"net/http"
	"time"
)

// CookieConfig configures the Set-Cookie attributes CookieTransport emits.
type CookieConfig struct {
	Name     string // default "sid"
	Path     string // default "/"
	Domain   string
	Secure   bool
	HTTPOnly bool // default true
	SameSite http.SameSite
	// Partitioned sets the CHIPS `Partitioned` attribute (for cookies
	// served in a third-party/iframe context). CookieTransport appends it
	// to the Set-Cookie header by hand; net/http.Cookie's own Partitioned
	// field is not used.
	Partitioned bool
	// Priority sets the non-standard `Priority` attribute ("Low",
	// "Medium", or "High") some browsers use to decide which cookies to
	// evict under storage pressure. net/http.Cookie has no field for it,
	// so it's appended manually like Partitioned. Empty leaves it unset.
	Priority string
}

// DefaultCookieConfig returns the conservative defaults: HttpOnly, Lax,
// path "/", cookie name "sid".
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:     "sid",
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// CookieTransport wraps a backing Store and carries its sid to the browser
// via a Set-Cookie header, per §4.9's cookie-carried variant.
type CookieTransport struct {
	backing Store
	cfg     CookieConfig
}

// NewCookieTransport wraps backing (memory by default) with cookie
// transport for the session id.
func NewCookieTransport(backing Store, cfg CookieConfig) *CookieTransport {
	if backing == nil {
		backing = NewMemoryStore(time.Minute)
	}
	if cfg.Name == "" {
		cfg.Name = "sid"
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &CookieTransport{backing: backing, cfg: cfg}
}

// SidFromRequest extracts the session id from the request's cookie, "" if
// absent.
func (t *CookieTransport) SidFromRequest(r *http.Request) string {
	c, err := r.Cookie(t.cfg.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

// Create stores data and writes the Set-Cookie header carrying the new sid.
func (t *CookieTransport) Create(ctx context.Context, w http.ResponseWriter, data *Data, ttl time.Duration) (string, error) {
	sid, err := t.backing.Set(ctx, data, ttl)
	if err != nil {
		return "", err
	}
	t.writeCookie(w, sid, ttl)
	return sid, nil
}

// Touch extends a session's expiry and re-emits the Set-Cookie with the
// refreshed Max-Age, per §4.9.
func (t *CookieTransport) Touch(ctx context.Context, w http.ResponseWriter, sid string, data *Data, ttl time.Duration) error {
	if err := t.backing.Touch(ctx, sid, data, ttl); err != nil {
		return err
	}
	t.writeCookie(w, sid, ttl)
	return nil
}

// Destroy erases the backing entry and clears the cookie (empty value,
// Max-Age=0).
func (t *CookieTransport) Destroy(ctx context.Context, w http.ResponseWriter, sid string) error {
	if err := t.backing.Destroy(ctx, sid); err != nil {
		return err
	}
	cookie := &http.Cookie{
		Name:     t.cfg.Name,
		Value:    "",
		Path:     t.cfg.Path,
		Domain:   t.cfg.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   t.cfg.Secure,
		HttpOnly: t.cfg.HTTPOnly,
		SameSite: t.cfg.SameSite,
	}
	http.SetCookie(w, cookie)
	t.appendRawAttributes(w)
	return nil
}

func (t *CookieTransport) writeCookie(w http.ResponseWriter, sid string, ttl time.Duration) {
	cookie := &http.Cookie{
		Name:     t.cfg.Name,
		Value:    sid,
		Path:     t.cfg.Path,
		Domain:   t.cfg.Domain,
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		Secure:   t.cfg.Secure,
		HttpOnly: t.cfg.HTTPOnly,
		SameSite: t.cfg.SameSite,
	}
	http.SetCookie(w, cookie)
	t.appendRawAttributes(w)
}

// appendRawAttributes appends the Partitioned and Priority attributes to
// the Set-Cookie header value SetCookie just wrote, leaving any earlier
// Set-Cookie values as they are.
func (t *CookieTransport) appendRawAttributes(w http.ResponseWriter) {
	if !t.cfg.Partitioned && t.cfg.Priority == "" {
		return
	}
	existing := w.Header().Values("Set-Cookie")
	if len(existing) == 0 {
		return
	}
	v := existing[len(existing)-1]
	if t.cfg.Partitioned {
		v += "; Partitioned"
	}
	if t.cfg.Priority != "" {
		v += "; Priority=" + t.cfg.Priority
	}
	existing[len(existing)-1] = v
}
