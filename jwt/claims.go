package jwt

import (
	"github.com/oidcware/rp/errs"
)

// Claims is a decoded JWT payload, with the OIDC-standard fields surfaced
// as typed accessors and everything else available via Raw.
type Claims struct {
	Issuer          string
	Subject         string
	Audience        []string
	ExpiresAt       int64
	NotBefore       *int64
	IssuedAt        *int64
	JTI             string
	AuthorizedParty string
	Nonce           string

	// Raw is the full decoded payload, including profile/custom claims
	// (name, email, preferred_username, roles, ...) that this module
	// does not interpret itself but exposes for callers building a user
	// profile after verification.
	Raw map[string]any
}

// ParseClaims builds a Claims from a decoded JSON payload map.
func ParseClaims(payload map[string]any) (*Claims, error) {
	c := &Claims{Raw: payload}

	iss, ok := getString(payload, "iss")
	if !ok || iss == "" {
		return nil, errs.New(errs.InvalidJWT, "payload missing required claim: iss")
	}
	c.Issuer = iss

	sub, ok := getString(payload, "sub")
	if !ok || sub == "" {
		return nil, errs.New(errs.InvalidJWT, "payload missing required claim: sub")
	}
	c.Subject = sub

	aud, ok := getAudience(payload)
	if !ok || len(aud) == 0 {
		return nil, errs.New(errs.InvalidJWT, "payload missing required claim: aud")
	}
	c.Audience = aud

	exp, ok := getNumber(payload, "exp")
	if !ok {
		return nil, errs.New(errs.InvalidJWT, "payload missing required claim: exp")
	}
	c.ExpiresAt = int64(exp)

	if nbf, ok := getNumber(payload, "nbf"); ok {
		v := int64(nbf)
		c.NotBefore = &v
	}
	if iat, ok := getNumber(payload, "iat"); ok {
		v := int64(iat)
		c.IssuedAt = &v
	}
	c.JTI, _ = getString(payload, "jti")
	c.AuthorizedParty, _ = getString(payload, "azp")
	c.Nonce, _ = getString(payload, "nonce")

	return c, nil
}

// StringClaim returns a raw claim as a string, the zero value if absent
// or not a string.
func (c *Claims) StringClaim(name string) string {
	s, _ := getString(c.Raw, name)
	return s
}

// BoolClaim returns a raw claim as a bool.
func (c *Claims) BoolClaim(name string) bool {
	v, ok := c.Raw[name]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// StringSliceClaim returns a raw claim that may be a single string or an
// array of strings (e.g. "roles", "groups"), normalized to a slice.
func (c *Claims) StringSliceClaim(name string) []string {
	v, ok := c.Raw[name]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ContainsAudience reports whether aud is a member of c.Audience.
func (c *Claims) ContainsAudience(aud string) bool {
	for _, a := range c.Audience {
		if a == aud {
			return true
		}
	}
	return false
}

func getString(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func getNumber(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func getAudience(m map[string]any) ([]string, bool) {
	v, ok := m["aud"]
	if !ok {
		return nil, false
	}
	switch aud := v.(type) {
	case string:
		return []string{aud}, true
	case []any:
		out := make([]string, 0, len(aud))
		for _, item := range aud {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
