package jwt

import (
	"crypto/subtle"
	"time"

	"github.com/oidcware/rp/errs"
)

// Validator is the claims validator (C3): it checks iss, aud, azp,
// exp/nbf/iat, and an optional nonce, in the order fixed by §4.3 so that
// the cheapest, most-identifying checks fail first.
type Validator struct {
	expectedIssuer  string
	expectedAudience string
	maxFutureSkew   time.Duration
	now             func() time.Time
}

// ValidatorOption customizes a Validator built by NewValidator.
type ValidatorOption func(*Validator)

// WithMaxFutureSkew overrides the default 300s skew tolerance for iat.
func WithMaxFutureSkew(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.maxFutureSkew = d }
}

// withClock overrides the time source for tests.
func withClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// NewValidator constructs a Validator for a given issuer/audience pair.
func NewValidator(expectedIssuer, expectedAudience string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		expectedIssuer:   expectedIssuer,
		expectedAudience: expectedAudience,
		maxFutureSkew:    300 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the §4.3 claim checks in order. nonce is the value
// recorded by the caller for this authorization flow; pass "" to skip
// nonce validation (e.g. for a refreshed access token carried as a JWT,
// rather than a freshly issued ID token).
func (v *Validator) Validate(c *Claims, nonce string) error {
	if c.Issuer != v.expectedIssuer {
		return errs.New(errs.IDTokenValidationError, "Invalid issuer")
	}

	if !c.ContainsAudience(v.expectedAudience) {
		return errs.New(errs.IDTokenValidationError, "Audience not found")
	}

	if len(c.Audience) > 1 {
		if c.AuthorizedParty != "" && c.AuthorizedParty != v.expectedAudience {
			return errs.New(errs.IDTokenValidationError, "Invalid authorized party (azp)")
		}
		// azp absent with multi-audience: accept, matching §4.3 step 3.
	}

	now := v.now().Unix()

	if c.ExpiresAt <= now {
		return errs.New(errs.IDTokenValidationError, "Token expired")
	}
	if c.IssuedAt != nil && *c.IssuedAt > now+int64(v.maxFutureSkew.Seconds()) {
		return errs.New(errs.IDTokenValidationError, "iat too far in the future")
	}
	if c.NotBefore != nil && *c.NotBefore > now {
		return errs.New(errs.IDTokenValidationError, "Token not valid yet")
	}

	if nonce != "" {
		if !constantTimeEqual(c.Nonce, nonce) {
			return errs.New(errs.IDTokenValidationError, "Invalid nonce")
		}
	}

	return nil
}

// constantTimeEqual compares two strings in constant time so verification
// failures don't leak timing information about which claim diverged, per
// §7's propagation policy.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
