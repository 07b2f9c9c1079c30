package jwt

import (
	"testing"
	"time"

	"github.com/oidcware/rp/errs"
)

func claimsAt(now time.Time, overrides map[string]any) *Claims {
	payload := samplePayload("https://issuer.example", "client-1", now)
	for k, v := range overrides {
		payload[k] = v
	}
	c, err := ParseClaims(payload)
	if err != nil {
		panic(err)
	}
	return c
}

func TestValidatorAcceptsWellFormedClaims(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))
	c := claimsAt(now, nil)

	if err := v.Validate(c, "expected-nonce"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidatorChecksIssuerFirst(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))
	// Wrong issuer AND wrong audience: issuer must be reported, not audience.
	c := claimsAt(now, map[string]any{"iss": "https://evil.example", "aud": "someone-else"})

	err := v.Validate(c, "expected-nonce")
	if !errs.Is(err, errs.IDTokenValidationError) {
		t.Fatalf("err = %v, want ID_TOKEN_VALIDATION_ERROR", err)
	}
	e, ok := err.(*errs.Error)
	if !ok || e.Message != "Invalid issuer" {
		t.Fatalf("err = %v, want message 'Invalid issuer'", err)
	}
}

func TestValidatorRejectsMissingAudience(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))
	c := claimsAt(now, map[string]any{"aud": "someone-else"})

	err := v.Validate(c, "expected-nonce")
	e, ok := err.(*errs.Error)
	if !ok || e.Message != "Audience not found" {
		t.Fatalf("err = %v, want message 'Audience not found'", err)
	}
}

func TestValidatorRejectsMismatchedAzpWithMultipleAudiences(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))
	c := claimsAt(now, map[string]any{
		"aud": []any{"client-1", "client-2"},
		"azp": "client-2",
	})

	err := v.Validate(c, "expected-nonce")
	e, ok := err.(*errs.Error)
	if !ok || e.Message != "Invalid authorized party (azp)" {
		t.Fatalf("err = %v, want message 'Invalid authorized party (azp)'", err)
	}
}

func TestValidatorAcceptsMultipleAudiencesWithoutAzp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))
	c := claimsAt(now, map[string]any{"aud": []any{"client-1", "client-2"}})
	delete(c.Raw, "azp")
	c.AuthorizedParty = ""

	if err := v.Validate(c, "expected-nonce"); err != nil {
		t.Fatalf("Validate: %v, want accept (azp absent with multi-aud)", err)
	}
}

func TestValidatorRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1700000000, 0)
	exp := now.Add(time.Minute)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(2 * time.Hour) }))
	c := claimsAt(now, map[string]any{"exp": exp.Unix()})

	err := v.Validate(c, "expected-nonce")
	e, ok := err.(*errs.Error)
	if !ok || e.Message != "Token expired" {
		t.Fatalf("err = %v, want message 'Token expired'", err)
	}
}

func TestValidatorRejectsFutureIat(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now }))
	c := claimsAt(now, map[string]any{"iat": now.Add(time.Hour).Unix()})

	err := v.Validate(c, "expected-nonce")
	e, ok := err.(*errs.Error)
	if !ok || e.Message != "iat too far in the future" {
		t.Fatalf("err = %v, want message 'iat too far in the future'", err)
	}
}

func TestValidatorAllowsSmallClockSkewOnIat(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now }))
	// 10s in the future: within the default 300s skew tolerance.
	c := claimsAt(now, map[string]any{"iat": now.Add(10 * time.Second).Unix()})

	if err := v.Validate(c, "expected-nonce"); err != nil {
		t.Fatalf("Validate: %v, want accept (within skew tolerance)", err)
	}
}

func TestValidatorRejectsNotYetValidToken(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now }))
	c := claimsAt(now, map[string]any{"nbf": now.Add(time.Hour).Unix()})

	err := v.Validate(c, "expected-nonce")
	e, ok := err.(*errs.Error)
	if !ok || e.Message != "Token not valid yet" {
		t.Fatalf("err = %v, want message 'Token not valid yet'", err)
	}
}

func TestValidatorRejectsWrongNonce(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))
	c := claimsAt(now, nil)

	err := v.Validate(c, "different-nonce")
	e, ok := err.(*errs.Error)
	if !ok || e.Message != "Invalid nonce" {
		t.Fatalf("err = %v, want message 'Invalid nonce'", err)
	}
}

func TestValidatorSkipsNonceCheckWhenNotRequested(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))
	c := claimsAt(now, map[string]any{"nonce": "whatever"})

	if err := v.Validate(c, ""); err != nil {
		t.Fatalf("Validate: %v, want accept when caller passes empty nonce", err)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !constantTimeEqual("abc", "abc") {
		t.Error("expected equal strings to compare equal")
	}
	if constantTimeEqual("abc", "abd") {
		t.Error("expected different strings to compare unequal")
	}
	if constantTimeEqual("abc", "ab") {
		t.Error("expected different-length strings to compare unequal")
	}
}
