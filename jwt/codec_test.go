package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/oidcware/rp/errs"
	"github.com/oidcware/rp/jwkset"
)

func mustRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func mustECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}
	return key
}

func b64uint(n *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(n.Bytes())
}

func rsaJWK(kid string, pub *rsa.PublicKey) jwkset.JWK {
	return jwkset.JWK{
		Kty: jwkset.KtyRSA,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   b64uint(big.NewInt(int64(pub.E))),
	}
}

func ecJWK(kid string, pub *ecdsa.PublicKey) jwkset.JWK {
	return jwkset.JWK{
		Kty: jwkset.KtyEC,
		Kid: kid,
		Crv: jwkset.CrvP256,
		X:   base64.RawURLEncoding.EncodeToString(pub.X.Bytes()),
		Y:   base64.RawURLEncoding.EncodeToString(pub.Y.Bytes()),
	}
}

// fakeKeySource is a KeySource backed by a fixed map, for tests that don't
// need the real jwkset.Client's caching/refresh behavior.
type fakeKeySource struct {
	keys map[string]jwkset.JWK
	err  error
}

func (f *fakeKeySource) GetKey(_ context.Context, kid string) (jwkset.JWK, error) {
	if f.err != nil {
		return jwkset.JWK{}, f.err
	}
	k, ok := f.keys[kid]
	if !ok {
		return jwkset.JWK{}, errs.New(errs.JWKSKeyNotFound, "no such kid")
	}
	return k, nil
}

func samplePayload(iss, aud string, now time.Time) map[string]any {
	return map[string]any{
		"iss":   iss,
		"sub":   "user-123",
		"aud":   aud,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"nonce": "expected-nonce",
	}
}

func TestEncodeDecodeRoundTripRS256(t *testing.T) {
	key := mustRSAKey(t)
	now := time.Unix(1700000000, 0)

	compact, err := Encode(samplePayload("https://issuer.example", "client-1", now), EncodeOptions{
		Algorithm:   "RS256",
		PrivateKey:  key,
		ExtraHeader: map[string]string{"kid": "kid-1"},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	token, err := Decode(compact)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if token.Header.Alg != "RS256" {
		t.Errorf("Header.Alg = %q, want RS256", token.Header.Alg)
	}
	if token.Header.Kid != "kid-1" {
		t.Errorf("Header.Kid = %q, want kid-1", token.Header.Kid)
	}
	if token.Claims.Issuer != "https://issuer.example" {
		t.Errorf("Claims.Issuer = %q", token.Claims.Issuer)
	}

	keys := &fakeKeySource{keys: map[string]jwkset.JWK{"kid-1": rsaJWK("kid-1", &key.PublicKey)}}
	verifier := NewVerifier(keys)
	validator := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))

	claims, err := Verify(context.Background(), compact, VerifyOptions{
		Validator: validator,
		Verifier:  verifier,
		Nonce:     "expected-nonce",
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("Subject = %q", claims.Subject)
	}
}

func TestEncodeDecodeRoundTripES256(t *testing.T) {
	key := mustECKey(t)
	now := time.Unix(1700000000, 0)

	compact, err := Encode(samplePayload("https://issuer.example", "client-1", now), EncodeOptions{
		Algorithm:   "ES256",
		PrivateKey:  key,
		ExtraHeader: map[string]string{"kid": "kid-ec"},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	keys := &fakeKeySource{keys: map[string]jwkset.JWK{"kid-ec": ecJWK("kid-ec", &key.PublicKey)}}
	verifier := NewVerifier(keys)
	validator := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))

	if _, err := Verify(context.Background(), compact, VerifyOptions{Validator: validator, Verifier: verifier, Nonce: "expected-nonce"}); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	key := mustRSAKey(t)
	other := mustRSAKey(t)
	now := time.Unix(1700000000, 0)

	compact, err := Encode(samplePayload("https://issuer.example", "client-1", now), EncodeOptions{
		Algorithm:   "RS256",
		PrivateKey:  key,
		ExtraHeader: map[string]string{"kid": "kid-1"},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Verifier is handed the WRONG public key for this kid.
	keys := &fakeKeySource{keys: map[string]jwkset.JWK{"kid-1": rsaJWK("kid-1", &other.PublicKey)}}
	verifier := NewVerifier(keys)
	validator := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))

	_, err = Verify(context.Background(), compact, VerifyOptions{Validator: validator, Verifier: verifier, Nonce: "expected-nonce"})
	if !errs.Is(err, errs.SignatureInvalid) {
		t.Fatalf("Verify error = %v, want SIGNATURE_INVALID", err)
	}
}

func TestDecodeRejectsWrongSegmentCount(t *testing.T) {
	_, err := Decode("not.a.valid.jwt.surely")
	if !errs.Is(err, errs.InvalidJWTFormat) {
		t.Fatalf("err = %v, want INVALID_JWT_FORMAT", err)
	}

	_, err = Decode("onlyonepart")
	if !errs.Is(err, errs.InvalidJWTFormat) {
		t.Fatalf("err = %v, want INVALID_JWT_FORMAT", err)
	}
}

func TestDecodeRejectsBadBase64(t *testing.T) {
	_, err := Decode("not-base64!!!.not-base64!!!.sig")
	if !errs.Is(err, errs.InvalidJWT) {
		t.Fatalf("err = %v, want INVALID_JWT", err)
	}
}

func TestEncodeRejectsUnsupportedAlgorithm(t *testing.T) {
	_, err := Encode(map[string]any{"sub": "x"}, EncodeOptions{Algorithm: "none"})
	if !errs.Is(err, errs.EncodeError) {
		t.Fatalf("err = %v, want ENCODE_ERROR", err)
	}
}

func TestVerifyPropagatesClaimsFailureBeforeSignature(t *testing.T) {
	key := mustRSAKey(t)
	now := time.Unix(1700000000, 0)

	// Wrong issuer: the claims check must fail before the (expensive)
	// signature check ever runs.
	compact, err := Encode(samplePayload("https://wrong-issuer.example", "client-1", now), EncodeOptions{
		Algorithm:   "RS256",
		PrivateKey:  key,
		ExtraHeader: map[string]string{"kid": "kid-1"},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Verifier has no key at all for kid-1 — if claims validation didn't
	// short-circuit first, this would fail with JWKS_KEY_NOT_FOUND instead.
	keys := &fakeKeySource{keys: map[string]jwkset.JWK{}}
	verifier := NewVerifier(keys)
	validator := NewValidator("https://issuer.example", "client-1", withClock(func() time.Time { return now.Add(time.Minute) }))

	_, err = Verify(context.Background(), compact, VerifyOptions{Validator: validator, Verifier: verifier, Nonce: "expected-nonce"})
	if !errs.Is(err, errs.IDTokenValidationError) {
		t.Fatalf("err = %v, want ID_TOKEN_VALIDATION_ERROR (claims should fail before signature is checked)", err)
	}
}
