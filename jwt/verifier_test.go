package jwt

import (
	"context"
	"testing"

	"github.com/oidcware/rp/errs"
	"github.com/oidcware/rp/jwkset"
)

func TestVerifierRejectsMissingKid(t *testing.T) {
	v := NewVerifier(&fakeKeySource{})
	err := v.Verify(context.Background(), &Header{Alg: "RS256"}, []byte("x"), []byte("y"))
	if !errs.Is(err, errs.InvalidKid) {
		t.Fatalf("err = %v, want INVALID_KID", err)
	}
}

func TestVerifierRejectsUnsupportedAlgorithm(t *testing.T) {
	v := NewVerifier(&fakeKeySource{})
	err := v.Verify(context.Background(), &Header{Alg: "none", Kid: "k1"}, []byte("x"), []byte("y"))
	if !errs.Is(err, errs.UnsupportedAlgorithm) {
		t.Fatalf("err = %v, want UNSUPPORTED_ALGORITHM", err)
	}
}

func TestVerifierRejectsHMACWithoutOptIn(t *testing.T) {
	v := NewVerifier(&fakeKeySource{keys: map[string]jwkset.JWK{
		"k1": {Kty: "", Kid: "k1", K: "c2VjcmV0"},
	}})
	err := v.Verify(context.Background(), &Header{Alg: "HS256", Kid: "k1"}, []byte("x"), []byte("y"))
	if !errs.Is(err, errs.UnsupportedAlgorithm) {
		t.Fatalf("err = %v, want UNSUPPORTED_ALGORITHM (HS* requires opt-in)", err)
	}
}

func TestVerifierAllowsHMACWithOptIn(t *testing.T) {
	secret := []byte("shared-secret-value-long-enough")
	compact, err := Encode(map[string]any{
		"iss": "https://issuer.example", "sub": "s", "aud": "a", "exp": int64(9999999999),
	}, EncodeOptions{Algorithm: "HS256", PrivateKey: secret, ExtraHeader: map[string]string{"kid": "hmac-1"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	token, err := Decode(compact)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	keys := &fakeKeySource{keys: map[string]jwkset.JWK{
		"hmac-1": {Kid: "hmac-1", K: b64Encode(secret)},
	}}

	v := NewVerifier(keys, AllowSymmetricAlgorithms())
	if err := v.Verify(context.Background(), token.Header, token.SigningInput, token.Signature); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifierRejectsKeyKtyMismatch(t *testing.T) {
	key := mustECKey(t)
	keys := &fakeKeySource{keys: map[string]jwkset.JWK{
		// RS256 header, but the key served for this kid is an EC key.
		"k1": ecJWK("k1", &key.PublicKey),
	}}
	v := NewVerifier(keys)
	err := v.Verify(context.Background(), &Header{Alg: "RS256", Kid: "k1"}, []byte("x"), []byte("y"))
	if !errs.Is(err, errs.SignatureInvalid) {
		t.Fatalf("err = %v, want SIGNATURE_INVALID", err)
	}
}

func TestVerifierRejectsDeclaredAlgMismatch(t *testing.T) {
	rsaKey := mustRSAKey(t)
	jwk := rsaJWK("k1", &rsaKey.PublicKey)
	jwk.Alg = "PS256" // key insists on PS256; header says RS256
	keys := &fakeKeySource{keys: map[string]jwkset.JWK{"k1": jwk}}
	v := NewVerifier(keys)

	err := v.Verify(context.Background(), &Header{Alg: "RS256", Kid: "k1"}, []byte("x"), []byte("y"))
	if !errs.Is(err, errs.SignatureInvalid) {
		t.Fatalf("err = %v, want SIGNATURE_INVALID", err)
	}
}

func TestVerifierPropagatesKeySourceError(t *testing.T) {
	keys := &fakeKeySource{err: errs.New(errs.JWKSFetchError, "boom")}
	v := NewVerifier(keys)
	err := v.Verify(context.Background(), &Header{Alg: "RS256", Kid: "k1"}, []byte("x"), []byte("y"))
	if !errs.Is(err, errs.JWKSFetchError) {
		t.Fatalf("err = %v, want JWKS_FETCH_ERROR propagated unchanged", err)
	}
}
