package jwkset

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"testing"

	"github.com/oidcware/rp/errs"
)

func TestRSAPublicKeyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	jwk := JWK{
		Kty: KtyRSA,
		N:   base64.RawURLEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.PublicKey.E)).Bytes()),
	}
	pub, err := jwk.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("PublicKey returned %T, want *rsa.PublicKey", pub)
	}
	if rsaPub.N.Cmp(priv.PublicKey.N) != 0 || rsaPub.E != priv.PublicKey.E {
		t.Error("materialized RSA key does not match original")
	}
}

func TestRSAPublicKeyMissingFields(t *testing.T) {
	_, err := JWK{Kty: KtyRSA}.PublicKey()
	if !errs.Is(err, errs.JWKSInvalid) {
		t.Fatalf("err = %v, want JWKS_INVALID", err)
	}
}

func TestECPublicKeyRoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}
	jwk := JWK{
		Kty: KtyEC,
		Crv: CrvP256,
		X:   base64.RawURLEncoding.EncodeToString(priv.PublicKey.X.Bytes()),
		Y:   base64.RawURLEncoding.EncodeToString(priv.PublicKey.Y.Bytes()),
	}
	pub, err := jwk.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		t.Fatalf("PublicKey returned %T, want *ecdsa.PublicKey", pub)
	}
	if ecPub.X.Cmp(priv.PublicKey.X) != 0 || ecPub.Y.Cmp(priv.PublicKey.Y) != 0 {
		t.Error("materialized EC key does not match original")
	}
}

func TestECPublicKeyUnsupportedCurve(t *testing.T) {
	_, err := JWK{Kty: KtyEC, Crv: "P-192", X: "x", Y: "y"}.PublicKey()
	if !errs.Is(err, errs.UnsupportedAlgorithm) {
		t.Fatalf("err = %v, want UNSUPPORTED_ALGORITHM", err)
	}
}

func TestOKPPublicKeyRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	jwk := JWK{Kty: KtyOKP, Crv: CrvEd25519, X: base64.RawURLEncoding.EncodeToString(pub)}
	got, err := jwk.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	edPub, ok := got.(ed25519.PublicKey)
	if !ok {
		t.Fatalf("PublicKey returned %T, want ed25519.PublicKey", got)
	}
	if !edPub.Equal(pub) {
		t.Error("materialized Ed25519 key does not match original")
	}
}

func TestOKPRejectsX25519(t *testing.T) {
	_, err := JWK{Kty: KtyOKP, Crv: "X25519", X: "AAAA"}.PublicKey()
	if !errs.Is(err, errs.UnsupportedAlgorithm) {
		t.Fatalf("err = %v, want UNSUPPORTED_ALGORITHM (X25519 has no signature use)", err)
	}
}

func TestSymmetricKey(t *testing.T) {
	jwk := JWK{K: base64.RawURLEncoding.EncodeToString([]byte("secret"))}
	key, err := jwk.SymmetricKey()
	if err != nil {
		t.Fatalf("SymmetricKey: %v", err)
	}
	if string(key) != "secret" {
		t.Errorf("SymmetricKey = %q, want secret", key)
	}
}

func TestSymmetricKeyMissing(t *testing.T) {
	_, err := JWK{}.SymmetricKey()
	if !errs.Is(err, errs.JWKSInvalid) {
		t.Fatalf("err = %v, want JWKS_INVALID", err)
	}
}

func TestSetByKid(t *testing.T) {
	set := &Set{Keys: []JWK{{Kid: "a"}, {Kid: "b"}}}
	if _, ok := set.ByKid("a"); !ok {
		t.Error("expected to find kid a")
	}
	if _, ok := set.ByKid("missing"); ok {
		t.Error("expected missing kid to not be found")
	}
}

func TestUnsupportedKty(t *testing.T) {
	_, err := JWK{Kty: "weird"}.PublicKey()
	if !errs.Is(err, errs.UnsupportedAlgorithm) {
		t.Fatalf("err = %v, want UNSUPPORTED_ALGORITHM", err)
	}
}
