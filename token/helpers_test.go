package token

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/oidcware/rp/jwt"
)

func mustRSAKeyForTest(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func mustEncodeJWT(t *testing.T, key *rsa.PrivateKey, now time.Time) string {
	t.Helper()
	compact, err := jwt.Encode(map[string]any{
		"iss": "https://issuer.example",
		"sub": "user-123",
		"aud": "client-1",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}, jwt.EncodeOptions{Algorithm: "RS256", PrivateKey: key})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return compact
}
