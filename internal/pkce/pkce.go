// Package pkce generates the random values an authorization request needs:
// state, nonce, and (when PKCE is enabled) a code_verifier/code_challenge
// pair per RFC 7636.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/oidcware/rp/errs"
)

// Method is a PKCE code_challenge_method.
type Method string

const (
	MethodS256  Method = "S256"
	MethodPlain Method = "plain"
)

// randomURLSafe returns a base64url (no padding) encoding of n
// cryptographically random bytes.
func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewState returns a random state value with at least 128 bits of entropy.
func NewState() (string, error) { return randomURLSafe(32) }

// NewNonce returns a random nonce value with at least 128 bits of entropy.
func NewNonce() (string, error) { return randomURLSafe(32) }

// Challenge is a PKCE code_verifier/code_challenge pair.
type Challenge struct {
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod Method
}

// NewChallenge generates a code_verifier (32 random bytes, base64url-encoded
// to 43 characters — within RFC 7636's 43-128 character range) and its
// S256 code_challenge.
func NewChallenge() (*Challenge, error) {
	verifier, err := randomURLSafe(32)
	if err != nil {
		return nil, err
	}
	return ChallengeFromVerifier(verifier)
}

// ChallengeFromVerifier derives a Challenge's code_challenge from an
// existing verifier, useful for tests that need a fixed verifier.
func ChallengeFromVerifier(verifier string) (*Challenge, error) {
	if len(verifier) < 43 || len(verifier) > 128 {
		return nil, errs.New(errs.EncodeError, "code_verifier must be 43-128 characters")
	}
	sum := sha256.Sum256([]byte(verifier))
	return &Challenge{
		CodeVerifier:        verifier,
		CodeChallenge:       base64.RawURLEncoding.EncodeToString(sum[:]),
		CodeChallengeMethod: MethodS256,
	}, nil
}
