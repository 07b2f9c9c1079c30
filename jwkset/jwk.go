// Package jwkset models JSON Web Keys and Key Sets and materializes Go
// crypto keys from them. It is the home of this module's C4 "reconstruct a
// public key from a JWK" responsibility; actual signature verification
// using the materialized key lives in package jwt.
package jwkset

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"

	"github.com/oidcware/rp/errs"
)

// Kty values this module materializes keys for.
const (
	KtyRSA = "RSA"
	KtyEC  = "EC"
	KtyOKP = "OKP"
)

// Crv values for EC and OKP keys.
const (
	CrvP256   = "P-256"
	CrvP384   = "P-384"
	CrvP521   = "P-521"
	CrvEd25519 = "Ed25519"
)

// JWK is a single entry of a JSON Web Key Set.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid,omitempty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`

	// RSA fields.
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC and OKP fields.
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`

	// HS* shared secret, base64url-encoded.
	K string `json:"k,omitempty"`

	// X.509 chain hints; accepted but not validated — certificate path
	// building is explicitly out of this module's scope.
	X5u     string   `json:"x5u,omitempty"`
	X5c     []string `json:"x5c,omitempty"`
	X5t     string   `json:"x5t,omitempty"`
	X5tS256 string   `json:"x5t#S256,omitempty"`
}

// Set is a JWKS document: {"keys": [JWK, ...]}.
type Set struct {
	Keys []JWK `json:"keys"`
}

// ByKid returns the first key in the set whose kid matches, if any.
func (s *Set) ByKid(kid string) (JWK, bool) {
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JWK{}, false
}

func decodeB64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// PublicKey materializes a crypto.PublicKey (an *rsa.PublicKey,
// *ecdsa.PublicKey, or ed25519.PublicKey) from the JWK's kind-specific
// material. HS* keys have no public key; use SymmetricKey instead.
func (k JWK) PublicKey() (any, error) {
	switch k.Kty {
	case KtyRSA:
		return k.rsaPublicKey()
	case KtyEC:
		return k.ecPublicKey()
	case KtyOKP:
		return k.okpPublicKey()
	default:
		return nil, errs.New(errs.UnsupportedAlgorithm, "unsupported JWK kty: "+k.Kty)
	}
}

func (k JWK) rsaPublicKey() (*rsa.PublicKey, error) {
	if k.N == "" || k.E == "" {
		return nil, errs.New(errs.JWKSInvalid, "RSA JWK missing n or e")
	}
	nBytes, err := decodeB64URL(k.N)
	if err != nil {
		return nil, errs.Wrap(errs.JWKSParseError, "invalid RSA modulus encoding", err)
	}
	eBytes, err := decodeB64URL(k.E)
	if err != nil {
		return nil, errs.Wrap(errs.JWKSParseError, "invalid RSA exponent encoding", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

func (k JWK) ecPublicKey() (*ecdsa.PublicKey, error) {
	if k.X == "" || k.Y == "" {
		return nil, errs.New(errs.JWKSInvalid, "EC JWK missing x or y")
	}
	curve, err := ecCurve(k.Crv)
	if err != nil {
		return nil, err
	}
	xBytes, err := decodeB64URL(k.X)
	if err != nil {
		return nil, errs.Wrap(errs.JWKSParseError, "invalid EC x encoding", err)
	}
	yBytes, err := decodeB64URL(k.Y)
	if err != nil {
		return nil, errs.Wrap(errs.JWKSParseError, "invalid EC y encoding", err)
	}
	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

func ecCurve(crv string) (elliptic.Curve, error) {
	switch crv {
	case CrvP256:
		return elliptic.P256(), nil
	case CrvP384:
		return elliptic.P384(), nil
	case CrvP521:
		return elliptic.P521(), nil
	default:
		return nil, errs.New(errs.UnsupportedAlgorithm, "unsupported EC curve: "+crv)
	}
}

// okpPublicKey materializes an Ed25519 public key. OKP is only defined for
// Ed25519/X25519 by RFC 8037; X25519 is a key-agreement curve with no
// signature use, so only Ed25519 is accepted here.
func (k JWK) okpPublicKey() (ed25519.PublicKey, error) {
	if k.Crv != CrvEd25519 {
		return nil, errs.New(errs.UnsupportedAlgorithm, "unsupported OKP curve: "+k.Crv)
	}
	if k.X == "" {
		return nil, errs.New(errs.JWKSInvalid, "OKP JWK missing x")
	}
	xBytes, err := decodeB64URL(k.X)
	if err != nil {
		return nil, errs.Wrap(errs.JWKSParseError, "invalid OKP x encoding", err)
	}
	return ed25519.PublicKey(xBytes), nil
}

// SymmetricKey returns the raw shared secret for an HS* key. Callers must
// opt into HS* verification explicitly (see jwt.Verifier); provider-issued
// ID tokens should never use a symmetric algorithm.
func (k JWK) SymmetricKey() ([]byte, error) {
	if k.K == "" {
		return nil, errs.New(errs.JWKSInvalid, "symmetric JWK missing k")
	}
	return decodeB64URL(k.K)
}

// PEMPublicKey renders the materialized public key as a PEM block, useful
// for diagnostics and for private_key_jwt client authentication setups that
// want to display the corresponding public key.
func PEMPublicKey(pub any) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", errs.Wrap(errs.JWKSInvalid, "failed to marshal public key", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}
