package jwt

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/oidcware/rp/errs"
	"github.com/oidcware/rp/jwkset"
)

// Family distinguishes asymmetric-signature algorithms from MAC algorithms.
type Family int

const (
	FamilySignature Family = iota
	FamilyMAC
)

// algEntry is one row of the algorithm registry described in the data
// model: a supported alg maps to a golang-jwt signing method (which
// supplies the actual crypto), a family, and the JWK kty/crv it expects.
type algEntry struct {
	method      jwt.SigningMethod
	family      Family
	expectedKty string
	expectedCrv string // only meaningful for EC
}

var registry = map[string]algEntry{
	"RS256": {method: jwt.SigningMethodRS256, family: FamilySignature, expectedKty: jwkset.KtyRSA},
	"RS384": {method: jwt.SigningMethodRS384, family: FamilySignature, expectedKty: jwkset.KtyRSA},
	"RS512": {method: jwt.SigningMethodRS512, family: FamilySignature, expectedKty: jwkset.KtyRSA},

	"PS256": {method: jwt.SigningMethodPS256, family: FamilySignature, expectedKty: jwkset.KtyRSA},
	"PS384": {method: jwt.SigningMethodPS384, family: FamilySignature, expectedKty: jwkset.KtyRSA},
	"PS512": {method: jwt.SigningMethodPS512, family: FamilySignature, expectedKty: jwkset.KtyRSA},

	"ES256": {method: jwt.SigningMethodES256, family: FamilySignature, expectedKty: jwkset.KtyEC, expectedCrv: jwkset.CrvP256},
	"ES384": {method: jwt.SigningMethodES384, family: FamilySignature, expectedKty: jwkset.KtyEC, expectedCrv: jwkset.CrvP384},
	"ES512": {method: jwt.SigningMethodES512, family: FamilySignature, expectedKty: jwkset.KtyEC, expectedCrv: jwkset.CrvP521},

	"EdDSA": {method: jwt.SigningMethodEdDSA, family: FamilySignature, expectedKty: jwkset.KtyOKP, expectedCrv: jwkset.CrvEd25519},

	"HS256": {method: jwt.SigningMethodHS256, family: FamilyMAC},
	"HS384": {method: jwt.SigningMethodHS384, family: FamilyMAC},
	"HS512": {method: jwt.SigningMethodHS512, family: FamilyMAC},
}

func lookupAlgorithm(alg string) (algEntry, error) {
	e, ok := registry[alg]
	if !ok {
		return algEntry{}, errs.New(errs.UnsupportedAlgorithm, "unsupported algorithm: "+alg)
	}
	return e, nil
}

// checkKeyCompatible verifies a JWK's declared kty (and, for EC, crv) is
// compatible with the algorithm the header claims — a mismatch here is
// fatal per §4.4, not a best-effort warning.
func checkKeyCompatible(headerAlg string, e algEntry, key jwkset.JWK) error {
	if e.family == FamilyMAC {
		return nil
	}
	if key.Kty != e.expectedKty {
		return errs.New(errs.SignatureInvalid, "key kty "+key.Kty+" incompatible with algorithm")
	}
	if e.expectedCrv != "" && key.Crv != e.expectedCrv {
		return errs.New(errs.SignatureInvalid, "key crv "+key.Crv+" incompatible with algorithm")
	}
	// A JWK MAY declare its own alg; if present it must agree with the
	// header's alg — a provider rotating RS256->PS256 under the same kid
	// must publish a distinct kid, not rely on implicit coercion.
	if key.Alg != "" && key.Alg != headerAlg {
		return errs.New(errs.SignatureInvalid, "key alg "+key.Alg+" does not match header alg")
	}
	return nil
}
