// Package errs defines the error Kind taxonomy shared by every package in
// this module. It is a leaf package — jwt, jwkset, discovery, state, token,
// and session all import it, and rp re-exports Kind and Error so callers
// never need to import errs directly.
package errs

import "fmt"

// Kind classifies a library error so callers can branch on failure mode
// without parsing messages.
type Kind string

// Error kinds. Every failure path named in this module's design surfaces
// one of these.
const (
	InvalidJWKSURI         Kind = "INVALID_JWKS_URI"
	JWKSFetchError         Kind = "JWKS_FETCH_ERROR"
	JWKSParseError         Kind = "JWKS_PARSE_ERROR"
	JWKSInvalid            Kind = "JWKS_INVALID"
	JWKSKeyNotFound        Kind = "JWKS_KEY_NOT_FOUND"
	InvalidKid             Kind = "INVALID_KID"
	InvalidJWT             Kind = "INVALID_JWT"
	InvalidJWTFormat       Kind = "INVALID_JWT_FORMAT"
	IDTokenValidationError Kind = "ID_TOKEN_VALIDATION_ERROR"
	SignatureInvalid       Kind = "SIGNATURE_INVALID"
	UnsupportedAlgorithm   Kind = "UNSUPPORTED_ALGORITHM"
	EncodeError            Kind = "ENCODE_ERROR"
	DiscoveryError         Kind = "DISCOVERY_ERROR"
	StateCollision         Kind = "STATE_COLLISION"
	StateNotFound          Kind = "STATE_NOT_FOUND"
	TokenExchangeError     Kind = "TOKEN_EXCHANGE_ERROR"
	TokenRefreshError      Kind = "TOKEN_REFRESH_ERROR"
	Unauthenticated        Kind = "UNAUTHENTICATED"
	SessionNotFound        Kind = "SESSION_NOT_FOUND"

	// Kinds added by the supplemented features (NEW), not present in the
	// base error kind list but following the same taxonomy.
	ReplayDetected  Kind = "REPLAY_DETECTED"
	EncryptionError Kind = "ENCRYPTION_ERROR"
	DecryptionError Kind = "DECRYPTION_ERROR"
	InvalidConfig   Kind = "INVALID_CONFIG"
)

// Error is the error type returned by every exported operation in this
// module. It carries a Kind for programmatic dispatch and wraps the
// underlying cause, if any, so errors.Is/errors.As see through it.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is an *Error of the given kind. It is the
// idiomatic way to branch on failure mode:
//
//	if errs.Is(err, errs.JWKSKeyNotFound) { ... }
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
