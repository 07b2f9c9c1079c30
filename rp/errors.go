package rp

import "github.com/oidcware/rp/errs"

// Kind classifies an rp error so callers can branch on failure mode
// without parsing messages. It is an alias of errs.Kind so every package
// in this module shares one taxonomy while callers only ever import rp.
type Kind = errs.Kind

// Error is the error type returned by every exported rp operation.
type Error = errs.Error

// Re-exported Kind values, see errs.Kind for the full taxonomy.
const (
	InvalidJWKSURI         = errs.InvalidJWKSURI
	JWKSFetchError         = errs.JWKSFetchError
	JWKSParseError         = errs.JWKSParseError
	JWKSInvalid            = errs.JWKSInvalid
	JWKSKeyNotFound        = errs.JWKSKeyNotFound
	InvalidKid             = errs.InvalidKid
	InvalidJWT             = errs.InvalidJWT
	InvalidJWTFormat       = errs.InvalidJWTFormat
	IDTokenValidationError = errs.IDTokenValidationError
	SignatureInvalid       = errs.SignatureInvalid
	UnsupportedAlgorithm   = errs.UnsupportedAlgorithm
	EncodeError            = errs.EncodeError
	DiscoveryError         = errs.DiscoveryError
	StateCollision         = errs.StateCollision
	StateNotFound          = errs.StateNotFound
	TokenExchangeError     = errs.TokenExchangeError
	TokenRefreshError      = errs.TokenRefreshError
	Unauthenticated        = errs.Unauthenticated
	SessionNotFound        = errs.SessionNotFound
	ReplayDetected         = errs.ReplayDetected
	EncryptionError        = errs.EncryptionError
	DecryptionError        = errs.DecryptionError
	InvalidConfig          = errs.InvalidConfig
)

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool { return errs.Is(err, kind) }

// New creates an Error with no wrapped cause.
func New(kind Kind, message string) *Error { return errs.New(kind, message) }

// Wrap creates an Error that wraps an underlying cause.
func Wrap(kind Kind, message string, err error) *Error { return errs.Wrap(kind, message, err) }
