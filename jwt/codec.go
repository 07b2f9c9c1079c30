// Package jwt implements the JWT codec, claims validator, and signature
// verifier (C3, C4, C5): decoding and encoding compact JWTs, and driving
// verification by combining claims validation with signature verification.
package jwt

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/goccy/go-json"

	"github.com/oidcware/rp/errs"
)

// JWT is a decoded compact token: header, claims, and the raw material
// needed to re-verify its signature.
type JWT struct {
	Header       *Header
	Claims       *Claims
	SigningInput []byte // header_b64url + "." + payload_b64url
	Signature    []byte
	Compact      string
}

func b64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func b64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode splits a compact JWT into header/payload/signature, per §4.5.
func Decode(compact string) (*JWT, error) {
	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return nil, errs.New(errs.InvalidJWTFormat, "token must have exactly three dot-separated segments")
	}

	headerJSON, err := b64Decode(parts[0])
	if err != nil {
		return nil, errs.Wrap(errs.InvalidJWT, "failed to base64url-decode header", err)
	}
	payloadJSON, err := b64Decode(parts[1])
	if err != nil {
		return nil, errs.Wrap(errs.InvalidJWT, "failed to base64url-decode payload", err)
	}
	sig, err := b64Decode(parts[2])
	if err != nil {
		return nil, errs.Wrap(errs.InvalidJWT, "failed to base64url-decode signature", err)
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, errs.Wrap(errs.InvalidJWT, "failed to parse header JSON", err)
	}
	if header.Alg == "" {
		return nil, errs.New(errs.InvalidJWT, "header missing required alg")
	}

	var rawPayload map[string]any
	if err := json.Unmarshal(payloadJSON, &rawPayload); err != nil {
		return nil, errs.Wrap(errs.InvalidJWT, "failed to parse payload JSON", err)
	}
	claims, err := ParseClaims(rawPayload)
	if err != nil {
		return nil, err
	}

	return &JWT{
		Header:       &header,
		Claims:       claims,
		SigningInput: []byte(parts[0] + "." + parts[1]),
		Signature:    sig,
		Compact:      compact,
	}, nil
}

// EncodeOptions configures Encode.
type EncodeOptions struct {
	Algorithm  string
	PrivateKey any
	// ExtraHeader fields are merged in after alg/typ (e.g. kid).
	ExtraHeader map[string]string
}

// Encode builds a compact JWT: header {alg, typ:"JWT", ...ExtraHeader},
// base64url-encoded header and payload, and a signature over the dotted
// input under Algorithm.
func Encode(payload map[string]any, opts EncodeOptions) (string, error) {
	entry, err := lookupAlgorithm(opts.Algorithm)
	if err != nil {
		return "", errs.Wrap(errs.EncodeError, "unsupported algorithm", err)
	}

	header := map[string]any{"alg": opts.Algorithm, "typ": "JWT"}
	for k, v := range opts.ExtraHeader {
		header[k] = v
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", errs.Wrap(errs.EncodeError, "failed to marshal header", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", errs.Wrap(errs.EncodeError, "failed to marshal payload", err)
	}

	signingInput := b64Encode(headerJSON) + "." + b64Encode(payloadJSON)

	sig, err := entry.method.Sign(signingInput, opts.PrivateKey)
	if err != nil {
		return "", errs.Wrap(errs.EncodeError, "signing failed", err)
	}

	return signingInput + "." + b64Encode(sig), nil
}

// VerifyOptions configures Verify.
type VerifyOptions struct {
	Validator *Validator
	Verifier  *Verifier
	// Nonce is the value recorded for this flow; "" skips nonce checking.
	Nonce string
}

// Verify decodes compact, then validates claims (C3) before verifying the
// signature (C4) — cheap checks first, per §4.5. Either step's failure is
// surfaced unchanged.
func Verify(ctx context.Context, compact string, opts VerifyOptions) (*Claims, error) {
	token, err := Decode(compact)
	if err != nil {
		return nil, err
	}

	if opts.Validator != nil {
		if err := opts.Validator.Validate(token.Claims, opts.Nonce); err != nil {
			return nil, err
		}
	}

	if opts.Verifier != nil {
		if err := opts.Verifier.Verify(ctx, token.Header, token.SigningInput, token.Signature); err != nil {
			return nil, err
		}
	}

	return token.Claims, nil
}
