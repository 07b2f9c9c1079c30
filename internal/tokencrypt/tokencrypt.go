// Package tokencrypt provides optional AES-256-GCM encryption of tokens at
// rest within a session store. It is not a wire format (no JWE) — only a
// defense for durable session backends that persist access/refresh/id
// tokens to disk or an external store.
package tokencrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/oidcware/rp/errs"
)

const defaultContext = "oidcrp-token-encryption"

// Config configures a Cryptor.
type Config struct {
	// MasterKey is the base64-encoded master key, at least 16 bytes once
	// decoded. If empty, New returns a nil *Cryptor and rp.Controller
	// stores tokens unencrypted.
	MasterKey string

	// Context namespaces the HKDF derivation; defaults to a fixed string
	// so two processes sharing a master key still derive the same subkey.
	Context string
}

// Cryptor encrypts/decrypts token strings with AES-256-GCM. A nil *Cryptor
// is valid and passes values through unchanged, so callers can hold one
// unconditionally and skip a feature check at every call site.
type Cryptor struct {
	aead cipher.AEAD
}

// New builds a Cryptor from cfg. Returns (nil, nil) when MasterKey is
// empty, meaning token-at-rest encryption is disabled.
func New(cfg Config) (*Cryptor, error) {
	if cfg.MasterKey == "" {
		return nil, nil
	}

	master, err := base64.StdEncoding.DecodeString(cfg.MasterKey)
	if err != nil {
		return nil, errs.Wrap(errs.EncryptionError, "decode master key", err)
	}
	if len(master) < 16 {
		return nil, errs.New(errs.EncryptionError, "master key must be at least 16 bytes")
	}

	context := cfg.Context
	if context == "" {
		context = defaultContext
	}

	derived, err := deriveKey(master, []byte(context))
	if err != nil {
		return nil, errs.Wrap(errs.EncryptionError, "derive encryption key", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, errs.Wrap(errs.EncryptionError, "construct AES cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.EncryptionError, "construct GCM", err)
	}

	return &Cryptor{aead: aead}, nil
}

func deriveKey(secret, context []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, context)
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Enabled reports whether c will actually encrypt (false for a nil
// receiver or one built with no master key).
func (c *Cryptor) Enabled() bool {
	return c != nil && c.aead != nil
}

// Encrypt returns plaintext encrypted and base64-encoded, nonce prepended.
// A nil Cryptor or empty input passes through unchanged.
func (c *Cryptor) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errs.Wrap(errs.EncryptionError, "generate nonce", err)
	}
	ciphertext := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. A nil Cryptor or empty input passes through
// unchanged.
func (c *Cryptor) Decrypt(ciphertext string) (string, error) {
	if !c.Enabled() || ciphertext == "" {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errs.Wrap(errs.DecryptionError, "base64 decode ciphertext", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+1+c.aead.Overhead() {
		return "", errs.New(errs.DecryptionError, "ciphertext too short")
	}

	nonce, encrypted := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", errs.Wrap(errs.DecryptionError, "authenticate ciphertext", err)
	}
	return string(plaintext), nil
}

// EncryptFields returns a copy of fields with the named keys encrypted;
// fields itself is not modified, and absent or empty values are left
// untouched.
func (c *Cryptor) EncryptFields(fields map[string]string, keys ...string) (map[string]string, error) {
	if !c.Enabled() || fields == nil {
		return fields, nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, key := range keys {
		if v, ok := out[key]; ok && v != "" {
			enc, err := c.Encrypt(v)
			if err != nil {
				return nil, err
			}
			out[key] = enc
		}
	}
	return out, nil
}

// DecryptFields reverses EncryptFields. Values that don't decrypt and
// look like a compact JWT (two dots) are passed through unchanged, for
// sessions written before encryption was enabled.
func (c *Cryptor) DecryptFields(fields map[string]string, keys ...string) (map[string]string, error) {
	if !c.Enabled() || fields == nil {
		return fields, nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, key := range keys {
		v, ok := out[key]
		if !ok || v == "" {
			continue
		}
		dec, err := c.Decrypt(v)
		if err != nil {
			if looksLikeCompactJWT(v) {
				continue
			}
			return nil, err
		}
		out[key] = dec
	}
	return out, nil
}

func looksLikeCompactJWT(s string) bool {
	return strings.Count(s, ".") == 2
}

// GenerateMasterKey returns a fresh 256-bit key, base64-encoded, suitable
// for Config.MasterKey.
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", errs.Wrap(errs.EncryptionError, "generate master key", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
