package rp

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/oidcware/rp/internal/pkce"
	"github.com/oidcware/rp/internal/tokencrypt"
	"github.com/oidcware/rp/session"
	"github.com/oidcware/rp/token"
)

// SessionConfig configures the session store and transport a Controller
// uses, the "session.{mode,server_storage,client_storage,store,cookie,
// use_silent_renew,ttl}" group.
type SessionConfig struct {
	// Store is the backing session.Store. Defaults to an in-process
	// session.NewMemoryStore(time.Minute) if nil.
	Store session.Store
	// Cookie configures the Set-Cookie attributes the Controller emits.
	// Zero value falls back to session.DefaultCookieConfig().
	Cookie session.CookieConfig
	// TTL is how long a session lives without being touched.
	TTL time.Duration
	// UseSilentRenew arms a background renewal timer per session (§4.10.5).
	UseSilentRenew bool
	// EncryptionKey, if set, enables token-at-rest encryption
	// (internal/tokencrypt) before tokens are handed to Store.
	EncryptionKey string
}

// LoggingConfig configures the Controller's logger, the
// "logging.{log_level,logger}" group. A zero value falls back to
// internal/logging's package-level global logger.
type LoggingConfig struct {
	Logger *zerolog.Logger
}

// Config is everything a Controller needs, covering every field named in
// the Configuration list: client identity, discovery, PKCE, token endpoint
// auth, authorization-request parameters, timeouts, and the session group.
// The core takes this struct via constructor injection and never reads
// environment variables or files itself (Design Note 9); cmd/example loads
// it with koanf before handing it to NewController.
type Config struct {
	ClientID     string
	ClientSecret string

	DiscoveryURL         string
	RedirectURI          string
	PostLogoutRedirectURI string
	ErrorURL             string // where failed auth attempts redirect, per §7

	Scopes       []string
	ResponseType string // default "code"
	GrantType    string // default "authorization_code"

	// PKCEDisabled turns off RFC 7636 PKCE on the authorization request.
	// PKCE is enabled by default (the zero value, false, means "use
	// PKCE") since it is safe for every grant this package supports and
	// required by several providers; set this to true only against a
	// provider that rejects the code_challenge parameter outright.
	PKCEDisabled bool
	PKCEMethod   pkce.Method // default MethodS256

	TokenEndpointAuthMethod token.AuthMethod // default client_secret_basic
	// PrivateKey and PrivateKeyAlg authenticate private_key_jwt requests
	// (RFC 7523). PrivateKey is a parsed *rsa.PrivateKey/*ecdsa.PrivateKey/
	// ed25519.PrivateKey, not PEM bytes — callers parse PrivateKeyPEM
	// themselves (the core does no certificate/PEM parsing, per §1's
	// exclusion of "X.509 certificate construction utilities").
	PrivateKey    any
	PrivateKeyAlg string

	Prompt         string
	Display        string
	MaxAge         int
	ACRValues      []string
	UILocales      []string
	ResponseMode   string

	ClockSkew             time.Duration // default 300s
	TokenRefreshThreshold time.Duration // default 60s
	Timeout               time.Duration // default 10s
	RetryAttempts          int          // default 0

	HTTPClient *http.Client

	Session SessionConfig
	Logging LoggingConfig

	// JTIReplayTTL bounds how long a back-channel logout token's jti is
	// remembered for replay detection; defaults to ClockSkew*2 if zero.
	JTIReplayTTL time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ResponseType == "" {
		out.ResponseType = "code"
	}
	if out.GrantType == "" {
		out.GrantType = "authorization_code"
	}
	if out.PKCEMethod == "" {
		out.PKCEMethod = pkce.MethodS256
	}
	if out.TokenEndpointAuthMethod == "" {
		out.TokenEndpointAuthMethod = token.AuthClientSecretBasic
	}
	if out.ClockSkew <= 0 {
		out.ClockSkew = 300 * time.Second
	}
	if out.TokenRefreshThreshold <= 0 {
		out.TokenRefreshThreshold = token.DefaultRefreshThreshold
	}
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Second
	}
	if out.Session.TTL <= 0 {
		out.Session.TTL = time.Hour
	}
	if out.JTIReplayTTL <= 0 {
		out.JTIReplayTTL = out.ClockSkew * 2
	}
	if out.HTTPClient == nil {
		out.HTTPClient = &http.Client{Timeout: out.Timeout}
	}
	return out
}

// tokenEncryptor builds the optional tokencrypt.Cryptor named by
// Session.EncryptionKey; nil (and no error) if unset.
func (c *Config) tokenEncryptor() (*tokencrypt.Cryptor, error) {
	return tokencrypt.New(tokencrypt.Config{MasterKey: c.Session.EncryptionKey})
}
