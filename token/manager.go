// Package token implements the token manager (C8): code-for-token exchange,
// silent refresh, introspection, and revocation against an OIDC provider's
// token endpoint.
package token

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/oidcware/rp/errs"
	"github.com/oidcware/rp/internal/logging"
	"github.com/oidcware/rp/jwt"
)

// DefaultRefreshThreshold is how close to expiry GetAccessToken triggers a
// silent refresh.
const DefaultRefreshThreshold = 60 * time.Second

// AuthMethod is a token_endpoint_auth_method this manager can authenticate
// requests with.
type AuthMethod string

const (
	AuthClientSecretBasic AuthMethod = "client_secret_basic"
	AuthClientSecretPost  AuthMethod = "client_secret_post"
	AuthPrivateKeyJWT     AuthMethod = "private_key_jwt"
)

var (
	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oidcrp",
		Subsystem: "token",
		Name:      "requests_total",
		Help:      "Token endpoint requests by operation and outcome.",
	}, []string{"operation", "outcome"})
)

// TokenSet is the result of a successful code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int
	RefreshToken string
	IDToken      string
	Scope        string
	IssuedAt     time.Time
}

// ExpiresAt is the absolute expiry of AccessToken. Zero ExpiresIn means the
// provider did not declare a lifetime; callers should treat the token as
// long-lived and rely on 401s rather than silent refresh.
func (t *TokenSet) ExpiresAt() time.Time {
	if t == nil || t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	ClientID     string
	ClientSecret string

	TokenEndpoint         string
	IntrospectionEndpoint string
	RevocationEndpoint    string

	AuthMethod AuthMethod
	// PrivateKey and PrivateKeyAlg are required when AuthMethod is
	// AuthPrivateKeyJWT — they sign the client_assertion JWT (RFC 7523).
	PrivateKey    any
	PrivateKeyAlg string

	// ExpectedIssuer and the configured ClientID (as audience) are used to
	// verify an id_token returned by a code exchange.
	ExpectedIssuer string
	Validator      *jwt.Validator
	Verifier       *jwt.Verifier

	RefreshThreshold time.Duration
	HTTPClient       *http.Client
	Logger           *zerolog.Logger
	BreakerName      string
}

// Manager holds one session's current TokenSet and drives all token_endpoint
// interactions for it. A Manager is scoped to a single session: refresh and
// access-token reads are serialized by its own mutex, matching the per-session
// ordering requirement.
type Manager struct {
	cfg        ManagerConfig
	httpClient *http.Client
	logger     zerolog.Logger
	threshold  time.Duration

	mu      sync.Mutex
	current *TokenSet

	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker[*TokenSet]
}

// NewManager constructs a Manager. current may be nil (e.g. before the first
// code exchange).
func NewManager(cfg ManagerConfig, current *TokenSet) *Manager {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	threshold := cfg.RefreshThreshold
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	logger := logging.Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	name := cfg.BreakerName
	if name == "" {
		name = cfg.TokenEndpoint
	}

	m := &Manager{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		threshold:  threshold,
		current:    current,
	}
	m.breaker = gobreaker.NewCircuitBreaker[*TokenSet](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			m.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("token endpoint circuit breaker state change")
		},
	})
	return m
}

// GetAccessToken returns the current access token, transparently refreshing
// it first if it is within the configured threshold of expiry.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == nil {
		return "", errs.New(errs.TokenRefreshError, "no token set available")
	}

	expiresAt := current.ExpiresAt()
	if expiresAt.IsZero() || time.Until(expiresAt) > m.threshold {
		return current.AccessToken, nil
	}
	if current.RefreshToken == "" {
		// Near expiry with nothing to refresh with; hand back what we have
		// and let the caller discover it's stale via a 401 from the RS.
		return current.AccessToken, nil
	}

	refreshed, err := m.RefreshAccessToken(ctx)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// RefreshAccessToken exchanges the current refresh_token for a new TokenSet.
// Concurrent callers share one in-flight refresh.
func (m *Manager) RefreshAccessToken(ctx context.Context) (*TokenSet, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current == nil || current.RefreshToken == "" {
		return nil, errs.New(errs.TokenRefreshError, "no refresh token available")
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		ts, ferr := m.breaker.Execute(func() (*TokenSet, error) {
			return m.doRefresh(ctx, current.RefreshToken)
		})
		if ferr != nil {
			requestTotal.WithLabelValues("refresh", "error").Inc()
			return nil, ferr
		}
		requestTotal.WithLabelValues("refresh", "success").Inc()
		return ts, nil
	})
	if err != nil {
		return nil, err
	}

	refreshed := v.(*TokenSet)
	m.mu.Lock()
	m.current = refreshed
	m.mu.Unlock()
	return refreshed, nil
}

func (m *Manager) doRefresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	ts, status, err := m.tokenRequest(ctx, data)
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return nil, errs.Wrap(errs.TokenRefreshError, "provider rejected refresh token", err)
	}
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// ExchangeCodeForToken exchanges an authorization code for a TokenSet, and
// if the response carries an id_token, verifies it and returns its claims.
func (m *Manager) ExchangeCodeForToken(ctx context.Context, code, codeVerifier, redirectURI, nonce string) (*TokenSet, *jwt.Claims, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}

	ts, status, err := m.tokenRequest(ctx, data)
	if err != nil {
		requestTotal.WithLabelValues("exchange", "error").Inc()
		return nil, nil, err
	}
	if status != http.StatusOK {
		requestTotal.WithLabelValues("exchange", "error").Inc()
		return nil, nil, errs.New(errs.TokenExchangeError, "token endpoint rejected authorization code")
	}
	requestTotal.WithLabelValues("exchange", "success").Inc()

	m.mu.Lock()
	m.current = ts
	m.mu.Unlock()

	if ts.IDToken == "" {
		return ts, nil, nil
	}

	claims, err := jwt.Verify(ctx, ts.IDToken, jwt.VerifyOptions{
		Validator: m.cfg.Validator,
		Verifier:  m.cfg.Verifier,
		Nonce:     nonce,
	})
	if err != nil {
		return ts, nil, err
	}
	return ts, claims, nil
}

// IntrospectToken POSTs token to the introspection_endpoint and returns the
// decoded response.
func (m *Manager) IntrospectToken(ctx context.Context, tok string) (map[string]any, error) {
	if m.cfg.IntrospectionEndpoint == "" {
		return nil, errs.New(errs.TokenExchangeError, "introspection_endpoint not configured")
	}
	data := url.Values{}
	data.Set("token", tok)

	req, err := m.newAuthenticatedRequest(ctx, m.cfg.IntrospectionEndpoint, data)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.TokenExchangeError, "introspection request failed", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errs.Wrap(errs.TokenExchangeError, "failed to decode introspection response", err)
	}
	return result, nil
}

// RevokeToken POSTs token (and an optional token_type_hint) to the
// revocation_endpoint. Per RFC 7009 this is best-effort: callers should not
// block logout on its result.
func (m *Manager) RevokeToken(ctx context.Context, tok, hint string) error {
	if m.cfg.RevocationEndpoint == "" {
		return nil
	}
	data := url.Values{}
	data.Set("token", tok)
	if hint != "" {
		data.Set("token_type_hint", hint)
	}

	req, err := m.newAuthenticatedRequest(ctx, m.cfg.RevocationEndpoint, data)
	if err != nil {
		return err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.TokenExchangeError, "revocation request failed", err)
	}
	defer resp.Body.Close()
	return nil
}

// GetClaims decodes (without re-verifying) the current access token's
// payload, for informational use only — callers needing an authoritative
// identity must rely on the id_token verified at exchange time.
func (m *Manager) GetClaims() (*jwt.Claims, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current == nil {
		return nil, errs.New(errs.TokenRefreshError, "no token set available")
	}
	parsed, err := jwt.Decode(current.AccessToken)
	if err != nil {
		return nil, err
	}
	return parsed.Claims, nil
}

// Current returns the manager's current TokenSet, or nil if none has been
// set yet. Callers that persist sessions outside the manager (e.g. rp.Controller)
// use this after GetAccessToken/RefreshAccessToken to pick up a refresh that
// happened as a side effect.
func (m *Manager) Current() *TokenSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// tokenRequest performs one grant at the token endpoint and parses a 200
// response into a TokenSet. Any other status yields a nil TokenSet and an
// error, returned together with the status so the caller can map 400/401
// to TOKEN_REFRESH_ERROR.
func (m *Manager) tokenRequest(ctx context.Context, data url.Values) (*TokenSet, int, error) {
	req, err := m.newAuthenticatedRequest(ctx, m.cfg.TokenEndpoint, data)
	if err != nil {
		return nil, 0, err
	}
	issuedAt := time.Now()

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, 0, errs.Wrap(errs.TokenExchangeError, "token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, errs.New(errs.TokenExchangeError, "token endpoint returned status "+strconv.Itoa(resp.StatusCode))
	}

	var raw struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		Scope        string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, resp.StatusCode, errs.Wrap(errs.TokenExchangeError, "failed to decode token response", err)
	}

	return &TokenSet{
		AccessToken:  raw.AccessToken,
		TokenType:    raw.TokenType,
		ExpiresIn:    raw.ExpiresIn,
		RefreshToken: raw.RefreshToken,
		IDToken:      raw.IDToken,
		Scope:        raw.Scope,
		IssuedAt:     issuedAt,
	}, resp.StatusCode, nil
}

// newAuthenticatedRequest builds a POST request to endpoint carrying data
// plus client credentials per the configured token_endpoint_auth_method.
func (m *Manager) newAuthenticatedRequest(ctx context.Context, endpoint string, data url.Values) (*http.Request, error) {
	data.Set("client_id", m.cfg.ClientID)

	switch m.cfg.AuthMethod {
	case AuthClientSecretPost:
		data.Set("client_secret", m.cfg.ClientSecret)
	case AuthPrivateKeyJWT:
		assertion, err := m.buildClientAssertion(endpoint)
		if err != nil {
			return nil, err
		}
		data.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
		data.Set("client_assertion", assertion)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errs.Wrap(errs.TokenExchangeError, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if m.cfg.AuthMethod == AuthClientSecretBasic {
		req.SetBasicAuth(m.cfg.ClientID, m.cfg.ClientSecret)
	}
	return req, nil
}

// buildClientAssertion signs a short-lived JWT per RFC 7523 for
// private_key_jwt client authentication.
func (m *Manager) buildClientAssertion(audience string) (string, error) {
	now := time.Now()
	payload := map[string]any{
		"iss": m.cfg.ClientID,
		"sub": m.cfg.ClientID,
		"aud": audience,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(60 * time.Second).Unix(),
	}
	return jwt.Encode(payload, jwt.EncodeOptions{
		Algorithm:  m.cfg.PrivateKeyAlg,
		PrivateKey: m.cfg.PrivateKey,
	})
}
