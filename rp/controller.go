// Package rp is the session controller (C10): it binds an inbound request
// to a session, drives login/callback/logout, and schedules silent token
// renewal. It is the outermost package — everything else in this module
// (jwt, jwkset, discovery, state, token, session) is a collaborator it
// wires together per a Config supplied at construction.
package rp

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oidcware/rp/discovery"
	"github.com/oidcware/rp/errs"
	"github.com/oidcware/rp/internal/jti"
	"github.com/oidcware/rp/internal/logging"
	"github.com/oidcware/rp/internal/pkce"
	"github.com/oidcware/rp/internal/tokencrypt"
	"github.com/oidcware/rp/jwkset"
	"github.com/oidcware/rp/jwt"
	"github.com/oidcware/rp/session"
	"github.com/oidcware/rp/state"
	"github.com/oidcware/rp/token"
)

// defaultStateTTL bounds a flow state's lifetime per §3's Lifecycles
// (>=5min, <=1h).
const defaultStateTTL = 10 * time.Minute

// provider bundles the collaborators built once a discovery document has
// been fetched.
type provider struct {
	metadata  *discovery.Metadata
	jwks      *jwkset.Client
	validator *jwt.Validator
	verifier  *jwt.Verifier
}

// Controller is the C10 session controller.
type Controller struct {
	cfg    Config
	logger zerolog.Logger

	auditLogger *logging.AuthEventLogger

	discoveryClient *discovery.Client
	stateStore      state.Store
	sessionStore    session.Store
	cryptor         *tokencrypt.Cryptor
	jtiTracker      jti.Tracker

	mu   sync.RWMutex
	prov *provider

	renewalMu     sync.Mutex
	renewalTimers map[string]*time.Timer

	stateMu      sync.Mutex
	flowStates   map[string]SessionState // keyed by the OAuth `state` value, while AUTHENTICATING
	sessionState map[string]SessionState // keyed by sid, once a session exists
}

// NewController constructs a Controller. ClientID, DiscoveryURL, and
// RedirectURI are required.
func NewController(cfg Config) (*Controller, error) {
	if cfg.ClientID == "" {
		return nil, errs.New(errs.InvalidConfig, "client_id must not be empty")
	}
	if cfg.DiscoveryURL == "" {
		return nil, errs.New(errs.InvalidConfig, "discovery_url must not be empty")
	}
	if cfg.RedirectURI == "" {
		return nil, errs.New(errs.InvalidConfig, "redirect_uri must not be empty")
	}

	applied := cfg.withDefaults()

	logger := logging.Logger()
	if applied.Logging.Logger != nil {
		logger = *applied.Logging.Logger
	}

	discoveryClient, err := discovery.NewClient(discovery.ClientConfig{
		DiscoveryURL: applied.DiscoveryURL,
		HTTPClient:   applied.HTTPClient,
		Logger:       &logger,
	})
	if err != nil {
		return nil, err
	}

	sessionStore := applied.Session.Store
	if sessionStore == nil {
		sessionStore = session.NewMemoryStore(time.Minute)
	}

	cryptor, err := applied.tokenEncryptor()
	if err != nil {
		return nil, err
	}

	cookieCfg := applied.Session.Cookie
	if cookieCfg.Name == "" {
		cookieCfg = session.DefaultCookieConfig()
	}
	applied.Session.Cookie = cookieCfg

	c := &Controller{
		cfg:             applied,
		logger:          logger,
		auditLogger:     logging.NewAuthEventLoggerWithLogger(logger),
		discoveryClient: discoveryClient,
		stateStore:      state.NewMemoryStore(defaultStateTTL),
		sessionStore:    sessionStore,
		cryptor:         cryptor,
		jtiTracker:      jti.NewMemoryTracker(time.Minute),
		renewalTimers:   make(map[string]*time.Timer),
		flowStates:      make(map[string]SessionState),
		sessionState:    make(map[string]SessionState),
	}
	return c, nil
}

// CurrentSessionState returns sid's tracked position in the §4.11 state
// machine, false if the controller has never tracked sid. Tracked entries
// are never removed, so a terminated session reports TERMINATED.
func (c *Controller) CurrentSessionState(sid string) (SessionState, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	s, ok := c.sessionState[sid]
	return s, ok
}

// setState records a transition, logging (but not rejecting) one that
// §4.11 doesn't name — that would indicate a bug in the controller itself,
// not a condition callers can trigger.
func (c *Controller) setState(sid string, to SessionState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	from, ok := c.sessionState[sid]
	if ok && !transitionAllowed(from, to) {
		c.logger.Warn().Str("sid", sid).Str("from", string(from)).Str("to", string(to)).Msg("unexpected session state transition")
	}
	c.sessionState[sid] = to
}

// provider lazily discovers the provider's metadata and builds the JWKS
// client, validator, and verifier from it, caching the result. A failed
// discovery is not cached — the next call retries.
func (c *Controller) provider(ctx context.Context) (*provider, error) {
	c.mu.RLock()
	p := c.prov
	c.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prov != nil {
		return c.prov, nil
	}

	md, err := c.discoveryClient.Discover(ctx, false)
	if err != nil {
		return nil, err
	}
	jwksClient, err := jwkset.NewClient(jwkset.ClientConfig{
		JWKSURI:    md.JWKSURI,
		HTTPClient: c.cfg.HTTPClient,
		Logger:     &c.logger,
	})
	if err != nil {
		return nil, err
	}

	validator := jwt.NewValidator(md.Issuer, c.cfg.ClientID, jwt.WithMaxFutureSkew(c.cfg.ClockSkew))
	verifier := jwt.NewVerifier(jwksClient)

	built := &provider{metadata: md, jwks: jwksClient, validator: validator, verifier: verifier}
	c.prov = built
	return built, nil
}

func (c *Controller) newManager(p *provider, current *token.TokenSet) *token.Manager {
	return token.NewManager(token.ManagerConfig{
		ClientID:              c.cfg.ClientID,
		ClientSecret:          c.cfg.ClientSecret,
		TokenEndpoint:         p.metadata.TokenEndpoint,
		IntrospectionEndpoint: p.metadata.IntrospectionEndpoint,
		RevocationEndpoint:    p.metadata.RevocationEndpoint,
		AuthMethod:            c.cfg.TokenEndpointAuthMethod,
		PrivateKey:            c.cfg.PrivateKey,
		PrivateKeyAlg:         c.cfg.PrivateKeyAlg,
		ExpectedIssuer:        p.metadata.Issuer,
		Validator:             p.validator,
		Verifier:              p.verifier,
		RefreshThreshold:      c.cfg.TokenRefreshThreshold,
		HTTPClient:            c.cfg.HTTPClient,
		Logger:                &c.logger,
	}, current)
}

// StartLoginOptions overrides per-call authorization-request parameters.
type StartLoginOptions struct {
	Prompt string
	// RelayState is carried through opaquely and has no meaning to this
	// library; callers may use it to remember e.g. the originally
	// requested path.
	RelayState string
}

// StartLogin builds the authorization URL, records the (state, nonce,
// code_verifier) tuple, and issues a 302 redirect to it (§4.10.1).
func (c *Controller) StartLogin(ctx context.Context, res Response, opts *StartLoginOptions) error {
	p, err := c.provider(ctx)
	if err != nil {
		return err
	}

	stateValue, err := pkce.NewState()
	if err != nil {
		return errs.Wrap(errs.EncodeError, "generate state", err)
	}
	nonce, err := pkce.NewNonce()
	if err != nil {
		return errs.Wrap(errs.EncodeError, "generate nonce", err)
	}

	var codeVerifier, codeChallenge string
	if !c.cfg.PKCEDisabled {
		challenge, err := pkce.NewChallenge()
		if err != nil {
			return err
		}
		codeVerifier = challenge.CodeVerifier
		codeChallenge = challenge.CodeChallenge
	}

	if err := c.stateStore.AddState(ctx, stateValue, nonce, codeVerifier); err != nil {
		return err
	}
	c.stateMu.Lock()
	c.flowStates[stateValue] = StateAuthenticating
	c.stateMu.Unlock()

	q := url.Values{}
	q.Set("response_type", c.cfg.ResponseType)
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	if len(c.cfg.Scopes) > 0 {
		q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	}
	q.Set("state", stateValue)
	q.Set("nonce", nonce)
	if !c.cfg.PKCEDisabled {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", string(c.cfg.PKCEMethod))
	}

	prompt := c.cfg.Prompt
	if opts != nil && opts.Prompt != "" {
		prompt = opts.Prompt
	}
	if prompt != "" {
		q.Set("prompt", prompt)
	}
	if c.cfg.Display != "" {
		q.Set("display", c.cfg.Display)
	}
	if c.cfg.MaxAge > 0 {
		q.Set("max_age", strconv.Itoa(c.cfg.MaxAge))
	}
	if len(c.cfg.ACRValues) > 0 {
		q.Set("acr_values", strings.Join(c.cfg.ACRValues, " "))
	}
	if len(c.cfg.UILocales) > 0 {
		q.Set("ui_locales", strings.Join(c.cfg.UILocales, " "))
	}
	if c.cfg.ResponseMode != "" {
		q.Set("response_mode", c.cfg.ResponseMode)
	}

	authURL := p.metadata.AuthorizationEndpoint + "?" + q.Encode()
	res.Redirect(authURL, http.StatusFound)
	return nil
}

// HandleCallback consumes the authorization-server callback: validates
// state, exchanges the code, verifies the id_token, creates a session, and
// redirects to PostLogoutRedirectURI's login counterpart — the caller's
// configured success URL passed as successRedirect (§4.10.2).
func (c *Controller) HandleCallback(ctx context.Context, req Request, res Response, successRedirect string) error {
	if errParam := req.QueryParam("error"); errParam != "" {
		c.redirectError(res, errParam, req.QueryParam("error_description"))
		c.auditLogger.LogCallbackFailure("", "authorization server returned error: "+errParam)
		return errs.New(errs.TokenExchangeError, "authorization server returned error: "+errParam)
	}

	code := req.QueryParam("code")
	stateValue := req.QueryParam("state")

	entry, ok := c.stateStore.GetStateEntry(ctx, stateValue)
	c.stateStore.RemoveState(ctx, stateValue)
	c.stateMu.Lock()
	delete(c.flowStates, stateValue)
	c.stateMu.Unlock()
	if !ok {
		c.redirectError(res, "invalid_state", "state not found or already consumed")
		c.auditLogger.LogCallbackFailure("", "unrecognized or already-consumed state")
		return errs.New(errs.StateNotFound, "unrecognized or already-consumed state")
	}

	p, err := c.provider(ctx)
	if err != nil {
		c.redirectError(res, "server_error", err.Error())
		c.auditLogger.LogCallbackFailure("", err.Error())
		return err
	}

	manager := c.newManager(p, nil)
	ts, claims, err := manager.ExchangeCodeForToken(ctx, code, entry.CodeVerifier, c.cfg.RedirectURI, entry.Nonce)
	if err != nil {
		c.redirectError(res, "invalid_grant", err.Error())
		c.auditLogger.LogCallbackFailure(p.metadata.Issuer, err.Error())
		return err
	}
	if claims == nil {
		c.redirectError(res, "invalid_request", "token response carried no id_token")
		c.auditLogger.LogCallbackFailure(p.metadata.Issuer, "token response carried no id_token")
		return errs.New(errs.IDTokenValidationError, "token response carried no id_token")
	}

	encrypted, err := c.encryptTokenSet(ts)
	if err != nil {
		return err
	}

	csrfToken, err := pkce.NewState()
	if err != nil {
		return errs.Wrap(errs.EncodeError, "generate csrf token", err)
	}

	data := &session.Data{
		TokenSet:  encrypted,
		User:      &session.User{Subject: claims.Subject, Claims: claims.Raw},
		CSRFToken: csrfToken,
	}
	sid, err := c.sessionStore.Set(ctx, data, c.cfg.Session.TTL)
	if err != nil {
		return err
	}
	c.setState(sid, StateAuthenticated)
	res.SetCookie(c.buildCookie(sid, c.cfg.Session.TTL))
	c.auditLogger.LogCallbackSuccess(claims.Subject, sid, p.metadata.Issuer)

	if c.cfg.Session.UseSilentRenew {
		c.armRenewal(sid, ts)
	}

	res.Redirect(successRedirect, http.StatusFound)
	return nil
}

// RequireAuth resolves the session bound to req, transparently refreshing
// its access token if it's near expiry. Returns errs.Unauthenticated if no
// valid session is present (§4.10.3).
func (c *Controller) RequireAuth(ctx context.Context, req Request) (*session.Data, error) {
	sid, ok := req.Cookie(c.cfg.Session.Cookie.Name)
	if !ok || sid == "" {
		return nil, errs.New(errs.Unauthenticated, "no session cookie present")
	}

	data, err := c.sessionStore.Get(ctx, sid)
	if err != nil {
		return nil, errs.Wrap(errs.Unauthenticated, "session lookup failed", err)
	}
	if data.User == nil || data.TokenSet == nil {
		return nil, errs.New(errs.Unauthenticated, "session carries no authenticated user")
	}

	p, err := c.provider(ctx)
	if err != nil {
		return nil, err
	}

	decrypted, err := c.decryptTokenSet(data.TokenSet)
	if err != nil {
		return nil, err
	}

	manager := c.newManager(p, decrypted)
	willRefresh := !decrypted.ExpiresAt().IsZero() && time.Until(decrypted.ExpiresAt()) <= c.cfg.TokenRefreshThreshold && decrypted.RefreshToken != ""
	if willRefresh {
		c.setState(sid, StateRefreshing)
	}
	if _, err := manager.GetAccessToken(ctx); err != nil {
		if willRefresh {
			c.setState(sid, StateExpired)
			c.auditLogger.LogTokenRefresh(data.User.Subject, sid, p.metadata.Issuer, false, err.Error())
		}
		return nil, errs.Wrap(errs.Unauthenticated, "token refresh failed", err)
	}

	if refreshed := manager.Current(); refreshed != nil && refreshed.AccessToken != decrypted.AccessToken {
		encrypted, err := c.encryptTokenSet(refreshed)
		if err != nil {
			return nil, err
		}
		data.TokenSet = encrypted
		if err := c.sessionStore.Touch(ctx, sid, data, c.cfg.Session.TTL); err != nil {
			return nil, err
		}
		c.setState(sid, StateAuthenticated)
		c.auditLogger.LogTokenRefresh(data.User.Subject, sid, p.metadata.Issuer, true, "")
		if c.cfg.Session.UseSilentRenew {
			c.armRenewal(sid, refreshed)
		}
	}

	return data, nil
}

// Logout destroys the session bound to req, best-effort revokes its
// tokens, clears the session cookie, and redirects to end_session_endpoint
// when the provider publishes one (§4.10.4).
func (c *Controller) Logout(ctx context.Context, req Request, res Response, idTokenHint string) error {
	sid, ok := req.Cookie(c.cfg.Session.Cookie.Name)
	if ok && sid != "" {
		c.cancelRenewal(sid)

		var subject string
		if data, err := c.sessionStore.Get(ctx, sid); err == nil {
			if data.User != nil {
				subject = data.User.Subject
			}
			if data.TokenSet != nil {
				if p, err := c.provider(ctx); err == nil {
					if decrypted, err := c.decryptTokenSet(data.TokenSet); err == nil {
						manager := c.newManager(p, decrypted)
						_ = manager.RevokeToken(ctx, decrypted.AccessToken, "access_token")
						if decrypted.RefreshToken != "" {
							_ = manager.RevokeToken(ctx, decrypted.RefreshToken, "refresh_token")
						}
					}
				}
				if idTokenHint == "" {
					if decrypted, err := c.decryptTokenSet(data.TokenSet); err == nil {
						idTokenHint = decrypted.IDToken
					}
				}
			}
		}
		_ = c.sessionStore.Destroy(ctx, sid)
		c.setState(sid, StateTerminated)
		c.auditLogger.LogLogout(subject, sid)
	}

	res.SetCookie(c.clearedCookie())

	p, err := c.provider(ctx)
	if err == nil && p.metadata.EndSessionEndpoint != "" {
		q := url.Values{}
		if c.cfg.PostLogoutRedirectURI != "" {
			q.Set("post_logout_redirect_uri", c.cfg.PostLogoutRedirectURI)
		}
		if idTokenHint != "" {
			q.Set("id_token_hint", idTokenHint)
		}
		res.Redirect(p.metadata.EndSessionEndpoint+"?"+q.Encode(), http.StatusFound)
		return nil
	}

	res.Redirect(c.cfg.PostLogoutRedirectURI, http.StatusFound)
	return nil
}

// HandleBackchannelLogout verifies a back-channel logout token (OIDC
// Back-Channel Logout 1.0) and destroys the session it names via its sid
// claim, rejecting replays by jti.
func (c *Controller) HandleBackchannelLogout(ctx context.Context, logoutToken string) error {
	p, err := c.provider(ctx)
	if err != nil {
		return err
	}

	claims, err := jwt.Verify(ctx, logoutToken, jwt.VerifyOptions{
		Validator: p.validator,
		Verifier:  p.verifier,
	})
	if err != nil {
		return err
	}

	events, _ := claims.Raw["events"].(map[string]any)
	if _, ok := events["http://schemas.openid.net/event/backchannel-logout"]; !ok {
		return errs.New(errs.IDTokenValidationError, "logout token missing backchannel-logout event")
	}

	if claims.JTI == "" {
		return errs.New(errs.InvalidJWT, "logout token missing jti")
	}
	if err := c.jtiTracker.CheckAndStore(ctx, claims.JTI, claims.Issuer, claims.Subject, c.cfg.JTIReplayTTL); err != nil {
		return err
	}

	sid := claims.StringClaim("sid")
	if sid == "" {
		logging.CtxWarn(ctx).Str("sub", claims.Subject).Msg("backchannel logout token carried no sid, cannot target a session")
		c.auditLogger.LogBackChannelLogout(claims.Issuer, claims.Subject, "", false, "logout token carried no sid")
		return nil
	}
	c.cancelRenewal(sid)
	c.setState(sid, StateTerminated)
	err = c.sessionStore.Destroy(ctx, sid)
	c.auditLogger.LogSessionRevoked(sid, "backchannel_logout")
	c.auditLogger.LogBackChannelLogout(claims.Issuer, claims.Subject, sid, err == nil, errString(err))
	return err
}

// errString returns err.Error(), or "" if err is nil — used at audit call
// sites that log a success/failure pair alongside the error that caused it.
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (c *Controller) redirectError(res Response, errCode, description string) {
	if c.cfg.ErrorURL == "" {
		res.SetStatus(http.StatusBadRequest)
		return
	}
	q := url.Values{}
	q.Set("error", errCode)
	if description != "" {
		q.Set("error_description", description)
	}
	res.Redirect(c.cfg.ErrorURL+"?"+q.Encode(), http.StatusFound)
}

// buildCookie and clearedCookie set Expires alongside MaxAge for clients
// that predate RFC 6265's Max-Age support. Partitioned and Priority are not
// set here, even when Session.Cookie configures them: net/http.Cookie has
// no Priority field, its Partitioned field is left unset, and rp.Response's
// narrow SetCookie(*http.Cookie) interface gives the controller no way to
// reach back into the raw Set-Cookie header the way session.CookieTransport
// does (Design Note 3) — a host application that needs them appends the
// attributes itself after SetCookie returns.
func (c *Controller) buildCookie(sid string, ttl time.Duration) *http.Cookie {
	cfg := c.cfg.Session.Cookie
	return &http.Cookie{
		Name:     cfg.Name,
		Value:    sid,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		Secure:   cfg.Secure,
		HttpOnly: cfg.HTTPOnly,
		SameSite: cfg.SameSite,
	}
}

func (c *Controller) clearedCookie() *http.Cookie {
	cfg := c.cfg.Session.Cookie
	return &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   cfg.Secure,
		HttpOnly: cfg.HTTPOnly,
		SameSite: cfg.SameSite,
	}
}

func (c *Controller) encryptTokenSet(ts *token.TokenSet) (*token.TokenSet, error) {
	if !c.cryptor.Enabled() || ts == nil {
		return ts, nil
	}
	out := *ts
	var err error
	if out.AccessToken, err = c.cryptor.Encrypt(out.AccessToken); err != nil {
		return nil, err
	}
	if out.RefreshToken, err = c.cryptor.Encrypt(out.RefreshToken); err != nil {
		return nil, err
	}
	if out.IDToken, err = c.cryptor.Encrypt(out.IDToken); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Controller) decryptTokenSet(ts *token.TokenSet) (*token.TokenSet, error) {
	if !c.cryptor.Enabled() || ts == nil {
		return ts, nil
	}
	out := *ts
	var err error
	if out.AccessToken, err = c.cryptor.Decrypt(out.AccessToken); err != nil {
		return nil, err
	}
	if out.RefreshToken, err = c.cryptor.Decrypt(out.RefreshToken); err != nil {
		return nil, err
	}
	if out.IDToken, err = c.cryptor.Decrypt(out.IDToken); err != nil {
		return nil, err
	}
	return &out, nil
}

// armRenewal schedules a one-shot refresh at expires_at - threshold,
// cancelling any prior timer for sid (§4.10.5).
func (c *Controller) armRenewal(sid string, ts *token.TokenSet) {
	expiresAt := ts.ExpiresAt()
	if expiresAt.IsZero() {
		return
	}
	delay := time.Until(expiresAt) - c.cfg.TokenRefreshThreshold
	if delay < 0 {
		delay = 0
	}

	c.renewalMu.Lock()
	defer c.renewalMu.Unlock()
	if t, ok := c.renewalTimers[sid]; ok {
		t.Stop()
	}
	c.renewalTimers[sid] = time.AfterFunc(delay, func() { c.renewSession(sid) })
}

func (c *Controller) cancelRenewal(sid string) {
	c.renewalMu.Lock()
	defer c.renewalMu.Unlock()
	if t, ok := c.renewalTimers[sid]; ok {
		t.Stop()
		delete(c.renewalTimers, sid)
	}
}

func (c *Controller) renewSession(sid string) {
	ctx := context.Background()

	data, err := c.sessionStore.Get(ctx, sid)
	if err != nil {
		return
	}
	var subject string
	if data.User != nil {
		subject = data.User.Subject
	}

	p, err := c.provider(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Str("sid", sid).Msg("silent renew: provider unavailable")
		c.auditLogger.LogTokenRefresh(subject, sid, "", false, err.Error())
		return
	}
	decrypted, err := c.decryptTokenSet(data.TokenSet)
	if err != nil {
		return
	}

	c.setState(sid, StateRefreshing)

	manager := c.newManager(p, decrypted)
	refreshed, err := manager.RefreshAccessToken(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Str("sid", sid).Msg("silent renew failed")
		c.setState(sid, StateExpired)
		c.auditLogger.LogTokenRefresh(subject, sid, p.metadata.Issuer, false, err.Error())
		return
	}

	encrypted, err := c.encryptTokenSet(refreshed)
	if err != nil {
		return
	}
	data.TokenSet = encrypted
	if err := c.sessionStore.Touch(ctx, sid, data, c.cfg.Session.TTL); err != nil {
		return
	}
	c.setState(sid, StateAuthenticated)
	c.auditLogger.LogTokenRefresh(subject, sid, p.metadata.Issuer, true, "")
	c.armRenewal(sid, refreshed)
}

// NewSessionID is exposed for adapters that need to pre-generate a sid
// outside the normal login flow (e.g. anonymous cart/session tracking
// before authentication).
func NewSessionID() string { return uuid.New().String() }
