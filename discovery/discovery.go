// Package discovery fetches and caches an OIDC provider's discovery
// document (C6), sharing the JWKS client's single-flight + TTL-cache +
// circuit-breaker shape.
package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/oidcware/rp/errs"
	"github.com/oidcware/rp/internal/cache"
	"github.com/oidcware/rp/internal/logging"
)

// DefaultTTL is how long a fetched discovery document is cached.
const DefaultTTL = time.Hour

const cacheKey = "metadata"

var fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "oidcrp",
	Subsystem: "discovery",
	Name:      "fetch_total",
	Help:      "Discovery document fetches by outcome.",
}, []string{"outcome"})

// Metadata is an OIDC Discovery 1.0 provider metadata document, limited to
// the fields this module consumes or re-exposes.
type Metadata struct {
	Issuer                             string   `json:"issuer"`
	AuthorizationEndpoint              string   `json:"authorization_endpoint"`
	TokenEndpoint                      string   `json:"token_endpoint"`
	JWKSURI                            string   `json:"jwks_uri"`
	UserinfoEndpoint                   string   `json:"userinfo_endpoint,omitempty"`
	IntrospectionEndpoint              string   `json:"introspection_endpoint,omitempty"`
	RevocationEndpoint                 string   `json:"revocation_endpoint,omitempty"`
	EndSessionEndpoint                 string   `json:"end_session_endpoint,omitempty"`
	DeviceAuthorizationEndpoint        string   `json:"device_authorization_endpoint,omitempty"`
	ResponseTypesSupported             []string `json:"response_types_supported,omitempty"`
	SubjectTypesSupported              []string `json:"subject_types_supported,omitempty"`
	IDTokenSigningAlgValues            []string `json:"id_token_signing_alg_values_supported,omitempty"`
	ScopesSupported                    []string `json:"scopes_supported,omitempty"`
	TokenEndpointAuthMethods           []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	BackchannelLogoutSupported         bool     `json:"backchannel_logout_supported,omitempty"`
	BackchannelLogoutSessionSupported  bool     `json:"backchannel_logout_session_supported,omitempty"`
}

func (m *Metadata) validate() error {
	switch {
	case m.Issuer == "":
		return errs.New(errs.DiscoveryError, "discovery document missing issuer")
	case m.AuthorizationEndpoint == "":
		return errs.New(errs.DiscoveryError, "discovery document missing authorization_endpoint")
	case m.TokenEndpoint == "":
		return errs.New(errs.DiscoveryError, "discovery document missing token_endpoint")
	case m.JWKSURI == "":
		return errs.New(errs.DiscoveryError, "discovery document missing jwks_uri")
	}
	return nil
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// DiscoveryURL is the provider's .well-known/openid-configuration URL.
	DiscoveryURL string
	HTTPClient   *http.Client
	TTL          time.Duration
	Logger       *zerolog.Logger
}

// Client fetches and caches a provider's discovery document.
type Client struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration
	logger     zerolog.Logger

	cache   *cache.Cache[*Metadata]
	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker[*Metadata]
}

// NewClient constructs a Client. DiscoveryURL must be non-empty.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.DiscoveryURL == "" {
		return nil, errs.New(errs.DiscoveryError, "discovery_url must not be empty")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := logging.Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	c := &Client{
		url:        cfg.DiscoveryURL,
		httpClient: httpClient,
		ttl:        ttl,
		logger:     logger,
		cache:      cache.New[*Metadata](ttl),
	}
	c.breaker = gobreaker.NewCircuitBreaker[*Metadata](gobreaker.Settings{
		Name:        cfg.DiscoveryURL,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			c.logger.Warn().Str("discovery_url", c.url).Str("from", from.String()).Str("to", to.String()).Msg("discovery circuit breaker state change")
		},
	})
	return c, nil
}

// Discover returns the cached metadata document, fetching it on first call
// or when forceRefresh bypasses the cache. Concurrent callers share one
// in-flight fetch.
func (c *Client) Discover(ctx context.Context, forceRefresh bool) (*Metadata, error) {
	if !forceRefresh {
		if m, ok := c.cache.Get(cacheKey); ok {
			return m, nil
		}
	}

	v, err, _ := c.group.Do(cacheKey, func() (any, error) {
		m, ferr := c.breaker.Execute(func() (*Metadata, error) {
			return c.fetch(ctx)
		})
		if ferr != nil {
			fetchTotal.WithLabelValues("error").Inc()
			return nil, ferr
		}
		c.cache.SetWithTTL(cacheKey, m, c.ttl)
		fetchTotal.WithLabelValues("success").Inc()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Metadata), nil
}

func (c *Client) fetch(ctx context.Context) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.DiscoveryError, "failed to build discovery request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.DiscoveryError, "discovery fetch failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errs.Wrap(errs.DiscoveryError, "failed to read discovery response body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.DiscoveryError, fmt.Sprintf("discovery endpoint returned status %d", resp.StatusCode))
	}

	var m Metadata
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, errs.Wrap(errs.DiscoveryError, "failed to parse discovery document", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}

	c.logger.Debug().Str("issuer", m.Issuer).Msg("discovery document refreshed")
	return &m, nil
}
