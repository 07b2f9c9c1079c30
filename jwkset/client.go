package jwkset

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

const cacheKey = "jwks"

// DefaultTTL matches the data model's default JWKS cache lifetime.
const DefaultTTL = time.Hour

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oidcrp",
		Subsystem: "jwks",
		Name:      "refresh_total",
		Help:      "JWKS refresh attempts by outcome.",
	}, []string{"outcome"})

	refreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oidcrp",
		Subsystem: "jwks",
		Name:      "refresh_duration_seconds",
		Help:      "Latency of JWKS HTTP fetches.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{})
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// JWKSURI is the provider's jwks_uri, normally obtained from the
	// discovery document.
	JWKSURI string
	// HTTPClient is used for the outbound fetch. Defaults to a client
	// with a 10s timeout.
	HTTPClient *http.Client
	// TTL is how long a fetched key set is cached. Defaults to DefaultTTL.
	TTL time.Duration
	// Logger receives diagnostic events. Nil falls back to the
	// package-level global logger.
	Logger *zerolog.Logger
	// BreakerName identifies this client's circuit breaker in logs and
	// metrics; defaults to the JWKS URI.
	BreakerName string
}

// Client fetches, caches, and single-flights access to a provider's JSON
// Web Key Set (C2).
type Client struct {
	uri        string
	httpClient *http.Client
	ttl        time.Duration
	logger     zerolog.Logger

	cache   *cache.Cache[*Set]
	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker[*Set]
}

// NewClient constructs a Client. JWKSURI must be non-empty.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.JWKSURI == "" {
		return nil, errs.New(errs.InvalidJWKSURI, "jwks_uri must not be empty")
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
	name := cfg.BreakerName
	if name == "" {
		name = cfg.JWKSURI
	}

	c := &Client{
		uri:        cfg.JWKSURI,
		httpClient: httpClient,
		ttl:        ttl,
		logger:     logger,
		cache:      cache.New[*Set](ttl),
	}
	c.breaker = gobreaker.NewCircuitBreaker[*Set](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			c.logger.Warn().Str("jwks_uri", c.uri).Str("from", from.String()).Str("to", to.String()).Msg("jwks circuit breaker state change")
		},
	})
	return c, nil
}

// GetKey implements the §4.2 lookup algorithm: cache hit, else refresh and
// retry, else refresh once more to tolerate in-flight key rotation, else
// JWKS_KEY_NOT_FOUND.
func (c *Client) GetKey(ctx context.Context, kid string) (JWK, error) {
	if kid == "" {
		return JWK{}, errs.New(errs.InvalidKid, "kid must not be empty")
	}

	if set, ok := c.cachedSet(); ok {
		if k, found := set.ByKid(kid); found {
			return k, nil
		}
	}

	set, err := c.refresh(ctx)
	if err != nil {
		return JWK{}, err
	}
	if len(set.Keys) == 0 {
		return JWK{}, errs.New(errs.JWKSFetchError, "jwks refresh returned no keys")
	}
	if k, found := set.ByKid(kid); found {
		return k, nil
	}

	// Key may have rotated in between; refresh once more before giving up.
	set, err = c.refresh(ctx)
	if err != nil {
		return JWK{}, err
	}
	if len(set.Keys) == 0 {
		return JWK{}, errs.New(errs.JWKSFetchError, "jwks refresh returned no keys")
	}
	if k, found := set.ByKid(kid); found {
		return k, nil
	}

	return JWK{}, errs.New(errs.JWKSKeyNotFound, fmt.Sprintf("no key found for kid %q after refresh", kid))
}

// RefreshCache forces a fetch of the JWKS document, bypassing the cache.
func (c *Client) RefreshCache(ctx context.Context) error {
	_, err := c.refresh(ctx)
	return err
}

func (c *Client) cachedSet() (*Set, bool) {
	return c.cache.Get(cacheKey)
}

// refresh performs a single-flighted, circuit-breaker-wrapped fetch and
// repopulates the cache on success.
func (c *Client) refresh(ctx context.Context) (*Set, error) {
	v, err, _ := c.group.Do(cacheKey, func() (any, error) {
		set, ferr := c.breaker.Execute(func() (*Set, error) {
			return c.fetch(ctx)
		})
		if ferr != nil {
			refreshTotal.WithLabelValues("error").Inc()
			return nil, ferr
		}
		c.cache.SetWithTTL(cacheKey, set, c.ttl)
		refreshTotal.WithLabelValues("success").Inc()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Set), nil
}

func (c *Client) fetch(ctx context.Context) (*Set, error) {
	start := time.Now()
	defer func() { refreshDuration.WithLabelValues().Observe(time.Since(start).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri, nil)
	if err != nil {
		return nil, errs.Wrap(errs.JWKSFetchError, "failed to build jwks request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.JWKSFetchError, "jwks fetch failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, errs.Wrap(errs.JWKSFetchError, "failed to read jwks response body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.JWKSFetchError, fmt.Sprintf("jwks endpoint returned status %d", resp.StatusCode))
	}

	var set Set
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, errs.Wrap(errs.JWKSParseError, "failed to parse jwks document", err)
	}
	if set.Keys == nil {
		return nil, errs.New(errs.JWKSInvalid, "jwks document missing keys array")
	}

	c.logger.Debug().Str("jwks_uri", c.uri).Int("key_count", len(set.Keys)).Msg("jwks refreshed")
	return &set, nil
}
