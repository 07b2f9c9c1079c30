// Command example is a minimal relying-party web app built on package rp:
// it wires a chi router around Controller.StartLogin/HandleCallback/Logout,
// protects a sample route with Controller.RequireAuth, and exposes Prometheus
// metrics and an OIDC back-channel logout endpoint.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oidcware/rp"
	"github.com/oidcware/rp/internal/logging"
	appmiddleware "github.com/oidcware/rp/internal/middleware"
	"github.com/oidcware/rp/internal/pkce"
	"github.com/oidcware/rp/session"
	"github.com/oidcware/rp/token"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	initLogging(cfg.Logging)

	ctrl, err := rp.NewController(buildControllerConfig(cfg))
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build OIDC controller")
	}

	router := buildRouter(cfg, ctrl)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info().Str("addr", cfg.Server.ListenAddr).Msg("starting oidcrp example server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logging.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func buildControllerConfig(cfg *AppConfig) rp.Config {
	pkceMethod := pkce.MethodS256
	authMethod := token.AuthMethod(cfg.OIDC.TokenEndpointAuthMethod)

	return rp.Config{
		ClientID:                cfg.OIDC.ClientID,
		ClientSecret:            cfg.OIDC.ClientSecret,
		DiscoveryURL:            cfg.OIDC.DiscoveryURL,
		RedirectURI:             cfg.OIDC.RedirectURI,
		PostLogoutRedirectURI:   cfg.OIDC.PostLogoutRedirectURI,
		ErrorURL:                cfg.OIDC.ErrorURL,
		Scopes:                  cfg.OIDC.Scopes,
		PKCEDisabled:            !cfg.OIDC.PKCE,
		PKCEMethod:              pkceMethod,
		TokenEndpointAuthMethod: authMethod,
		Session: rp.SessionConfig{
			Cookie:         session.DefaultCookieConfig(),
			TTL:            cfg.OIDC.SessionTTL,
			UseSilentRenew: cfg.OIDC.UseSilentRenew,
			EncryptionKey:  cfg.OIDC.EncryptionKey,
		},
	}
}

func buildRouter(cfg *AppConfig, ctrl *rp.Controller) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddlewareAdapter(appmiddleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Security.CORSOrigins,
		AllowedMethods: []string{"GET", "POST"},
	}))

	if !cfg.Security.RateLimitDisabled {
		r.Use(httprate.Limit(
			cfg.Security.RateLimitRequests,
			cfg.Security.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/login", loginHandler(ctrl))
	r.Get("/callback", callbackHandler(ctrl, "/profile"))
	r.Post("/logout", logoutHandler(ctrl))
	r.Post("/backchannel-logout", backchannelLogoutHandler(ctrl))

	r.Get("/profile", requireAuth(ctrl, profileHandler()))

	return r
}

// chiMiddlewareAdapter adapts http.HandlerFunc middleware (this module's
// convention, see internal/middleware.RequestID) to chi's
// func(http.Handler) http.Handler.
func chiMiddlewareAdapter(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

func profileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, ok := sessionFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("signed in as " + data.User.Subject))
	}
}
