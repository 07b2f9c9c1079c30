// Package logging provides the zerolog-based structured logging this
// module's packages share: a package-level logger any collaborator
// (jwkset.Client, discovery.Client, token.Manager, rp.Controller) falls
// back to when its caller doesn't supply one, context helpers that thread
// a request id and correlation id through to that logger, and
// AuthEventLogger, the sanitizing audit sink rp.Controller calls at each
// step of the login/callback/logout lifecycle.
//
// # Quick start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("issuer", "https://issuer.example.com").Msg("discovery refreshed")
//
// A request-scoped logger picks up whatever correlation_id/request_id
// internal/middleware.RequestID attached to ctx:
//
//	logging.Ctx(ctx).Warn().Str("sid", sid).Msg("token refresh failed")
//
// # Audit logging
//
// AuthEventLogger records authentication-lifecycle events (callback,
// logout, token refresh, back-channel logout, session revocation) with
// automatic sanitization of subjects and session ids before they reach
// the log sink.
package logging
