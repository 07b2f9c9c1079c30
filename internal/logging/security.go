package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// AuthEvent is one entry in the relying party's authentication audit trail:
// a callback completing (or failing), a session being created, refreshed,
// or torn down, a back-channel logout being processed. It deliberately
// carries no IP address or user agent — rp.Request/rp.Response are narrow
// enough that the controller never sees them; a host application that
// wants those in its audit log attaches them itself via Details.
type AuthEvent struct {
	// Event names the lifecycle step, e.g. "callback", "logout",
	// "token_refresh", "backchannel_logout".
	Event string
	// Subject is the authenticated user's sub claim, if resolved yet.
	Subject string
	// SessionID is the relying party's own session identifier (sanitized).
	SessionID string
	// Issuer is the OIDC issuer this event relates to.
	Issuer string
	// Success indicates if the operation succeeded.
	Success bool
	// Error is the error message if the operation failed.
	Error string
	// Details carries additional sanitized fields.
	Details map[string]string
}

// AuthEventLogger is rp.Controller's audit sink. It sanitizes subject and
// session identifiers before they reach the log so a raw sub claim or
// session id never lands in aggregated logs unmasked.
type AuthEventLogger struct {
	logger zerolog.Logger
}

// NewAuthEventLogger creates an AuthEventLogger on top of the package
// global logger.
func NewAuthEventLogger() *AuthEventLogger {
	return &AuthEventLogger{logger: Logger().With().Str("component", "rp").Logger()}
}

// NewAuthEventLoggerWithLogger creates an AuthEventLogger on top of a
// caller-supplied logger — rp.NewController uses this so audit events
// share the same logger (and therefore the same output/level) as the
// controller's own diagnostic logging.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewAuthEventLoggerWithLogger(logger zerolog.Logger) *AuthEventLogger {
	return &AuthEventLogger{logger: logger.With().Str("component", "rp").Logger()}
}

// LogEvent logs an AuthEvent with automatic sanitization of Subject and
// SessionID.
func (l *AuthEventLogger) LogEvent(event AuthEvent) {
	e := l.logger.Info().Str("event", event.Event)

	if event.Success {
		e = e.Str("status", "success")
	} else {
		e = e.Str("status", "failed")
	}
	if event.Subject != "" {
		e = e.Str("subject", SanitizeUserID(event.Subject))
	}
	if event.SessionID != "" {
		e = e.Str("session_id", SanitizeSessionID(event.SessionID))
	}
	if event.Issuer != "" {
		e = e.Str("issuer", event.Issuer)
	}
	if event.Error != "" && !event.Success {
		e = e.Str("error", SanitizeError(event.Error))
	}
	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}

	e.Msg("")
}

// LogCallbackSuccess logs a completed authorization-code exchange that
// produced an authenticated session.
func (l *AuthEventLogger) LogCallbackSuccess(subject, sessionID, issuer string) {
	l.LogEvent(AuthEvent{
		Event:     "callback",
		Subject:   subject,
		SessionID: sessionID,
		Issuer:    issuer,
		Success:   true,
	})
}

// LogCallbackFailure logs a callback that was rejected before a session
// could be created (bad state, token exchange error, invalid id_token) —
// no subject is known yet at this point.
func (l *AuthEventLogger) LogCallbackFailure(issuer, reason string) {
	l.LogEvent(AuthEvent{
		Event:   "callback",
		Issuer:  issuer,
		Success: false,
		Error:   reason,
	})
}

// LogLogout logs a session being destroyed via Controller.Logout.
func (l *AuthEventLogger) LogLogout(subject, sessionID string) {
	l.LogEvent(AuthEvent{
		Event:     "logout",
		Subject:   subject,
		SessionID: sessionID,
		Success:   true,
	})
}

// LogTokenRefresh logs a silent renewal attempt (Controller.renewSession or
// a refresh performed inline by RequireAuth).
func (l *AuthEventLogger) LogTokenRefresh(subject, sessionID, issuer string, success bool, errMsg string) {
	l.LogEvent(AuthEvent{
		Event:     "token_refresh",
		Subject:   subject,
		SessionID: sessionID,
		Issuer:    issuer,
		Success:   success,
		Error:     errMsg,
	})
}

// LogSessionRevoked logs a session destroyed by something other than the
// owning user's own logout request — currently only back-channel logout.
func (l *AuthEventLogger) LogSessionRevoked(sessionID, revokedBy string) {
	l.LogEvent(AuthEvent{
		Event:     "session_revoked",
		SessionID: sessionID,
		Success:   true,
		Details: map[string]string{
			"revoked_by": revokedBy,
		},
	})
}

// LogBackChannelLogout logs the outcome of Controller.HandleBackchannelLogout.
func (l *AuthEventLogger) LogBackChannelLogout(issuer, subject, sessionID string, success bool, errMsg string) {
	l.LogEvent(AuthEvent{
		Event:     "backchannel_logout",
		Subject:   subject,
		SessionID: sessionID,
		Issuer:    issuer,
		Success:   success,
		Error:     errMsg,
	})
}

// SanitizeToken masks a token, showing only first and last 4 characters.
// Example: "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9" -> "eyJh...VCJ9"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeSessionID masks a session ID.
// Example: "abc123def456789" -> "abc1...6789"
func SanitizeSessionID(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	if len(sessionID) <= 12 {
		return "***"
	}
	return sessionID[:4] + "..." + sessionID[len(sessionID)-4:]
}

// SanitizeUserID masks a subject claim for privacy.
// Example: "user-12345678" -> "user...5678"
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}
	if len(userID) <= 8 {
		return "***"
	}
	return userID[:4] + "..." + userID[len(userID)-4:]
}

// SanitizeEmail masks an email address.
// Example: "john.doe@example.com" -> "jo***@example.com"
func SanitizeEmail(email string) string {
	if email == "" {
		return ""
	}

	atIndex := strings.Index(email, "@")
	if atIndex <= 0 {
		return "***"
	}

	localPart := email[:atIndex]
	domain := email[atIndex:]

	if len(localPart) <= 2 {
		return "***" + domain
	}
	return localPart[:2] + "***" + domain
}

// SanitizeError removes potentially sensitive information from error messages.
func SanitizeError(err string) string {
	sensitivePatterns := []string{
		"password",
		"secret",
		"token",
		"key",
		"bearer",
		"authorization",
		"cookie",
	}

	lowerErr := strings.ToLower(err)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowerErr, pattern) {
			return "authentication error"
		}
	}

	return truncateString(err, 200)
}

// SanitizeValue sanitizes a value based on its key name.
func SanitizeValue(key, value string) string {
	lowerKey := strings.ToLower(key)

	sensitiveKeys := map[string]bool{
		"access_token":  true,
		"refresh_token": true,
		"id_token":      true,
		"token":         true,
		"password":      true,
		"secret":        true,
		"authorization": true,
		"bearer":        true,
		"cookie":        true,
		"session":       true,
		"session_id":    true,
		"sessionid":     true,
	}

	if sensitiveKeys[lowerKey] {
		return SanitizeToken(value)
	}
	if strings.Contains(value, "@") && strings.Contains(value, ".") {
		return SanitizeEmail(value)
	}
	return value
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
