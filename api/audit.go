package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditRegister         AuditEvent = "register"
	AuditLoginSuccess     AuditEvent = "login_success"
	AuditLoginFailure     AuditEvent = "login_failure"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditTokenRefreshed   AuditEvent = "token_refreshed"
	AuditRefreshRejected  AuditEvent = "refresh_rejected"
	AuditLogout           AuditEvent = "logout"
)

// auditLogger writes one structured record per security-relevant request.
// Raw tokens never reach the log: token events carry the issued record's
// UUID and family instead.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger, metrics *metricsCollector) *auditLogger {
	return &auditLogger{
		logger:  logger.With("component", "audit"),
		metrics: metrics,
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", append(base, attrs...)...)
	al.metrics.recordEvent(event)
}

// logEvent is a convenience for events with an account ID.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, accountID string, extra ...slog.Attr) {
	attrs := append([]slog.Attr{slog.String("account_id", accountID)}, extra...)
	al.log(event, r, attrs...)
}

// logToken records an event about an issued token.
func (al *auditLogger) logToken(event AuditEvent, r *http.Request, rec TokenRecord, extra ...slog.Attr) {
	al.logEvent(event, r, rec.AccountID, append(tokenAttrs(rec), extra...)...)
}

// logFailure logs a rejected request.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := append([]slog.Attr{slog.String("reason", reason)}, extra...)
	al.log(event, r, attrs...)
}

// tokenAttrs identifies a token record by id, kind and family, and says how
// long it has left.
func tokenAttrs(rec TokenRecord) []slog.Attr {
	return []slog.Attr{
		slog.String("token_id", rec.ID),
		slog.String("token_kind", string(rec.Kind)),
		slog.String("token_family", rec.Family),
		slog.Duration("token_ttl_remaining", time.Until(rec.ExpiresAt).Truncate(time.Second)),
	}
}
