package session

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent identifies a session lifecycle transition being logged.
type AuditEvent string

const (
	AuditLogin              AuditEvent = "session_login"
	AuditLogout             AuditEvent = "session_logout"
	AuditLogoutRemoteFailed AuditEvent = "logout_remote_failed"
	AuditRestored           AuditEvent = "session_restored"
	AuditPartialPurged      AuditEvent = "partial_credentials_purged"
	AuditRefreshStarted     AuditEvent = "refresh_started"
	AuditRefreshSucceeded   AuditEvent = "refresh_succeeded"
	AuditRefreshRejected    AuditEvent = "refresh_rejected"
	AuditRefreshFailed      AuditEvent = "refresh_failed"
	AuditRefreshDiscarded   AuditEvent = "refresh_discarded"
)

// auditLogger wraps slog.Logger for structured session audit logging.
// Token values are never logged.
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

func (al *auditLogger) log(ctx context.Context, level slog.Level, event AuditEvent, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(ctx, level, "audit", append(base, attrs...)...)
	al.metrics.recordEvent(event)
}

func (al *auditLogger) info(event AuditEvent, attrs ...slog.Attr) {
	al.log(context.Background(), slog.LevelInfo, event, attrs...)
}

// failure logs an event with its cause at warning level.
func (al *auditLogger) failure(event AuditEvent, err error, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{slog.String("reason", err.Error())}, attrs...)
	al.log(context.Background(), slog.LevelWarn, event, attrs...)
}
