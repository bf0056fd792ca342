package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in auth_events.
type AuditLog struct {
	Role     string
	ActorID  string
	Action   string
	Outcome  string
	RemoteIP string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes authentication events into auth_events.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Role == "" || log.Action == "" || log.Outcome == "" {
		return errors.New("audit log requires role/action/outcome")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO auth_events (role, actor_id, action, outcome, remote_ip, meta, occurred_at) VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, COALESCE($7, NOW()))`,
		log.Role, log.ActorID, log.Action, log.Outcome, log.RemoteIP, metaJSON, at)
	return err
}
