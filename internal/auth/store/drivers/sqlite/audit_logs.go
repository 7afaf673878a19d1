package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
)

type auditLogsRepo struct {
	db dbtx
}

func (r *auditLogsRepo) CreateAuditLog(ctx context.Context, e domain.AuditLogEntry) error {
	details := "{}"
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = string(raw)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, event, user_id, application_id, details,
		        ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Event, mapStringNull(e.UserID), mapStringNull(e.ApplicationID),
		details, e.IPAddress, e.UserAgent, e.CreatedAt)
	return err
}

func (r *auditLogsRepo) CountFailedLogins(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_logs
		 WHERE ip_address = ? AND event = ? AND created_at >= ?`,
		ipAddress, domain.AuditLoginFailed, since).Scan(&n)
	return n, err
}

func (r *auditLogsRepo) ListRecent(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event, user_id, application_id, details, ip_address, user_agent, created_at
		 FROM audit_logs
		 ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		var (
			e             domain.AuditLogEntry
			userID, appID sql.NullString
			details       string
		)
		if err := rows.Scan(&e.ID, &e.Event, &userID, &appID, &details,
			&e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = mapNullString(userID)
		e.ApplicationID = mapNullString(appID)
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
