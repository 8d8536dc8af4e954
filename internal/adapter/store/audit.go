package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/domain"
)

// WriteAudit implements middleware.AuditWriter.
func (c conn) WriteAudit(subject, action, resource, resourceID, details, ip, userAgent string) error {
	if !json.Valid([]byte(details)) {
		wrapped, _ := json.Marshal(map[string]string{"raw": details})
		details = string(wrapped)
	}

	query := `INSERT INTO audit_logs (subject, action, resource, resource_id, details, ip, user_agent, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := c.exec(context.Background(), query,
		subject, action, resource, resourceID, details, ip, userAgent, time.Now().UTC(),
	)
	if err != nil {
		return storageErr("write audit", err)
	}
	return nil
}

// ListAuditLogs returns a subject's recent audit logs, newest first, optionally filtered by action.
func (c conn) ListAuditLogs(ctx context.Context, subject string, limit int, action string) ([]domain.AuditLog, error) {
	query := `SELECT id, subject, action, resource, resource_id, details, ip, user_agent, created_at
	          FROM audit_logs WHERE subject = ?`
	args := []any{subject}

	if action != "" {
		query += " AND action = ?"
		args = append(args, action)
	}

	query += " ORDER BY id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list audit logs", err)
	}
	defer rows.Close()

	logs := []domain.AuditLog{}
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.Subject, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, storageErr("scan audit log", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
