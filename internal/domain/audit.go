package domain

import "time"

// AuditLog records every significant action in the system.
type AuditLog struct {
	ID         int64     `json:"id"          db:"id"`
	Subject    string    `json:"subject"     db:"subject"`
	Action     string    `json:"action"      db:"action"`
	Resource   string    `json:"resource"    db:"resource"`
	ResourceID string    `json:"resource_id" db:"resource_id"`
	Details    string    `json:"details"     db:"details"` // JSON blob
	IP         string    `json:"ip"          db:"ip"`
	UserAgent  string    `json:"user_agent"  db:"user_agent"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// Audit action constants.
const (
	AuditActionLogin       = "login"
	AuditActionHTTPRequest = "http_request"
	AuditActionSync        = "calendar_sync"
	AuditActionEventCreate = "event_create"
	AuditActionEventDelete = "event_delete"
	AuditActionChat        = "chat"
	AuditActionMCPCall     = "mcp_call"
)
