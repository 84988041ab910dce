package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditLogin  AuditAction = "LOGIN"
	AuditLogout AuditAction = "LOGOUT"
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
	AuditView   AuditAction = "VIEW"
	AuditSystem AuditAction = "SYSTEM"
)

type AuditStatus string

const (
	AuditSuccess AuditStatus = "SUCCESS"
	AuditFailed  AuditStatus = "FAILED"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MED"
	PriorityHigh   Priority = "HIGH"
)

// DefaultPriority is used when an audit entry does not set one.
func (a AuditAction) DefaultPriority() Priority {
	switch a {
	case AuditCreate, AuditUpdate:
		return PriorityMedium
	case AuditDelete, AuditSystem:
		return PriorityHigh
	default:
		return PriorityLow
	}
}

type AuditEntry struct {
	ID           uuid.UUID      `json:"id"`
	UserID       *uuid.UUID     `json:"user_id,omitempty"`
	Action       AuditAction    `json:"action_type"`
	Status       AuditStatus    `json:"status"`
	Priority     Priority       `json:"priority"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Object       *ObjectRef     `json:"object,omitempty"`
	ObjectRepr   string         `json:"object_repr,omitempty"`
	Changes      map[string]any `json:"changes,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
