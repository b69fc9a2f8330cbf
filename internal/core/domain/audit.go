package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionCreatePayment AuditAction = "CREATE_PAYMENT"
	AuditActionCheckStatus   AuditAction = "CHECK_STATUS"
	AuditActionRegisterIPN   AuditAction = "REGISTER_IPN"
	AuditActionReconcile     AuditAction = "RECONCILE"
)

// AuditLog records a single operator or client action against the service.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Actor        *string     `json:"actor,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
