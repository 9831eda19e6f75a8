package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionModerate      AuditAction = "MODERATE"
	AuditActionRefund        AuditAction = "WITHDRAWAL_REFUND"
	AuditActionManualAdjust  AuditAction = "MANUAL_ADJUSTMENT"
	AuditActionEnqueueTask   AuditAction = "ENQUEUE_TASK"
	AuditActionCreateRequest AuditAction = "CREATE_REQUEST"
	AuditActionIssueToken    AuditAction = "ISSUE_TOKEN"
)

// AuditLog records a staff or API client action.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Actor        string      `json:"actor"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
