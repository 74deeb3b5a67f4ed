package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionManualCredit      AuditAction = "MANUAL_CREDIT"
	AuditActionManualDebit       AuditAction = "MANUAL_DEBIT"
	AuditActionRequestPayout     AuditAction = "REQUEST_PAYOUT"
	AuditActionProcessPayout     AuditAction = "PROCESS_PAYOUT"
	AuditActionCancelPayout      AuditAction = "CANCEL_PAYOUT"
	AuditActionVerifyBankAccount AuditAction = "VERIFY_BANK_ACCOUNT"
	AuditActionRemoveBankAccount AuditAction = "REMOVE_BANK_ACCOUNT"
)

// AuditLog records a single privileged action.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	BrandID      *uuid.UUID  `json:"brand_id,omitempty"`
	ActorID      string      `json:"actor_id"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
