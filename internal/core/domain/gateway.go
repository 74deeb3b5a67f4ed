package domain

import (
	"time"
)

// GatewayStatus is a provider's view of a transfer, normalized.
type GatewayStatus string

const (
	GatewayStatusProcessing GatewayStatus = "PROCESSING"
	GatewayStatusCompleted  GatewayStatus = "COMPLETED"
	GatewayStatusFailed     GatewayStatus = "FAILED"
)

// PayoutInstruction is what an adapter needs to send money out.
type PayoutInstruction struct {
	Amount         int64
	Currency       string
	Destination    Destination
	IdempotencyKey string
	// Reference is the payout reference, echoed back by providers that
	// support metadata so early webhooks can be matched.
	Reference   string
	Description string
}

// PayoutResult is the provider's answer to InitiatePayout.
type PayoutResult struct {
	ExternalRef string
	Status      GatewayStatus
	Reason      string
}

// VerifyResult is the provider's current record of a transfer or charge.
type VerifyResult struct {
	ExternalRef string
	Status      GatewayStatus
	Amount      int64
	Currency    string
	Reason      string
	Metadata    map[string]string
}

// RefundRequest asks a provider to reverse all or part of a charge.
type RefundRequest struct {
	ExternalRef string
	Amount      *int64 // nil = full refund
	Currency    string
	Reason      string
	Key         string
}

// RefundResult is the provider's answer to CreateRefund.
type RefundResult struct {
	RefundRef string
	Status    GatewayStatus
}

// GatewayEvent is a verified, normalized webhook notification.
type GatewayEvent struct {
	Provider        Provider
	EventID         string
	ExternalRef     string
	PayoutReference string
	Status          GatewayStatus
	Amount          int64
	Currency        string
	Reason          string
	OccurredAt      time.Time
}
