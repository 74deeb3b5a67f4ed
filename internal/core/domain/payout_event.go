package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayoutEventType names an outbound notification.
type PayoutEventType string

const (
	PayoutEventCompleted PayoutEventType = "PAYOUT_COMPLETED"
	PayoutEventFailed    PayoutEventType = "PAYOUT_FAILED"
	PayoutEventCancelled PayoutEventType = "PAYOUT_CANCELLED"
)

// PayoutEventFor maps a terminal status to its notification type.
func PayoutEventFor(s PayoutStatus) (PayoutEventType, bool) {
	switch s {
	case PayoutStatusCompleted:
		return PayoutEventCompleted, true
	case PayoutStatusFailed:
		return PayoutEventFailed, true
	case PayoutStatusCancelled:
		return PayoutEventCancelled, true
	}
	return "", false
}

// PayoutEvent is the body of an outbound payout notification.
type PayoutEvent struct {
	Event         PayoutEventType `json:"event"`
	PayoutID      uuid.UUID       `json:"payout_id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	Reference     string          `json:"reference"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	Status        PayoutStatus    `json:"status"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewPayoutEvent builds the notification for a payout in a terminal state.
func NewPayoutEvent(p *Payout, at time.Time) (*PayoutEvent, bool) {
	kind, ok := PayoutEventFor(p.Status)
	if !ok {
		return nil, false
	}
	return &PayoutEvent{
		Event:         kind,
		PayoutID:      p.ID,
		WalletID:      p.WalletID,
		Reference:     p.Reference,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        p.Status,
		FailureReason: p.FailureReason,
		OccurredAt:    at,
	}, true
}
