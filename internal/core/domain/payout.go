package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus represents the lifecycle state of a payout.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
	PayoutStatusCancelled  PayoutStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusProcessing, PayoutStatusCompleted,
		PayoutStatusFailed, PayoutStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if no further transition is possible.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusFailed || s == PayoutStatusCancelled
}

// Reserving reports whether a payout in this status holds funds against
// the wallet's available balance.
func (s PayoutStatus) Reserving() bool {
	return s == PayoutStatusPending || s == PayoutStatusProcessing
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusProcessing, PayoutStatusCancelled},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
}

// CanTransition reports whether from -> to is a legal payout transition.
func CanTransition(from, to PayoutStatus) bool {
	for _, s := range payoutTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PayoutMethod is how funds are sent to the destination.
type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "BANK_TRANSFER"
	PayoutMethodInstant      PayoutMethod = "INSTANT"
)

// Valid reports whether m is a known method.
func (m PayoutMethod) Valid() bool {
	return m == PayoutMethodBankTransfer || m == PayoutMethodInstant
}

// Provider names a payment gateway.
type Provider string

const (
	ProviderMidtrans Provider = "midtrans"
	ProviderCardPay  Provider = "cardpay"
)

// Payout is a request to move funds out of a wallet to a bank account.
type Payout struct {
	ID               uuid.UUID    `json:"id"`
	WalletID         uuid.UUID    `json:"wallet_id"`
	BankAccountID    uuid.UUID    `json:"bank_account_id"`
	Amount           int64        `json:"amount"`
	Currency         string       `json:"currency"`
	Status           PayoutStatus `json:"status"`
	Method           PayoutMethod `json:"method"`
	Provider         Provider     `json:"provider"`
	Reference        string       `json:"reference"`
	ExternalPayoutID *string      `json:"external_payout_id,omitempty"`
	FailureReason    *string      `json:"failure_reason,omitempty"`
	Attempts         int          `json:"attempts"`
	RequestedAt      time.Time    `json:"requested_at"`
	ProcessedAt      *time.Time   `json:"processed_at,omitempty"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
	FailedAt         *time.Time   `json:"failed_at,omitempty"`
	CancelledAt      *time.Time   `json:"cancelled_at,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Transition moves the payout to status and stamps the matching timestamp.
// It returns false and leaves the payout untouched if the move is illegal.
func (p *Payout) Transition(to PayoutStatus, at time.Time) bool {
	if !CanTransition(p.Status, to) {
		return false
	}
	p.Status = to
	p.UpdatedAt = at
	switch to {
	case PayoutStatusProcessing:
		p.ProcessedAt = &at
	case PayoutStatusCompleted:
		p.CompletedAt = &at
	case PayoutStatusFailed:
		p.FailedAt = &at
	case PayoutStatusCancelled:
		p.CancelledAt = &at
	}
	return true
}

// AwaitingConfirmation reports whether the gateway accepted the payout and
// the final result is still outstanding.
func (p *Payout) AwaitingConfirmation() bool {
	return p.Status == PayoutStatusProcessing && p.ExternalPayoutID != nil
}

// PayoutFilter narrows a payout listing.
type PayoutFilter struct {
	Status *PayoutStatus
}
