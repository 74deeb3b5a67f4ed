package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "CREDIT"
	TransactionTypeDebit  TransactionType = "DEBIT"
	TransactionTypeFee    TransactionType = "FEE"
	TransactionTypeRefund TransactionType = "REFUND"
	TransactionTypePayout TransactionType = "PAYOUT"
)

// Valid reports whether t is a known type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCredit, TransactionTypeDebit, TransactionTypeFee,
		TransactionTypeRefund, TransactionTypePayout:
		return true
	}
	return false
}

// AllowedForCredit reports whether t may increase a balance through the public API.
func (t TransactionType) AllowedForCredit() bool {
	return t == TransactionTypeCredit || t == TransactionTypeRefund
}

// AllowedForDebit reports whether t may decrease a balance through the public API.
// PAYOUT is excluded; it is posted only when a payout completes.
func (t TransactionType) AllowedForDebit() bool {
	return t == TransactionTypeDebit || t == TransactionTypeFee || t == TransactionTypeRefund
}

// TransactionStatus represents the lifecycle state of a transaction.
// Transactions are written only once finalized.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
)

// ReferenceKind tags what a transaction points back to.
type ReferenceKind string

const (
	ReferenceKindOrder      ReferenceKind = "ORDER"
	ReferenceKindPayout     ReferenceKind = "PAYOUT"
	ReferenceKindAdjustment ReferenceKind = "ADJUSTMENT"
)

// Reference is a typed back-reference from a transaction to its cause.
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   string        `json:"id"`
}

// IsZero reports whether no reference is set.
func (r Reference) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// Valid reports whether the reference is empty or well formed.
func (r Reference) Valid() bool {
	if r.IsZero() {
		return true
	}
	switch r.Kind {
	case ReferenceKindOrder, ReferenceKindPayout, ReferenceKindAdjustment:
		return r.ID != ""
	}
	return false
}

func OrderRef(id string) Reference      { return Reference{Kind: ReferenceKindOrder, ID: id} }
func PayoutRef(id string) Reference     { return Reference{Kind: ReferenceKindPayout, ID: id} }
func AdjustmentRef(id string) Reference { return Reference{Kind: ReferenceKindAdjustment, ID: id} }

// Transaction is an immutable ledger entry. Amount is signed:
// positive for credits, negative for debits, and
// BalanceAfter == BalanceBefore + Amount.
type Transaction struct {
	ID             uuid.UUID         `json:"id"`
	WalletID       uuid.UUID         `json:"wallet_id"`
	Type           TransactionType   `json:"type"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	BalanceBefore  int64             `json:"balance_before"`
	BalanceAfter   int64             `json:"balance_after"`
	Status         TransactionStatus `json:"status"`
	Description    string            `json:"description,omitempty"`
	Reference      Reference         `json:"reference"`
	Note           string            `json:"note,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Posting is a validated request to mutate a wallet balance.
// Amount is signed the same way as Transaction.Amount.
type Posting struct {
	Type           TransactionType
	Amount         int64
	Currency       string
	Description    string
	Reference      Reference
	Note           string
	IdempotencyKey string
}

// TransactionFilter narrows a history listing.
type TransactionFilter struct {
	Type *TransactionType
	From *time.Time
	To   *time.Time
}

// TransactionPage is one page of history, newest first.
type TransactionPage struct {
	Items      []Transaction `json:"items"`
	Total      int64         `json:"total"`
	NextCursor string        `json:"next_cursor,omitempty"`
}
