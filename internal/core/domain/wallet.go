package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletRef identifies a wallet by its owning brand and optional branch.
type WalletRef struct {
	BrandID  uuid.UUID  `json:"brand_id"`
	BranchID *uuid.UUID `json:"branch_id,omitempty"`
}

// String renders the ref as "brand" or "brand/branch".
func (r WalletRef) String() string {
	if r.BranchID == nil {
		return r.BrandID.String()
	}
	return r.BrandID.String() + "/" + r.BranchID.String()
}

// Equal reports whether both refs name the same wallet.
func (r WalletRef) Equal(o WalletRef) bool {
	if r.BrandID != o.BrandID {
		return false
	}
	if r.BranchID == nil || o.BranchID == nil {
		return r.BranchID == nil && o.BranchID == nil
	}
	return *r.BranchID == *o.BranchID
}

// IsZero reports whether the ref has no brand.
func (r WalletRef) IsZero() bool {
	return r.BrandID == uuid.Nil
}

// Wallet is the balance-holding account of a brand or branch.
// All amounts are in minor units of Currency.
type Wallet struct {
	ID                uuid.UUID  `json:"id"`
	BrandID           uuid.UUID  `json:"brand_id"`
	BranchID          *uuid.UUID `json:"branch_id,omitempty"`
	Currency          string     `json:"currency"`
	Balance           int64      `json:"balance"`
	TotalEarned       int64      `json:"total_earned"`
	TotalWithdrawn    int64      `json:"total_withdrawn"`
	MinPayoutAmount   int64      `json:"min_payout_amount"`
	ExternalAccountID *string    `json:"external_account_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Ref returns the wallet's owner reference.
func (w *Wallet) Ref() WalletRef {
	return WalletRef{BrandID: w.BrandID, BranchID: w.BranchID}
}

// Apply adds a signed delta to the balance and updates the running totals.
// It returns the balance before and after, and false without mutating
// anything if the result would be negative.
func (w *Wallet) Apply(entryType TransactionType, delta int64) (before, after int64, ok bool) {
	before = w.Balance
	after = before + delta
	if after < 0 {
		return before, before, false
	}
	w.Balance = after
	switch entryType {
	case TransactionTypeCredit:
		w.TotalEarned += delta
	case TransactionTypePayout:
		w.TotalWithdrawn -= delta
	}
	return before, after, true
}

// WalletSummary is the merchant-facing view of a wallet.
type WalletSummary struct {
	WalletID          uuid.UUID `json:"wallet_id"`
	Currency          string    `json:"currency"`
	Balance           int64     `json:"balance"`
	AvailableBalance  int64     `json:"available_balance"`
	PendingPayouts    int64     `json:"pending_payouts_total"`
	PendingCount      int64     `json:"pending_payouts_count"`
	TotalEarned       int64     `json:"total_earned"`
	TotalWithdrawn    int64     `json:"total_withdrawn"`
	MinPayoutAmount   int64     `json:"min_payout_amount"`
	ExternalAccountID *string   `json:"external_account_id,omitempty"`
}
