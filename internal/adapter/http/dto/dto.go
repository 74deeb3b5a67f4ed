package dto

import (
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/money"
)

// Amounts on the wire are integer minor units of the wallet currency.

// CreatePayoutRequest is the body of POST /payouts.
type CreatePayoutRequest struct {
	Amount        int64   `json:"amount" binding:"required,gt=0"`
	Currency      string  `json:"currency" binding:"omitempty,len=3,alpha"`
	BankAccountID *string `json:"bank_account_id" binding:"omitempty,uuid"`
	Method        string  `json:"method" binding:"omitempty,oneof=BANK_TRANSFER INSTANT"`
	Provider      string  `json:"provider" binding:"omitempty,safe_id,max=32"`
	Reference     string  `json:"reference" binding:"omitempty,safe_id,max=64"`
}

// AddBankAccountRequest is the body of POST /bank-accounts.
type AddBankAccountRequest struct {
	AccountName   string `json:"account_name" binding:"required,max=120"`
	BankName      string `json:"bank_name" binding:"required,max=80"`
	BankCode      string `json:"bank_code" binding:"omitempty,safe_id,max=20"`
	AccountNumber string `json:"account_number" binding:"required,account_number"`
	Currency      string `json:"currency" binding:"omitempty,len=3,alpha"`
	MakeDefault   bool   `json:"make_default"`
}

// UpdateBankAccountRequest is the body of PATCH /bank-accounts/:id.
type UpdateBankAccountRequest struct {
	AccountName   *string `json:"account_name" binding:"omitempty,min=1,max=120"`
	BankName      *string `json:"bank_name" binding:"omitempty,min=1,max=80"`
	BankCode      *string `json:"bank_code" binding:"omitempty,safe_id,max=20"`
	AccountNumber *string `json:"account_number" binding:"omitempty,account_number"`
}

// ToUpdate converts the request to the service's partial update.
func (r UpdateBankAccountRequest) ToUpdate() domain.BankAccountUpdate {
	return domain.BankAccountUpdate{
		AccountName:   r.AccountName,
		BankName:      r.BankName,
		BankCode:      r.BankCode,
		AccountNumber: r.AccountNumber,
	}
}

// LedgerPostingRequest is the body of the admin credit and debit endpoints.
type LedgerPostingRequest struct {
	BrandID        string `json:"brand_id" binding:"required,uuid"`
	BranchID       string `json:"branch_id" binding:"omitempty,uuid"`
	Type           string `json:"type" binding:"required,oneof=CREDIT DEBIT FEE REFUND"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"omitempty,len=3,alpha"`
	Description    string `json:"description" binding:"max=255"`
	ReferenceKind  string `json:"reference_kind" binding:"omitempty,oneof=ORDER ADJUSTMENT"`
	ReferenceID    string `json:"reference_id" binding:"omitempty,safe_id,max=100"`
	Note           string `json:"note" binding:"max=500"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,safe_id,max=128"`
}

// FailPayoutRequest is the body of POST /admin/payouts/:id/fail.
type FailPayoutRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// BalanceResponse is the body of GET /wallet.
type BalanceResponse struct {
	WalletID         string `json:"wallet_id"`
	Currency         string `json:"currency"`
	Balance          int64  `json:"balance"`
	Available        int64  `json:"available_balance"`
	Reserved         int64  `json:"reserved"`
	BalanceDisplay   string `json:"balance_display"`
	AvailableDisplay string `json:"available_display"`
}

// NewBalanceResponse adds formatted amounts to b.
func NewBalanceResponse(b *ports.Balance) BalanceResponse {
	return BalanceResponse{
		WalletID:         b.WalletID.String(),
		Currency:         b.Currency,
		Balance:          b.Balance,
		Available:        b.Available,
		Reserved:         b.Reserved,
		BalanceDisplay:   money.Format(b.Balance, b.Currency),
		AvailableDisplay: money.Format(b.Available, b.Currency),
	}
}

// TransactionResponse is one ledger entry.
type TransactionResponse struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Currency      string `json:"currency"`
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
	Status        string `json:"status"`
	Description   string `json:"description,omitempty"`
	ReferenceKind string `json:"reference_kind,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
	Note          string `json:"note,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// NewTransactionResponse converts a ledger entry for output.
func NewTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID.String(),
		Type:          string(t.Type),
		Amount:        t.Amount,
		AmountDisplay: money.Format(t.Amount, t.Currency),
		Currency:      t.Currency,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Status:        string(t.Status),
		Description:   t.Description,
		ReferenceKind: string(t.Reference.Kind),
		ReferenceID:   t.Reference.ID,
		Note:          t.Note,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// PayoutResponse is one payout.
type PayoutResponse struct {
	*domain.Payout
	AmountDisplay string `json:"amount_display"`
}

// NewPayoutResponse converts a payout for output.
func NewPayoutResponse(p *domain.Payout) PayoutResponse {
	return PayoutResponse{Payout: p, AmountDisplay: money.Format(p.Amount, p.Currency)}
}

// NewPayoutResponses converts a page of payouts.
func NewPayoutResponses(items []domain.Payout) []PayoutResponse {
	out := make([]PayoutResponse, len(items))
	for i := range items {
		out[i] = NewPayoutResponse(&items[i])
	}
	return out
}
