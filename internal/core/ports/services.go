package ports

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(claims TokenClaims) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// Roles carried in TokenClaims.
const (
	RoleMerchant = "merchant"
	RoleAdmin    = "admin"
)

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject  string
	BrandID  uuid.UUID
	BranchID *uuid.UUID
	Role     string
}

// WalletRef returns the wallet the caller acts on.
func (c TokenClaims) WalletRef() domain.WalletRef {
	return domain.WalletRef{BrandID: c.BrandID, BranchID: c.BranchID}
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// EventDeduper records provider webhook events already handled.
type EventDeduper interface {
	// MarkSeen atomically records key. Returns true if key is new.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget removes key so a failed delivery can be retried.
	Forget(ctx context.Context, key string) error
}

// Lease is a best-effort distributed lock.
type Lease interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// --- Service Ports (Business Logic) ---

// PostingRequest holds validated input for a Credit or Debit.
// Amount is always positive; the operation decides the sign.
type PostingRequest struct {
	Wallet         domain.WalletRef
	Type           domain.TransactionType
	Amount         int64
	Currency       string // empty = wallet currency
	Description    string
	Reference      domain.Reference
	Note           string
	IdempotencyKey string
}

// Balance is the authoritative balance of a wallet together with what is
// not yet reserved by in-flight payouts.
type Balance struct {
	WalletID  uuid.UUID `json:"wallet_id"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"`
	Available int64     `json:"available_balance"`
	Reserved  int64     `json:"reserved"`
}

// LedgerService owns wallet balances and the transaction log.
//
// Credit and Debit return the original transaction together with a
// DuplicateOperation error when the idempotency key was already used.
type LedgerService interface {
	Credit(ctx context.Context, req PostingRequest) (*domain.Transaction, error)
	Debit(ctx context.Context, req PostingRequest) (*domain.Transaction, error)
	GetBalance(ctx context.Context, ref domain.WalletRef) (*Balance, error)
	Summary(ctx context.Context, ref domain.WalletRef) (*domain.WalletSummary, error)
	History(ctx context.Context, ref domain.WalletRef, filter domain.TransactionFilter, page domain.PageRequest) (*domain.TransactionPage, error)
	IterateTransactions(ctx context.Context, ref domain.WalletRef, filter domain.TransactionFilter, pageSize int) iter.Seq2[domain.Transaction, error]
	// VerifyBalance reports whether the wallet balance equals the sum of its entries.
	VerifyBalance(ctx context.Context, ref domain.WalletRef) (bool, error)
}

// LedgerPoster applies a posting to a wallet already locked in tx.
type LedgerPoster interface {
	PostInTx(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, posting domain.Posting) (*domain.Transaction, error)
}

// PayoutRequest holds validated input for a payout request.
type PayoutRequest struct {
	Wallet        domain.WalletRef
	Amount        int64
	Currency      string     // empty = wallet currency
	BankAccountID *uuid.UUID // nil = wallet default
	Method        domain.PayoutMethod
	Provider      domain.Provider // empty = configured default
	Reference     string          // empty = generated
}

// PayoutPage is one page of payouts, newest first.
type PayoutPage struct {
	Items []domain.Payout `json:"items"`
	Total int64           `json:"total"`
}

// PayoutService runs the payout state machine.
type PayoutService interface {
	RequestPayout(ctx context.Context, req PayoutRequest) (*domain.Payout, error)
	Process(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	Complete(ctx context.Context, id uuid.UUID, externalRef string) (*domain.Payout, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) (*domain.Payout, error)
	Cancel(ctx context.Context, ref domain.WalletRef, id uuid.UUID) (*domain.Payout, error)
	Get(ctx context.Context, ref domain.WalletRef, id uuid.UUID) (*domain.Payout, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	List(ctx context.Context, ref domain.WalletRef, filter domain.PayoutFilter, page domain.PageRequest) (*PayoutPage, error)
}

// AddBankAccountRequest holds validated input for registering a destination.
type AddBankAccountRequest struct {
	Wallet        domain.WalletRef
	AccountName   string
	BankName      string
	BankCode      string
	AccountNumber string
	Currency      string
	MakeDefault   bool
}

// BankAccountService manages a wallet's payout destinations.
type BankAccountService interface {
	Add(ctx context.Context, req AddBankAccountRequest) (*domain.BankAccount, error)
	Update(ctx context.Context, ref domain.WalletRef, id uuid.UUID, upd domain.BankAccountUpdate) (*domain.BankAccount, error)
	SetDefault(ctx context.Context, ref domain.WalletRef, id uuid.UUID) (*domain.BankAccount, error)
	Verify(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)
	Remove(ctx context.Context, ref domain.WalletRef, id uuid.UUID) error
	Get(ctx context.Context, ref domain.WalletRef, id uuid.UUID) (*domain.BankAccount, error)
	List(ctx context.Context, ref domain.WalletRef) ([]domain.BankAccount, error)
}

// ReconcileOutcome says what a webhook delivery did.
type ReconcileOutcome string

const (
	OutcomeApplied       ReconcileOutcome = "applied"
	OutcomeDuplicate     ReconcileOutcome = "duplicate"
	OutcomeAlreadyFinal  ReconcileOutcome = "already_final"
	OutcomeInterim       ReconcileOutcome = "interim"
	OutcomeUnknownPayout ReconcileOutcome = "unknown_payout"
)

// ReconcileResult is returned to the webhook handler.
type ReconcileResult struct {
	Outcome ReconcileOutcome `json:"outcome"`
	Payout  *domain.Payout   `json:"payout,omitempty"`
}

// ReconciliationService maps provider webhooks back onto payouts.
type ReconciliationService interface {
	HandleWebhook(ctx context.Context, provider domain.Provider, payload []byte, header http.Header) (*ReconcileResult, error)
}

// PayoutNotifier delivers outbound payout events.
type PayoutNotifier interface {
	Notify(ctx context.Context, event *domain.PayoutEvent)
}

// AuditService records privileged actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
