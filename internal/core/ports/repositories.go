package ports

import (
	"context"
	"errors"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrConcurrentUpdate is returned by storage when a row lock could not be
	// obtained in time or the transaction lost a serialization race.
	ErrConcurrentUpdate = errors.New("concurrent update")
	// ErrDuplicateKey is returned by storage on a uniqueness violation.
	ErrDuplicateKey = errors.New("duplicate key")
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	// GetOrCreateForUpdate inserts a wallet for ref from defaults if none exists,
	// then returns it locked for the rest of tx.
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, ref domain.WalletRef, defaults domain.Wallet) (*domain.Wallet, error)
	GetByRef(ctx context.Context, ref domain.WalletRef) (*domain.Wallet, error)
	GetByRefForUpdate(ctx context.Context, tx pgx.Tx, ref domain.WalletRef) (*domain.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	// UpdateBalance persists balance, totals and updated_at.
	UpdateBalance(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
}

// TransactionRepository defines persistence operations for ledger entries.
// There is no update or delete: the table is append-only.
type TransactionRepository interface {
	// Create returns ErrDuplicateKey if (wallet_id, idempotency_key) exists.
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, key string) (*domain.Transaction, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	// SumAmounts returns the signed sum of all completed entries of a wallet.
	SumAmounts(ctx context.Context, walletID uuid.UUID) (int64, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
// Cursor takes precedence over Offset.
type TransactionListParams struct {
	WalletID uuid.UUID
	Filter   domain.TransactionFilter
	Limit    int
	Offset   int
	Cursor   *domain.Cursor
}

// BankAccountRepository defines persistence operations for payout destinations.
type BankAccountRepository interface {
	Create(ctx context.Context, tx pgx.Tx, account *domain.BankAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.BankAccount, error)
	GetDefault(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (*domain.BankAccount, error)
	// ListByWallet returns accounts oldest first.
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.BankAccount, error)
	CountByWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, error)
	// OldestExcept returns the oldest account of the wallet other than id, or nil.
	OldestExcept(ctx context.Context, tx pgx.Tx, walletID, id uuid.UUID) (*domain.BankAccount, error)
	Update(ctx context.Context, tx pgx.Tx, account *domain.BankAccount) error
	ClearDefault(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) error
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// PayoutRepository defines persistence operations for payouts.
type PayoutRepository interface {
	// Create returns ErrDuplicateKey if (wallet_id, reference) exists.
	Create(ctx context.Context, tx pgx.Tx, payout *domain.Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payout, error)
	GetByReference(ctx context.Context, walletID uuid.UUID, reference string) (*domain.Payout, error)
	GetByExternalRef(ctx context.Context, provider domain.Provider, externalRef string) (*domain.Payout, error)
	// ListByReference finds payouts of a provider by reference across wallets.
	ListByReference(ctx context.Context, provider domain.Provider, reference string) ([]domain.Payout, error)
	Update(ctx context.Context, tx pgx.Tx, payout *domain.Payout) error
	// SumReserved totals PENDING and PROCESSING payouts of a wallet.
	SumReserved(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (total int64, count int64, err error)
	CountActiveByBankAccount(ctx context.Context, tx pgx.Tx, bankAccountID uuid.UUID) (int64, error)
	List(ctx context.Context, params PayoutListParams) ([]domain.Payout, int64, error)
	// ListStale returns PROCESSING payouts last touched before cutoff, oldest first.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payout, error)
}

// PayoutListParams holds filter + pagination for listing payouts.
type PayoutListParams struct {
	WalletID uuid.UUID
	Filter   domain.PayoutFilter
	Limit    int
	Offset   int
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store bundles the repositories and transactor of one backend.
type Store struct {
	Transactor   DBTransactor
	Wallets      WalletRepository
	Transactions TransactionRepository
	BankAccounts BankAccountRepository
	Payouts      PayoutRepository
	Audit        AuditRepository
}
