package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, brand_id, branch_id, currency, balance, total_earned, total_withdrawn,
		min_payout_amount, external_account_id, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetOrCreateForUpdate inserts the wallet if it does not exist and locks it.
// Concurrent creators of the same ref block on the unique constraint, so
// exactly one row is ever inserted.
func (r *WalletRepo) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, ref domain.WalletRef, defaults domain.Wallet) (*domain.Wallet, error) {
	query := `INSERT INTO wallets (id, brand_id, branch_id, currency, balance, total_earned, total_withdrawn,
		min_payout_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, 0, $5, NOW(), NOW())
		ON CONFLICT (brand_id, branch_id) DO NOTHING`

	_, err := tx.Exec(ctx, query, uuid.New(), ref.BrandID, ref.BranchID, defaults.Currency, defaults.MinPayoutAmount)
	if err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", mapError(err))
	}

	w, err := r.GetByRefForUpdate(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("wallet for %s missing after insert", ref)
	}
	return w, nil
}

// GetByRef fetches a wallet by its owner (non-locking read).
func (r *WalletRepo) GetByRef(ctx context.Context, ref domain.WalletRef) (*domain.Wallet, error) {
	cond, args := refCondition(ref)
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE ` + cond

	w, err := scanWallet(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("get wallet by ref: %w", err)
	}
	return w, nil
}

// GetByRefForUpdate fetches a wallet by its owner with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByRefForUpdate(ctx context.Context, tx pgx.Tx, ref domain.WalletRef) (*domain.Wallet, error) {
	cond, args := refCondition(ref)
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE ` + cond + ` FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by ref: %w", mapError(err))
	}
	return w, nil
}

// GetByID fetches a wallet by its UUID (without locking).
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate fetches a wallet by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by id: %w", mapError(err))
	}
	return w, nil
}

// UpdateBalance writes the balance and running totals within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `UPDATE wallets SET balance = $1, total_earned = $2, total_withdrawn = $3, updated_at = NOW()
		WHERE id = $4`

	tag, err := tx.Exec(ctx, query, w.Balance, w.TotalEarned, w.TotalWithdrawn, w.ID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", w.ID)
	}
	return nil
}

func refCondition(ref domain.WalletRef) (string, []any) {
	if ref.BranchID == nil {
		return "brand_id = $1 AND branch_id IS NULL", []any{ref.BrandID}
	}
	return "brand_id = $1 AND branch_id = $2", []any{ref.BrandID, *ref.BranchID}
}

// scanWallet returns (nil, nil) when the row does not exist.
func scanWallet(row scanner) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.BrandID, &w.BranchID, &w.Currency, &w.Balance, &w.TotalEarned,
		&w.TotalWithdrawn, &w.MinPayoutAmount, &w.ExternalAccountID, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
