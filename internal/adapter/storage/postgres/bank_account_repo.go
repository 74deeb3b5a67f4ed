package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const bankAccountColumns = `id, wallet_id, account_name, bank_name, bank_code, account_number_enc,
		account_number_masked, currency, is_default, is_verified, verified_at, created_at, updated_at`

// BankAccountRepo implements ports.BankAccountRepository.
type BankAccountRepo struct {
	pool Pool
}

// NewBankAccountRepo creates a new BankAccountRepo.
func NewBankAccountRepo(pool Pool) *BankAccountRepo {
	return &BankAccountRepo{pool: pool}
}

// Create inserts a bank account within a transaction.
func (r *BankAccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.BankAccount) error {
	query := `INSERT INTO bank_accounts (` + bankAccountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := tx.Exec(ctx, query,
		a.ID, a.WalletID, a.AccountName, a.BankName, a.BankCode, a.AccountNumberEnc,
		a.AccountNumberMasked, a.Currency, a.IsDefault, a.IsVerified, a.VerifiedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bank account: %w", mapError(err))
	}
	return nil
}

// GetByID fetches a bank account by UUID.
func (r *BankAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE id = $1`

	a, err := scanBankAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get bank account by id: %w", err)
	}
	return a, nil
}

// GetByIDTx fetches a bank account inside a transaction.
func (r *BankAccountRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE id = $1`

	a, err := scanBankAccount(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get bank account by id: %w", mapError(err))
	}
	return a, nil
}

// GetDefault fetches the wallet's default account, or nil.
func (r *BankAccountRepo) GetDefault(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (*domain.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE wallet_id = $1 AND is_default`

	a, err := scanBankAccount(tx.QueryRow(ctx, query, walletID))
	if err != nil {
		return nil, fmt.Errorf("get default bank account: %w", mapError(err))
	}
	return a, nil
}

// ListByWallet returns the wallet's accounts, oldest first.
func (r *BankAccountRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE wallet_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list bank accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bank account row: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bank account rows: %w", err)
	}
	return accounts, nil
}

// CountByWallet counts the wallet's accounts.
func (r *BankAccountRepo) CountByWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM bank_accounts WHERE wallet_id = $1`, walletID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bank accounts: %w", mapError(err))
	}
	return n, nil
}

// OldestExcept returns the oldest remaining account other than id, or nil.
func (r *BankAccountRepo) OldestExcept(ctx context.Context, tx pgx.Tx, walletID, id uuid.UUID) (*domain.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts
		WHERE wallet_id = $1 AND id <> $2 ORDER BY created_at, id LIMIT 1`

	a, err := scanBankAccount(tx.QueryRow(ctx, query, walletID, id))
	if err != nil {
		return nil, fmt.Errorf("get oldest bank account: %w", mapError(err))
	}
	return a, nil
}

// Update writes the mutable fields of an account.
func (r *BankAccountRepo) Update(ctx context.Context, tx pgx.Tx, a *domain.BankAccount) error {
	query := `UPDATE bank_accounts SET account_name = $1, bank_name = $2, bank_code = $3,
		account_number_enc = $4, account_number_masked = $5, is_default = $6, is_verified = $7,
		verified_at = $8, updated_at = $9
		WHERE id = $10`

	tag, err := tx.Exec(ctx, query,
		a.AccountName, a.BankName, a.BankCode, a.AccountNumberEnc, a.AccountNumberMasked,
		a.IsDefault, a.IsVerified, a.VerifiedAt, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update bank account: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bank account not found: %s", a.ID)
	}
	return nil
}

// ClearDefault unsets the default flag on every account of the wallet.
func (r *BankAccountRepo) ClearDefault(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE bank_accounts SET is_default = FALSE, updated_at = NOW()
		WHERE wallet_id = $1 AND is_default`, walletID)
	if err != nil {
		return fmt.Errorf("clear default bank account: %w", mapError(err))
	}
	return nil
}

// Delete removes an account.
func (r *BankAccountRepo) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM bank_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bank account: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bank account not found: %s", id)
	}
	return nil
}

// scanBankAccount returns (nil, nil) when the row does not exist.
func scanBankAccount(row scanner) (*domain.BankAccount, error) {
	a := &domain.BankAccount{}
	err := row.Scan(
		&a.ID, &a.WalletID, &a.AccountName, &a.BankName, &a.BankCode, &a.AccountNumberEnc,
		&a.AccountNumberMasked, &a.Currency, &a.IsDefault, &a.IsVerified, &a.VerifiedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}
