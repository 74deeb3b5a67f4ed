package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const payoutColumns = `id, wallet_id, bank_account_id, amount, currency, status, method, provider, reference,
		external_payout_id, failure_reason, attempts, requested_at, processed_at, completed_at, failed_at,
		cancelled_at, updated_at`

// PayoutRepo implements ports.PayoutRepository.
type PayoutRepo struct {
	pool Pool
}

// NewPayoutRepo creates a new PayoutRepo.
func NewPayoutRepo(pool Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

// Create inserts a payout within a transaction.
func (r *PayoutRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	query := `INSERT INTO payouts (` + payoutColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.WalletID, p.BankAccountID, p.Amount, p.Currency, p.Status, p.Method, p.Provider, p.Reference,
		p.ExternalPayoutID, p.FailureReason, p.Attempts, p.RequestedAt, p.ProcessedAt, p.CompletedAt, p.FailedAt,
		p.CancelledAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payout: %w", mapError(err))
	}
	return nil
}

// GetByID fetches a payout by UUID.
func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`

	p, err := scanPayout(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get payout by id: %w", err)
	}
	return p, nil
}

// GetByIDForUpdate fetches a payout with pessimistic locking.
// This MUST be called within a transaction.
func (r *PayoutRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1 FOR UPDATE`

	p, err := scanPayout(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get payout for update: %w", mapError(err))
	}
	return p, nil
}

// GetByReference fetches a payout by wallet and reference.
func (r *PayoutRepo) GetByReference(ctx context.Context, walletID uuid.UUID, reference string) (*domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE wallet_id = $1 AND reference = $2`

	p, err := scanPayout(r.pool.QueryRow(ctx, query, walletID, reference))
	if err != nil {
		return nil, fmt.Errorf("get payout by reference: %w", err)
	}
	return p, nil
}

// GetByExternalRef fetches a payout by the provider's transfer id.
func (r *PayoutRepo) GetByExternalRef(ctx context.Context, provider domain.Provider, externalRef string) (*domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE provider = $1 AND external_payout_id = $2`

	p, err := scanPayout(r.pool.QueryRow(ctx, query, provider, externalRef))
	if err != nil {
		return nil, fmt.Errorf("get payout by external ref: %w", err)
	}
	return p, nil
}

// ListByReference finds payouts of a provider by reference across wallets.
func (r *PayoutRepo) ListByReference(ctx context.Context, provider domain.Provider, reference string) ([]domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE provider = $1 AND reference = $2 LIMIT 2`

	return r.queryPayouts(ctx, query, provider, reference)
}

// Update writes the mutable fields of a payout within a transaction.
func (r *PayoutRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	query := `UPDATE payouts SET status = $1, external_payout_id = $2, failure_reason = $3, attempts = $4,
		processed_at = $5, completed_at = $6, failed_at = $7, cancelled_at = $8, updated_at = $9
		WHERE id = $10`

	tag, err := tx.Exec(ctx, query,
		p.Status, p.ExternalPayoutID, p.FailureReason, p.Attempts,
		p.ProcessedAt, p.CompletedAt, p.FailedAt, p.CancelledAt, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payout: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payout not found: %s", p.ID)
	}
	return nil
}

// SumReserved totals PENDING and PROCESSING payouts of a wallet.
func (r *PayoutRepo) SumReserved(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::BIGINT, COUNT(*) FROM payouts
		WHERE wallet_id = $1 AND status IN ($2, $3)`

	var row pgx.Row
	if tx != nil {
		row = tx.QueryRow(ctx, query, walletID, domain.PayoutStatusPending, domain.PayoutStatusProcessing)
	} else {
		row = r.pool.QueryRow(ctx, query, walletID, domain.PayoutStatusPending, domain.PayoutStatusProcessing)
	}

	var total, count int64
	if err := row.Scan(&total, &count); err != nil {
		return 0, 0, fmt.Errorf("sum reserved payouts: %w", mapError(err))
	}
	return total, count, nil
}

// CountActiveByBankAccount counts PENDING and PROCESSING payouts to an account.
func (r *PayoutRepo) CountActiveByBankAccount(ctx context.Context, tx pgx.Tx, bankAccountID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM payouts WHERE bank_account_id = $1 AND status IN ($2, $3)`

	var n int64
	err := tx.QueryRow(ctx, query, bankAccountID, domain.PayoutStatusPending, domain.PayoutStatusProcessing).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active payouts: %w", mapError(err))
	}
	return n, nil
}

// List fetches a wallet's payouts newest first.
func (r *PayoutRepo) List(ctx context.Context, params ports.PayoutListParams) ([]domain.Payout, int64, error) {
	conditions := []string{"wallet_id = $1"}
	args := []any{params.WalletID}
	argIdx := 2

	if params.Filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Filter.Status)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM payouts "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payouts: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM payouts %s ORDER BY requested_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		payoutColumns, where, argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	payouts, err := r.queryPayouts(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}

// ListStale returns PROCESSING payouts last touched before cutoff.
func (r *PayoutRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts
		WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`

	return r.queryPayouts(ctx, query, domain.PayoutStatusProcessing, cutoff, limit)
}

func (r *PayoutRepo) queryPayouts(ctx context.Context, query string, args ...any) ([]domain.Payout, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout row: %w", err)
		}
		payouts = append(payouts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout rows: %w", err)
	}
	return payouts, nil
}

// scanPayout returns (nil, nil) when the row does not exist.
func scanPayout(row scanner) (*domain.Payout, error) {
	p := &domain.Payout{}
	err := row.Scan(
		&p.ID, &p.WalletID, &p.BankAccountID, &p.Amount, &p.Currency, &p.Status, &p.Method, &p.Provider, &p.Reference,
		&p.ExternalPayoutID, &p.FailureReason, &p.Attempts, &p.RequestedAt, &p.ProcessedAt, &p.CompletedAt, &p.FailedAt,
		&p.CancelledAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
