package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, wallet_id, type, amount, currency, balance_before, balance_after, status,
		description, reference_kind, reference_id, note, idempotency_key, created_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create appends a ledger entry within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	kind, refID := referenceArgs(t.Reference)
	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, t.Type, t.Amount, t.Currency, t.BalanceBefore, t.BalanceAfter,
		t.Status, t.Description, kind, refID, t.Note, t.IdempotencyKey, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", mapError(err))
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// GetByIdempotencyKey fetches the entry a key produced. A nil tx reads
// outside any transaction.
func (r *TransactionRepo) GetByIdempotencyKey(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, key string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE wallet_id = $1 AND idempotency_key = $2`

	var row pgx.Row
	if tx != nil {
		row = tx.QueryRow(ctx, query, walletID, key)
	} else {
		row = r.pool.QueryRow(ctx, query, walletID, key)
	}
	t, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("get transaction by idempotency key: %w", err)
	}
	return t, nil
}

// List fetches a wallet's entries newest first. The total ignores the cursor.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("wallet_id = $%d", argIdx))
	args = append(args, params.WalletID)
	argIdx++

	if params.Filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *params.Filter.Type)
		argIdx++
	}
	if params.Filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.Filter.From)
		argIdx++
	}
	if params.Filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.Filter.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	var dataQuery string
	if params.Cursor != nil {
		where += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, params.Cursor.CreatedAt, params.Cursor.ID)
		argIdx += 2
		dataQuery = fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
			transactionColumns, where, argIdx)
		args = append(args, params.Limit)
	} else {
		dataQuery = fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			transactionColumns, where, argIdx, argIdx+1)
		args = append(args, params.Limit, params.Offset)
	}

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// SumAmounts returns the signed total of a wallet's completed entries.
func (r *TransactionRepo) SumAmounts(ctx context.Context, walletID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM transactions WHERE wallet_id = $1 AND status = $2`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, walletID, domain.TransactionStatusCompleted).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	return sum, nil
}

func referenceArgs(ref domain.Reference) (*string, *string) {
	if ref.IsZero() {
		return nil, nil
	}
	kind := string(ref.Kind)
	id := ref.ID
	return &kind, &id
}

// scanTransaction returns (nil, nil) when the row does not exist.
func scanTransaction(row scanner) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var kind, refID *string
	err := row.Scan(
		&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.Currency, &t.BalanceBefore, &t.BalanceAfter,
		&t.Status, &t.Description, &kind, &refID, &t.Note, &t.IdempotencyKey, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if kind != nil && refID != nil {
		t.Reference = domain.Reference{Kind: domain.ReferenceKind(*kind), ID: *refID}
	}
	return t, nil
}
