package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransaction(walletID uuid.UUID) *domain.Transaction {
	return &domain.Transaction{
		ID:             uuid.New(),
		WalletID:       walletID,
		Type:           domain.TransactionTypeCredit,
		Amount:         10000,
		Currency:       "USD",
		BalanceBefore:  0,
		BalanceAfter:   10000,
		Status:         domain.TransactionStatusCompleted,
		Description:    "order proceeds",
		Reference:      domain.OrderRef("order-1"),
		IdempotencyKey: "pi_123",
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func transactionCols() []string {
	return []string{"id", "wallet_id", "type", "amount", "currency", "balance_before", "balance_after", "status",
		"description", "reference_kind", "reference_id", "note", "idempotency_key", "created_at"}
}

func transactionRow(rows *pgxmock.Rows, t *domain.Transaction) *pgxmock.Rows {
	kind, id := referenceArgs(t.Reference)
	return rows.AddRow(
		t.ID, t.WalletID, t.Type, t.Amount, t.Currency, t.BalanceBefore, t.BalanceAfter,
		t.Status, t.Description, kind, id, t.Note, t.IdempotencyKey, t.CreatedAt,
	)
}

// anyArgs matches n query arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())
	kind, refID := referenceArgs(txn.Reference)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.WalletID, txn.Type, txn.Amount, txn.Currency, txn.BalanceBefore, txn.BalanceAfter,
			txn.Status, txn.Description, kind, refID, txn.Note, txn.IdempotencyKey, txn.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Create_DuplicateKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(anyArgs(14)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "transactions_idempotency_key"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.ErrorIs(t, err, ports.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(transactionRow(pgxmock.NewRows(transactionCols()), txn))

	got, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.OrderRef("order-1"), got.Reference)
	assert.Equal(t, int64(10000), got.BalanceAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(transactionCols()))

	got, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByIdempotencyKey_InTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())
	txn.Reference = domain.Reference{}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE wallet_id = \\$1 AND idempotency_key = \\$2").
		WithArgs(txn.WalletID, "pi_123").
		WillReturnRows(transactionRow(pgxmock.NewRows(transactionCols()), txn))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	got, err := repo.GetByIdempotencyKey(context.Background(), tx, txn.WalletID, "pi_123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Reference.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_Offset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()
	fee := domain.TransactionTypeFee
	t1 := newTestTransaction(walletID)
	t1.Type = fee

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions WHERE wallet_id = \\$1 AND type = \\$2").
		WithArgs(walletID, fee).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE .+ ORDER BY created_at DESC, id DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(walletID, fee, 20, 40).
		WillReturnRows(transactionRow(pgxmock.NewRows(transactionCols()), t1))

	items, total, err := repo.List(context.Background(), ports.TransactionListParams{
		WalletID: walletID,
		Filter:   domain.TransactionFilter{Type: &fee},
		Limit:    20,
		Offset:   40,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	require.Len(t, items, 1)
	assert.Equal(t, fee, items[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_Cursor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()
	cursor := domain.Cursor{CreatedAt: time.Now().UTC().Truncate(time.Microsecond), ID: uuid.New()}
	t1 := newTestTransaction(walletID)
	t2 := newTestTransaction(walletID)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions WHERE wallet_id = \\$1").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE wallet_id = \\$1 AND \\(created_at, id\\) < \\(\\$2, \\$3\\) ORDER BY created_at DESC, id DESC LIMIT \\$4").
		WithArgs(walletID, cursor.CreatedAt, cursor.ID, 10).
		WillReturnRows(transactionRow(transactionRow(pgxmock.NewRows(transactionCols()), t1), t2))

	items, total, err := repo.List(context.Background(), ports.TransactionListParams{
		WalletID: walletID,
		Limit:    10,
		Cursor:   &cursor,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_SumAmounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\)::BIGINT FROM transactions").
		WithArgs(walletID, domain.TransactionStatusCompleted).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(4000)))

	sum, err := repo.SumAmounts(context.Background(), walletID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}
