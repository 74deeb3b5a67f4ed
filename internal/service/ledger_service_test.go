package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/storage/memory"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports/mocks"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// ==================== Credit / Debit ====================

func TestLedgerService_Credit_CreatesWalletAndPosts(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ref := newRef()

	txn := env.credit(t, ref, 50000)

	assert.Equal(t, domain.TransactionTypeCredit, txn.Type)
	assert.Equal(t, int64(50000), txn.Amount)
	assert.Equal(t, int64(0), txn.BalanceBefore)
	assert.Equal(t, int64(50000), txn.BalanceAfter)
	assert.Equal(t, "IDR", txn.Currency)

	summary, err := env.ledger.Summary(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), summary.Balance)
	assert.Equal(t, int64(50000), summary.TotalEarned)
	assert.Equal(t, int64(10000), summary.MinPayoutAmount)
}

func TestLedgerService_Credit_Idempotent(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ref := newRef()
	req := ports.PostingRequest{
		Wallet:         ref,
		Amount:         25000,
		Reference:      domain.OrderRef("ORD-1"),
		IdempotencyKey: "order-1",
	}

	first, err := env.ledger.Credit(context.Background(), req)
	require.NoError(t, err)

	second, err := env.ledger.Credit(context.Background(), req)
	assert.True(t, apperror.Is(err, apperror.CodeDuplicateOperation))
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, int64(25000), env.balance(t, ref).Balance)
}

func TestLedgerService_Credit_Validation(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ref := newRef()

	tests := []struct {
		name string
		req  ports.PostingRequest
		code string
	}{
		{"zero amount", ports.PostingRequest{Wallet: ref, Amount: 0, IdempotencyKey: "k"}, apperror.CodeInvalidAmount},
		{"negative amount", ports.PostingRequest{Wallet: ref, Amount: -5, IdempotencyKey: "k"}, apperror.CodeInvalidAmount},
		{"payout type", ports.PostingRequest{Wallet: ref, Amount: 5, Type: domain.TransactionTypePayout, IdempotencyKey: "k"}, apperror.CodeInvalidEntryType},
		{"fee type", ports.PostingRequest{Wallet: ref, Amount: 5, Type: domain.TransactionTypeFee, IdempotencyKey: "k"}, apperror.CodeInvalidEntryType},
		{"missing wallet", ports.PostingRequest{Amount: 5, IdempotencyKey: "k"}, apperror.CodeValidation},
		{"missing key", ports.PostingRequest{Wallet: ref, Amount: 5}, apperror.CodeValidation},
		{"bad reference", ports.PostingRequest{Wallet: ref, Amount: 5, IdempotencyKey: "k", Reference: domain.Reference{Kind: "INVOICE", ID: "1"}}, apperror.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ledger.Credit(context.Background(), tt.req)
			assert.True(t, apperror.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestLedgerService_Debit_InsufficientBalance(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ref := newRef()
	env.credit(t, ref, 1000)

	_, err := env.ledger.Debit(context.Background(), ports.PostingRequest{
		Wallet:         ref,
		Amount:         1001,
		IdempotencyKey: "debit-1",
	})
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientBalance))
	assert.Equal(t, int64(1000), env.balance(t, ref).Balance)
}

func TestLedgerService_Debit_ToZero(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ref := newRef()
	env.credit(t, ref, 1000)

	txn, err := env.ledger.Debit(context.Background(), ports.PostingRequest{
		Wallet:         ref,
		Type:           domain.TransactionTypeFee,
		Amount:         1000,
		IdempotencyKey: "fee-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), txn.Amount)
	assert.Equal(t, int64(0), txn.BalanceAfter)
	assert.Equal(t, txn.BalanceBefore+txn.Amount, txn.BalanceAfter)
}

func TestLedgerService_Debit_CurrencyMismatch(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ref := newRef()
	env.credit(t, ref, 1000)

	_, err := env.ledger.Debit(context.Background(), ports.PostingRequest{
		Wallet:         ref,
		Amount:         10,
		Currency:       "usd",
		IdempotencyKey: "debit-usd",
	})
	assert.True(t, apperror.Is(err, apperror.CodeCurrencyMismatch))
}

func TestLedgerService_ConcurrentDebits(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ref := newRef()
	env.credit(t, ref, 1000)

	const workers = 25
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.Debit(context.Background(), ports.PostingRequest{
				Wallet:         ref,
				Amount:         300,
				IdempotencyKey: uuid.NewString(),
			})
			if err == nil {
				succeeded.Add(1)
				return
			}
			assert.True(t, apperror.Is(err, apperror.CodeInsufficientBalance), "got %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), succeeded.Load())
	assert.Equal(t, int64(100), env.balance(t, ref).Balance)

	ok, err := env.ledger.VerifyBalance(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedgerService_ConcurrentIdempotentCredits(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ref := newRef()
	env.credit(t, ref, 1)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txn, err := env.ledger.Credit(context.Background(), ports.PostingRequest{
				Wallet:         ref,
				Amount:         500,
				IdempotencyKey: "same-order",
			})
			if err != nil {
				assert.True(t, apperror.Is(err, apperror.CodeDuplicateOperation))
			}
			if assert.NotNil(t, txn) {
				ids[i] = txn.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int64(501), env.balance(t, ref).Balance)
}

// ==================== Redis fast path ====================

func TestLedgerService_Credit_CacheHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := memory.NewStore(0)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	svc := NewLedgerService(store, cache, testLedgerConfig, newTestLogger())
	ref := newRef()

	// The wallet does not exist yet, so the first posting skips the lookup.
	var stored []byte
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), defaultIdempotencyTTL).
		DoAndReturn(func(_ context.Context, _ string, v []byte, _ time.Duration) error {
			stored = v
			return nil
		})

	first, err := svc.Credit(context.Background(), ports.PostingRequest{Wallet: ref, Amount: 700, IdempotencyKey: "k1"})
	require.NoError(t, err)

	var cached domain.Transaction
	require.NoError(t, json.Unmarshal(stored, &cached))
	assert.Equal(t, first.ID, cached.ID)

	cache.EXPECT().Get(gomock.Any(), domain.BuildIdempotencyKey(first.WalletID, "k1")).Return(stored, nil)

	second, err := svc.Credit(context.Background(), ports.PostingRequest{Wallet: ref, Amount: 700, IdempotencyKey: "k1"})
	assert.True(t, apperror.Is(err, apperror.CodeDuplicateOperation))
	assert.Equal(t, first.ID, second.ID)
}

func TestLedgerService_Credit_CacheErrorFallsThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := memory.NewStore(0)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	svc := NewLedgerService(store, cache, testLedgerConfig, newTestLogger())
	ref := newRef()

	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down")).Times(2)
	_, err := svc.Credit(context.Background(), ports.PostingRequest{Wallet: ref, Amount: 700, IdempotencyKey: "k1"})
	require.NoError(t, err)

	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down")).Times(2)
	_, err = svc.Credit(context.Background(), ports.PostingRequest{Wallet: ref, Amount: 700, IdempotencyKey: "k1"})
	assert.True(t, apperror.Is(err, apperror.CodeDuplicateOperation))

	_, err = svc.Credit(context.Background(), ports.PostingRequest{Wallet: ref, Amount: 300, IdempotencyKey: "k2"})
	require.NoError(t, err)

	b, err := svc.GetBalance(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), b.Balance)
}

// ==================== Lock contention ====================

func TestLedgerService_RetriesOnLockContention(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	store := ports.Store{
		Transactor:   transactor,
		Wallets:      walletRepo,
		Transactions: txRepo,
		Payouts:      mocks.NewMockPayoutRepository(ctrl),
	}
	svc := NewLedgerService(store, nil, testLedgerConfig, newTestLogger())

	ctx := context.Background()
	tx := &mockTx{}
	ref := newRef()
	walletID := uuid.New()

	transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)
	gomock.InOrder(
		walletRepo.EXPECT().GetOrCreateForUpdate(ctx, tx, ref, gomock.Any()).
			Return(nil, ports.ErrConcurrentUpdate),
		walletRepo.EXPECT().GetOrCreateForUpdate(ctx, tx, ref, gomock.Any()).
			Return(&domain.Wallet{ID: walletID, BrandID: ref.BrandID, Currency: "IDR", Balance: 100}, nil),
	)
	txRepo.EXPECT().GetByIdempotencyKey(ctx, tx, walletID, "k").Return(nil, nil)
	walletRepo.EXPECT().UpdateBalance(ctx, tx, gomock.Any()).Return(nil)
	txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	txn, err := svc.Credit(ctx, ports.PostingRequest{Wallet: ref, Amount: 50, IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, int64(150), txn.BalanceAfter)
}

func TestLedgerService_LockContentionExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	store := ports.Store{
		Transactor:   transactor,
		Wallets:      walletRepo,
		Transactions: mocks.NewMockTransactionRepository(ctrl),
		Payouts:      mocks.NewMockPayoutRepository(ctrl),
	}
	svc := NewLedgerService(store, nil, testLedgerConfig, newTestLogger())

	ctx := context.Background()
	tx := &mockTx{}
	transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(testLedgerConfig.LockRetries + 1)
	walletRepo.EXPECT().GetOrCreateForUpdate(ctx, tx, gomock.Any(), gomock.Any()).
		Return(nil, ports.ErrConcurrentUpdate).Times(testLedgerConfig.LockRetries + 1)

	_, err := svc.Credit(ctx, ports.PostingRequest{Wallet: newRef(), Amount: 50, IdempotencyKey: "k"})
	assert.True(t, apperror.Is(err, apperror.CodeTransient))
}

func TestLedgerService_DuplicateKeyRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	store := ports.Store{Transactor: transactor, Wallets: walletRepo, Transactions: txRepo, Payouts: mocks.NewMockPayoutRepository(ctrl)}
	svc := NewLedgerService(store, nil, testLedgerConfig, newTestLogger())

	ctx := context.Background()
	tx := &mockTx{}
	ref := newRef()
	wallet := &domain.Wallet{ID: uuid.New(), BrandID: ref.BrandID, Currency: "IDR"}
	winner := &domain.Transaction{ID: uuid.New(), WalletID: wallet.ID, IdempotencyKey: "k"}

	transactor.EXPECT().Begin(ctx).Return(tx, nil)
	walletRepo.EXPECT().GetOrCreateForUpdate(ctx, tx, ref, gomock.Any()).Return(wallet, nil)
	txRepo.EXPECT().GetByIdempotencyKey(ctx, tx, wallet.ID, "k").Return(nil, nil)
	walletRepo.EXPECT().UpdateBalance(ctx, tx, gomock.Any()).Return(nil)
	txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(ports.ErrDuplicateKey)
	walletRepo.EXPECT().GetByRef(ctx, ref).Return(wallet, nil)
	txRepo.EXPECT().GetByIdempotencyKey(ctx, nil, wallet.ID, "k").Return(winner, nil)

	txn, err := svc.Credit(ctx, ports.PostingRequest{Wallet: ref, Amount: 50, IdempotencyKey: "k"})
	assert.True(t, apperror.Is(err, apperror.CodeDuplicateOperation))
	assert.Equal(t, winner.ID, txn.ID)
}

// ==================== Reads ====================

func TestLedgerService_Summary_UnknownWallet(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)

	summary, err := env.ledger.Summary(context.Background(), newRef())
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, summary.WalletID)
	assert.Equal(t, "IDR", summary.Currency)
	assert.Zero(t, summary.Balance)
	assert.Zero(t, summary.AvailableBalance)
}

func TestLedgerService_History_Paging(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ref := newRef()
	for i := 0; i < 5; i++ {
		env.credit(t, ref, int64(100*(i+1)))
	}

	ctx := context.Background()
	page1, err := env.ledger.History(ctx, ref, domain.TransactionFilter{}, domain.PageRequest{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page1.Items, 2)
	assert.Equal(t, int64(5), page1.Total)
	require.NotEmpty(t, page1.NextCursor)

	page2, err := env.ledger.History(ctx, ref, domain.TransactionFilter{}, domain.PageRequest{Limit: 2, Cursor: page1.NextCursor, Offset: 99})
	require.NoError(t, err)
	assert.Len(t, page2.Items, 2)
	assert.NotEqual(t, page1.Items[1].ID, page2.Items[0].ID)

	var seen int
	for txn, err := range env.ledger.IterateTransactions(ctx, ref, domain.TransactionFilter{}, 2) {
		require.NoError(t, err)
		assert.Equal(t, txn.BalanceBefore+txn.Amount, txn.BalanceAfter)
		seen++
	}
	assert.Equal(t, 5, seen)
}

func TestLedgerService_History_InvalidCursor(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)

	_, err := env.ledger.History(context.Background(), newRef(), domain.TransactionFilter{}, domain.PageRequest{Cursor: "!!"})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestLedgerService_History_UnknownWallet(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)

	page, err := env.ledger.History(context.Background(), newRef(), domain.TransactionFilter{}, domain.PageRequest{})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestLedgerService_VerifyBalance_Mismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	store := ports.Store{Transactor: transactor, Wallets: walletRepo, Transactions: txRepo, Payouts: mocks.NewMockPayoutRepository(ctrl)}
	svc := NewLedgerService(store, nil, testLedgerConfig, newTestLogger())

	ctx := context.Background()
	tx := &mockTx{}
	ref := newRef()
	walletID := uuid.New()

	transactor.EXPECT().Begin(ctx).Return(tx, nil)
	walletRepo.EXPECT().GetByRefForUpdate(ctx, tx, ref).Return(&domain.Wallet{ID: walletID, Balance: 900}, nil)
	txRepo.EXPECT().SumAmounts(ctx, walletID).Return(int64(1000), nil)

	ok, err := svc.VerifyBalance(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)
}
