package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	db *DB
}

// GetOrCreateForUpdate creates the wallet outside the transaction's undo
// log, matching an upsert that other writers can see once it lands.
func (r *WalletRepo) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, ref domain.WalletRef, defaults domain.Wallet) (*domain.Wallet, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}

	r.db.mu.Lock()
	id, ok := r.db.walletByRef[ref.String()]
	if !ok {
		now := time.Now().UTC()
		w := &domain.Wallet{
			ID:              uuid.New(),
			BrandID:         ref.BrandID,
			BranchID:        ref.BranchID,
			Currency:        defaults.Currency,
			MinPayoutAmount: defaults.MinPayoutAmount,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		r.db.wallets[w.ID] = w
		r.db.walletByRef[ref.String()] = w.ID
		id = w.ID
	}
	r.db.mu.Unlock()

	return r.lockAndGet(ctx, t, id)
}

func (r *WalletRepo) GetByRef(_ context.Context, ref domain.WalletRef) (*domain.Wallet, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	id, ok := r.db.walletByRef[ref.String()]
	if !ok {
		return nil, nil
	}
	return r.db.walletCopy(id), nil
}

func (r *WalletRepo) GetByRefForUpdate(ctx context.Context, tx pgx.Tx, ref domain.WalletRef) (*domain.Wallet, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	id, ok := r.db.walletByRef[ref.String()]
	r.db.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.lockAndGet(ctx, t, id)
}

func (r *WalletRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.walletCopy(id), nil
}

func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	_, ok := r.db.wallets[id]
	r.db.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.lockAndGet(ctx, t, id)
}

func (r *WalletRepo) UpdateBalance(_ context.Context, tx pgx.Tx, wallet *domain.Wallet) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.wallets[wallet.ID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", wallet.ID)
	}
	if wallet.Balance < 0 {
		return fmt.Errorf("wallet %s: balance would be negative", wallet.ID)
	}

	prev := *cur
	cur.Balance = wallet.Balance
	cur.TotalEarned = wallet.TotalEarned
	cur.TotalWithdrawn = wallet.TotalWithdrawn
	cur.UpdatedAt = time.Now().UTC()
	t.onRollback(func() { *cur = prev })
	return nil
}

func (r *WalletRepo) lockAndGet(ctx context.Context, t *memTx, id uuid.UUID) (*domain.Wallet, error) {
	if err := r.db.lock(ctx, t, id); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.walletCopy(id), nil
}

// walletCopy must be called with db.mu held.
func (db *DB) walletCopy(id uuid.UUID) *domain.Wallet {
	w, ok := db.wallets[id]
	if !ok {
		return nil
	}
	c := *w
	return &c
}
