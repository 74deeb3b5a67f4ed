package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	db *DB
}

func txKey(walletID uuid.UUID, key string) string {
	return walletID.String() + ":" + key
}

func (r *TransactionRepo) Create(_ context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.wallets[txn.WalletID]; !ok {
		return fmt.Errorf("insert transaction: wallet not found: %s", txn.WalletID)
	}
	if txn.BalanceAfter != txn.BalanceBefore+txn.Amount {
		return fmt.Errorf("insert transaction: balance_after does not equal balance_before + amount")
	}
	if _, ok := r.db.transactions[txn.ID]; ok {
		return fmt.Errorf("insert transaction: %w", ports.ErrDuplicateKey)
	}

	k := txKey(txn.WalletID, txn.IdempotencyKey)
	if txn.IdempotencyKey != "" {
		if _, ok := r.db.txByKey[k]; ok {
			return fmt.Errorf("insert transaction: %w", ports.ErrDuplicateKey)
		}
		r.db.txByKey[k] = txn.ID
	}

	c := *txn
	r.db.transactions[c.ID] = &c
	r.db.txByWallet[c.WalletID] = append(r.db.txByWallet[c.WalletID], c.ID)

	t.onRollback(func() {
		delete(r.db.transactions, c.ID)
		if c.IdempotencyKey != "" {
			delete(r.db.txByKey, k)
		}
		ids := r.db.txByWallet[c.WalletID]
		r.db.txByWallet[c.WalletID] = slices.DeleteFunc(ids, func(id uuid.UUID) bool { return id == c.ID })
	})
	return nil
}

func (r *TransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	txn, ok := r.db.transactions[id]
	if !ok {
		return nil, nil
	}
	c := *txn
	return &c, nil
}

func (r *TransactionRepo) GetByIdempotencyKey(_ context.Context, tx pgx.Tx, walletID uuid.UUID, key string) (*domain.Transaction, error) {
	if tx != nil {
		if _, err := asTx(tx); err != nil {
			return nil, err
		}
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	id, ok := r.db.txByKey[txKey(walletID, key)]
	if !ok {
		return nil, nil
	}
	c := *r.db.transactions[id]
	return &c, nil
}

func (r *TransactionRepo) List(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.db.mu.Lock()
	var matched []domain.Transaction
	for _, id := range r.db.txByWallet[params.WalletID] {
		txn := r.db.transactions[id]
		if !matchesFilter(txn, params.Filter) {
			continue
		}
		matched = append(matched, *txn)
	}
	r.db.mu.Unlock()

	slices.SortFunc(matched, func(a, b domain.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})

	total := int64(len(matched))
	page := matched
	if params.Cursor != nil {
		i := slices.IndexFunc(page, func(txn domain.Transaction) bool {
			return params.Cursor.Before(txn.CreatedAt, txn.ID)
		})
		if i < 0 {
			page = nil
		} else {
			page = page[i:]
		}
	} else {
		page = page[min(params.Offset, len(page)):]
	}
	if params.Limit > 0 && len(page) > params.Limit {
		page = page[:params.Limit]
	}
	return page, total, nil
}

func (r *TransactionRepo) SumAmounts(_ context.Context, walletID uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var sum int64
	for _, id := range r.db.txByWallet[walletID] {
		if txn := r.db.transactions[id]; txn.Status == domain.TransactionStatusCompleted {
			sum += txn.Amount
		}
	}
	return sum, nil
}

func matchesFilter(txn *domain.Transaction, f domain.TransactionFilter) bool {
	if f.Type != nil && txn.Type != *f.Type {
		return false
	}
	if f.From != nil && txn.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && txn.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
