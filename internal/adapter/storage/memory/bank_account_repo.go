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

// BankAccountRepo implements ports.BankAccountRepository.
type BankAccountRepo struct {
	db *DB
}

func (r *BankAccountRepo) Create(_ context.Context, tx pgx.Tx, a *domain.BankAccount) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.bankAccounts[a.ID]; ok {
		return fmt.Errorf("insert bank account: %w", ports.ErrDuplicateKey)
	}
	if a.IsDefault && r.db.defaultAccount(a.WalletID) != nil {
		return fmt.Errorf("insert bank account: second default: %w", ports.ErrDuplicateKey)
	}

	c := *a
	r.db.bankAccounts[c.ID] = &c
	t.onRollback(func() { delete(r.db.bankAccounts, c.ID) })
	return nil
}

func (r *BankAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.accountCopy(id), nil
}

func (r *BankAccountRepo) GetByIDTx(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.BankAccount, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.accountCopy(id), nil
}

func (r *BankAccountRepo) GetDefault(_ context.Context, tx pgx.Tx, walletID uuid.UUID) (*domain.BankAccount, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if a := r.db.defaultAccount(walletID); a != nil {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (r *BankAccountRepo) ListByWallet(_ context.Context, walletID uuid.UUID) ([]domain.BankAccount, error) {
	r.db.mu.Lock()
	accounts := r.db.accountsOf(walletID)
	r.db.mu.Unlock()
	return accounts, nil
}

func (r *BankAccountRepo) CountByWallet(_ context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, error) {
	if _, err := asTx(tx); err != nil {
		return 0, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return int64(len(r.db.accountsOf(walletID))), nil
}

func (r *BankAccountRepo) OldestExcept(_ context.Context, tx pgx.Tx, walletID, id uuid.UUID) (*domain.BankAccount, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, a := range r.db.accountsOf(walletID) {
		if a.ID != id {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *BankAccountRepo) Update(_ context.Context, tx pgx.Tx, a *domain.BankAccount) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.bankAccounts[a.ID]
	if !ok {
		return fmt.Errorf("bank account not found: %s", a.ID)
	}
	if a.IsDefault && !cur.IsDefault {
		if d := r.db.defaultAccount(cur.WalletID); d != nil {
			return fmt.Errorf("update bank account: second default: %w", ports.ErrDuplicateKey)
		}
	}

	prev := *cur
	cur.AccountName = a.AccountName
	cur.BankName = a.BankName
	cur.BankCode = a.BankCode
	cur.AccountNumberEnc = a.AccountNumberEnc
	cur.AccountNumberMasked = a.AccountNumberMasked
	cur.IsDefault = a.IsDefault
	cur.IsVerified = a.IsVerified
	cur.VerifiedAt = a.VerifiedAt
	cur.UpdatedAt = a.UpdatedAt
	t.onRollback(func() { *cur = prev })
	return nil
}

func (r *BankAccountRepo) ClearDefault(_ context.Context, tx pgx.Tx, walletID uuid.UUID) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if d := r.db.defaultAccount(walletID); d != nil {
		d.IsDefault = false
		t.onRollback(func() { d.IsDefault = true })
	}
	return nil
}

func (r *BankAccountRepo) Delete(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.bankAccounts[id]
	if !ok {
		return fmt.Errorf("bank account not found: %s", id)
	}
	delete(r.db.bankAccounts, id)
	t.onRollback(func() { r.db.bankAccounts[id] = a })
	return nil
}

// defaultAccount must be called with db.mu held.
func (db *DB) defaultAccount(walletID uuid.UUID) *domain.BankAccount {
	for _, a := range db.bankAccounts {
		if a.WalletID == walletID && a.IsDefault {
			return a
		}
	}
	return nil
}

// accountsOf must be called with db.mu held. Oldest first.
func (db *DB) accountsOf(walletID uuid.UUID) []domain.BankAccount {
	var out []domain.BankAccount
	for _, a := range db.bankAccounts {
		if a.WalletID == walletID {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b domain.BankAccount) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// accountCopy must be called with db.mu held.
func (db *DB) accountCopy(id uuid.UUID) *domain.BankAccount {
	a, ok := db.bankAccounts[id]
	if !ok {
		return nil
	}
	c := *a
	return &c
}
