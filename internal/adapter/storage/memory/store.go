// Package memory is an in-process implementation of the storage ports.
//
// Writes made in a transaction are applied immediately and undone on
// Rollback. Row locks are per wallet: a payout lock is its wallet's lock.
// Readers outside a locked section may observe uncommitted writes.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var errForeignTx = errors.New("memory: transaction not created by this store")

// DB holds all rows and wallet locks.
type DB struct {
	mu          sync.Mutex
	lockTimeout time.Duration

	wallets     map[uuid.UUID]*domain.Wallet
	walletByRef map[string]uuid.UUID
	locks       map[uuid.UUID]chan struct{}

	transactions map[uuid.UUID]*domain.Transaction
	txByWallet   map[uuid.UUID][]uuid.UUID
	txByKey      map[string]uuid.UUID

	bankAccounts map[uuid.UUID]*domain.BankAccount
	payouts      map[uuid.UUID]*domain.Payout
	audit        []domain.AuditLog
}

// New creates an empty DB. A zero lockTimeout waits on locks until ctx ends.
func New(lockTimeout time.Duration) *DB {
	return &DB{
		lockTimeout:  lockTimeout,
		wallets:      make(map[uuid.UUID]*domain.Wallet),
		walletByRef:  make(map[string]uuid.UUID),
		locks:        make(map[uuid.UUID]chan struct{}),
		transactions: make(map[uuid.UUID]*domain.Transaction),
		txByWallet:   make(map[uuid.UUID][]uuid.UUID),
		txByKey:      make(map[string]uuid.UUID),
		bankAccounts: make(map[uuid.UUID]*domain.BankAccount),
		payouts:      make(map[uuid.UUID]*domain.Payout),
	}
}

// NewStore creates an empty DB and returns its repositories.
func NewStore(lockTimeout time.Duration) ports.Store {
	return New(lockTimeout).Store()
}

// Store returns the repositories backed by db.
func (db *DB) Store() ports.Store {
	return ports.Store{
		Transactor:   db,
		Wallets:      &WalletRepo{db: db},
		Transactions: &TransactionRepo{db: db},
		BankAccounts: &BankAccountRepo{db: db},
		Payouts:      &PayoutRepo{db: db},
		Audit:        &AuditRepo{db: db},
	}
}

// AuditEntries returns a copy of the audit log.
func (db *DB) AuditEntries() []domain.AuditLog {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]domain.AuditLog(nil), db.audit...)
}

// Begin implements ports.DBTransactor.
func (db *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{db: db, held: make(map[uuid.UUID]struct{})}, nil
}

// memTx satisfies pgx.Tx for the methods the repositories use. Calling
// any other pgx.Tx method panics.
type memTx struct {
	pgx.Tx
	db     *DB
	held   map[uuid.UUID]struct{}
	undo   []func()
	closed bool
}

func (t *memTx) Commit(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.undo = nil
	t.release()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.db.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.db.mu.Unlock()
	t.undo = nil
	t.release()
	return nil
}

func (t *memTx) release() {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for id := range t.held {
		<-t.db.locks[id]
	}
	clear(t.held)
}

// onRollback must be called with db.mu held.
func (t *memTx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func asTx(tx pgx.Tx) (*memTx, error) {
	t, ok := tx.(*memTx)
	if !ok || t == nil {
		return nil, errForeignTx
	}
	if t.closed {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}

// lock takes the wallet lock for the rest of tx. It is reentrant per tx.
func (db *DB) lock(ctx context.Context, t *memTx, walletID uuid.UUID) error {
	if _, ok := t.held[walletID]; ok {
		return nil
	}

	db.mu.Lock()
	ch, ok := db.locks[walletID]
	if !ok {
		ch = make(chan struct{}, 1)
		db.locks[walletID] = ch
	}
	db.mu.Unlock()

	var timeout <-chan time.Time
	if db.lockTimeout > 0 {
		timer := time.NewTimer(db.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
		t.held[walletID] = struct{}{}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("lock wallet %s: %w", walletID, ports.ErrConcurrentUpdate)
	}
}
