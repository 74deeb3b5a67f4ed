package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PayoutRepo implements ports.PayoutRepository.
type PayoutRepo struct {
	db *DB
}

func (r *PayoutRepo) Create(_ context.Context, tx pgx.Tx, p *domain.Payout) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.payouts[p.ID]; ok {
		return fmt.Errorf("insert payout: %w", ports.ErrDuplicateKey)
	}
	for _, other := range r.db.payouts {
		if other.WalletID == p.WalletID && other.Reference == p.Reference {
			return fmt.Errorf("insert payout: reference %q: %w", p.Reference, ports.ErrDuplicateKey)
		}
	}

	c := *p
	r.db.payouts[c.ID] = &c
	t.onRollback(func() { delete(r.db.payouts, c.ID) })
	return nil
}

func (r *PayoutRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Payout, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.payoutCopy(id), nil
}

// GetByIDForUpdate locks the payout's wallet.
func (r *PayoutRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payout, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}

	r.db.mu.Lock()
	p, ok := r.db.payouts[id]
	var walletID uuid.UUID
	if ok {
		walletID = p.WalletID
	}
	r.db.mu.Unlock()
	if !ok {
		return nil, nil
	}

	if err := r.db.lock(ctx, t, walletID); err != nil {
		return nil, err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.payoutCopy(id), nil
}

func (r *PayoutRepo) GetByReference(_ context.Context, walletID uuid.UUID, reference string) (*domain.Payout, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.payouts {
		if p.WalletID == walletID && p.Reference == reference {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (r *PayoutRepo) GetByExternalRef(_ context.Context, provider domain.Provider, externalRef string) (*domain.Payout, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.payouts {
		if p.Provider == provider && p.ExternalPayoutID != nil && *p.ExternalPayoutID == externalRef {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (r *PayoutRepo) ListByReference(_ context.Context, provider domain.Provider, reference string) ([]domain.Payout, error) {
	return r.collect(func(p *domain.Payout) bool {
		return p.Provider == provider && p.Reference == reference
	}, byRequestedDesc, 2), nil
}

func (r *PayoutRepo) Update(_ context.Context, tx pgx.Tx, p *domain.Payout) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.payouts[p.ID]
	if !ok {
		return fmt.Errorf("payout not found: %s", p.ID)
	}

	prev := *cur
	cur.Status = p.Status
	cur.ExternalPayoutID = p.ExternalPayoutID
	cur.FailureReason = p.FailureReason
	cur.Attempts = p.Attempts
	cur.ProcessedAt = p.ProcessedAt
	cur.CompletedAt = p.CompletedAt
	cur.FailedAt = p.FailedAt
	cur.CancelledAt = p.CancelledAt
	cur.UpdatedAt = p.UpdatedAt
	t.onRollback(func() { *cur = prev })
	return nil
}

func (r *PayoutRepo) SumReserved(_ context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, int64, error) {
	if tx != nil {
		if _, err := asTx(tx); err != nil {
			return 0, 0, err
		}
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var total, count int64
	for _, p := range r.db.payouts {
		if p.WalletID == walletID && p.Status.Reserving() {
			total += p.Amount
			count++
		}
	}
	return total, count, nil
}

func (r *PayoutRepo) CountActiveByBankAccount(_ context.Context, tx pgx.Tx, bankAccountID uuid.UUID) (int64, error) {
	if _, err := asTx(tx); err != nil {
		return 0, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, p := range r.db.payouts {
		if p.BankAccountID == bankAccountID && p.Status.Reserving() {
			n++
		}
	}
	return n, nil
}

func (r *PayoutRepo) List(_ context.Context, params ports.PayoutListParams) ([]domain.Payout, int64, error) {
	all := r.collect(func(p *domain.Payout) bool {
		if p.WalletID != params.WalletID {
			return false
		}
		return params.Filter.Status == nil || p.Status == *params.Filter.Status
	}, byRequestedDesc, 0)

	total := int64(len(all))
	page := all[min(params.Offset, len(all)):]
	if params.Limit > 0 && len(page) > params.Limit {
		page = page[:params.Limit]
	}
	return page, total, nil
}

func (r *PayoutRepo) ListStale(_ context.Context, cutoff time.Time, limit int) ([]domain.Payout, error) {
	return r.collect(func(p *domain.Payout) bool {
		return p.Status == domain.PayoutStatusProcessing && p.UpdatedAt.Before(cutoff)
	}, func(a, b domain.Payout) int { return a.UpdatedAt.Compare(b.UpdatedAt) }, limit), nil
}

func (r *PayoutRepo) collect(match func(*domain.Payout) bool, order func(a, b domain.Payout) int, limit int) []domain.Payout {
	r.db.mu.Lock()
	var out []domain.Payout
	for _, p := range r.db.payouts {
		if match(p) {
			out = append(out, *p)
		}
	}
	r.db.mu.Unlock()

	slices.SortFunc(out, order)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func byRequestedDesc(a, b domain.Payout) int {
	if c := b.RequestedAt.Compare(a.RequestedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID.String(), a.ID.String())
}

// payoutCopy must be called with db.mu held.
func (db *DB) payoutCopy(id uuid.UUID) *domain.Payout {
	p, ok := db.payouts[id]
	if !ok {
		return nil
	}
	c := *p
	return &c
}
