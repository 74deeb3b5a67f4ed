package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"
	"github.com/victoryunusa/truetab-api-sub000/pkg/logger"
	"github.com/victoryunusa/truetab-api-sub000/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const defaultIdempotencyTTL = 24 * time.Hour

// walletDefaults builds the row inserted when a wallet is first touched.
type walletDefaults struct {
	currency  string
	minPayout string
}

func newWalletDefaults(cfg config.LedgerConfig) walletDefaults {
	return walletDefaults{currency: strings.ToUpper(cfg.DefaultCurrency), minPayout: cfg.DefaultMinPayout}
}

func (d walletDefaults) forCurrency(currency string) (domain.Wallet, error) {
	if currency == "" {
		currency = d.currency
	}
	var minPayout int64
	if d.minPayout != "" {
		v, err := money.Parse(d.minPayout, currency)
		if err != nil {
			return domain.Wallet{}, fmt.Errorf("default min payout %q for %s: %w", d.minPayout, currency, err)
		}
		minPayout = v
	}
	return domain.Wallet{Currency: currency, MinPayoutAmount: minPayout}, nil
}

// LedgerServiceImpl implements ports.LedgerService and ports.LedgerPoster.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	payoutRepo ports.PayoutRepository
	idempCache ports.IdempotencyCache
	runner     txRunner
	defaults   walletDefaults
	cacheTTL   time.Duration
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. idempCache may be nil.
func NewLedgerService(
	store ports.Store,
	idempCache ports.IdempotencyCache,
	cfg config.LedgerConfig,
	log zerolog.Logger,
) *LedgerServiceImpl {
	log = logger.Component(log, "ledger")
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &LedgerServiceImpl{
		walletRepo: store.Wallets,
		txRepo:     store.Transactions,
		payoutRepo: store.Payouts,
		idempCache: idempCache,
		runner: txRunner{
			transactor: store.Transactor,
			retries:    cfg.LockRetries,
			backoff:    cfg.LockRetryBackoff,
			log:        log,
		},
		defaults: newWalletDefaults(cfg),
		cacheTTL: ttl,
		log:      log,
	}
}

// Credit adds req.Amount to the wallet, creating the wallet on first use.
func (s *LedgerServiceImpl) Credit(ctx context.Context, req ports.PostingRequest) (*domain.Transaction, error) {
	if req.Type == "" {
		req.Type = domain.TransactionTypeCredit
	}
	if err := validatePosting(req, req.Type.AllowedForCredit()); err != nil {
		return nil, err
	}
	return s.post(ctx, req, req.Amount)
}

// Debit removes req.Amount from the wallet. The balance check and the write
// happen under the wallet row lock.
func (s *LedgerServiceImpl) Debit(ctx context.Context, req ports.PostingRequest) (*domain.Transaction, error) {
	if req.Type == "" {
		req.Type = domain.TransactionTypeDebit
	}
	if err := validatePosting(req, req.Type.AllowedForDebit()); err != nil {
		return nil, err
	}
	return s.post(ctx, req, -req.Amount)
}

func validatePosting(req ports.PostingRequest, typeAllowed bool) error {
	if req.Amount <= 0 {
		return apperror.ErrInvalidAmount()
	}
	if !typeAllowed {
		return apperror.ErrInvalidEntryType(string(req.Type))
	}
	if req.Wallet.IsZero() {
		return apperror.Validation("wallet brand is required")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return apperror.Validation("idempotency_key is required")
	}
	if !req.Reference.Valid() {
		return apperror.Validation("invalid transaction reference")
	}
	return nil
}

func (s *LedgerServiceImpl) post(ctx context.Context, req ports.PostingRequest, signed int64) (*domain.Transaction, error) {
	currency := strings.ToUpper(req.Currency)

	// Layer 1: Redis idempotency check
	if cached := s.cachedPosting(ctx, req.Wallet, req.IdempotencyKey); cached != nil {
		return cached, apperror.ErrDuplicateOperation()
	}

	posting := domain.Posting{
		Type:           req.Type,
		Amount:         signed,
		Currency:       currency,
		Description:    req.Description,
		Reference:      req.Reference,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	}

	var result *domain.Transaction
	err := s.runner.run(ctx, func(tx pgx.Tx) error {
		wallet, err := s.lockWallet(ctx, tx, req.Wallet, currency)
		if err != nil {
			return err
		}

		// Layer 2: DB idempotency check under the wallet lock
		existing, err := s.txRepo.GetByIdempotencyKey(ctx, tx, wallet.ID, req.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			result = existing
			return apperror.ErrDuplicateOperation()
		}

		txn, err := s.PostInTx(ctx, tx, wallet, posting)
		if err != nil {
			return err
		}
		result = txn
		return nil
	})
	if err != nil {
		if apperror.Is(err, apperror.CodeDuplicateOperation) {
			if result == nil {
				result = s.existingPosting(ctx, req.Wallet, req.IdempotencyKey)
			}
			s.log.Info().Str("wallet", req.Wallet.String()).Str("key", req.IdempotencyKey).Msg("duplicate posting echoed")
			return result, err
		}
		return nil, internalError(err)
	}

	s.cachePosting(ctx, result)

	s.log.Info().
		Str("tx_id", result.ID.String()).
		Str("wallet_id", result.WalletID.String()).
		Str("type", string(result.Type)).
		Int64("amount", result.Amount).
		Int64("balance_after", result.BalanceAfter).
		Msg("posting applied")

	return result, nil
}

// PostInTx applies posting to a wallet the caller has locked in tx and
// appends the transaction row. The currency of the posting must match.
func (s *LedgerServiceImpl) PostInTx(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, posting domain.Posting) (*domain.Transaction, error) {
	if posting.Amount == 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if posting.Currency != "" && !strings.EqualFold(posting.Currency, wallet.Currency) {
		return nil, apperror.ErrCurrencyMismatch(wallet.Currency, posting.Currency)
	}

	before, after, ok := wallet.Apply(posting.Type, posting.Amount)
	if !ok {
		return nil, apperror.ErrInsufficientBalance()
	}

	now := time.Now().UTC()
	wallet.UpdatedAt = now
	txn := &domain.Transaction{
		ID:             uuid.New(),
		WalletID:       wallet.ID,
		Type:           posting.Type,
		Amount:         posting.Amount,
		Currency:       wallet.Currency,
		BalanceBefore:  before,
		BalanceAfter:   after,
		Status:         domain.TransactionStatusCompleted,
		Description:    posting.Description,
		Reference:      posting.Reference,
		Note:           posting.Note,
		IdempotencyKey: posting.IdempotencyKey,
		CreatedAt:      now,
	}

	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	if err := s.txRepo.Create(ctx, tx, txn); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, apperror.Wrap(apperror.CodeDuplicateOperation, "Operation already applied", http.StatusOK, err)
		}
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return txn, nil
}

func (s *LedgerServiceImpl) lockWallet(ctx context.Context, tx pgx.Tx, ref domain.WalletRef, currency string) (*domain.Wallet, error) {
	defaults, err := s.defaults.forCurrency(currency)
	if err != nil {
		return nil, err
	}
	wallet, err := s.walletRepo.GetOrCreateForUpdate(ctx, tx, ref, defaults)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return wallet, nil
}

// existingPosting reloads the winner of a unique key race.
func (s *LedgerServiceImpl) existingPosting(ctx context.Context, ref domain.WalletRef, key string) *domain.Transaction {
	wallet, err := s.walletRepo.GetByRef(ctx, ref)
	if err != nil || wallet == nil {
		return nil
	}
	txn, err := s.txRepo.GetByIdempotencyKey(ctx, nil, wallet.ID, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to reload duplicate posting")
		return nil
	}
	return txn
}

func (s *LedgerServiceImpl) cachedPosting(ctx context.Context, ref domain.WalletRef, key string) *domain.Transaction {
	if s.idempCache == nil {
		return nil
	}
	wallet, err := s.walletRepo.GetByRef(ctx, ref)
	if err != nil || wallet == nil {
		return nil
	}
	cacheKey := domain.BuildIdempotencyKey(wallet.ID, key)
	cached, err := s.idempCache.Get(ctx, cacheKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("redis idempotency check failed, falling through to DB")
		return nil
	}
	if cached == nil {
		return nil
	}
	var txn domain.Transaction
	if err := json.Unmarshal(cached, &txn); err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("discarding unreadable idempotency entry")
		return nil
	}
	return &txn
}

func (s *LedgerServiceImpl) cachePosting(ctx context.Context, txn *domain.Transaction) {
	if s.idempCache == nil {
		return
	}
	cacheKey := domain.BuildIdempotencyKey(txn.WalletID, txn.IdempotencyKey)
	respJSON, err := json.Marshal(txn)
	if err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("failed to marshal posting for cache")
		return
	}
	if err := s.idempCache.Set(ctx, cacheKey, respJSON, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache idempotency in redis")
	}
}

// GetBalance reads the balance and the reserved payout total under the
// wallet lock so both figures come from the same instant.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, ref domain.WalletRef) (*ports.Balance, error) {
	summary, err := s.Summary(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &ports.Balance{
		WalletID:  summary.WalletID,
		Currency:  summary.Currency,
		Balance:   summary.Balance,
		Available: summary.AvailableBalance,
		Reserved:  summary.PendingPayouts,
	}, nil
}

// Summary returns the merchant view of a wallet. A wallet that was never
// touched reports zeros in the default currency.
func (s *LedgerServiceImpl) Summary(ctx context.Context, ref domain.WalletRef) (*domain.WalletSummary, error) {
	var summary *domain.WalletSummary
	err := s.runner.run(ctx, func(tx pgx.Tx) error {
		wallet, err := s.walletRepo.GetByRefForUpdate(ctx, tx, ref)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if wallet == nil {
			defaults, err := s.defaults.forCurrency("")
			if err != nil {
				return err
			}
			summary = &domain.WalletSummary{Currency: defaults.Currency, MinPayoutAmount: defaults.MinPayoutAmount}
			return nil
		}

		reserved, count, err := s.payoutRepo.SumReserved(ctx, tx, wallet.ID)
		if err != nil {
			return fmt.Errorf("sum reserved: %w", err)
		}
		summary = &domain.WalletSummary{
			WalletID:          wallet.ID,
			Currency:          wallet.Currency,
			Balance:           wallet.Balance,
			AvailableBalance:  wallet.Balance - reserved,
			PendingPayouts:    reserved,
			PendingCount:      count,
			TotalEarned:       wallet.TotalEarned,
			TotalWithdrawn:    wallet.TotalWithdrawn,
			MinPayoutAmount:   wallet.MinPayoutAmount,
			ExternalAccountID: wallet.ExternalAccountID,
		}
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}
	return summary, nil
}

// History returns one page of transactions, newest first. A cursor takes
// precedence over the offset.
func (s *LedgerServiceImpl) History(ctx context.Context, ref domain.WalletRef, filter domain.TransactionFilter, page domain.PageRequest) (*domain.TransactionPage, error) {
	page = page.Normalize()

	params := ports.TransactionListParams{Filter: filter, Limit: page.Limit, Offset: page.Offset}
	if page.Cursor != "" {
		cursor, err := domain.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, apperror.Validation("invalid cursor")
		}
		params.Cursor = &cursor
		params.Offset = 0
	}

	wallet, err := s.walletRepo.GetByRef(ctx, ref)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return &domain.TransactionPage{Items: []domain.Transaction{}}, nil
	}
	params.WalletID = wallet.ID

	items, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	if items == nil {
		items = []domain.Transaction{}
	}

	result := &domain.TransactionPage{Items: items, Total: total}
	if len(items) == page.Limit {
		last := items[len(items)-1]
		result.NextCursor = domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return result, nil
}

// IterateTransactions walks the full history lazily, fetching pageSize rows
// at a time. Iteration stops at the first error, which is yielded once.
func (s *LedgerServiceImpl) IterateTransactions(ctx context.Context, ref domain.WalletRef, filter domain.TransactionFilter, pageSize int) iter.Seq2[domain.Transaction, error] {
	return func(yield func(domain.Transaction, error) bool) {
		req := domain.PageRequest{Limit: pageSize}
		for {
			page, err := s.History(ctx, ref, filter, req)
			if err != nil {
				yield(domain.Transaction{}, err)
				return
			}
			for _, txn := range page.Items {
				if !yield(txn, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			req.Cursor = page.NextCursor
		}
	}
}

// VerifyBalance recomputes the wallet balance from its entries while
// holding the wallet lock.
func (s *LedgerServiceImpl) VerifyBalance(ctx context.Context, ref domain.WalletRef) (bool, error) {
	matches := true
	err := s.runner.run(ctx, func(tx pgx.Tx) error {
		wallet, err := s.walletRepo.GetByRefForUpdate(ctx, tx, ref)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if wallet == nil {
			return nil
		}

		sum, err := s.txRepo.SumAmounts(ctx, wallet.ID)
		if err != nil {
			return fmt.Errorf("sum transactions: %w", err)
		}
		if sum != wallet.Balance {
			matches = false
			s.log.Error().
				Str("wallet_id", wallet.ID.String()).
				Int64("balance", wallet.Balance).
				Int64("entries_sum", sum).
				Msg("wallet balance does not match its entries")
		}
		return nil
	})
	if err != nil {
		return false, internalError(err)
	}
	return matches, nil
}
