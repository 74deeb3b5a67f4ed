package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

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

const maxFailureReason = 500

// PayoutServiceImpl implements ports.PayoutService.
//
// Funds are reserved while a payout is PENDING or PROCESSING and leave the
// ledger only when the payout completes.
type PayoutServiceImpl struct {
	walletRepo  ports.WalletRepository
	payoutRepo  ports.PayoutRepository
	accountRepo ports.BankAccountRepository
	txRepo      ports.TransactionRepository
	poster      ports.LedgerPoster
	gateways    ports.GatewayRegistry
	encSvc      ports.EncryptionService
	notifier    ports.PayoutNotifier
	runner      txRunner
	cfg         config.PayoutConfig
	log         zerolog.Logger
}

// NewPayoutService creates a new PayoutServiceImpl. notifier may be nil.
func NewPayoutService(
	store ports.Store,
	poster ports.LedgerPoster,
	gateways ports.GatewayRegistry,
	encSvc ports.EncryptionService,
	notifier ports.PayoutNotifier,
	cfg config.PayoutConfig,
	ledgerCfg config.LedgerConfig,
	log zerolog.Logger,
) *PayoutServiceImpl {
	log = logger.Component(log, "payout")
	return &PayoutServiceImpl{
		walletRepo:  store.Wallets,
		payoutRepo:  store.Payouts,
		accountRepo: store.BankAccounts,
		txRepo:      store.Transactions,
		poster:      poster,
		gateways:    gateways,
		encSvc:      encSvc,
		notifier:    notifier,
		runner: txRunner{
			transactor: store.Transactor,
			retries:    ledgerCfg.LockRetries,
			backoff:    ledgerCfg.LockRetryBackoff,
			log:        log,
		},
		cfg: cfg,
		log: log,
	}
}

// RequestPayout reserves funds for a new PENDING payout. The available
// balance check runs under the wallet lock.
func (s *PayoutServiceImpl) RequestPayout(ctx context.Context, req ports.PayoutRequest) (*domain.Payout, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Wallet.IsZero() {
		return nil, apperror.Validation("wallet brand is required")
	}
	if req.Method == "" {
		req.Method = domain.PayoutMethodBankTransfer
	}
	if !req.Method.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown payout method %q", req.Method))
	}
	if req.Provider == "" {
		req.Provider = s.gateways.Default()
	}
	if _, err := s.gateways.Get(req.Provider); err != nil {
		return nil, apperror.ErrUnknownProvider(string(req.Provider))
	}
	if req.Reference == "" {
		req.Reference = domain.NewPayoutReference()
	}

	var result *domain.Payout
	err := s.runner.run(ctx, func(tx pgx.Tx) error {
		wallet, err := s.walletRepo.GetByRefForUpdate(ctx, tx, req.Wallet)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if wallet == nil {
			return apperror.ErrInsufficientBalance()
		}

		existing, err := s.payoutRepo.GetByReference(ctx, wallet.ID, req.Reference)
		if err != nil {
			return fmt.Errorf("payout reference lookup: %w", err)
		}
		if existing != nil {
			result = existing
			return apperror.ErrDuplicateOperation()
		}

		if req.Currency != "" && !strings.EqualFold(req.Currency, wallet.Currency) {
			return apperror.ErrCurrencyMismatch(wallet.Currency, req.Currency)
		}
		if req.Amount < wallet.MinPayoutAmount {
			return apperror.ErrBelowMinimum(money.Format(wallet.MinPayoutAmount, wallet.Currency))
		}

		reserved, _, err := s.payoutRepo.SumReserved(ctx, tx, wallet.ID)
		if err != nil {
			return fmt.Errorf("sum reserved: %w", err)
		}
		if req.Amount > wallet.Balance-reserved {
			return apperror.ErrInsufficientBalance()
		}

		account, err := s.resolveDestination(ctx, tx, wallet, req.BankAccountID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		p := &domain.Payout{
			ID:            uuid.New(),
			WalletID:      wallet.ID,
			BankAccountID: account.ID,
			Amount:        req.Amount,
			Currency:      wallet.Currency,
			Status:        domain.PayoutStatusPending,
			Method:        req.Method,
			Provider:      req.Provider,
			Reference:     req.Reference,
			RequestedAt:   now,
			UpdatedAt:     now,
		}
		if err := s.payoutRepo.Create(ctx, tx, p); err != nil {
			if errors.Is(err, ports.ErrDuplicateKey) {
				return apperror.ErrDuplicateOperation()
			}
			return fmt.Errorf("create payout: %w", err)
		}
		result = p
		return nil
	})
	if err != nil {
		if apperror.Is(err, apperror.CodeDuplicateOperation) && result != nil {
			return result, err
		}
		return nil, internalError(err)
	}

	s.log.Info().
		Str("payout_id", result.ID.String()).
		Str("wallet_id", result.WalletID.String()).
		Str("provider", string(result.Provider)).
		Int64("amount", result.Amount).
		Msg("payout requested")

	return result, nil
}

func (s *PayoutServiceImpl) resolveDestination(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, id *uuid.UUID) (*domain.BankAccount, error) {
	var account *domain.BankAccount
	if id != nil {
		a, err := s.accountRepo.GetByIDTx(ctx, tx, *id)
		if err != nil {
			return nil, fmt.Errorf("get bank account: %w", err)
		}
		if a == nil || a.WalletID != wallet.ID {
			return nil, apperror.ErrAccountNotFound()
		}
		account = a
	} else {
		a, err := s.accountRepo.GetDefault(ctx, tx, wallet.ID)
		if err != nil {
			return nil, fmt.Errorf("get default bank account: %w", err)
		}
		if a == nil {
			return nil, apperror.ErrNoDefaultAccount()
		}
		account = a
	}

	if !strings.EqualFold(account.Currency, wallet.Currency) {
		return nil, apperror.ErrCurrencyMismatch(wallet.Currency, account.Currency)
	}
	if s.cfg.RequireVerifiedAccount && !account.IsVerified {
		return nil, apperror.ErrAccountNotVerified()
	}
	return account, nil
}

// Process moves a PENDING payout to PROCESSING and sends it to its gateway.
// Gateway failures end in a FAILED payout rather than an error.
func (s *PayoutServiceImpl) Process(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	var (
		p       *domain.Payout
		adapter ports.GatewayAdapter
		dest    domain.Destination
	)
	err := s.runner.run(ctx, func(tx pgx.Tx) error {
		_, locked, err := s.lockPayout(ctx, tx, id)
		if err != nil {
			return err
		}
		if !locked.Transition(domain.PayoutStatusProcessing, time.Now().UTC()) {
			return apperror.ErrInvalidTransition(string(locked.Status), string(domain.PayoutStatusProcessing))
		}

		adapter, err = s.gateways.Get(locked.Provider)
		if err != nil {
			return apperror.ErrUnknownProvider(string(locked.Provider))
		}
		dest, err = s.destination(ctx, tx, locked.BankAccountID)
		if err != nil {
			return err
		}

		if err := s.payoutRepo.Update(ctx, tx, locked); err != nil {
			return fmt.Errorf("update payout: %w", err)
		}
		p = locked
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}

	s.log.Info().
		Str("payout_id", p.ID.String()).
		Str("provider", string(p.Provider)).
		Msg("payout dispatched")

	// The gateway may have accepted the transfer even if the caller went
	// away, so the outcome is persisted regardless of ctx.
	result, attempts, dispatchErr := s.dispatch(ctx, adapter, p, dest)
	persistCtx := context.WithoutCancel(ctx)

	if dispatchErr != nil && errors.Is(dispatchErr, context.Canceled) && ctx.Err() != nil {
		// Outcome unknown: leave it PROCESSING for the sweep to verify.
		final, _, err := s.apply(persistCtx, p.ID, outcome{status: domain.PayoutStatusProcessing, attempts: attempts})
		return final, err
	}
	if dispatchErr != nil {
		s.log.Warn().Err(dispatchErr).
			Str("payout_id", p.ID.String()).
			Int("attempts", attempts).
			Msg("gateway rejected payout")
		final, _, err := s.apply(persistCtx, p.ID, outcome{
			status:   domain.PayoutStatusFailed,
			reason:   failureReason(dispatchErr),
			attempts: attempts,
		})
		return final, err
	}

	final, _, err := s.apply(persistCtx, p.ID, outcome{
		status:      statusFromGateway(result.Status),
		externalRef: result.ExternalRef,
		reason:      result.Reason,
		attempts:    attempts,
	})
	return final, err
}

// destination decrypts the bank account a payout is sent to.
func (s *PayoutServiceImpl) destination(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (domain.Destination, error) {
	account, err := s.accountRepo.GetByIDTx(ctx, tx, accountID)
	if err != nil {
		return domain.Destination{}, fmt.Errorf("get bank account: %w", err)
	}
	if account == nil {
		return domain.Destination{}, apperror.ErrAccountNotFound()
	}
	number, err := s.encSvc.Decrypt(account.AccountNumberEnc)
	if err != nil {
		return domain.Destination{}, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt account number: %w", err))
	}
	return domain.Destination{
		AccountName:   account.AccountName,
		BankName:      account.BankName,
		BankCode:      account.BankCode,
		AccountNumber: number,
		Currency:      account.Currency,
	}, nil
}

// dispatch calls InitiatePayout with a per-attempt timeout, retrying
// retryable failures with linear backoff. Every attempt carries the payout
// reference as idempotency key.
func (s *PayoutServiceImpl) dispatch(ctx context.Context, adapter ports.GatewayAdapter, p *domain.Payout, dest domain.Destination) (*domain.PayoutResult, int, error) {
	in := domain.PayoutInstruction{
		Amount:         p.Amount,
		Currency:       p.Currency,
		Destination:    dest,
		IdempotencyKey: p.Reference,
		Reference:      p.Reference,
		Description:    "Payout " + p.Reference,
	}

	maxAttempts := max(s.cfg.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt-1)):
			}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.cfg.GatewayTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		}
		result, err := adapter.InitiatePayout(callCtx, in)
		cancel()
		if err == nil {
			return result, attempt, nil
		}

		lastErr = err
		if !ports.IsRetryable(err) {
			return nil, attempt, err
		}
		s.log.Debug().Err(err).Str("payout_id", p.ID.String()).Int("attempt", attempt).Msg("retrying gateway call")
	}
	return nil, maxAttempts, lastErr
}

// Complete settles a PROCESSING payout and posts the PAYOUT debit in the
// same transaction. Already-terminal payouts are returned unchanged.
func (s *PayoutServiceImpl) Complete(ctx context.Context, id uuid.UUID, externalRef string) (*domain.Payout, error) {
	p, _, err := s.apply(ctx, id, outcome{status: domain.PayoutStatusCompleted, externalRef: externalRef})
	return p, err
}

// Fail marks a PROCESSING payout FAILED. Already-terminal payouts are
// returned unchanged.
func (s *PayoutServiceImpl) Fail(ctx context.Context, id uuid.UUID, reason string) (*domain.Payout, error) {
	p, _, err := s.apply(ctx, id, outcome{status: domain.PayoutStatusFailed, reason: reason})
	return p, err
}

// outcome is a gateway verdict applied to a payout. A PROCESSING status
// records progress without a transition.
type outcome struct {
	status      domain.PayoutStatus
	externalRef string
	reason      string
	attempts    int
}

// apply writes o to the payout. changed is true only when the payout
// reached a terminal state in this call.
func (s *PayoutServiceImpl) apply(ctx context.Context, id uuid.UUID, o outcome) (*domain.Payout, bool, error) {
	var (
		result  *domain.Payout
		changed bool
	)
	err := s.runner.run(ctx, func(tx pgx.Tx) error {
		changed = false
		wallet, p, err := s.lockPayout(ctx, tx, id)
		if err != nil {
			return err
		}
		result = p
		if p.Status.IsTerminal() {
			return nil
		}

		interim := o.status == domain.PayoutStatusProcessing
		if interim && p.Status != domain.PayoutStatusProcessing {
			return nil
		}
		if !interim && !domain.CanTransition(p.Status, o.status) {
			return apperror.ErrInvalidTransition(string(p.Status), string(o.status))
		}

		now := time.Now().UTC()
		p.Attempts += o.attempts
		p.UpdatedAt = now
		if o.externalRef != "" && p.ExternalPayoutID == nil {
			ref := o.externalRef
			p.ExternalPayoutID = &ref
		}

		switch o.status {
		case domain.PayoutStatusCompleted:
			if err := s.postPayoutDebit(ctx, tx, wallet, p); err != nil {
				return err
			}
		case domain.PayoutStatusFailed:
			reason := truncate(o.reason, maxFailureReason)
			if reason == "" {
				reason = "gateway reported failure"
			}
			p.FailureReason = &reason
		}
		if !interim {
			p.Transition(o.status, now)
			changed = true
		}

		if err := s.payoutRepo.Update(ctx, tx, p); err != nil {
			return fmt.Errorf("update payout: %w", err)
		}
		return nil
	})
	if err != nil {
		if apperror.Is(err, apperror.CodeInsufficientBalance) {
			s.log.Error().
				Str("payout_id", id.String()).
				Msg("wallet balance no longer covers payout; left in PROCESSING")
		}
		return nil, false, internalError(err)
	}

	if changed {
		s.log.Info().
			Str("payout_id", result.ID.String()).
			Str("wallet_id", result.WalletID.String()).
			Str("status", string(result.Status)).
			Int64("amount", result.Amount).
			Msg("payout finalized")
		s.notify(ctx, result)
	}
	return result, changed, nil
}

// postPayoutDebit removes the payout amount from the ledger. A debit
// already posted under the payout's key counts as done. The lookup runs
// before the insert since a failed insert aborts the transaction.
func (s *PayoutServiceImpl) postPayoutDebit(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, p *domain.Payout) error {
	key := domain.PayoutPostingKey(p.Reference)
	existing, err := s.txRepo.GetByIdempotencyKey(ctx, tx, wallet.ID, key)
	if err != nil {
		return fmt.Errorf("payout debit lookup: %w", err)
	}
	if existing != nil {
		s.log.Warn().Str("payout_id", p.ID.String()).Str("transaction_id", existing.ID.String()).Msg("payout debit already posted")
		return nil
	}

	_, err = s.poster.PostInTx(ctx, tx, wallet, domain.Posting{
		Type:           domain.TransactionTypePayout,
		Amount:         -p.Amount,
		Currency:       p.Currency,
		Description:    "Payout " + p.Reference,
		Reference:      domain.PayoutRef(p.ID.String()),
		IdempotencyKey: key,
	})
	return err
}

// Cancel withdraws a PENDING payout and releases its reservation.
func (s *PayoutServiceImpl) Cancel(ctx context.Context, ref domain.WalletRef, id uuid.UUID) (*domain.Payout, error) {
	var result *domain.Payout
	err := s.runner.run(ctx, func(tx pgx.Tx) error {
		wallet, p, err := s.lockPayout(ctx, tx, id)
		if err != nil {
			return err
		}
		if !wallet.Ref().Equal(ref) {
			return apperror.ErrPayoutNotFound()
		}
		if !p.Transition(domain.PayoutStatusCancelled, time.Now().UTC()) {
			return apperror.ErrInvalidTransition(string(p.Status), string(domain.PayoutStatusCancelled))
		}
		if err := s.payoutRepo.Update(ctx, tx, p); err != nil {
			return fmt.Errorf("update payout: %w", err)
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}

	s.log.Info().Str("payout_id", result.ID.String()).Msg("payout cancelled")
	s.notify(ctx, result)
	return result, nil
}

// lockPayout locks the payout's wallet, then the payout. Every writer takes
// the wallet lock first.
func (s *PayoutServiceImpl) lockPayout(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, *domain.Payout, error) {
	current, err := s.payoutRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get payout: %w", err)
	}
	if current == nil {
		return nil, nil, apperror.ErrPayoutNotFound()
	}

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, current.WalletID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock wallet: %w", err)
	}
	if wallet == nil {
		return nil, nil, fmt.Errorf("wallet %s of payout %s not found", current.WalletID, id)
	}

	p, err := s.payoutRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("lock payout: %w", err)
	}
	if p == nil {
		return nil, nil, apperror.ErrPayoutNotFound()
	}
	return wallet, p, nil
}

func (s *PayoutServiceImpl) notify(ctx context.Context, p *domain.Payout) {
	if s.notifier == nil {
		return
	}
	if event, ok := domain.NewPayoutEvent(p, time.Now().UTC()); ok {
		s.notifier.Notify(context.WithoutCancel(ctx), event)
	}
}

// Get returns a payout of the caller's wallet.
func (s *PayoutServiceImpl) Get(ctx context.Context, ref domain.WalletRef, id uuid.UUID) (*domain.Payout, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	wallet, err := s.walletRepo.GetByID(ctx, p.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil || !wallet.Ref().Equal(ref) {
		return nil, apperror.ErrPayoutNotFound()
	}
	return p, nil
}

// GetByID returns any payout. Callers must be privileged.
func (s *PayoutServiceImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	p, err := s.payoutRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payout: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrPayoutNotFound()
	}
	return p, nil
}

// List returns the wallet's payouts, newest first.
func (s *PayoutServiceImpl) List(ctx context.Context, ref domain.WalletRef, filter domain.PayoutFilter, page domain.PageRequest) (*ports.PayoutPage, error) {
	page = page.Normalize()
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown payout status %q", *filter.Status))
	}

	wallet, err := s.walletRepo.GetByRef(ctx, ref)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return &ports.PayoutPage{Items: []domain.Payout{}}, nil
	}

	items, total, err := s.payoutRepo.List(ctx, ports.PayoutListParams{
		WalletID: wallet.ID,
		Filter:   filter,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list payouts: %w", err))
	}
	if items == nil {
		items = []domain.Payout{}
	}
	return &ports.PayoutPage{Items: items, Total: total}, nil
}

func statusFromGateway(s domain.GatewayStatus) domain.PayoutStatus {
	switch s {
	case domain.GatewayStatusCompleted:
		return domain.PayoutStatusCompleted
	case domain.GatewayStatusFailed:
		return domain.PayoutStatusFailed
	}
	return domain.PayoutStatusProcessing
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var gwErr *ports.GatewayError
	if errors.As(err, &gwErr) && gwErr.Err != nil {
		return truncate(gwErr.Err.Error(), maxFailureReason)
	}
	return truncate(err.Error(), maxFailureReason)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
