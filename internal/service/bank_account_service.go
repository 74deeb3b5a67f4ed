package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"
	"github.com/victoryunusa/truetab-api-sub000/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// BankAccountServiceImpl implements ports.BankAccountService.
// Default-flag changes run under the owning wallet's lock.
type BankAccountServiceImpl struct {
	walletRepo  ports.WalletRepository
	accountRepo ports.BankAccountRepository
	payoutRepo  ports.PayoutRepository
	encSvc      ports.EncryptionService
	runner      txRunner
	defaults    walletDefaults
	log         zerolog.Logger
}

// NewBankAccountService creates a new BankAccountServiceImpl. encSvc should be
// keyed for KeyPurposeBankAccount.
func NewBankAccountService(
	store ports.Store,
	encSvc ports.EncryptionService,
	ledgerCfg config.LedgerConfig,
	log zerolog.Logger,
) *BankAccountServiceImpl {
	log = logger.Component(log, "bank_accounts")
	return &BankAccountServiceImpl{
		walletRepo:  store.Wallets,
		accountRepo: store.BankAccounts,
		payoutRepo:  store.Payouts,
		encSvc:      encSvc,
		runner: txRunner{
			transactor: store.Transactor,
			retries:    ledgerCfg.LockRetries,
			backoff:    ledgerCfg.LockRetryBackoff,
			log:        log,
		},
		defaults: newWalletDefaults(ledgerCfg),
		log:      log,
	}
}

// Add registers a destination. The first account of a wallet becomes its
// default, as does any account added with MakeDefault.
func (s *BankAccountServiceImpl) Add(ctx context.Context, req ports.AddBankAccountRequest) (*domain.BankAccount, error) {
	if req.Wallet.IsZero() {
		return nil, apperror.Validation("wallet brand is required")
	}
	number := strings.TrimSpace(req.AccountNumber)
	if strings.TrimSpace(req.AccountName) == "" || strings.TrimSpace(req.BankName) == "" || number == "" {
		return nil, apperror.Validation("account_name, bank_name and account_number are required")
	}
	currency := strings.ToUpper(req.Currency)

	enc, err := s.encSvc.Encrypt(number)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt account number: %w", err))
	}

	var result *domain.BankAccount
	err = s.runner.run(ctx, func(tx pgx.Tx) error {
		defaults, err := s.defaults.forCurrency(currency)
		if err != nil {
			return err
		}
		wallet, err := s.walletRepo.GetOrCreateForUpdate(ctx, tx, req.Wallet, defaults)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if currency != "" && currency != wallet.Currency {
			return apperror.ErrCurrencyMismatch(wallet.Currency, currency)
		}

		count, err := s.accountRepo.CountByWallet(ctx, tx, wallet.ID)
		if err != nil {
			return fmt.Errorf("count bank accounts: %w", err)
		}
		isDefault := count == 0 || req.MakeDefault
		if isDefault && count > 0 {
			if err := s.accountRepo.ClearDefault(ctx, tx, wallet.ID); err != nil {
				return fmt.Errorf("clear default: %w", err)
			}
		}

		now := time.Now().UTC()
		account := &domain.BankAccount{
			ID:                  uuid.New(),
			WalletID:            wallet.ID,
			AccountName:         strings.TrimSpace(req.AccountName),
			BankName:            strings.TrimSpace(req.BankName),
			BankCode:            strings.TrimSpace(req.BankCode),
			AccountNumberEnc:    enc,
			AccountNumberMasked: domain.MaskAccountNumber(number),
			Currency:            wallet.Currency,
			IsDefault:           isDefault,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := s.accountRepo.Create(ctx, tx, account); err != nil {
			return fmt.Errorf("create bank account: %w", err)
		}
		result = account
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}

	s.log.Info().
		Str("bank_account_id", result.ID.String()).
		Str("wallet_id", result.WalletID.String()).
		Bool("is_default", result.IsDefault).
		Msg("bank account added")
	return result, nil
}

// Update changes whitelisted fields. Routing changes clear verification and
// are refused while payouts to the account are in flight.
func (s *BankAccountServiceImpl) Update(ctx context.Context, ref domain.WalletRef, id uuid.UUID, upd domain.BankAccountUpdate) (*domain.BankAccount, error) {
	if upd.IsEmpty() {
		return nil, apperror.Validation("nothing to update")
	}

	var enc string
	if upd.AccountNumber != nil {
		number := strings.TrimSpace(*upd.AccountNumber)
		if number == "" {
			return nil, apperror.Validation("account_number must not be empty")
		}
		var err error
		if enc, err = s.encSvc.Encrypt(number); err != nil {
			return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt account number: %w", err))
		}
		upd.AccountNumber = &number
	}

	var result *domain.BankAccount
	err := s.runner.run(ctx, func(tx pgx.Tx) error {
		_, account, err := s.lockAccount(ctx, tx, ref, id)
		if err != nil {
			return err
		}

		if upd.ResetsVerification() {
			active, err := s.payoutRepo.CountActiveByBankAccount(ctx, tx, account.ID)
			if err != nil {
				return fmt.Errorf("count active payouts: %w", err)
			}
			if active > 0 {
				return apperror.ErrHasPendingPayouts()
			}
			account.IsVerified = false
			account.VerifiedAt = nil
		}
		if upd.AccountName != nil {
			account.AccountName = strings.TrimSpace(*upd.AccountName)
		}
		if upd.BankName != nil {
			account.BankName = strings.TrimSpace(*upd.BankName)
		}
		if upd.BankCode != nil {
			account.BankCode = strings.TrimSpace(*upd.BankCode)
		}
		if upd.AccountNumber != nil {
			account.AccountNumberEnc = enc
			account.AccountNumberMasked = domain.MaskAccountNumber(*upd.AccountNumber)
		}
		account.UpdatedAt = time.Now().UTC()

		if err := s.accountRepo.Update(ctx, tx, account); err != nil {
			return fmt.Errorf("update bank account: %w", err)
		}
		result = account
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}
	return result, nil
}

// SetDefault makes id the wallet's only default account.
func (s *BankAccountServiceImpl) SetDefault(ctx context.Context, ref domain.WalletRef, id uuid.UUID) (*domain.BankAccount, error) {
	var result *domain.BankAccount
	err := s.runner.run(ctx, func(tx pgx.Tx) error {
		wallet, account, err := s.lockAccount(ctx, tx, ref, id)
		if err != nil {
			return err
		}
		result = account
		if account.IsDefault {
			return nil
		}

		if err := s.accountRepo.ClearDefault(ctx, tx, wallet.ID); err != nil {
			return fmt.Errorf("clear default: %w", err)
		}
		account.IsDefault = true
		account.UpdatedAt = time.Now().UTC()
		if err := s.accountRepo.Update(ctx, tx, account); err != nil {
			return fmt.Errorf("set default: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}
	return result, nil
}

// Verify marks an account verified. Privileged.
func (s *BankAccountServiceImpl) Verify(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	current, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get bank account: %w", err))
	}
	if current == nil {
		return nil, apperror.ErrAccountNotFound()
	}

	var result *domain.BankAccount
	err = s.runner.run(ctx, func(tx pgx.Tx) error {
		if _, err := s.walletRepo.GetByIDForUpdate(ctx, tx, current.WalletID); err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		account, err := s.accountRepo.GetByIDTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("get bank account: %w", err)
		}
		if account == nil {
			return apperror.ErrAccountNotFound()
		}
		result = account
		if account.IsVerified {
			return nil
		}

		now := time.Now().UTC()
		account.IsVerified = true
		account.VerifiedAt = &now
		account.UpdatedAt = now
		if err := s.accountRepo.Update(ctx, tx, account); err != nil {
			return fmt.Errorf("verify bank account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}

	s.log.Info().Str("bank_account_id", id.String()).Msg("bank account verified")
	return result, nil
}

// Remove deletes an account with no PENDING or PROCESSING payouts. Removing
// the default promotes the oldest remaining account.
func (s *BankAccountServiceImpl) Remove(ctx context.Context, ref domain.WalletRef, id uuid.UUID) error {
	var promoted *domain.BankAccount
	err := s.runner.run(ctx, func(tx pgx.Tx) error {
		promoted = nil
		wallet, account, err := s.lockAccount(ctx, tx, ref, id)
		if err != nil {
			return err
		}

		active, err := s.payoutRepo.CountActiveByBankAccount(ctx, tx, account.ID)
		if err != nil {
			return fmt.Errorf("count active payouts: %w", err)
		}
		if active > 0 {
			return apperror.ErrHasPendingPayouts()
		}

		if err := s.accountRepo.Delete(ctx, tx, account.ID); err != nil {
			return fmt.Errorf("delete bank account: %w", err)
		}
		if !account.IsDefault {
			return nil
		}

		next, err := s.accountRepo.OldestExcept(ctx, tx, wallet.ID, account.ID)
		if err != nil {
			return fmt.Errorf("find replacement default: %w", err)
		}
		if next == nil {
			return nil
		}
		next.IsDefault = true
		next.UpdatedAt = time.Now().UTC()
		if err := s.accountRepo.Update(ctx, tx, next); err != nil {
			return fmt.Errorf("promote default: %w", err)
		}
		promoted = next
		return nil
	})
	if err != nil {
		return internalError(err)
	}

	ev := s.log.Info().Str("bank_account_id", id.String())
	if promoted != nil {
		ev = ev.Str("promoted_id", promoted.ID.String())
	}
	ev.Msg("bank account removed")
	return nil
}

// Get returns one account of the caller's wallet.
func (s *BankAccountServiceImpl) Get(ctx context.Context, ref domain.WalletRef, id uuid.UUID) (*domain.BankAccount, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get bank account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrAccountNotFound()
	}
	wallet, err := s.walletRepo.GetByID(ctx, account.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil || !wallet.Ref().Equal(ref) {
		return nil, apperror.ErrAccountNotFound()
	}
	return account, nil
}

// List returns the wallet's accounts, oldest first.
func (s *BankAccountServiceImpl) List(ctx context.Context, ref domain.WalletRef) ([]domain.BankAccount, error) {
	wallet, err := s.walletRepo.GetByRef(ctx, ref)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return []domain.BankAccount{}, nil
	}
	accounts, err := s.accountRepo.ListByWallet(ctx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list bank accounts: %w", err))
	}
	if accounts == nil {
		accounts = []domain.BankAccount{}
	}
	return accounts, nil
}

// lockAccount locks the caller's wallet and loads one of its accounts.
func (s *BankAccountServiceImpl) lockAccount(ctx context.Context, tx pgx.Tx, ref domain.WalletRef, id uuid.UUID) (*domain.Wallet, *domain.BankAccount, error) {
	wallet, err := s.walletRepo.GetByRefForUpdate(ctx, tx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("lock wallet: %w", err)
	}
	if wallet == nil {
		return nil, nil, apperror.ErrAccountNotFound()
	}
	account, err := s.accountRepo.GetByIDTx(ctx, tx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get bank account: %w", err)
	}
	if account == nil || account.WalletID != wallet.ID {
		return nil, nil, apperror.ErrAccountNotFound()
	}
	return wallet, account, nil
}
