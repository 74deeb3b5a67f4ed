package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/storage/memory"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

var testLedgerConfig = config.LedgerConfig{
	DefaultCurrency:  "IDR",
	DefaultMinPayout: "10000",
	LockRetries:      3,
}

// fakeGateway is a scriptable ports.GatewayAdapter.
type fakeGateway struct {
	provider domain.Provider

	mu        sync.Mutex
	initiated []domain.PayoutInstruction
	initiate  func(ctx context.Context, in domain.PayoutInstruction) (*domain.PayoutResult, error)
	verify    func(ctx context.Context, externalRef string) (*domain.VerifyResult, error)
	webhook   func(payload []byte, signature string) (*domain.GatewayEvent, error)
}

func newFakeGateway(provider domain.Provider) *fakeGateway {
	return &fakeGateway{
		provider: provider,
		initiate: func(_ context.Context, in domain.PayoutInstruction) (*domain.PayoutResult, error) {
			return &domain.PayoutResult{ExternalRef: "ext-" + in.IdempotencyKey, Status: domain.GatewayStatusProcessing}, nil
		},
	}
}

func (g *fakeGateway) Provider() domain.Provider { return g.provider }

func (g *fakeGateway) InitiatePayout(ctx context.Context, in domain.PayoutInstruction) (*domain.PayoutResult, error) {
	g.mu.Lock()
	g.initiated = append(g.initiated, in)
	fn := g.initiate
	g.mu.Unlock()
	return fn(ctx, in)
}

func (g *fakeGateway) VerifyTransaction(ctx context.Context, externalRef string) (*domain.VerifyResult, error) {
	if g.verify == nil {
		return &domain.VerifyResult{ExternalRef: externalRef, Status: domain.GatewayStatusProcessing}, nil
	}
	return g.verify(ctx, externalRef)
}

func (g *fakeGateway) CreateRefund(_ context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	return &domain.RefundResult{RefundRef: "refund-" + req.ExternalRef, Status: domain.GatewayStatusCompleted}, nil
}

func (g *fakeGateway) VerifyWebhookSignature(payload []byte, signature string) (*domain.GatewayEvent, error) {
	if g.webhook == nil {
		return nil, ports.ErrInvalidSignature
	}
	return g.webhook(payload, signature)
}

func (g *fakeGateway) SignatureHeader() string { return "X-Fake-Signature" }

func (g *fakeGateway) calls() []domain.PayoutInstruction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.PayoutInstruction(nil), g.initiated...)
}

// fakeRegistry resolves a fixed set of adapters.
type fakeRegistry struct {
	def      domain.Provider
	adapters map[domain.Provider]ports.GatewayAdapter
}

func newFakeRegistry(adapters ...ports.GatewayAdapter) *fakeRegistry {
	r := &fakeRegistry{adapters: make(map[domain.Provider]ports.GatewayAdapter)}
	for i, a := range adapters {
		if i == 0 {
			r.def = a.Provider()
		}
		r.adapters[a.Provider()] = a
	}
	return r
}

func (r *fakeRegistry) Get(provider domain.Provider) (ports.GatewayAdapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, errors.New("unknown provider " + string(provider))
	}
	return a, nil
}

func (r *fakeRegistry) Default() domain.Provider { return r.def }

// recordingNotifier collects events synchronously.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.PayoutEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event *domain.PayoutEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, *event)
}

func (n *recordingNotifier) all() []domain.PayoutEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.PayoutEvent(nil), n.events...)
}

// testEnv wires every service over one memory store.
type testEnv struct {
	store    ports.Store
	ledger   *LedgerServiceImpl
	payouts  *PayoutServiceImpl
	accounts *BankAccountServiceImpl
	gateway  *fakeGateway
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, payoutCfg config.PayoutConfig) *testEnv {
	t.Helper()
	encSvc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	store := memory.NewStore(0)
	gw := newFakeGateway(domain.ProviderMidtrans)
	notifier := &recordingNotifier{}
	ledger := NewLedgerService(store, nil, testLedgerConfig, newTestLogger())
	return &testEnv{
		store:    store,
		ledger:   ledger,
		payouts:  NewPayoutService(store, ledger, newFakeRegistry(gw), encSvc, notifier, payoutCfg, testLedgerConfig, newTestLogger()),
		accounts: NewBankAccountService(store, encSvc, testLedgerConfig, newTestLogger()),
		gateway:  gw,
		notifier: notifier,
	}
}

func newRef() domain.WalletRef {
	return domain.WalletRef{BrandID: uuid.New()}
}

func (e *testEnv) credit(t *testing.T, ref domain.WalletRef, amount int64) *domain.Transaction {
	t.Helper()
	txn, err := e.ledger.Credit(context.Background(), ports.PostingRequest{
		Wallet:         ref,
		Amount:         amount,
		Reference:      domain.OrderRef(uuid.NewString()),
		IdempotencyKey: uuid.NewString(),
	})
	require.NoError(t, err)
	return txn
}

func (e *testEnv) addAccount(t *testing.T, ref domain.WalletRef) *domain.BankAccount {
	t.Helper()
	account, err := e.accounts.Add(context.Background(), ports.AddBankAccountRequest{
		Wallet:        ref,
		AccountName:   "Warung Sate",
		BankName:      "BCA",
		BankCode:      "bca",
		AccountNumber: "1234567890",
	})
	require.NoError(t, err)
	return account
}

func (e *testEnv) balance(t *testing.T, ref domain.WalletRef) *ports.Balance {
	t.Helper()
	b, err := e.ledger.GetBalance(context.Background(), ref)
	require.NoError(t, err)
	return b
}
