package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// stubAdapter counts outbound calls.
type stubAdapter struct {
	provider domain.Provider
	calls    int
}

func (s *stubAdapter) Provider() domain.Provider { return s.provider }
func (s *stubAdapter) SignatureHeader() string   { return "X-Stub" }

func (s *stubAdapter) InitiatePayout(context.Context, domain.PayoutInstruction) (*domain.PayoutResult, error) {
	s.calls++
	return &domain.PayoutResult{ExternalRef: "stub", Status: domain.GatewayStatusProcessing}, nil
}

func (s *stubAdapter) VerifyTransaction(_ context.Context, ref string) (*domain.VerifyResult, error) {
	s.calls++
	return &domain.VerifyResult{ExternalRef: ref, Status: domain.GatewayStatusCompleted}, nil
}

func (s *stubAdapter) CreateRefund(context.Context, domain.RefundRequest) (*domain.RefundResult, error) {
	s.calls++
	return &domain.RefundResult{RefundRef: "r"}, nil
}

func (s *stubAdapter) VerifyWebhookSignature([]byte, string) (*domain.GatewayEvent, error) {
	return &domain.GatewayEvent{Provider: s.provider}, nil
}

func TestNewRegistry(t *testing.T) {
	mt := &stubAdapter{provider: domain.ProviderMidtrans}
	cp := &stubAdapter{provider: domain.ProviderCardPay}

	r, err := NewRegistry(domain.ProviderCardPay, mt, cp)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderCardPay, r.Default())
	assert.ElementsMatch(t, []domain.Provider{domain.ProviderMidtrans, domain.ProviderCardPay}, r.Providers())

	got, err := r.Get(domain.ProviderMidtrans)
	require.NoError(t, err)
	assert.Same(t, mt, got)

	_, err = r.Get("paypal")
	assert.Error(t, err)
}

func TestNewRegistry_Errors(t *testing.T) {
	mt := &stubAdapter{provider: domain.ProviderMidtrans}

	_, err := NewRegistry(domain.ProviderMidtrans, mt, &stubAdapter{provider: domain.ProviderMidtrans})
	assert.ErrorContains(t, err, "registered twice")

	_, err = NewRegistry(domain.ProviderCardPay, mt)
	assert.ErrorContains(t, err, "not configured")
}

func TestFromConfig(t *testing.T) {
	sigSvc := service.NewHMACSignatureService()

	t.Run("nothing configured", func(t *testing.T) {
		_, err := FromConfig(config.GatewayConfig{}, sigSvc, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("first enabled is default", func(t *testing.T) {
		cfg := config.GatewayConfig{
			CardPay: config.CardPayConfig{BaseURL: "https://api.cardpay.test", APIKey: "k", Secret: "s"},
		}
		r, err := FromConfig(cfg, sigSvc, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderCardPay, r.Default())

		a, err := r.Get(domain.ProviderCardPay)
		require.NoError(t, err)
		assert.IsType(t, &CardPay{}, a)
	})

	t.Run("explicit default and throttling", func(t *testing.T) {
		cfg := config.GatewayConfig{
			DefaultProvider: "midtrans",
			RateLimit:       5,
			Midtrans:        config.MidtransConfig{ServerKey: "SB-server", IrisKey: "iris"},
			CardPay:         config.CardPayConfig{BaseURL: "https://api.cardpay.test", APIKey: "k", Secret: "s"},
		}
		r, err := FromConfig(cfg, sigSvc, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderMidtrans, r.Default())

		a, err := r.Get(domain.ProviderMidtrans)
		require.NoError(t, err)
		assert.IsType(t, &throttled{}, a)
		assert.Equal(t, IrisSignatureHeader, a.SignatureHeader())
	})

	t.Run("unknown default", func(t *testing.T) {
		cfg := config.GatewayConfig{
			DefaultProvider: "midtrans",
			CardPay:         config.CardPayConfig{BaseURL: "https://api.cardpay.test", APIKey: "k", Secret: "s"},
		}
		_, err := FromConfig(cfg, sigSvc, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestThrottle_PassesThrough(t *testing.T) {
	stub := &stubAdapter{provider: domain.ProviderCardPay}
	a := Throttle(stub, rate.Inf, 1)

	_, err := a.InitiatePayout(context.Background(), domain.PayoutInstruction{})
	require.NoError(t, err)
	_, err = a.VerifyTransaction(context.Background(), "x")
	require.NoError(t, err)
	_, err = a.CreateRefund(context.Background(), domain.RefundRequest{})
	require.NoError(t, err)
	_, err = a.VerifyWebhookSignature(nil, "")
	require.NoError(t, err)

	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, domain.ProviderCardPay, a.Provider())
}

func TestThrottle_WaitPastDeadlineIsRetryable(t *testing.T) {
	stub := &stubAdapter{provider: domain.ProviderMidtrans}
	a := Throttle(stub, rate.Every(time.Hour), 1)

	_, err := a.VerifyTransaction(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.InitiatePayout(ctx, domain.PayoutInstruction{})
	require.Error(t, err)
	assert.True(t, ports.IsRetryable(err))
	assert.Equal(t, 1, stub.calls)
}
