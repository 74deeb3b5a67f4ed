package gateway

import (
	"context"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"golang.org/x/time/rate"
)

// throttled limits outbound calls to one provider. Webhook verification is
// local and not limited.
type throttled struct {
	ports.GatewayAdapter
	limiter *rate.Limiter
}

// Throttle wraps a so that outbound calls wait for a token. A wait that
// outlives ctx fails with the context error.
func Throttle(a ports.GatewayAdapter, r rate.Limit, burst int) ports.GatewayAdapter {
	return &throttled{GatewayAdapter: a, limiter: rate.NewLimiter(r, burst)}
}

func (t *throttled) wait(ctx context.Context, op string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return &ports.GatewayError{Provider: t.Provider(), Op: op, Retryable: true, Err: err}
	}
	return nil
}

func (t *throttled) InitiatePayout(ctx context.Context, in domain.PayoutInstruction) (*domain.PayoutResult, error) {
	if err := t.wait(ctx, "create payout"); err != nil {
		return nil, err
	}
	return t.GatewayAdapter.InitiatePayout(ctx, in)
}

func (t *throttled) VerifyTransaction(ctx context.Context, externalRef string) (*domain.VerifyResult, error) {
	if err := t.wait(ctx, "verify"); err != nil {
		return nil, err
	}
	return t.GatewayAdapter.VerifyTransaction(ctx, externalRef)
}

func (t *throttled) CreateRefund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	if err := t.wait(ctx, "refund"); err != nil {
		return nil, err
	}
	return t.GatewayAdapter.CreateRefund(ctx, req)
}
