package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
)

// ErrInvalidSignature is returned by VerifyWebhookSignature on a mismatch.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// GatewayAdapter is the uniform contract over payout providers.
type GatewayAdapter interface {
	Provider() domain.Provider
	InitiatePayout(ctx context.Context, in domain.PayoutInstruction) (*domain.PayoutResult, error)
	VerifyTransaction(ctx context.Context, externalRef string) (*domain.VerifyResult, error)
	CreateRefund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error)
	// VerifyWebhookSignature authenticates payload and returns the normalized
	// event, or ErrInvalidSignature.
	VerifyWebhookSignature(payload []byte, signature string) (*domain.GatewayEvent, error)
	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string
}

// GatewayRegistry resolves adapters by provider name.
type GatewayRegistry interface {
	Get(provider domain.Provider) (GatewayAdapter, error)
	Default() domain.Provider
}

// GatewayError is returned by adapters for provider-side failures.
type GatewayError struct {
	Provider  domain.Provider
	Op        string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a gateway failure worth resending
// with the same idempotency key.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}
