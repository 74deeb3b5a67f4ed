package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestSweeper(env *testEnv, lease ports.Lease) *Sweeper {
	s := NewSweeper(env.payouts, lease, testPayoutConfig, newTestLogger())
	s.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	return s
}

// processCancelled dispatches a payout while the caller goes away, leaving
// it PROCESSING without an external reference.
func processCancelled(t *testing.T, env *testEnv, p *domain.Payout) *domain.Payout {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.gateway.initiate = func(ctx context.Context, _ domain.PayoutInstruction) (*domain.PayoutResult, error) {
		cancel()
		return nil, ctx.Err()
	}
	got, err := env.payouts.Process(ctx, p.ID)
	require.NoError(t, err)
	env.gateway.initiate = newFakeGateway(domain.ProviderMidtrans).initiate
	return got
}

func TestPayoutService_Process_CallerCancelledLeavesProcessing(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ref := newRef()
	env.credit(t, ref, 100000)
	env.addAccount(t, ref)
	p := env.request(t, ref, 20000)

	got := processCancelled(t, env, p)
	assert.Equal(t, domain.PayoutStatusProcessing, got.Status)
	assert.Nil(t, got.ExternalPayoutID)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, int64(80000), env.balance(t, ref).Available)
}

func TestSweeper_CompletesVerifiedPayout(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ctx := context.Background()
	ref := newRef()
	env.credit(t, ref, 100000)
	env.addAccount(t, ref)
	p := env.request(t, ref, 20000)
	_, err := env.payouts.Process(ctx, p.ID)
	require.NoError(t, err)

	env.gateway.verify = func(_ context.Context, externalRef string) (*domain.VerifyResult, error) {
		return &domain.VerifyResult{ExternalRef: externalRef, Status: domain.GatewayStatusCompleted, Amount: 20000}, nil
	}

	report, err := newTestSweeper(env, nil).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 1, Completed: 1}, report)
	assert.Equal(t, int64(80000), env.balance(t, ref).Balance)
}

func TestSweeper_FailsRejectedPayout(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ctx := context.Background()
	ref := newRef()
	env.credit(t, ref, 100000)
	env.addAccount(t, ref)
	p := env.request(t, ref, 20000)
	_, err := env.payouts.Process(ctx, p.ID)
	require.NoError(t, err)

	env.gateway.verify = func(_ context.Context, externalRef string) (*domain.VerifyResult, error) {
		return &domain.VerifyResult{ExternalRef: externalRef, Status: domain.GatewayStatusFailed, Reason: "invalid account"}, nil
	}

	report, err := newTestSweeper(env, nil).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	got, err := env.payouts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "invalid account", *got.FailureReason)
	assert.Equal(t, int64(100000), env.balance(t, ref).Available)
}

func TestSweeper_AmountMismatchLeftProcessing(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ctx := context.Background()
	ref := newRef()
	env.credit(t, ref, 100000)
	env.addAccount(t, ref)
	p := env.request(t, ref, 20000)
	_, err := env.payouts.Process(ctx, p.ID)
	require.NoError(t, err)

	env.gateway.verify = func(_ context.Context, externalRef string) (*domain.VerifyResult, error) {
		return &domain.VerifyResult{ExternalRef: externalRef, Status: domain.GatewayStatusCompleted, Amount: 2000}, nil
	}

	report, err := newTestSweeper(env, nil).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, int64(100000), env.balance(t, ref).Balance)
}

func TestSweeper_RedispatchesUnacknowledgedPayout(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ctx := context.Background()
	ref := newRef()
	env.credit(t, ref, 100000)
	env.addAccount(t, ref)
	p := env.request(t, ref, 20000)
	processCancelled(t, env, p)

	report, err := newTestSweeper(env, nil).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Redispatched)
	assert.Equal(t, 1, report.Unchanged)

	sent := env.gateway.calls()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0].IdempotencyKey, sent[1].IdempotencyKey)

	got, err := env.payouts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.AwaitingConfirmation())
	assert.Equal(t, 2, got.Attempts)
}

func TestSweeper_VerifyErrorCounted(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ctx := context.Background()
	ref := newRef()
	env.credit(t, ref, 100000)
	env.addAccount(t, ref)
	p := env.request(t, ref, 20000)
	_, err := env.payouts.Process(ctx, p.ID)
	require.NoError(t, err)

	env.gateway.verify = func(context.Context, string) (*domain.VerifyResult, error) {
		return nil, errors.New("connection reset")
	}

	report, err := newTestSweeper(env, nil).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 1, Errors: 1}, report)
}

func TestSweeper_FreshPayoutsIgnored(t *testing.T) {
	env := newTestEnv(t, testPayoutConfig)
	ctx := context.Background()
	ref := newRef()
	env.credit(t, ref, 100000)
	env.addAccount(t, ref)
	p := env.request(t, ref, 20000)
	_, err := env.payouts.Process(ctx, p.ID)
	require.NoError(t, err)

	s := NewSweeper(env.payouts, nil, testPayoutConfig, newTestLogger())
	report, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
}

func TestSweeper_LeaseHeldElsewhere(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	env := newTestEnv(t, testPayoutConfig)
	lease := mocks.NewMockLease(ctrl)
	lease.EXPECT().Acquire(gomock.Any(), sweepLeaseName, time.Minute).Return(false, nil)

	report, err := newTestSweeper(env, lease).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
}

func TestSweeper_LeaseReleased(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	env := newTestEnv(t, testPayoutConfig)
	lease := mocks.NewMockLease(ctrl)
	gomock.InOrder(
		lease.EXPECT().Acquire(gomock.Any(), sweepLeaseName, gomock.Any()).Return(true, nil),
		lease.EXPECT().Release(gomock.Any(), sweepLeaseName).Return(nil),
	)

	report, err := newTestSweeper(env, lease).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
}
