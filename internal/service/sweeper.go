package service

import (
	"context"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const sweepLeaseName = "payout-sweep"

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	Skipped      bool `json:"skipped"`
	Checked      int  `json:"checked"`
	Completed    int  `json:"completed"`
	Failed       int  `json:"failed"`
	Redispatched int  `json:"redispatched"`
	Unchanged    int  `json:"unchanged"`
	Errors       int  `json:"errors"`
}

// Sweeper re-verifies PROCESSING payouts that have not moved for a while,
// so none stays ambiguous forever.
type Sweeper struct {
	payouts *PayoutServiceImpl
	lease   ports.Lease
	cfg     config.PayoutConfig
	now     func() time.Time
	log     zerolog.Logger
}

// NewSweeper creates a Sweeper. lease may be nil when a single replica runs.
func NewSweeper(payouts *PayoutServiceImpl, lease ports.Lease, cfg config.PayoutConfig, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		payouts: payouts,
		lease:   lease,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger.Component(log, "sweeper"),
	}
}

// Run sweeps every SweepInterval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("payout sweep failed")
			}
		}
	}
}

// SweepOnce runs a single pass. It skips the pass when another replica
// holds the sweep lease.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	if s.lease != nil {
		ttl := max(s.cfg.SweepInterval, time.Minute)
		ok, err := s.lease.Acquire(ctx, sweepLeaseName, ttl)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := s.lease.Release(context.WithoutCancel(ctx), sweepLeaseName); err != nil {
				s.log.Warn().Err(err).Msg("failed to release sweep lease")
			}
		}()
	}

	batch := s.cfg.SweepBatch
	if batch <= 0 {
		batch = 100
	}
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	stale, err := s.payouts.payoutRepo.ListStale(ctx, cutoff, batch)
	if err != nil {
		return report, err
	}

	for i := range stale {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		s.recheck(ctx, &stale[i], &report)
	}

	if report.Checked > 0 {
		s.log.Info().
			Int("checked", report.Checked).
			Int("completed", report.Completed).
			Int("failed", report.Failed).
			Int("redispatched", report.Redispatched).
			Int("errors", report.Errors).
			Msg("payout sweep finished")
	}
	return report, nil
}

func (s *Sweeper) recheck(ctx context.Context, p *domain.Payout, report *SweepReport) {
	log := s.log.With().Str("payout_id", p.ID.String()).Str("provider", string(p.Provider)).Logger()

	adapter, err := s.payouts.gateways.Get(p.Provider)
	if err != nil {
		log.Error().Err(err).Msg("no adapter for stale payout")
		report.Errors++
		return
	}

	var o outcome
	if p.ExternalPayoutID == nil {
		o, err = s.redispatch(ctx, adapter, p)
		if err != nil {
			log.Warn().Err(err).Msg("re-dispatch of stale payout failed")
			report.Errors++
			return
		}
		report.Redispatched++
	} else {
		o, err = s.verify(ctx, adapter, p)
		if err != nil {
			log.Warn().Err(err).Msg("verification of stale payout failed")
			report.Errors++
			return
		}
	}

	updated, changed, err := s.payouts.apply(ctx, p.ID, o)
	if err != nil {
		log.Error().Err(err).Msg("failed to record sweep result")
		report.Errors++
		return
	}
	switch {
	case changed && updated.Status == domain.PayoutStatusCompleted:
		report.Completed++
	case changed && updated.Status == domain.PayoutStatusFailed:
		report.Failed++
	default:
		report.Unchanged++
	}
}

// redispatch resends a payout whose gateway reply was never recorded. The
// same idempotency key makes the gateway return the original transfer.
func (s *Sweeper) redispatch(ctx context.Context, adapter ports.GatewayAdapter, p *domain.Payout) (outcome, error) {
	var dest domain.Destination
	err := s.payouts.runner.run(ctx, func(tx pgx.Tx) error {
		var err error
		dest, err = s.payouts.destination(ctx, tx, p.BankAccountID)
		return err
	})
	if err != nil {
		return outcome{}, err
	}

	result, attempts, err := s.payouts.dispatch(ctx, adapter, p, dest)
	if err != nil {
		if ports.IsRetryable(err) {
			return outcome{status: domain.PayoutStatusProcessing, attempts: attempts}, nil
		}
		return outcome{status: domain.PayoutStatusFailed, reason: failureReason(err), attempts: attempts}, nil
	}
	return outcome{
		status:      statusFromGateway(result.Status),
		externalRef: result.ExternalRef,
		reason:      result.Reason,
		attempts:    attempts,
	}, nil
}

// verify asks the gateway for the current state of an accepted payout.
func (s *Sweeper) verify(ctx context.Context, adapter ports.GatewayAdapter, p *domain.Payout) (outcome, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.cfg.GatewayTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	}
	defer cancel()

	vr, err := adapter.VerifyTransaction(callCtx, *p.ExternalPayoutID)
	if err != nil {
		return outcome{}, err
	}

	status := statusFromGateway(vr.Status)
	if status == domain.PayoutStatusCompleted && vr.Amount != 0 && vr.Amount != p.Amount {
		s.log.Error().
			Str("payout_id", p.ID.String()).
			Int64("amount", p.Amount).
			Int64("gateway_amount", vr.Amount).
			Msg("gateway amount differs from payout; left for manual review")
		status = domain.PayoutStatusProcessing
	}
	return outcome{status: status, reason: vr.Reason}, nil
}
