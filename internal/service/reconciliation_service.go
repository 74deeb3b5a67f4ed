package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"
	"github.com/victoryunusa/truetab-api-sub000/pkg/logger"

	"github.com/rs/zerolog"
)

const defaultEventDedupTTL = 7 * 24 * time.Hour

// ReconciliationServiceImpl implements ports.ReconciliationService.
type ReconciliationServiceImpl struct {
	gateways   ports.GatewayRegistry
	payouts    ports.PayoutService
	payoutRepo ports.PayoutRepository
	deduper    ports.EventDeduper
	dedupTTL   time.Duration
	log        zerolog.Logger
}

// NewReconciliationService creates a new ReconciliationServiceImpl.
// deduper may be nil; terminal payouts ignore replays either way.
func NewReconciliationService(
	gateways ports.GatewayRegistry,
	payouts ports.PayoutService,
	payoutRepo ports.PayoutRepository,
	deduper ports.EventDeduper,
	dedupTTL time.Duration,
	log zerolog.Logger,
) *ReconciliationServiceImpl {
	if dedupTTL <= 0 {
		dedupTTL = defaultEventDedupTTL
	}
	return &ReconciliationServiceImpl{
		gateways:   gateways,
		payouts:    payouts,
		payoutRepo: payoutRepo,
		deduper:    deduper,
		dedupTTL:   dedupTTL,
		log:        logger.Component(log, "reconciliation"),
	}
}

// HandleWebhook authenticates a provider notification and applies it to the
// matching payout. Replays and notifications for unknown payouts are
// acknowledged without error.
func (s *ReconciliationServiceImpl) HandleWebhook(ctx context.Context, provider domain.Provider, payload []byte, header http.Header) (*ports.ReconcileResult, error) {
	adapter, err := s.gateways.Get(provider)
	if err != nil {
		return nil, apperror.ErrUnknownProvider(string(provider))
	}

	event, err := adapter.VerifyWebhookSignature(payload, header.Get(adapter.SignatureHeader()))
	if err != nil {
		if errors.Is(err, ports.ErrInvalidSignature) {
			s.log.Warn().Str("provider", string(provider)).Msg("webhook signature rejected")
			return nil, apperror.ErrAuthentication()
		}
		return nil, apperror.Validation(fmt.Sprintf("malformed %s webhook: %v", provider, err))
	}
	if event.Provider == "" {
		event.Provider = provider
	}

	log := s.log.With().
		Str("provider", string(provider)).
		Str("event_id", event.EventID).
		Str("external_ref", event.ExternalRef).
		Str("status", string(event.Status)).
		Logger()

	eventKey := ""
	if s.deduper != nil && event.EventID != "" {
		eventKey = domain.BuildEventKey(provider, event.EventID)
		fresh, err := s.deduper.MarkSeen(ctx, eventKey, s.dedupTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("event dedupe unavailable, relying on payout state")
			eventKey = ""
		case !fresh:
			log.Debug().Msg("duplicate webhook event")
			return &ports.ReconcileResult{Outcome: ports.OutcomeDuplicate}, nil
		}
	}

	result, err := s.reconcile(ctx, log, event)
	if err != nil && eventKey != "" {
		if ferr := s.deduper.Forget(ctx, eventKey); ferr != nil {
			log.Warn().Err(ferr).Msg("failed to release event key")
		}
	}
	return result, err
}

func (s *ReconciliationServiceImpl) reconcile(ctx context.Context, log zerolog.Logger, event *domain.GatewayEvent) (*ports.ReconcileResult, error) {
	p, err := s.findPayout(ctx, event)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if p == nil {
		log.Warn().Str("payout_reference", event.PayoutReference).Msg("webhook for unknown payout dropped")
		return &ports.ReconcileResult{Outcome: ports.OutcomeUnknownPayout}, nil
	}

	if p.Status.IsTerminal() {
		if event.Status == domain.GatewayStatusCompleted && p.Status != domain.PayoutStatusCompleted {
			log.Error().
				Str("payout_id", p.ID.String()).
				Str("payout_status", string(p.Status)).
				Msg("gateway reports completion of a payout closed locally; manual review required")
		}
		return &ports.ReconcileResult{Outcome: ports.OutcomeAlreadyFinal, Payout: p}, nil
	}

	var updated *domain.Payout
	switch event.Status {
	case domain.GatewayStatusCompleted:
		updated, err = s.payouts.Complete(ctx, p.ID, event.ExternalRef)
	case domain.GatewayStatusFailed:
		reason := event.Reason
		if reason == "" {
			reason = "rejected by " + string(event.Provider)
		}
		updated, err = s.payouts.Fail(ctx, p.ID, reason)
	default:
		return &ports.ReconcileResult{Outcome: ports.OutcomeInterim, Payout: p}, nil
	}
	if err != nil {
		log.Error().Err(err).Str("payout_id", p.ID.String()).Msg("failed to apply webhook")
		return nil, err
	}

	log.Info().Str("payout_id", updated.ID.String()).Str("payout_status", string(updated.Status)).Msg("webhook applied")
	return &ports.ReconcileResult{Outcome: ports.OutcomeApplied, Payout: updated}, nil
}

// findPayout matches by external ref, then by payout reference when exactly
// one payout of the provider carries it.
func (s *ReconciliationServiceImpl) findPayout(ctx context.Context, event *domain.GatewayEvent) (*domain.Payout, error) {
	if event.ExternalRef != "" {
		p, err := s.payoutRepo.GetByExternalRef(ctx, event.Provider, event.ExternalRef)
		if err != nil {
			return nil, fmt.Errorf("get payout by external ref: %w", err)
		}
		if p != nil {
			return p, nil
		}
	}
	if event.PayoutReference == "" {
		return nil, nil
	}

	matches, err := s.payoutRepo.ListByReference(ctx, event.Provider, event.PayoutReference)
	if err != nil {
		return nil, fmt.Errorf("list payouts by reference: %w", err)
	}
	if len(matches) != 1 {
		return nil, nil
	}
	return &matches[0], nil
}
