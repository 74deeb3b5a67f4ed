package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/logger"

	"github.com/rs/zerolog"
)

// notifyRetryIntervals are the waits between delivery attempts.
var notifyRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// Notification headers.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderEvent     = "X-Event"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// payoutNotifier implements ports.PayoutNotifier.
type payoutNotifier struct {
	url        string
	secret     string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	intervals  []time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewPayoutNotifier creates the outbound payout event sender. It returns nil
// when no URL is configured so callers can skip notification entirely.
func NewPayoutNotifier(cfg config.NotifyConfig, sigSvc ports.SignatureService, httpClient HTTPClient, log zerolog.Logger) ports.PayoutNotifier {
	if cfg.URL == "" {
		return nil
	}
	return &payoutNotifier{
		url:        cfg.URL,
		secret:     cfg.Secret,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		intervals:  notifyRetryIntervals,
		now:        time.Now,
		log:        logger.Component(log, "notifier"),
	}
}

// Notify sends event asynchronously with retries.
func (s *payoutNotifier) Notify(ctx context.Context, event *domain.PayoutEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Str("payout_id", event.PayoutID.String()).Msg("notify: failed to marshal event")
		return
	}
	go s.deliverWithRetries(context.WithoutCancel(ctx), event, body)
}

// deliverWithRetries attempts to deliver the event, waiting between attempts.
func (s *payoutNotifier) deliverWithRetries(ctx context.Context, event *domain.PayoutEvent, body []byte) {
	payoutID := event.PayoutID.String()

	for attempt := 0; attempt <= len(s.intervals); attempt++ {
		if attempt > 0 {
			time.Sleep(s.intervals[attempt-1])
		}

		ts := s.now().Unix()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			s.log.Error().Err(err).Str("payout_id", payoutID).Msg("notify: failed to create request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderEvent, string(event.Event))
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderSignature, s.sigSvc.Sign(s.secret, TimestampedPayload(ts, body)))

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.log.Warn().Err(err).Str("payout_id", payoutID).Int("attempt", attempt+1).Msg("notify: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.log.Info().Str("payout_id", payoutID).Int("attempt", attempt+1).Str("event", string(event.Event)).Msg("notify: delivered")
			return
		}

		s.log.Warn().Str("payout_id", payoutID).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("notify: non-2xx response, retrying")
	}

	s.log.Error().Str("payout_id", payoutID).Msg("notify: all retry attempts exhausted")
}
