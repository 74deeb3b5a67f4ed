package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/logger"

	"github.com/rs/zerolog"
)

// CardPaySignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const CardPaySignatureHeader = "X-CardPay-Signature"

const defaultCardPayTimeout = 10 * time.Second

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CardPay talks to a card processor's REST payout API.
type CardPay struct {
	baseURL    string
	apiKey     string
	secret     string
	sigSvc     ports.SignatureService
	httpClient HTTPDoer
	log        zerolog.Logger
}

// NewCardPay creates the adapter. A nil httpClient gets a client with a
// fixed timeout.
func NewCardPay(cfg config.CardPayConfig, sigSvc ports.SignatureService, httpClient HTTPDoer, log zerolog.Logger) *CardPay {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultCardPayTimeout}
	}
	return &CardPay{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secret:     cfg.Secret,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		log:        logger.Component(log, "cardpay"),
	}
}

func (c *CardPay) Provider() domain.Provider { return domain.ProviderCardPay }

func (c *CardPay) SignatureHeader() string { return CardPaySignatureHeader }

type cardPayPayoutRequest struct {
	Amount      int64              `json:"amount"`
	Currency    string             `json:"currency"`
	Description string             `json:"description,omitempty"`
	Destination cardPayDestination `json:"destination"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

type cardPayDestination struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code,omitempty"`
	BankName      string `json:"bank_name"`
	Email         string `json:"email,omitempty"`
}

type cardPayPayout struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_reason"`
}

type cardPayRefundRequest struct {
	Charge   string `json:"charge"`
	Amount   *int64 `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type cardPayRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type cardPayErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// InitiatePayout posts to /v1/payouts. The idempotency key is sent as a
// header so a redispatch returns the original payout.
func (c *CardPay) InitiatePayout(ctx context.Context, in domain.PayoutInstruction) (*domain.PayoutResult, error) {
	body := cardPayPayoutRequest{
		Amount:      in.Amount,
		Currency:    strings.ToUpper(in.Currency),
		Description: in.Description,
		Destination: cardPayDestination{
			AccountName:   in.Destination.AccountName,
			AccountNumber: in.Destination.AccountNumber,
			BankCode:      in.Destination.BankCode,
			BankName:      in.Destination.BankName,
			Email:         in.Destination.Email,
		},
	}
	if in.Reference != "" {
		body.Metadata = map[string]string{"reference": in.Reference}
	}

	var out cardPayPayout
	if err := c.do(ctx, "create payout", http.MethodPost, "/v1/payouts", in.IdempotencyKey, body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &ports.GatewayError{Provider: c.Provider(), Op: "create payout", Err: errors.New("empty payout id")}
	}

	c.log.Info().Str("payout_id", out.ID).Str("status", out.Status).Msg("payout created")
	return &domain.PayoutResult{ExternalRef: out.ID, Status: cardPayStatus(out.Status), Reason: out.FailureReason}, nil
}

// VerifyTransaction fetches a payout by its CardPay id.
func (c *CardPay) VerifyTransaction(ctx context.Context, externalRef string) (*domain.VerifyResult, error) {
	var out cardPayPayout
	if err := c.do(ctx, "verify", http.MethodGet, "/v1/payouts/"+url.PathEscape(externalRef), "", nil, &out); err != nil {
		return nil, err
	}
	return &domain.VerifyResult{
		ExternalRef: out.ID,
		Status:      cardPayStatus(out.Status),
		Amount:      out.Amount,
		Currency:    out.Currency,
		Reason:      out.FailureReason,
		Metadata:    map[string]string{"cardpay_status": out.Status},
	}, nil
}

// CreateRefund posts to /v1/refunds.
func (c *CardPay) CreateRefund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	body := cardPayRefundRequest{
		Charge:   req.ExternalRef,
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		Reason:   req.Reason,
	}
	var out cardPayRefund
	if err := c.do(ctx, "refund", http.MethodPost, "/v1/refunds", req.Key, body, &out); err != nil {
		return nil, err
	}
	return &domain.RefundResult{RefundRef: out.ID, Status: cardPayStatus(out.Status)}, nil
}

type cardPayWebhook struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		cardPayPayout
		Metadata map[string]string `json:"metadata"`
	} `json:"data"`
}

// VerifyWebhookSignature checks the body HMAC and decodes a payout event.
func (c *CardPay) VerifyWebhookSignature(payload []byte, signature string) (*domain.GatewayEvent, error) {
	if c.secret == "" || signature == "" || !c.sigSvc.Verify(c.secret, payload, signature) {
		return nil, ports.ErrInvalidSignature
	}

	var w cardPayWebhook
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("decode cardpay webhook: %w", err)
	}
	if w.ID == "" || w.Data.ID == "" {
		return nil, errors.New("cardpay webhook without event or payout id")
	}

	event := &domain.GatewayEvent{
		Provider:        domain.ProviderCardPay,
		EventID:         w.ID,
		ExternalRef:     w.Data.ID,
		PayoutReference: w.Data.Metadata["reference"],
		Status:          cardPayStatus(w.Data.Status),
		Amount:          w.Data.Amount,
		Currency:        w.Data.Currency,
		Reason:          w.Data.FailureReason,
	}
	if w.Created > 0 {
		event.OccurredAt = time.Unix(w.Created, 0).UTC()
	}
	return event, nil
}

func (c *CardPay) do(ctx context.Context, op, method, path, idempotencyKey string, in, out any) error {
	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &ports.GatewayError{Provider: c.Provider(), Op: op, Err: err}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &ports.GatewayError{Provider: c.Provider(), Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ports.GatewayError{Provider: c.Provider(), Op: op, Retryable: true, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn().Err(cerr).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ports.GatewayError{Provider: c.Provider(), Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *CardPay) statusError(op string, resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)
	var body cardPayErrorBody
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
	c.log.Warn().Str("op", op).Int("status", resp.StatusCode).Bool("retryable", retryable).Msg(msg)
	return &ports.GatewayError{
		Provider:  c.Provider(),
		Op:        op,
		Retryable: retryable,
		Err:       fmt.Errorf("status %d: %s", resp.StatusCode, msg),
	}
}

func cardPayStatus(s string) domain.GatewayStatus {
	switch strings.ToLower(s) {
	case "paid", "succeeded", "completed":
		return domain.GatewayStatusCompleted
	case "failed", "canceled", "cancelled", "rejected":
		return domain.GatewayStatusFailed
	}
	return domain.GatewayStatusProcessing
}
