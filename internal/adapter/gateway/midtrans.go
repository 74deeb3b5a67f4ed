package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/logger"
	"github.com/victoryunusa/truetab-api-sub000/pkg/money"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/iris"
	"github.com/rs/zerolog"
)

// IrisSignatureHeader carries SHA512(body + merchant key) on Iris notifications.
const IrisSignatureHeader = "Iris-Signature"

// Iris only disburses rupiah.
const irisCurrency = "IDR"

const maxIrisNotes = 100

// irisAPI is the subset of iris.Client used for disbursements.
type irisAPI interface {
	CreatePayout(req iris.CreatePayoutReq) (*iris.CreatePayoutResponse, *midtrans.Error)
	GetPayoutDetails(referenceNo string) (*iris.PayoutDetailResponse, *midtrans.Error)
}

// coreAPI is the subset of coreapi.Client used for charges.
type coreAPI interface {
	CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
	RefundTransaction(param string, req *coreapi.RefundReq) (*coreapi.RefundResponse, *midtrans.Error)
}

// Midtrans sends payouts through Iris and checks or refunds order charges
// through the Core API.
type Midtrans struct {
	iris        func(idempotencyKey string) irisAPI
	core        coreAPI
	merchantKey string
	log         zerolog.Logger
}

// NewMidtrans creates the adapter from credentials.
func NewMidtrans(cfg config.MidtransConfig, log zerolog.Logger) *Midtrans {
	env := midtrans.Sandbox
	if strings.EqualFold(cfg.Env, "production") {
		env = midtrans.Production
	}

	core := coreapi.Client{}
	core.New(cfg.ServerKey, env)

	irisKey := cfg.IrisKey
	return &Midtrans{
		iris: func(idempotencyKey string) irisAPI {
			c := iris.Client{}
			c.New(irisKey, env)
			if idempotencyKey != "" {
				if c.Options == nil {
					c.Options = &midtrans.ConfigOptions{}
				}
				c.Options.SetPaymentIdempotencyKey(idempotencyKey)
			}
			return &c
		},
		core:        &core,
		merchantKey: cfg.IrisMerchantKey,
		log:         logger.Component(log, "midtrans"),
	}
}

func (m *Midtrans) Provider() domain.Provider { return domain.ProviderMidtrans }

func (m *Midtrans) SignatureHeader() string { return IrisSignatureHeader }

// InitiatePayout creates a single-beneficiary Iris payout.
func (m *Midtrans) InitiatePayout(ctx context.Context, in domain.PayoutInstruction) (*domain.PayoutResult, error) {
	const op = "create payout"
	if !strings.EqualFold(in.Currency, irisCurrency) {
		return nil, m.reject(op, fmt.Errorf("unsupported currency %s", in.Currency))
	}

	bank := in.Destination.BankCode
	if bank == "" {
		bank = strings.ToLower(in.Destination.BankName)
	}
	req := iris.CreatePayoutReq{
		Payouts: []iris.CreatePayoutDetailReq{{
			BeneficiaryName:    in.Destination.AccountName,
			BeneficiaryAccount: in.Destination.AccountNumber,
			BeneficiaryBank:    bank,
			BeneficiaryEmail:   in.Destination.Email,
			Amount:             money.Format(in.Amount, irisCurrency),
			Notes:              truncate(in.Description, maxIrisNotes),
		}},
	}

	client := m.iris(in.IdempotencyKey)
	resp, merr, err := call(ctx, func() (*iris.CreatePayoutResponse, *midtrans.Error) {
		return client.CreatePayout(req)
	})
	if err != nil {
		return nil, &ports.GatewayError{Provider: m.Provider(), Op: op, Retryable: true, Err: err}
	}
	if merr != nil {
		return nil, m.wrap(op, merr)
	}
	if resp == nil || len(resp.Payouts) == 0 || resp.Payouts[0].ReferenceNo == "" {
		return nil, m.reject(op, errors.New("empty payout response"))
	}

	out := resp.Payouts[0]
	m.log.Info().Str("reference_no", out.ReferenceNo).Str("status", out.Status).Msg("iris payout created")
	return &domain.PayoutResult{ExternalRef: out.ReferenceNo, Status: irisStatus(out.Status)}, nil
}

// VerifyTransaction looks externalRef up as an Iris payout first and as a
// Core API charge when Iris does not know it.
func (m *Midtrans) VerifyTransaction(ctx context.Context, externalRef string) (*domain.VerifyResult, error) {
	const op = "verify"
	client := m.iris("")
	detail, merr, err := call(ctx, func() (*iris.PayoutDetailResponse, *midtrans.Error) {
		return client.GetPayoutDetails(externalRef)
	})
	if err != nil {
		return nil, &ports.GatewayError{Provider: m.Provider(), Op: op, Retryable: true, Err: err}
	}
	if merr == nil && detail != nil {
		amount, perr := money.Parse(detail.Amount, irisCurrency)
		if perr != nil {
			return nil, m.reject(op, fmt.Errorf("payout amount %q: %w", detail.Amount, perr))
		}
		return &domain.VerifyResult{
			ExternalRef: externalRef,
			Status:      irisStatus(detail.Status),
			Amount:      amount,
			Currency:    irisCurrency,
			Metadata:    map[string]string{"iris_status": detail.Status},
		}, nil
	}
	if merr != nil && merr.StatusCode != http.StatusNotFound {
		return nil, m.wrap(op, merr)
	}
	return m.verifyCharge(ctx, externalRef)
}

func (m *Midtrans) verifyCharge(ctx context.Context, orderID string) (*domain.VerifyResult, error) {
	const op = "check transaction"
	st, merr, err := call(ctx, func() (*coreapi.TransactionStatusResponse, *midtrans.Error) {
		return m.core.CheckTransaction(orderID)
	})
	if err != nil {
		return nil, &ports.GatewayError{Provider: m.Provider(), Op: op, Retryable: true, Err: err}
	}
	if merr != nil {
		return nil, m.wrap(op, merr)
	}

	currency := st.Currency
	if currency == "" {
		currency = irisCurrency
	}
	amount, perr := money.Parse(st.GrossAmount, currency)
	if perr != nil {
		return nil, m.reject(op, fmt.Errorf("gross amount %q: %w", st.GrossAmount, perr))
	}
	return &domain.VerifyResult{
		ExternalRef: orderID,
		Status:      chargeStatus(st.TransactionStatus),
		Amount:      amount,
		Currency:    currency,
		Reason:      st.StatusMessage,
		Metadata: map[string]string{
			"transaction_id":     st.TransactionID,
			"transaction_status": st.TransactionStatus,
			"fraud_status":       st.FraudStatus,
		},
	}, nil
}

// CreateRefund refunds all or part of a Core API charge.
func (m *Midtrans) CreateRefund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	const op = "refund"
	body := &coreapi.RefundReq{RefundKey: req.Key, Reason: req.Reason}
	if req.Amount != nil {
		if !strings.EqualFold(req.Currency, irisCurrency) && req.Currency != "" {
			return nil, m.reject(op, fmt.Errorf("unsupported currency %s", req.Currency))
		}
		body.Amount = *req.Amount
	}

	resp, merr, err := call(ctx, func() (*coreapi.RefundResponse, *midtrans.Error) {
		return m.core.RefundTransaction(req.ExternalRef, body)
	})
	if err != nil {
		return nil, &ports.GatewayError{Provider: m.Provider(), Op: op, Retryable: true, Err: err}
	}
	if merr != nil {
		return nil, m.wrap(op, merr)
	}

	refundRef := resp.RefundKey
	if refundRef == "" {
		refundRef = req.Key
	}
	return &domain.RefundResult{RefundRef: refundRef, Status: chargeStatus(resp.TransactionStatus)}, nil
}

// irisNotification is the body Iris posts on payout status changes.
type irisNotification struct {
	ReferenceNo  string `json:"reference_no"`
	Amount       string `json:"amount"`
	Status       string `json:"status"`
	UpdatedAt    string `json:"updated_at"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// VerifyWebhookSignature checks Iris-Signature and decodes the notification.
func (m *Midtrans) VerifyWebhookSignature(payload []byte, signature string) (*domain.GatewayEvent, error) {
	if m.merchantKey == "" || signature == "" {
		return nil, ports.ErrInvalidSignature
	}
	sum := sha512.Sum512(append(append([]byte(nil), payload...), m.merchantKey...))
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) != 1 {
		return nil, ports.ErrInvalidSignature
	}

	var n irisNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("decode iris notification: %w", err)
	}
	if n.ReferenceNo == "" {
		return nil, errors.New("iris notification without reference_no")
	}

	event := &domain.GatewayEvent{
		Provider:    domain.ProviderMidtrans,
		EventID:     n.ReferenceNo + ":" + strings.ToLower(n.Status),
		ExternalRef: n.ReferenceNo,
		Status:      irisStatus(n.Status),
		Currency:    irisCurrency,
		Reason:      n.ErrorMessage,
	}
	if event.Reason == "" && n.ErrorCode != "" {
		event.Reason = n.ErrorCode
	}
	if n.Amount != "" {
		if amount, err := money.Parse(n.Amount, irisCurrency); err == nil {
			event.Amount = amount
		}
	}
	if t, err := time.Parse(time.RFC3339, n.UpdatedAt); err == nil {
		event.OccurredAt = t
	}
	return event, nil
}

func (m *Midtrans) wrap(op string, merr *midtrans.Error) error {
	code := merr.StatusCode
	return &ports.GatewayError{
		Provider:  m.Provider(),
		Op:        op,
		Retryable: code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError,
		Err:       errors.New(merr.GetMessage()),
	}
}

func (m *Midtrans) reject(op string, err error) error {
	return &ports.GatewayError{Provider: m.Provider(), Op: op, Err: err}
}

type reply[T any] struct {
	res *T
	err *midtrans.Error
}

// call runs a blocking SDK request and gives up when ctx ends. The SDK
// returns a typed *midtrans.Error, so it is kept apart from ctx errors.
func call[T any](ctx context.Context, fn func() (*T, *midtrans.Error)) (*T, *midtrans.Error, error) {
	ch := make(chan reply[T], 1)
	go func() {
		res, err := fn()
		ch <- reply[T]{res: res, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case r := <-ch:
		return r.res, r.err, nil
	}
}

func irisStatus(s string) domain.GatewayStatus {
	switch strings.ToLower(s) {
	case "completed":
		return domain.GatewayStatusCompleted
	case "failed", "rejected":
		return domain.GatewayStatusFailed
	}
	return domain.GatewayStatusProcessing
}

func chargeStatus(s string) domain.GatewayStatus {
	switch strings.ToLower(s) {
	case "settlement", "capture", "refund", "partial_refund":
		return domain.GatewayStatusCompleted
	case "deny", "cancel", "expire", "failure":
		return domain.GatewayStatusFailed
	}
	return domain.GatewayStatusProcessing
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
