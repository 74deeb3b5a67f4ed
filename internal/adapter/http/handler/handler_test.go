package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/http/middleware"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports/mocks"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	Meta      map[string]any  `json:"meta"`
	Duplicate bool            `json:"duplicate"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func merchantClaims() *ports.TokenClaims {
	return &ports.TokenClaims{Subject: "owner", BrandID: uuid.New(), Role: ports.RoleMerchant}
}

// newContext builds a gin test context carrying claims, as JWTAuth would.
func newContext(method, target string, body any, claims *ports.TokenClaims) (*gin.Context, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	if claims != nil {
		c.Set(middleware.CtxClaims, claims)
	}
	return c, w
}

// --- Wallet ---

func TestWalletHandler_Balance(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockLedgerService(ctrl)
	claims := merchantClaims()
	ledger.EXPECT().GetBalance(gomock.Any(), claims.WalletRef()).Return(&ports.Balance{
		WalletID: uuid.New(), Currency: "IDR", Balance: 150000, Available: 100000, Reserved: 50000,
	}, nil)

	c, w := newContext(http.MethodGet, "/api/v1/wallet/balance", nil, claims)
	NewWalletHandler(ledger).Balance(c)

	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.Equal(t, float64(100000), data["available_balance"])
	assert.Equal(t, "150000", data["balance_display"])
}

func TestWalletHandler_NoClaims(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c, w := newContext(http.MethodGet, "/api/v1/wallet", nil, nil)
	NewWalletHandler(mocks.NewMockLedgerService(ctrl)).Summary(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWalletHandler_Transactions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockLedgerService(ctrl)
	claims := merchantClaims()
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	ledger.EXPECT().History(gomock.Any(), claims.WalletRef(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, _ domain.WalletRef, f domain.TransactionFilter, p domain.PageRequest) (*domain.TransactionPage, error) {
			require.NotNil(t, f.Type)
			assert.Equal(t, domain.TransactionTypeCredit, *f.Type)
			require.NotNil(t, f.From)
			assert.True(t, from.Equal(*f.From))
			assert.Nil(t, f.To)
			assert.Equal(t, 5, p.Limit)
			assert.Equal(t, "abc", p.Cursor)
			return &domain.TransactionPage{
				Items: []domain.Transaction{{
					ID: uuid.New(), Type: domain.TransactionTypeCredit, Amount: 25000, Currency: "IDR",
					Status: domain.TransactionStatusCompleted, Reference: domain.OrderRef("ORD-1"), CreatedAt: from,
				}},
				Total:      7,
				NextCursor: "next",
			}, nil
		})

	c, w := newContext(http.MethodGet, "/api/v1/wallet/transactions?type=CREDIT&from=2026-10-01T00:00:00Z&limit=5&cursor=abc", nil, claims)
	NewWalletHandler(ledger).Transactions(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, "next", env.Meta["next_cursor"])
	assert.Equal(t, float64(7), env.Meta["total"])

	var items []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "ORDER", items[0]["reference_kind"])
	assert.Equal(t, "ORD-1", items[0]["reference_id"])
}

func TestWalletHandler_Transactions_BadFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWalletHandler(mocks.NewMockLedgerService(ctrl))
	for _, q := range []string{
		"type=BOGUS",
		"from=yesterday",
		"from=2026-10-02T00:00:00Z&to=2026-10-01T00:00:00Z",
	} {
		c, w := newContext(http.MethodGet, "/api/v1/wallet/transactions?"+q, nil, merchantClaims())
		h.Transactions(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

// --- Payouts ---

func TestPayoutHandler_Create(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	payouts := mocks.NewMockPayoutService(ctrl)
	claims := merchantClaims()
	accountID := uuid.New()
	created := &domain.Payout{ID: uuid.New(), Amount: 50000, Currency: "IDR", Status: domain.PayoutStatusPending, Reference: "PO-1"}

	payouts.EXPECT().RequestPayout(gomock.Any(), ports.PayoutRequest{
		Wallet:        claims.WalletRef(),
		Amount:        50000,
		Currency:      "IDR",
		BankAccountID: &accountID,
		Method:        domain.PayoutMethodInstant,
		Reference:     "PO-1",
	}).Return(created, nil)

	c, w := newContext(http.MethodPost, "/api/v1/payouts", map[string]any{
		"amount": 50000, "currency": "idr", "bank_account_id": accountID.String(), "method": "INSTANT", "reference": "PO-1",
	}, claims)
	NewPayoutHandler(payouts).Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var data map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.Equal(t, "PENDING", data["status"])
	assert.Equal(t, "50000", data["amount_display"])
	assert.Equal(t, created.ID.String(), c.GetString(middleware.CtxAuditResource))
}

func TestPayoutHandler_Create_DuplicateEchoes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	payouts := mocks.NewMockPayoutService(ctrl)
	existing := &domain.Payout{ID: uuid.New(), Amount: 50000, Currency: "IDR", Status: domain.PayoutStatusProcessing, Reference: "PO-1"}
	payouts.EXPECT().RequestPayout(gomock.Any(), gomock.Any()).Return(existing, apperror.ErrDuplicateOperation())

	c, w := newContext(http.MethodPost, "/api/v1/payouts", map[string]any{"amount": 50000, "reference": "PO-1"}, merchantClaims())
	NewPayoutHandler(payouts).Create(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.True(t, env.Duplicate)
	assert.Contains(t, string(env.Data), existing.ID.String())
}

func TestPayoutHandler_Create_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		svcErr   error
		wantCode int
		wantErr  string
	}{
		{"validation", map[string]any{"amount": -1}, nil, http.StatusBadRequest, apperror.CodeValidation},
		{"below minimum", map[string]any{"amount": 100}, apperror.ErrBelowMinimum("10000"), http.StatusUnprocessableEntity, apperror.CodeBelowMinimum},
		{"insufficient", map[string]any{"amount": 90000}, apperror.ErrInsufficientBalance(), http.StatusUnprocessableEntity, apperror.CodeInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			payouts := mocks.NewMockPayoutService(ctrl)
			if tt.svcErr != nil {
				payouts.EXPECT().RequestPayout(gomock.Any(), gomock.Any()).Return(nil, tt.svcErr)
			}

			c, w := newContext(http.MethodPost, "/api/v1/payouts", tt.body, merchantClaims())
			NewPayoutHandler(payouts).Create(c)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decode(t, w).ErrorCode)
		})
	}
}

func TestPayoutHandler_List(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	payouts := mocks.NewMockPayoutService(ctrl)
	claims := merchantClaims()
	payouts.EXPECT().List(gomock.Any(), claims.WalletRef(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, _ domain.WalletRef, f domain.PayoutFilter, p domain.PageRequest) (*ports.PayoutPage, error) {
			require.NotNil(t, f.Status)
			assert.Equal(t, domain.PayoutStatusFailed, *f.Status)
			assert.Equal(t, domain.DefaultPageSize, p.Limit)
			return &ports.PayoutPage{Items: []domain.Payout{{ID: uuid.New(), Currency: "IDR", Status: domain.PayoutStatusFailed}}, Total: 1}, nil
		})

	c, w := newContext(http.MethodGet, "/api/v1/payouts?status=failed", nil, claims)
	NewPayoutHandler(payouts).List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w).Meta["total"])
}

func TestPayoutHandler_Get_BadID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c, w := newContext(http.MethodGet, "/api/v1/payouts/nope", nil, merchantClaims())
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	NewPayoutHandler(mocks.NewMockPayoutService(ctrl)).Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayoutHandler_Cancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	payouts := mocks.NewMockPayoutService(ctrl)
	claims := merchantClaims()
	id := uuid.New()
	payouts.EXPECT().Cancel(gomock.Any(), claims.WalletRef(), id).
		Return(nil, apperror.ErrInvalidTransition("PROCESSING", "CANCELLED"))

	c, w := newContext(http.MethodPost, "/api/v1/payouts/"+id.String()+"/cancel", nil, claims)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	NewPayoutHandler(payouts).Cancel(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperror.CodeInvalidTransition, decode(t, w).ErrorCode)
}

// --- Bank accounts ---

func TestBankAccountHandler_Add(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	accounts := mocks.NewMockBankAccountService(ctrl)
	claims := merchantClaims()
	accounts.EXPECT().Add(gomock.Any(), ports.AddBankAccountRequest{
		Wallet:        claims.WalletRef(),
		AccountName:   "Warung Sate",
		BankName:      "BCA",
		BankCode:      "bca",
		AccountNumber: "1234567890",
		Currency:      "IDR",
		MakeDefault:   true,
	}).Return(&domain.BankAccount{ID: uuid.New(), AccountNumberMasked: "******7890", AccountNumberEnc: "secret"}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/bank-accounts", map[string]any{
		"account_name": " Warung Sate ", "bank_name": "BCA", "bank_code": "BCA",
		"account_number": "1234-5678-90", "currency": "idr", "make_default": true,
	}, claims)
	NewBankAccountHandler(accounts).Add(c)

	require.Equal(t, http.StatusCreated, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "******7890")
	assert.NotContains(t, body, "secret")
}

func TestBankAccountHandler_Add_NameReachesServiceVerbatim(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	accounts := mocks.NewMockBankAccountService(ctrl)
	accounts.EXPECT().Add(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, req ports.AddBankAccountRequest) (*domain.BankAccount, error) {
			assert.Equal(t, "O'Brien & Sons", req.AccountName)
			return &domain.BankAccount{ID: uuid.New(), AccountName: req.AccountName}, nil
		})

	c, w := newContext(http.MethodPost, "/api/v1/bank-accounts", map[string]any{
		"account_name": "O'Brien & Sons", "bank_name": "BCA", "account_number": "1234567890",
	}, merchantClaims())
	NewBankAccountHandler(accounts).Add(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestBankAccountHandler_Update(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	accounts := mocks.NewMockBankAccountService(ctrl)
	claims := merchantClaims()
	id := uuid.New()
	accounts.EXPECT().Update(gomock.Any(), claims.WalletRef(), id, gomock.Any()).DoAndReturn(
		func(_ any, _ domain.WalletRef, _ uuid.UUID, upd domain.BankAccountUpdate) (*domain.BankAccount, error) {
			assert.Nil(t, upd.AccountName)
			require.NotNil(t, upd.AccountNumber)
			assert.Equal(t, "9876543210", *upd.AccountNumber)
			assert.True(t, upd.ResetsVerification())
			return &domain.BankAccount{ID: id}, nil
		})

	c, w := newContext(http.MethodPatch, "/api/v1/bank-accounts/"+id.String(), map[string]any{"account_number": "98765 43210"}, claims)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	NewBankAccountHandler(accounts).Update(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBankAccountHandler_Remove(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	accounts := mocks.NewMockBankAccountService(ctrl)
	claims := merchantClaims()
	id := uuid.New()
	gomock.InOrder(
		accounts.EXPECT().Remove(gomock.Any(), claims.WalletRef(), id).Return(nil),
		accounts.EXPECT().Remove(gomock.Any(), claims.WalletRef(), id).Return(apperror.ErrHasPendingPayouts()),
	)
	h := NewBankAccountHandler(accounts)

	c, w := newContext(http.MethodDelete, "/", nil, claims)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Remove(c)
	assert.Equal(t, http.StatusNoContent, w.Code)

	c, w = newContext(http.MethodDelete, "/", nil, claims)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Remove(c)
	assert.Equal(t, apperror.CodeHasPendingPayouts, decode(t, w).ErrorCode)
}

// --- Admin ---

func TestAdminHandler_Credit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockLedgerService(ctrl)
	brand := uuid.New()
	ledger.EXPECT().Credit(gomock.Any(), ports.PostingRequest{
		Wallet:         domain.WalletRef{BrandID: brand},
		Type:           domain.TransactionTypeCredit,
		Amount:         120000,
		Reference:      domain.OrderRef("ORD-9"),
		Description:    "order settlement",
		IdempotencyKey: "order:ORD-9",
	}).Return(&domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeCredit, Amount: 120000, Currency: "IDR"}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/admin/ledger/credit", map[string]any{
		"brand_id": brand.String(), "type": "CREDIT", "amount": 120000, "description": "order settlement",
		"reference_kind": "ORDER", "reference_id": "ORD-9", "idempotency_key": "order:ORD-9",
	}, &ports.TokenClaims{Role: ports.RoleAdmin})
	NewAdminHandler(ledger, nil, nil).Credit(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAdminHandler_Debit_Duplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockLedgerService(ctrl)
	original := &domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeFee, Amount: -500, Currency: "IDR"}
	ledger.EXPECT().Debit(gomock.Any(), gomock.Any()).Return(original, apperror.ErrDuplicateOperation())

	c, w := newContext(http.MethodPost, "/api/v1/admin/ledger/debit", map[string]any{
		"brand_id": uuid.NewString(), "type": "FEE", "amount": 500, "idempotency_key": "fee:1",
	}, &ports.TokenClaims{Role: ports.RoleAdmin})
	NewAdminHandler(ledger, nil, nil).Debit(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.True(t, env.Duplicate)
	assert.Contains(t, string(env.Data), original.ID.String())
}

func TestAdminHandler_VerifyWallet(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockLedgerService(ctrl)
	brand, branch := uuid.New(), uuid.New()
	ledger.EXPECT().VerifyBalance(gomock.Any(), domain.WalletRef{BrandID: brand, BranchID: &branch}).Return(true, nil)

	c, w := newContext(http.MethodGet, "/?branch="+branch.String(), nil, nil)
	c.Params = gin.Params{{Key: "brand", Value: brand.String()}}
	NewAdminHandler(ledger, nil, nil).VerifyWallet(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"consistent":true`)

	c, w = newContext(http.MethodGet, "/?branch=x", nil, nil)
	c.Params = gin.Params{{Key: "brand", Value: brand.String()}}
	NewAdminHandler(ledger, nil, nil).VerifyWallet(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Webhooks ---

func TestWebhookHandler_Receive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reconciler := mocks.NewMockReconciliationService(ctrl)
	body := `{"reference_no":"ref-1","status":"completed"}`
	reconciler.EXPECT().HandleWebhook(gomock.Any(), domain.ProviderMidtrans, []byte(body), gomock.Any()).
		Return(&ports.ReconcileResult{Outcome: ports.OutcomeApplied}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/Midtrans", strings.NewReader(body))
	c.Params = gin.Params{{Key: "provider", Value: "Midtrans"}}
	NewWebhookHandler(reconciler).Receive(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"outcome":"applied"`)
}

func TestWebhookHandler_Rejections(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reconciler := mocks.NewMockReconciliationService(ctrl)
	reconciler.EXPECT().HandleWebhook(gomock.Any(), domain.Provider("cardpay"), gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrAuthentication())
	h := NewWebhookHandler(reconciler)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/cardpay", strings.NewReader(`{}`))
	c.Params = gin.Params{{Key: "provider", Value: "cardpay"}}
	h.Receive(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/cardpay", http.NoBody)
	c.Params = gin.Params{{Key: "provider", Value: "cardpay"}}
	h.Receive(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Health ---

func TestHealthCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pg := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Name().Return("postgres").AnyTimes()
	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	rd := mocks.NewMockHealthChecker(ctrl)
	rd.EXPECT().Name().Return("redis").AnyTimes()
	rd.EXPECT().Ping(gomock.Any()).Return(assert.AnError)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	HealthCheck(pg, rd)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
}

// --- Router ---

func TestRouter_AdminRequiresRole(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokens := mocks.NewMockTokenService(ctrl)
	tokens.EXPECT().Validate("merchant").Return(merchantClaims(), nil).AnyTimes()
	tokens.EXPECT().Validate("admin").Return(&ports.TokenClaims{Subject: "ops", Role: ports.RoleAdmin}, nil).AnyTimes()

	payouts := mocks.NewMockPayoutService(ctrl)
	id := uuid.New()
	payouts.EXPECT().Process(gomock.Any(), id).Return(&domain.Payout{ID: id, Currency: "IDR", Status: domain.PayoutStatusProcessing}, nil)

	r := SetupRouter(RouterDeps{Payouts: payouts, TokenSvc: tokens, Logger: zerolog.Nop()})

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/payouts/"+id.String()+"/process", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, send(""))
	assert.Equal(t, http.StatusForbidden, send("merchant"))
	assert.Equal(t, http.StatusOK, send("admin"))
}

func TestRouter_WebhooksArePublic(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reconciler := mocks.NewMockReconciliationService(ctrl)
	reconciler.EXPECT().HandleWebhook(gomock.Any(), domain.ProviderCardPay, gomock.Any(), gomock.Any()).
		Return(&ports.ReconcileResult{Outcome: ports.OutcomeDuplicate}, nil)

	r := SetupRouter(RouterDeps{Reconciler: reconciler, TokenSvc: mocks.NewMockTokenService(ctrl), Logger: zerolog.Nop()})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/cardpay", strings.NewReader(`{"id":"evt"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}
