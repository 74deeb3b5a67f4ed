package handler

import (
	"errors"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/http/dto"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"
	"github.com/victoryunusa/truetab-api-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler serves a merchant's own wallet.
type WalletHandler struct {
	ledger ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// Summary handles GET /api/v1/wallet.
func (h *WalletHandler) Summary(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}
	summary, err := h.ledger.Summary(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// Balance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) Balance(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}
	b, err := h.ledger.GetBalance(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewBalanceResponse(b))
}

// Transactions handles GET /api/v1/wallet/transactions.
//
// Query: type, from, to (RFC 3339), limit, offset, cursor.
func (h *WalletHandler) Transactions(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}

	filter, err := transactionFilter(c)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	page := pageRequest(c)

	result, err := h.ledger.History(c.Request.Context(), ref, filter, page)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, dto.NewTransactionResponse(&result.Items[i]))
	}
	response.Page(c, items, response.PageMeta{
		Total:      result.Total,
		Limit:      page.Limit,
		Offset:     page.Offset,
		NextCursor: result.NextCursor,
	})
}

func transactionFilter(c *gin.Context) (domain.TransactionFilter, error) {
	var f domain.TransactionFilter
	if s := c.Query("type"); s != "" {
		t := domain.TransactionType(s)
		if !t.Valid() {
			return f, errors.New("unknown transaction type")
		}
		f.Type = &t
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		s := c.Query(key)
		if s == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, errors.New(key + " must be an RFC 3339 timestamp")
		}
		*dst = &ts
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, errors.New("to is before from")
	}
	return f, nil
}
