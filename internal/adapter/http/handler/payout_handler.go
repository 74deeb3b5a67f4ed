package handler

import (
	"strings"

	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/http/dto"
	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/http/middleware"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"
	"github.com/victoryunusa/truetab-api-sub000/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PayoutHandler serves merchant payout requests.
type PayoutHandler struct {
	payouts ports.PayoutService
}

// NewPayoutHandler creates a new PayoutHandler.
func NewPayoutHandler(payouts ports.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// Create handles POST /api/v1/payouts. The payout is reserved and left
// PENDING; dispatch happens on the admin process endpoint or the sweeper.
func (h *PayoutHandler) Create(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}

	var req dto.CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	in := ports.PayoutRequest{
		Wallet:    ref,
		Amount:    req.Amount,
		Currency:  strings.ToUpper(req.Currency),
		Method:    domain.PayoutMethod(req.Method),
		Provider:  domain.Provider(req.Provider),
		Reference: req.Reference,
	}
	if req.BankAccountID != nil {
		id := uuid.MustParse(*req.BankAccountID)
		in.BankAccountID = &id
	}

	p, err := h.payouts.RequestPayout(c.Request.Context(), in)
	if p == nil {
		writeResult(c, nil, err, true)
		return
	}
	c.Set(middleware.CtxAuditResource, p.ID.String())
	writeResult(c, dto.NewPayoutResponse(p), err, true)
}

// List handles GET /api/v1/payouts?status=.
func (h *PayoutHandler) List(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}

	var filter domain.PayoutFilter
	if s := c.Query("status"); s != "" {
		status := domain.PayoutStatus(strings.ToUpper(s))
		if !status.Valid() {
			response.Error(c, apperror.Validation("unknown payout status"))
			return
		}
		filter.Status = &status
	}
	page := pageRequest(c)

	result, err := h.payouts.List(c.Request.Context(), ref, filter, page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, dto.NewPayoutResponses(result.Items), response.PageMeta{
		Total:  result.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// Get handles GET /api/v1/payouts/:id.
func (h *PayoutHandler) Get(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.payouts.Get(c.Request.Context(), ref, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPayoutResponse(p))
}

// Cancel handles POST /api/v1/payouts/:id/cancel.
func (h *PayoutHandler) Cancel(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.payouts.Cancel(c.Request.Context(), ref, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPayoutResponse(p))
}
