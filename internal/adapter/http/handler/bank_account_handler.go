package handler

import (
	"net/http"
	"strings"

	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/http/dto"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"
	"github.com/victoryunusa/truetab-api-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// BankAccountHandler manages a merchant's payout destinations.
type BankAccountHandler struct {
	accounts ports.BankAccountService
}

// NewBankAccountHandler creates a new BankAccountHandler.
func NewBankAccountHandler(accounts ports.BankAccountService) *BankAccountHandler {
	return &BankAccountHandler{accounts: accounts}
}

// Add handles POST /api/v1/bank-accounts.
func (h *BankAccountHandler) Add(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}

	var req dto.AddBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	acct, err := h.accounts.Add(c.Request.Context(), ports.AddBankAccountRequest{
		Wallet:        ref,
		AccountName:   req.AccountName,
		BankName:      req.BankName,
		BankCode:      strings.ToLower(req.BankCode),
		AccountNumber: dto.NormalizeAccountNumber(req.AccountNumber),
		Currency:      strings.ToUpper(req.Currency),
		MakeDefault:   req.MakeDefault,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, acct)
}

// List handles GET /api/v1/bank-accounts.
func (h *BankAccountHandler) List(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}
	accts, err := h.accounts.List(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, accts)
}

// Get handles GET /api/v1/bank-accounts/:id.
func (h *BankAccountHandler) Get(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	acct, err := h.accounts.Get(c.Request.Context(), ref, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, acct)
}

// Update handles PATCH /api/v1/bank-accounts/:id. Changing the bank code or
// account number clears verification.
func (h *BankAccountHandler) Update(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.UpdateBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)
	if req.AccountNumber != nil {
		n := dto.NormalizeAccountNumber(*req.AccountNumber)
		req.AccountNumber = &n
	}
	if req.BankCode != nil {
		code := strings.ToLower(*req.BankCode)
		req.BankCode = &code
	}

	acct, err := h.accounts.Update(c.Request.Context(), ref, id, req.ToUpdate())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, acct)
}

// SetDefault handles POST /api/v1/bank-accounts/:id/default.
func (h *BankAccountHandler) SetDefault(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	acct, err := h.accounts.SetDefault(c.Request.Context(), ref, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, acct)
}

// Remove handles DELETE /api/v1/bank-accounts/:id.
func (h *BankAccountHandler) Remove(c *gin.Context) {
	ref, ok := walletRef(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.accounts.Remove(c.Request.Context(), ref, id); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
	c.Writer.WriteHeaderNow()
}
