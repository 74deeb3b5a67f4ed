package handler

import (
	"context"
	"errors"
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

// AdminHandler serves operator endpoints. Every route sits behind
// RequireRole(admin).
type AdminHandler struct {
	ledger   ports.LedgerService
	payouts  ports.PayoutService
	accounts ports.BankAccountService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledger ports.LedgerService, payouts ports.PayoutService, accounts ports.BankAccountService) *AdminHandler {
	return &AdminHandler{ledger: ledger, payouts: payouts, accounts: accounts}
}

// Credit handles POST /api/v1/admin/ledger/credit.
func (h *AdminHandler) Credit(c *gin.Context) {
	h.post(c, h.ledger.Credit)
}

// Debit handles POST /api/v1/admin/ledger/debit.
func (h *AdminHandler) Debit(c *gin.Context) {
	h.post(c, h.ledger.Debit)
}

type postFunc func(ctx context.Context, req ports.PostingRequest) (*domain.Transaction, error)

var (
	errInvalidBrand  = errors.New("invalid brand id")
	errInvalidBranch = errors.New("invalid branch id")
)

func (h *AdminHandler) post(c *gin.Context, fn postFunc) {
	var req dto.LedgerPostingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	ref, err := walletFromIDs(req.BrandID, req.BranchID)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	in := ports.PostingRequest{
		Wallet:         ref,
		Type:           domain.TransactionType(req.Type),
		Amount:         req.Amount,
		Currency:       strings.ToUpper(req.Currency),
		Description:    req.Description,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.ReferenceKind != "" || req.ReferenceID != "" {
		in.Reference = domain.Reference{Kind: domain.ReferenceKind(req.ReferenceKind), ID: req.ReferenceID}
	}

	txn, err := fn(c.Request.Context(), in)
	if txn == nil {
		writeResult(c, nil, err, true)
		return
	}
	c.Set(middleware.CtxAuditResource, txn.ID.String())
	writeResult(c, dto.NewTransactionResponse(txn), err, true)
}

// VerifyWallet handles GET /api/v1/admin/wallets/:brand/verify?branch=.
// It recomputes the balance from the ledger entries.
func (h *AdminHandler) VerifyWallet(c *gin.Context) {
	ref, err := walletFromIDs(c.Param("brand"), c.Query("branch"))
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	ok, err := h.ledger.VerifyBalance(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"wallet": ref.String(), "consistent": ok})
}

// ProcessPayout handles POST /api/v1/admin/payouts/:id/process.
func (h *AdminHandler) ProcessPayout(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.payouts.Process(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPayoutResponse(p))
}

// FailPayout handles POST /api/v1/admin/payouts/:id/fail.
func (h *AdminHandler) FailPayout(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.FailPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	p, err := h.payouts.Fail(c.Request.Context(), id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPayoutResponse(p))
}

// GetPayout handles GET /api/v1/admin/payouts/:id.
func (h *AdminHandler) GetPayout(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.payouts.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPayoutResponse(p))
}

// VerifyBankAccount handles POST /api/v1/admin/bank-accounts/:id/verify.
func (h *AdminHandler) VerifyBankAccount(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	acct, err := h.accounts.Verify(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, acct)
}

func walletFromIDs(brand, branch string) (domain.WalletRef, error) {
	brandID, err := uuid.Parse(brand)
	if err != nil {
		return domain.WalletRef{}, errInvalidBrand
	}
	ref := domain.WalletRef{BrandID: brandID}
	if branch != "" {
		branchID, err := uuid.Parse(branch)
		if err != nil {
			return domain.WalletRef{}, errInvalidBranch
		}
		ref.BranchID = &branchID
	}
	return ref, nil
}
