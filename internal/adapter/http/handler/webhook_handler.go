package handler

import (
	"io"
	"strings"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"
	"github.com/victoryunusa/truetab-api-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// WebhookHandler receives provider payout notifications.
type WebhookHandler struct {
	reconciler ports.ReconciliationService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler ports.ReconciliationService) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Receive handles POST /webhooks/:provider. The raw body is passed through
// untouched since providers sign the exact bytes.
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider := domain.Provider(strings.ToLower(c.Param("provider")))

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}
	if len(payload) == 0 {
		response.Error(c, apperror.Validation("empty webhook body"))
		return
	}

	result, err := h.reconciler.HandleWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
