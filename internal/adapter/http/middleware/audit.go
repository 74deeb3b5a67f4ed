package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type auditRoute struct {
	action   domain.AuditAction
	resource string
}

// auditedRoutes keys "METHOD route-pattern" to the action it records.
var auditedRoutes = map[string]auditRoute{
	"POST /api/v1/payouts":                        {domain.AuditActionRequestPayout, "payout"},
	"POST /api/v1/payouts/:id/cancel":             {domain.AuditActionCancelPayout, "payout"},
	"DELETE /api/v1/bank-accounts/:id":            {domain.AuditActionRemoveBankAccount, "bank_account"},
	"POST /api/v1/admin/payouts/:id/process":      {domain.AuditActionProcessPayout, "payout"},
	"POST /api/v1/admin/bank-accounts/:id/verify": {domain.AuditActionVerifyBankAccount, "bank_account"},
	"POST /api/v1/admin/ledger/credit":            {domain.AuditActionManualCredit, "wallet"},
	"POST /api/v1/admin/ledger/debit":             {domain.AuditActionManualDebit, "wallet"},
}

// AuditLog records successful privileged writes after the handler ran.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		route, ok := auditedRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}

		entry := &domain.AuditLog{
			ID:           uuid.New(),
			Action:       route.action,
			ResourceType: route.resource,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			CreatedAt:    time.Now().UTC(),
		}
		if claims, ok := Claims(c); ok {
			brand := claims.BrandID
			entry.BrandID = &brand
			entry.ActorID = claims.Subject
		}
		if entry.ResourceID == "" {
			entry.ResourceID = c.GetString(CtxAuditResource)
		}

		details, _ := json.Marshal(map[string]any{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(CtxRequestID),
		})
		entry.Details = string(details)

		auditSvc.Log(c.Request.Context(), entry)
	}
}

// CtxAuditResource lets a handler name the record it created when the route
// has no :id.
const CtxAuditResource = "audit_resource"
