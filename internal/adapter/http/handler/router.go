package handler

import (
	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/http/middleware"
	redisStore "github.com/victoryunusa/truetab-api-sub000/internal/adapter/storage/redis"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ledger         ports.LedgerService
	Payouts        ports.PayoutService
	Accounts       ports.BankAccountService
	Reconciler     ports.ReconciliationService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	AuditSvc       ports.AuditService         // nil = audit logging disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	webhooks := NewWebhookHandler(deps.Reconciler)
	r.POST("/webhooks/:provider", rl("webhooks"), webhooks.Receive)

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	walletH := NewWalletHandler(deps.Ledger)
	wallet := v1.Group("/wallet", rl("wallet"))
	{
		wallet.GET("", walletH.Summary)
		wallet.GET("/balance", walletH.Balance)
		wallet.GET("/transactions", walletH.Transactions)
	}

	payoutH := NewPayoutHandler(deps.Payouts)
	payouts := v1.Group("/payouts")
	{
		payouts.POST("", rl("payouts"), payoutH.Create)
		payouts.GET("", rl("wallet"), payoutH.List)
		payouts.GET("/:id", rl("wallet"), payoutH.Get)
		payouts.POST("/:id/cancel", rl("payouts"), payoutH.Cancel)
	}

	accountH := NewBankAccountHandler(deps.Accounts)
	accounts := v1.Group("/bank-accounts", rl("bank_accounts"))
	{
		accounts.POST("", accountH.Add)
		accounts.GET("", accountH.List)
		accounts.GET("/:id", accountH.Get)
		accounts.PATCH("/:id", accountH.Update)
		accounts.DELETE("/:id", accountH.Remove)
		accounts.POST("/:id/default", accountH.SetDefault)
	}

	adminH := NewAdminHandler(deps.Ledger, deps.Payouts, deps.Accounts)
	admin := v1.Group("/admin", middleware.RequireRole(ports.RoleAdmin), rl("admin"))
	{
		admin.POST("/ledger/credit", adminH.Credit)
		admin.POST("/ledger/debit", adminH.Debit)
		admin.GET("/wallets/:brand/verify", adminH.VerifyWallet)
		admin.GET("/payouts/:id", adminH.GetPayout)
		admin.POST("/payouts/:id/process", adminH.ProcessPayout)
		admin.POST("/payouts/:id/fail", adminH.FailPayout)
		admin.POST("/bank-accounts/:id/verify", adminH.VerifyBankAccount)
	}

	return r
}
