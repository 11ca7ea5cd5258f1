// Package api wires the gate chain into HTTP routes: every route below the
// health check requires an authenticated identity, admin routes add the role
// gate, and the money-movement routes (payout creation, custody transfers)
// add the one-time-code gate.
package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"azkaban/internal/config"
	"azkaban/internal/directory"
	"azkaban/internal/http/api/handlers"
	"azkaban/internal/identity"
	"azkaban/internal/mfa"
	"azkaban/internal/partners"
)

// totpCodeHeader carries the one-time code for sensitive mutations.
const totpCodeHeader = "X-TOTP-Code"

// Deps holds everything route registration needs. Partner clients may be nil
// when their credentials are absent; their routes then answer with a
// configuration error instead of failing startup.
type Deps struct {
	DB          *gorm.DB
	Environment config.Environment
	Verifier    *identity.Verifier
	Directory   *directory.Directory
	AdminGate   *directory.AdminGate
	MFAGate     *mfa.Gate
	MFAEngine   *mfa.Engine
	SecretStore *mfa.SecretStore
	Ledger      *partners.LedgerClient
	Vault       *partners.VaultClient
	Payouts     *partners.PayoutsClient
}

// Register registers all routes, middleware, and handlers.
func Register(r *gin.Engine, deps Deps) {
	if r == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group("")
	authed.Use(authMiddleware(deps.Verifier))

	authHandler := handlers.NewAuthHandler(deps.Environment, deps.MFAEngine, deps.SecretStore, deps.MFAGate)
	authGroup := authed.Group("/auth")
	authGroup.POST("/setup-totp", authHandler.SetupTOTP)
	authGroup.POST("/verify-totp", authHandler.VerifyTOTP)
	authGroup.GET("/totp-status", authHandler.TOTPStatus)
	authGroup.GET("/get-current-totp", authHandler.CurrentTOTP)

	userHandler := handlers.NewUserHandler(deps.Directory)
	authed.GET("/users/me", userHandler.Me)
	authed.POST("/users/sync", userHandler.Sync)

	admin := authed.Group("")
	admin.Use(adminMiddleware(deps.AdminGate))
	admin.GET("/roles", userHandler.Roles)
	admin.GET("/users", userHandler.List)
	admin.PATCH("/users/:id/status", userHandler.SetStatus)
	admin.PATCH("/users/:id/role", userHandler.SetRole)

	ledgerHandler := handlers.NewLedgerHandler(deps.Ledger)
	admin.GET("/ledger/transactions", ledgerHandler.Transactions)
	admin.POST("/ledger/transactions", ledgerHandler.CreateTransaction)

	vaultHandler := handlers.NewVaultHandler(deps.Vault)
	authed.GET("/vault/accounts", vaultHandler.Accounts)
	authed.POST("/vault/accounts/:id/:asset/balance", vaultHandler.RefreshBalance)
	authed.POST("/vault/transactions/estimate-fee", vaultHandler.EstimateFee)
	authed.POST("/vault/transactions/create-transaction", mfaMiddleware(deps.MFAGate), vaultHandler.CreateTransaction)
	authed.GET("/vault/external-wallets", vaultHandler.ExternalWallets)

	payoutHandler := handlers.NewPayoutHandler(deps.Payouts, deps.Directory)
	authed.GET("/recipients", payoutHandler.RecipientsList)
	authed.POST("/recipients", payoutHandler.RecipientCreate)
	authed.PUT("/recipients/:id", payoutHandler.RecipientUpdate)
	authed.DELETE("/recipients/:id", payoutHandler.RecipientDelete)

	payoutGroup := authed.Group("/payouts/account/:account")
	payoutGroup.GET("/quote", payoutHandler.Quote)
	payoutGroup.GET("/recipients", payoutHandler.Recipients)
	payoutGroup.GET("/wallets/:wallet_id/balances", payoutHandler.Balance)
	payoutGroup.GET("/payout", payoutHandler.History)
	payoutGroup.POST("/payout", mfaMiddleware(deps.MFAGate), payoutHandler.Create)
}

// authMiddleware verifies the bearer credential and loads claims into the
// request context.
func authMiddleware(verifier *identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, errVerify := verifier.Verify(c.GetHeader("Authorization"))
		if errVerify != nil {
			handlers.AbortError(c, errVerify)
			return
		}
		c.Set(handlers.ContextClaims, claims)
		c.Next()
	}
}

// adminMiddleware authorizes the caller through the admin gate and loads the
// admin record into the request context.
func adminMiddleware(gate *directory.AdminGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := handlers.CurrentClaims(c)
		admin, errAuthorize := gate.Authorize(c.Request.Context(), claims)
		if errAuthorize != nil {
			handlers.AbortError(c, errAuthorize)
			return
		}
		c.Set(handlers.ContextAdmin, admin)
		c.Next()
	}
}

// mfaMiddleware enforces the one-time-code factor for money movement.
func mfaMiddleware(gate *mfa.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := handlers.CurrentClaims(c)
		if errCheck := gate.Check(c.Request.Context(), claims.SubjectID, c.GetHeader(totpCodeHeader)); errCheck != nil {
			handlers.AbortError(c, errCheck)
			return
		}
		c.Next()
	}
}
