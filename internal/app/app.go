// Package app assembles the service: configuration, secrets, storage, the
// gate chain, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"azkaban/internal/config"
	"azkaban/internal/db"
	"azkaban/internal/directory"
	"azkaban/internal/http/api"
	"azkaban/internal/identity"
	"azkaban/internal/mfa"
	"azkaban/internal/partners"
	"azkaban/internal/secrets"
	internalsettings "azkaban/internal/settings"
)

// secretCacheTTL bounds how long resolved secrets are reused before the
// managed store is consulted again.
const secretCacheTTL = 15 * time.Minute

// shutdownTimeout bounds graceful drain on termination.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(_ context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the API server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	env := cfg.Environment

	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return errDSN
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	secretCache := secrets.NewCache(secretCacheTTL, nil)
	resolver, errResolver := secrets.NewResolver(ctx, env, secretCache)
	if errResolver != nil {
		return errResolver
	}

	identityCfg, errIdentity := config.LoadIdentityConfig(configPath)
	if errIdentity != nil {
		return errIdentity
	}
	if identityCfg.Secret == "" {
		secret, errSecret := resolver.Get(ctx, config.EnvIDTokenSecret)
		if errSecret != nil {
			return errSecret
		}
		identityCfg.Secret = secret
	}
	// Database settings override the file/environment lists so both can be
	// rotated without a deploy.
	identityCfg.AllowedDomains = internalsettings.StringList(conn, internalsettings.KeyAllowedEmailDomains, identityCfg.AllowedDomains)
	verifier, errVerifier := identity.NewVerifier(identityCfg)
	if errVerifier != nil {
		return errVerifier
	}

	breakGlass := internalsettings.StringList(conn, internalsettings.KeyBreakGlassAdmins, config.LoadBreakGlassAdmins(configPath))
	userDirectory := directory.New(conn, breakGlass)
	adminGate := directory.NewAdminGate(userDirectory, breakGlass)

	mfaCfg, errMFA := config.LoadMFAConfig(configPath)
	if errMFA != nil {
		return errMFA
	}
	mfaEngine := mfa.NewEngine(mfaCfg.Issuer, nil)
	secretStore := mfa.NewSecretStore(conn)
	mfaGate := mfa.NewGate(secretStore, mfaEngine, mfa.NewFixedCodeBypass(env, mfaCfg.BypassCode))

	ledger, errLedger := partners.NewLedgerClient(ctx, resolver)
	if errLedger != nil {
		log.WithError(errLedger).Warn("app: ledger client unavailable, routes will report configuration errors")
	}
	vault, errVault := partners.NewVaultClient(ctx, resolver)
	if errVault != nil {
		log.WithError(errVault).Warn("app: vault client unavailable, routes will report configuration errors")
	}
	payouts, errPayouts := partners.NewPayoutsClient(ctx, resolver)
	if errPayouts != nil {
		log.WithError(errPayouts).Warn("app: payouts client unavailable, routes will report configuration errors")
	}

	if env.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.Register(router, api.Deps{
		DB:          conn,
		Environment: env,
		Verifier:    verifier,
		Directory:   userDirectory,
		AdminGate:   adminGate,
		MFAGate:     mfaGate,
		MFAEngine:   mfaEngine,
		SecretStore: secretStore,
		Ledger:      ledger,
		Vault:       vault,
		Payouts:     payouts,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	go func() {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(drainCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("app: shutdown failed")
		}
	}()

	log.Infof("starting azkaban on %s (environment=%s)", server.Addr, env)
	if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return errServe
	}
	return nil
}
