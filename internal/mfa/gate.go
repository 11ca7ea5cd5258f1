package mfa

import (
	"context"
	"crypto/subtle"
	"strings"

	log "github.com/sirupsen/logrus"

	"azkaban/internal/apierr"
	"azkaban/internal/config"
)

// BypassPolicy optionally accepts a code outside normal TOTP verification.
// A nil policy never bypasses.
type BypassPolicy interface {
	Allows(code string) bool
}

// FixedCodeBypass accepts one exact configured code. It is only constructed
// outside production; see NewFixedCodeBypass.
type FixedCodeBypass struct {
	code string
}

// NewFixedCodeBypass returns a bypass policy for non-production environments
// with a configured code, and nil otherwise. Production never gets a policy
// regardless of configuration.
func NewFixedCodeBypass(env config.Environment, code string) BypassPolicy {
	code = strings.TrimSpace(code)
	if env.IsProduction() || code == "" {
		return nil
	}
	log.Warnf("mfa: fixed code bypass enabled for %s environment", env)
	return &FixedCodeBypass{code: code}
}

// Allows reports whether the submitted code equals the configured one.
func (b *FixedCodeBypass) Allows(code string) bool {
	return subtle.ConstantTimeCompare([]byte(code), []byte(b.code)) == 1
}

// Gate enforces the one-time-password factor for a request.
type Gate struct {
	store  *SecretStore
	engine *Engine
	bypass BypassPolicy
}

// NewGate constructs a Gate. bypass may be nil.
func NewGate(store *SecretStore, engine *Engine, bypass BypassPolicy) *Gate {
	return &Gate{store: store, engine: engine, bypass: bypass}
}

// Check validates the submitted code for the subject. The returned error kind
// distinguishes missing enrollment, missing code, and wrong code so handlers
// can map each to its transport status.
func (g *Gate) Check(ctx context.Context, subjectID, code string) error {
	secret, enrolled := g.store.GetSecret(ctx, subjectID)
	if !enrolled {
		return apierr.New(apierr.KindMFANotConfigured, "totp is not configured for this user")
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return apierr.New(apierr.KindMFACodeRequired, "totp code required")
	}

	if g.engine.VerifyCode(secret, code) {
		return nil
	}
	if g.bypass != nil && g.bypass.Allows(code) {
		log.Warnf("mfa: bypass code accepted for subject %s", subjectID)
		return nil
	}
	return apierr.New(apierr.KindMFACodeInvalid, "invalid totp code")
}
