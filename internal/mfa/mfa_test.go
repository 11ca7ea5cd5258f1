package mfa

import (
	"context"
	"encoding/base32"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"

	"azkaban/internal/apierr"
	"azkaban/internal/config"
	"azkaban/internal/db"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "mfa_test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate test db: %v", errMigrate)
	}
	return conn
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestGenerateSecret(t *testing.T) {
	e := NewEngine("Azkaban", nil)

	first, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, errDecode := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(first); errDecode != nil {
		t.Fatalf("secret is not base32: %v", errDecode)
	}
	if len(first) != 32 {
		t.Fatalf("expected 32 base32 chars for a 160-bit secret, got %d", len(first))
	}

	second, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatal("consecutive secrets must differ")
	}
}

func TestProvisioningURI_RoundTrip(t *testing.T) {
	e := NewEngine("Azkaban", nil)
	secret, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	uri := e.ProvisioningURI(secret, "dev@example.co")
	key, errParse := otp.NewKeyFromURL(uri)
	if errParse != nil {
		t.Fatalf("parse provisioning uri: %v", errParse)
	}
	if key.Secret() != secret {
		t.Fatalf("secret did not round-trip, got %q", key.Secret())
	}
	if key.Issuer() != "Azkaban" {
		t.Fatalf("expected issuer Azkaban, got %q", key.Issuer())
	}
	if key.AccountName() != "dev@example.co" {
		t.Fatalf("expected account name, got %q", key.AccountName())
	}
}

func TestVerifyCode(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	e := NewEngine("Azkaban", fixedClock(now))
	secret, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	current, errCode := totp.GenerateCode(secret, now)
	if errCode != nil {
		t.Fatalf("compute code: %v", errCode)
	}
	if !e.VerifyCode(secret, current) {
		t.Fatal("current code must verify")
	}

	previous, errCode := totp.GenerateCode(secret, now.Add(-30*time.Second))
	if errCode != nil {
		t.Fatalf("compute code: %v", errCode)
	}
	if !e.VerifyCode(secret, previous) {
		t.Fatal("adjacent window code must verify")
	}

	stale, errCode := totp.GenerateCode(secret, now.Add(-5*time.Minute))
	if errCode != nil {
		t.Fatalf("compute code: %v", errCode)
	}
	if e.VerifyCode(secret, stale) {
		t.Fatal("stale code must not verify")
	}

	for _, malformed := range []string{"", "12345", "1234567", "abc123", "12 456"} {
		if e.VerifyCode(secret, malformed) {
			t.Fatalf("malformed code %q must not verify", malformed)
		}
	}
}

func TestCurrentCode(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	e := NewEngine("Azkaban", fixedClock(now))
	secret, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	code, errCurrent := e.CurrentCode(secret)
	if errCurrent != nil {
		t.Fatalf("current code: %v", errCurrent)
	}
	expected, errExpected := totp.GenerateCode(secret, now)
	if errExpected != nil {
		t.Fatalf("compute code: %v", errExpected)
	}
	if code != expected {
		t.Fatalf("expected %q, got %q", expected, code)
	}
}

func TestQRCode(t *testing.T) {
	e := NewEngine("Azkaban", nil)
	uri := e.ProvisioningURI("JBSWY3DPEHPK3PXP", "dev@example.co")

	dataURI, err := e.QRCode(uri)
	if err != nil {
		t.Fatalf("qr code: %v", err)
	}
	if !strings.HasPrefix(dataURI, "data:image/png;base64,") {
		t.Fatalf("expected png data uri, got %q", dataURI[:40])
	}
}

func TestSecretStore_Lifecycle(t *testing.T) {
	store := NewSecretStore(newTestDB(t))
	ctx := context.Background()

	if _, enrolled := store.GetSecret(ctx, "sub-1"); enrolled {
		t.Fatal("expected no enrollment before store")
	}

	if err := store.Store(ctx, "sub-1", "SECRETONE"); err != nil {
		t.Fatalf("store: %v", err)
	}
	secret, enrolled := store.GetSecret(ctx, "sub-1")
	if !enrolled || secret != "SECRETONE" {
		t.Fatalf("expected stored secret, got %q enrolled=%v", secret, enrolled)
	}
	if store.IsVerified(ctx, "sub-1") {
		t.Fatal("fresh enrollment must be unverified")
	}

	if err := store.MarkVerified(ctx, "sub-1"); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if !store.IsVerified(ctx, "sub-1") {
		t.Fatal("expected verified after confirmation")
	}

	// Re-enrollment replaces the secret and resets verification.
	if err := store.Store(ctx, "sub-1", "SECRETTWO"); err != nil {
		t.Fatalf("re-store: %v", err)
	}
	secret, enrolled = store.GetSecret(ctx, "sub-1")
	if !enrolled || secret != "SECRETTWO" {
		t.Fatalf("expected replaced secret, got %q", secret)
	}
	if store.IsVerified(ctx, "sub-1") {
		t.Fatal("re-enrollment must clear verification")
	}

	if err := store.Deactivate(ctx, "sub-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, enrolled = store.GetSecret(ctx, "sub-1"); enrolled {
		t.Fatal("deactivated enrollment must read as absent")
	}
}

func TestGate_NotConfigured(t *testing.T) {
	gate := NewGate(NewSecretStore(newTestDB(t)), NewEngine("Azkaban", nil), nil)

	err := gate.Check(context.Background(), "sub-1", "123456")
	typed, ok := apierr.As(err)
	if !ok || typed.Kind != apierr.KindMFANotConfigured {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestGate_CodeRequired(t *testing.T) {
	store := NewSecretStore(newTestDB(t))
	ctx := context.Background()
	if err := store.Store(ctx, "sub-1", "JBSWY3DPEHPK3PXP"); err != nil {
		t.Fatalf("store: %v", err)
	}

	gate := NewGate(store, NewEngine("Azkaban", nil), nil)
	err := gate.Check(ctx, "sub-1", "  ")
	typed, ok := apierr.As(err)
	if !ok || typed.Kind != apierr.KindMFACodeRequired {
		t.Fatalf("expected code required, got %v", err)
	}
}

func TestGate_ValidAndInvalidCodes(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	engine := NewEngine("Azkaban", fixedClock(now))
	store := NewSecretStore(newTestDB(t))
	ctx := context.Background()

	secret, err := engine.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if errStore := store.Store(ctx, "sub-1", secret); errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	gate := NewGate(store, engine, nil)
	code, errCode := totp.GenerateCode(secret, now)
	if errCode != nil {
		t.Fatalf("compute code: %v", errCode)
	}
	if errCheck := gate.Check(ctx, "sub-1", code); errCheck != nil {
		t.Fatalf("expected valid code to pass, got %v", errCheck)
	}

	errCheck := gate.Check(ctx, "sub-1", "000000")
	typed, ok := apierr.As(errCheck)
	if !ok || typed.Kind != apierr.KindMFACodeInvalid {
		t.Fatalf("expected invalid code, got %v", errCheck)
	}
}

func TestFixedCodeBypass_EnvironmentScoping(t *testing.T) {
	if policy := NewFixedCodeBypass(config.EnvProduction, "424242"); policy != nil {
		t.Fatal("production must never get a bypass policy")
	}
	if policy := NewFixedCodeBypass(config.EnvStaging, ""); policy != nil {
		t.Fatal("empty code must not enable a bypass")
	}
	policy := NewFixedCodeBypass(config.EnvStaging, "424242")
	if policy == nil {
		t.Fatal("expected bypass policy for staging")
	}
	if !policy.Allows("424242") || policy.Allows("424243") {
		t.Fatal("bypass must match the exact configured code only")
	}
}

func TestGate_Bypass(t *testing.T) {
	store := NewSecretStore(newTestDB(t))
	ctx := context.Background()
	if err := store.Store(ctx, "sub-1", "JBSWY3DPEHPK3PXP"); err != nil {
		t.Fatalf("store: %v", err)
	}
	engine := NewEngine("Azkaban", fixedClock(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)))

	withBypass := NewGate(store, engine, NewFixedCodeBypass(config.EnvStaging, "424242"))
	if err := withBypass.Check(ctx, "sub-1", "424242"); err != nil {
		t.Fatalf("expected bypass code to pass, got %v", err)
	}

	withoutBypass := NewGate(store, engine, NewFixedCodeBypass(config.EnvProduction, "424242"))
	err := withoutBypass.Check(ctx, "sub-1", "424242")
	typed, ok := apierr.As(err)
	if !ok || typed.Kind != apierr.KindMFACodeInvalid {
		t.Fatalf("expected rejection without bypass, got %v", err)
	}
}
