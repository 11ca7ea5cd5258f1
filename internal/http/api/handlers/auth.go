package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"azkaban/internal/apierr"
	"azkaban/internal/config"
	"azkaban/internal/mfa"
)

// AuthHandler manages TOTP enrollment and verification endpoints.
type AuthHandler struct {
	env    config.Environment
	engine *mfa.Engine
	store  *mfa.SecretStore
	gate   *mfa.Gate
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(env config.Environment, engine *mfa.Engine, store *mfa.SecretStore, gate *mfa.Gate) *AuthHandler {
	return &AuthHandler{env: env, engine: engine, store: store, gate: gate}
}

// SetupTOTP provisions a fresh TOTP secret for the caller and returns the
// QR code to scan. A verified enrollment cannot be overwritten through this
// endpoint. The raw secret is only echoed in local and staging; authenticator
// apps get it through the QR code or the manual entry key.
func (h *AuthHandler) SetupTOTP(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		Error(c, apierr.New(apierr.KindUnauthenticated, "user not authenticated"))
		return
	}
	ctx := c.Request.Context()

	if h.store.IsVerified(ctx, claims.SubjectID) {
		Error(c, apierr.New(apierr.KindValidation, "totp is already configured and verified"))
		return
	}

	secret, errGenerate := h.engine.GenerateSecret()
	if errGenerate != nil {
		Error(c, errGenerate)
		return
	}
	if errStore := h.store.Store(ctx, claims.SubjectID, secret); errStore != nil {
		Error(c, errStore)
		return
	}

	uri := h.engine.ProvisioningURI(secret, claims.Email)
	qrCode, errQR := h.engine.QRCode(uri)
	if errQR != nil {
		Error(c, errQR)
		return
	}
	log.Infof("auth: totp setup generated for %s", claims.Email)

	response := gin.H{
		"qr_code":          qrCode,
		"manual_entry_key": secret,
		"message":          "scan the qr code with your authenticator app or enter the key manually",
	}
	if h.env == config.EnvLocal || h.env == config.EnvStaging {
		response["secret"] = secret
	}
	c.JSON(http.StatusOK, response)
}

// verifyTOTPRequest defines the request body for code confirmation.
type verifyTOTPRequest struct {
	TOTPCode string `json:"totp_code"`
}

// VerifyTOTP confirms an enrollment by checking a submitted code. The first
// successful confirmation marks the enrollment verified. Without an enrollment
// there is nothing to confirm, so the endpoint answers 404 rather than the
// gate's 403.
func (h *AuthHandler) VerifyTOTP(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		Error(c, apierr.New(apierr.KindUnauthenticated, "user not authenticated"))
		return
	}
	var body verifyTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		Error(c, apierr.New(apierr.KindValidation, "invalid json"))
		return
	}
	ctx := c.Request.Context()

	if _, configured := h.store.GetSecret(ctx, claims.SubjectID); !configured {
		Error(c, apierr.New(apierr.KindNotFound, "totp is not configured, set it up first"))
		return
	}
	if errCheck := h.gate.Check(ctx, claims.SubjectID, body.TOTPCode); errCheck != nil {
		Error(c, errCheck)
		return
	}
	if errMark := h.store.MarkVerified(ctx, claims.SubjectID); errMark != nil {
		Error(c, errMark)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verified": true,
		"message":  "totp code verified",
	})
}

// TOTPStatus reports whether the caller has an enrollment and whether it has
// been confirmed.
func (h *AuthHandler) TOTPStatus(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		Error(c, apierr.New(apierr.KindUnauthenticated, "user not authenticated"))
		return
	}
	ctx := c.Request.Context()

	_, configured := h.store.GetSecret(ctx, claims.SubjectID)
	verified := false
	if configured {
		verified = h.store.IsVerified(ctx, claims.SubjectID)
	}
	c.JSON(http.StatusOK, gin.H{
		"is_configured": configured,
		"is_verified":   verified,
	})
}

// CurrentTOTP returns the current code for the caller's secret. Diagnostic
// endpoint for non-production environments; the caller must present the
// stored secret to prove possession.
func (h *AuthHandler) CurrentTOTP(c *gin.Context) {
	if h.env.IsProduction() {
		Error(c, apierr.New(apierr.KindForbidden, "this endpoint is only available in non-production environments"))
		return
	}
	claims, ok := CurrentClaims(c)
	if !ok {
		Error(c, apierr.New(apierr.KindUnauthenticated, "user not authenticated"))
		return
	}
	ctx := c.Request.Context()

	stored, configured := h.store.GetSecret(ctx, claims.SubjectID)
	if !configured {
		Error(c, apierr.New(apierr.KindMFANotConfigured, "totp is not configured for this user"))
		return
	}
	if strings.TrimSpace(c.Query("secret")) != stored {
		Error(c, apierr.New(apierr.KindForbidden, "secret does not match"))
		return
	}

	code, errCode := h.engine.CurrentCode(stored)
	if errCode != nil {
		Error(c, errCode)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_code": code})
}
