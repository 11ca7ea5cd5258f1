package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"azkaban/internal/apierr"
	"azkaban/internal/partners"
)

// VaultHandler proxies custody vault endpoints.
type VaultHandler struct {
	client *partners.VaultClient
}

// NewVaultHandler constructs a VaultHandler. The client may be nil when the
// vault credentials are not configured.
func NewVaultHandler(client *partners.VaultClient) *VaultHandler {
	return &VaultHandler{client: client}
}

func (h *VaultHandler) ready() error {
	if h.client == nil {
		return apierr.New(apierr.KindConfiguration, "vault api is not configured")
	}
	return nil
}

// Accounts lists custody accounts with their asset balances.
func (h *VaultHandler) Accounts(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	accounts, err := h.client.ListAccounts(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// RefreshBalance triggers a balance refresh for one account asset.
func (h *VaultHandler) RefreshBalance(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	result, err := h.client.RefreshBalance(c.Request.Context(), c.Param("id"), c.Param("asset"))
	if err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateTransaction submits a custody transfer (vault-to-vault or
// vault-to-external). The route is registered behind the one-time-code
// middleware; by the time this runs the second factor has already been
// checked.
func (h *VaultHandler) CreateTransaction(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	var body partners.VaultTransferRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		Error(c, apierr.New(apierr.KindValidation, "invalid json"))
		return
	}
	if body.Network == "" || body.Service == "" || body.Token == "" ||
		body.SourceVaultID == "" || body.FeeLevel == "" || body.Amount == "" {
		Error(c, apierr.New(apierr.KindValidation, "network, service, token, sourceVaultId, feeLevel, and amount are required"))
		return
	}
	if body.DestinationWalletID == "" && body.DestinationVaultID == "" {
		Error(c, apierr.New(apierr.KindValidation, "destinationWalletId or destinationVaultId is required"))
		return
	}

	log.Infof("vault: creating transfer network=%s service=%s token=%s amount=%s",
		body.Network, body.Service, body.Token, body.Amount)

	result, errCreate := h.client.CreateTransaction(c.Request.Context(), body)
	if errCreate != nil {
		Error(c, errCreate)
		return
	}
	c.JSON(http.StatusOK, result)
}

// EstimateFee returns fee tiers for a prospective transfer.
func (h *VaultHandler) EstimateFee(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	var body partners.EstimateFeeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		Error(c, apierr.New(apierr.KindValidation, "invalid json"))
		return
	}
	result, err := h.client.EstimateFee(c.Request.Context(), body)
	if err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExternalWallets lists the whitelisted external wallets.
func (h *VaultHandler) ExternalWallets(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	wallets, err := h.client.ListExternalWallets(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	if wallets == nil {
		wallets = []partners.ExternalWallet{}
	}
	c.JSON(http.StatusOK, gin.H{"external_wallets": wallets})
}
