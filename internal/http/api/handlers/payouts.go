package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"azkaban/internal/apierr"
	"azkaban/internal/directory"
	"azkaban/internal/partners"
)

// PayoutHandler proxies the payout and quoting engine. Creation is the only
// money-movement endpoint in the service and sits behind the one-time-code
// gate.
type PayoutHandler struct {
	client    *partners.PayoutsClient
	directory *directory.Directory
}

// NewPayoutHandler constructs a PayoutHandler. The client may be nil when
// the payouts credentials are not configured.
func NewPayoutHandler(client *partners.PayoutsClient, d *directory.Directory) *PayoutHandler {
	return &PayoutHandler{client: client, directory: d}
}

func (h *PayoutHandler) ready() error {
	if h.client == nil {
		return apierr.New(apierr.KindConfiguration, "payouts api is not configured")
	}
	return nil
}

// Quote prices a currency conversion.
func (h *PayoutHandler) Quote(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	params := partners.QuoteParams{
		Account:       c.Param("account"),
		Amount:        strings.TrimSpace(c.Query("amount")),
		BaseCurrency:  strings.TrimSpace(c.Query("base_currency")),
		QuoteCurrency: strings.TrimSpace(c.Query("quote_currency")),
		Provider:      strings.TrimSpace(c.Query("provider")),
	}
	if params.Amount == "" || params.BaseCurrency == "" || params.QuoteCurrency == "" || params.Provider == "" {
		Error(c, apierr.New(apierr.KindValidation, "amount, base_currency, quote_currency, and provider are required"))
		return
	}
	quote, errQuote := h.client.GetQuote(c.Request.Context(), params)
	if errQuote != nil {
		Error(c, errQuote)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// Recipients lists the caller's registered payout destinations.
func (h *PayoutHandler) Recipients(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	claims, ok := CurrentClaims(c)
	if !ok {
		Error(c, apierr.New(apierr.KindUnauthenticated, "user not authenticated"))
		return
	}
	user, found := h.directory.GetBySubject(c.Request.Context(), claims.SubjectID)
	if !found {
		Error(c, apierr.New(apierr.KindNotFound, "user not found"))
		return
	}
	provider := strings.TrimSpace(c.Query("provider"))
	if provider == "" {
		Error(c, apierr.New(apierr.KindValidation, "provider is required"))
		return
	}
	recipients, errList := h.client.GetRecipients(c.Request.Context(), c.Param("account"), user.ID, provider)
	if errList != nil {
		Error(c, errList)
		return
	}
	if recipients == nil {
		recipients = []partners.Recipient{}
	}
	c.JSON(http.StatusOK, gin.H{"recipients": recipients})
}

// Balance returns the token balances of a payout wallet.
func (h *PayoutHandler) Balance(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	provider := strings.TrimSpace(c.Query("provider"))
	if provider == "" {
		provider = "kira"
	}
	balance, errBalance := h.client.GetBalance(c.Request.Context(), c.Param("account"), c.Param("wallet_id"), provider)
	if errBalance != nil {
		Error(c, errBalance)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// Create executes a payout. The route is registered behind the one-time-code
// middleware; by the time this runs the second factor has already been
// checked. The user id on the outgoing request always comes from the
// caller's directory record, never from the request body.
func (h *PayoutHandler) Create(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	claims, ok := CurrentClaims(c)
	if !ok {
		Error(c, apierr.New(apierr.KindUnauthenticated, "user not authenticated"))
		return
	}
	user, found := h.directory.GetBySubject(c.Request.Context(), claims.SubjectID)
	if !found {
		Error(c, apierr.New(apierr.KindNotFound, "user not found"))
		return
	}

	var body partners.PayoutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		Error(c, apierr.New(apierr.KindValidation, "invalid json"))
		return
	}
	if body.WalletID == "" || body.QuoteID == "" || body.Provider == "" || body.Amount == "" {
		Error(c, apierr.New(apierr.KindValidation, "wallet_id, quote_id, provider, and amount are required"))
		return
	}
	if body.RecipientID == "" && !body.ExchangeOnly {
		Error(c, apierr.New(apierr.KindValidation, "recipient_id is required unless exchange_only is set"))
		return
	}
	body.UserID = user.ID

	account := c.Param("account")
	log.Infof("payouts: creating payout account=%s user=%s provider=%s exchange_only=%v",
		account, user.ID, body.Provider, body.ExchangeOnly)

	payout, errCreate := h.client.CreatePayout(c.Request.Context(), account, body)
	if errCreate != nil {
		Error(c, errCreate)
		return
	}
	c.JSON(http.StatusOK, payout)
}

// RecipientsList returns the recipient registry, optionally filtered by
// provider.
func (h *PayoutHandler) RecipientsList(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	recipients, errList := h.client.ListRecipients(c.Request.Context(),
		strings.TrimSpace(c.Query("provider")), strings.TrimSpace(c.Query("exclude_provider")))
	if errList != nil {
		Error(c, errList)
		return
	}
	if recipients == nil {
		recipients = []partners.Recipient{}
	}
	c.JSON(http.StatusOK, gin.H{"recipients": recipients})
}

// RecipientCreate registers a payout destination.
func (h *PayoutHandler) RecipientCreate(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	var body map[string]any
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body) == 0 {
		Error(c, apierr.New(apierr.KindValidation, "invalid json"))
		return
	}
	for _, required := range []string{"user_id", "provider", "bank_code", "account_number"} {
		if value, ok := body[required].(string); !ok || value == "" {
			Error(c, apierr.New(apierr.KindValidation, required+" is required"))
			return
		}
	}
	recipient, errCreate := h.client.CreateRecipient(c.Request.Context(), body)
	if errCreate != nil {
		Error(c, errCreate)
		return
	}
	c.JSON(http.StatusOK, recipient)
}

// RecipientUpdate changes an existing payout destination.
func (h *PayoutHandler) RecipientUpdate(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	var body map[string]any
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body) == 0 {
		Error(c, apierr.New(apierr.KindValidation, "invalid json"))
		return
	}
	recipient, errUpdate := h.client.UpdateRecipient(c.Request.Context(), c.Param("id"), body)
	if errUpdate != nil {
		Error(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, recipient)
}

// RecipientDelete removes a payout destination.
func (h *PayoutHandler) RecipientDelete(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	if errDelete := h.client.DeleteRecipient(c.Request.Context(), c.Param("id")); errDelete != nil {
		Error(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

// History lists past payouts for an account.
func (h *PayoutHandler) History(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	history, errHistory := h.client.GetPayoutHistory(c.Request.Context(), c.Param("account"))
	if errHistory != nil {
		Error(c, errHistory)
		return
	}
	c.JSON(http.StatusOK, history)
}
