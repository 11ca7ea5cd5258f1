package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"azkaban/internal/apierr"
	"azkaban/internal/partners"
)

// LedgerHandler proxies backoffice transaction ledger endpoints. Admin only.
type LedgerHandler struct {
	client *partners.LedgerClient
}

// NewLedgerHandler constructs a LedgerHandler. The client may be nil when
// the ledger credentials are not configured.
func NewLedgerHandler(client *partners.LedgerClient) *LedgerHandler {
	return &LedgerHandler{client: client}
}

func (h *LedgerHandler) ready() error {
	if h.client == nil {
		return apierr.New(apierr.KindConfiguration, "ledger api is not configured")
	}
	return nil
}

// Transactions lists ledger transactions with optional filters.
func (h *LedgerHandler) Transactions(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}

	filter := partners.LedgerTransactionsFilter{
		Provider: strings.TrimSpace(c.Query("provider")),
	}
	if raw := strings.TrimSpace(c.Query("exclude_provider")); raw != "" {
		filter.ExcludeProviders = strings.Split(raw, ",")
	}
	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		if page, errParse := strconv.Atoi(raw); errParse == nil {
			filter.Page = page
		}
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if limit, errParse := strconv.Atoi(raw); errParse == nil {
			filter.Limit = limit
		}
	}
	if raw := strings.TrimSpace(c.Query("date_from")); raw != "" {
		from, errParse := time.Parse(time.RFC3339, raw)
		if errParse != nil {
			Error(c, apierr.New(apierr.KindValidation, "invalid date_from, expected RFC 3339"))
			return
		}
		filter.DateFrom = &from
	}
	if raw := strings.TrimSpace(c.Query("date_to")); raw != "" {
		to, errParse := time.Parse(time.RFC3339, raw)
		if errParse != nil {
			Error(c, apierr.New(apierr.KindValidation, "invalid date_to, expected RFC 3339"))
			return
		}
		filter.DateTo = &to
	}

	page, errList := h.client.ListTransactions(c.Request.Context(), filter)
	if errList != nil {
		Error(c, errList)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CreateTransaction records a transaction in the ledger.
func (h *LedgerHandler) CreateTransaction(c *gin.Context) {
	if err := h.ready(); err != nil {
		Error(c, err)
		return
	}
	var body map[string]any
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body) == 0 {
		Error(c, apierr.New(apierr.KindValidation, "invalid json"))
		return
	}

	idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idempotencyKey == "" {
		if fromBody, ok := body["idempotency_key"].(string); ok {
			idempotencyKey = fromBody
			delete(body, "idempotency_key")
		}
	}

	result, errCreate := h.client.CreateTransaction(c.Request.Context(), body, idempotencyKey)
	if errCreate != nil {
		Error(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, result)
}
