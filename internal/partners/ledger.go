package partners

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"azkaban/internal/secrets"
)

// Secret names for the transaction ledger API.
const (
	SecretLedgerBaseURL = "LEDGER_BASE_URL"
	SecretLedgerAPIKey  = "LEDGER_API_KEY"
)

const ledgerTransactionsPath = "/v1/backoffice/transactions"

// LedgerTransaction is one backoffice ledger entry.
type LedgerTransaction struct {
	ID        string  `json:"id"`
	Provider  string  `json:"provider"`
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	CreatedAt string  `json:"created_at"`
}

// LedgerPagination describes the page window of a transactions listing.
type LedgerPagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// LedgerTransactionsPage is the listing response.
type LedgerTransactionsPage struct {
	Transactions []LedgerTransaction `json:"transactions"`
	Pagination   LedgerPagination    `json:"pagination"`
}

// LedgerTransactionsFilter narrows a transactions listing.
type LedgerTransactionsFilter struct {
	Provider         string
	ExcludeProviders []string
	DateFrom         *time.Time
	DateTo           *time.Time
	Page             int
	Limit            int
}

// CreateTransactionResult is the creation acknowledgment.
type CreateTransactionResult struct {
	ID string `json:"id"`
}

// LedgerClient proxies the backoffice transaction ledger.
type LedgerClient struct {
	agent *agent
}

// NewLedgerClient builds a LedgerClient with credentials from the resolver.
func NewLedgerClient(ctx context.Context, resolver secrets.Resolver) (*LedgerClient, error) {
	a, err := newAgent(ctx, resolver, "ledger", SecretLedgerBaseURL, SecretLedgerAPIKey)
	if err != nil {
		return nil, err
	}
	return &LedgerClient{agent: a}, nil
}

// ListTransactions fetches a page of ledger transactions.
func (c *LedgerClient) ListTransactions(ctx context.Context, filter LedgerTransactionsFilter) (*LedgerTransactionsPage, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(filter.Page))
	query.Set("limit", strconv.Itoa(filter.Limit))
	if filter.Provider != "" {
		query.Set("provider", filter.Provider)
	}
	for _, excluded := range filter.ExcludeProviders {
		query.Add("exclude_provider", excluded)
	}
	if filter.DateFrom != nil {
		query.Set("date_from", filter.DateFrom.Format(time.RFC3339))
	}
	if filter.DateTo != nil {
		query.Set("date_to", filter.DateTo.Format(time.RFC3339))
	}

	var page LedgerTransactionsPage
	if err := c.agent.get(ctx, ledgerTransactionsPath, query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateTransaction records a transaction in the ledger. The idempotency key,
// when present, travels as a header so the ledger can deduplicate replays.
func (c *LedgerClient) CreateTransaction(ctx context.Context, transaction map[string]any, idempotencyKey string) (*CreateTransactionResult, error) {
	var extra http.Header
	if idempotencyKey != "" {
		extra = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	var result CreateTransactionResult
	if err := c.agent.post(ctx, ledgerTransactionsPath, transaction, &result, extra); err != nil {
		return nil, err
	}
	return &result, nil
}
