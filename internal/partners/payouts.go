package partners

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"azkaban/internal/secrets"
)

// Secret names for the payout engine API.
const (
	SecretPayoutsBaseURL = "PAYOUTS_BASE_URL"
	SecretPayoutsAPIKey  = "PAYOUTS_API_KEY"
)

const (
	payoutsAccountPath    = "/v2/payouts/account"
	payoutsRecipientsPath = "/v1/recipients"
)

// Quote is a priced currency conversion offer. Monetary fields are decimal
// strings.
type Quote struct {
	QuoteID       string `json:"quote_id"`
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
	BaseAmount    string `json:"base_amount"`
	QuoteAmount   string `json:"quote_amount"`
	Rate          string `json:"rate"`
	FixedFee      string `json:"fixed_fee"`
	PctFee        string `json:"pct_fee"`
	Status        string `json:"status"`
	ExpirationTS  string `json:"expiration_ts_utc"`
	Network       string `json:"network,omitempty"`
	NetworkFee    string `json:"network_fee,omitempty"`
}

// QuoteParams identifies the conversion to price.
type QuoteParams struct {
	Account       string
	Amount        string
	BaseCurrency  string
	QuoteCurrency string
	Provider      string
}

// Recipient is a registered payout destination.
type Recipient struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Type           string `json:"type"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	DocumentType   string `json:"document_type,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	BankCode       string `json:"bank_code,omitempty"`
	AccountNumber  string `json:"account_number,omitempty"`
	AccountType    string `json:"account_type,omitempty"`
	Provider       string `json:"provider"`
	Enabled        *bool  `json:"enabled,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// TokenBalance is one token balance on a payout wallet.
type TokenBalance struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

// WalletBalance lists the token balances of one wallet.
type WalletBalance struct {
	WalletID string         `json:"walletId"`
	Network  string         `json:"network"`
	Balances []TokenBalance `json:"balances"`
}

// PayoutRequest creates a payout against a previously fetched quote.
type PayoutRequest struct {
	RecipientID   string `json:"recipient_id,omitempty"`
	WalletID      string `json:"wallet_id"`
	Reference     string `json:"reference,omitempty"`
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
	Amount        string `json:"amount"`
	QuoteID       string `json:"quote_id"`
	Quote         Quote  `json:"quote"`
	Token         string `json:"token"`
	Provider      string `json:"provider"`
	UserID        string `json:"user_id,omitempty"`
	ExchangeOnly  bool   `json:"exchange_only"`
}

// Payout is the engine's view of a created payout.
type Payout struct {
	PayoutID      string `json:"payout_id"`
	UserID        string `json:"user_id"`
	RecipientID   string `json:"recipient_id,omitempty"`
	QuoteID       string `json:"quote_id"`
	Reference     string `json:"reference,omitempty"`
	FromAmount    string `json:"from_amount"`
	FromCurrency  string `json:"from_currency"`
	ToAmount      string `json:"to_amount"`
	ToCurrency    string `json:"to_currency"`
	TxnHash       string `json:"txn_hash,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// PayoutHistoryItem is one entry of the payout history.
type PayoutHistoryItem struct {
	ID              string          `json:"id"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
	InitialCurrency string          `json:"initial_currency"`
	FinalCurrency   string          `json:"final_currency"`
	InitialAmount   string          `json:"initial_amount"`
	FinalAmount     string          `json:"final_amount,omitempty"`
	Rate            string          `json:"rate,omitempty"`
	Status          string          `json:"status"`
	UserID          string          `json:"user_id,omitempty"`
	Provider        int             `json:"provider"`
	AdditionalData  json.RawMessage `json:"additional_data,omitempty"`
}

// PayoutHistory is the history listing response.
type PayoutHistory struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Data    []PayoutHistoryItem `json:"data"`
	Count   int                 `json:"count"`
}

// PayoutsClient proxies the payout and quoting engine.
type PayoutsClient struct {
	agent *agent
}

// NewPayoutsClient builds a PayoutsClient with credentials from the resolver.
func NewPayoutsClient(ctx context.Context, resolver secrets.Resolver) (*PayoutsClient, error) {
	a, err := newAgent(ctx, resolver, "payouts", SecretPayoutsBaseURL, SecretPayoutsAPIKey)
	if err != nil {
		return nil, err
	}
	return &PayoutsClient{agent: a}, nil
}

// GetQuote prices a conversion for an account.
func (c *PayoutsClient) GetQuote(ctx context.Context, params QuoteParams) (*Quote, error) {
	query := url.Values{}
	query.Set("amount", params.Amount)
	query.Set("base_currency", params.BaseCurrency)
	query.Set("quote_currency", params.QuoteCurrency)
	query.Set("provider", params.Provider)

	var quote Quote
	path := fmt.Sprintf("%s/%s/quote", payoutsAccountPath, params.Account)
	if err := c.agent.get(ctx, path, query, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// GetRecipients lists payout destinations registered for a user.
func (c *PayoutsClient) GetRecipients(ctx context.Context, account, userID, provider string) ([]Recipient, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("provider", provider)

	var raw json.RawMessage
	path := fmt.Sprintf("%s/%s/recipient", payoutsAccountPath, account)
	if err := c.agent.get(ctx, path, query, &raw); err != nil {
		return nil, err
	}
	return decodeObjectOrList[Recipient](c.agent.partner, raw)
}

// GetBalance returns the token balances of a payout wallet.
func (c *PayoutsClient) GetBalance(ctx context.Context, account, walletID, provider string) (*WalletBalance, error) {
	query := url.Values{}
	query.Set("provider", provider)

	var balance WalletBalance
	path := fmt.Sprintf("%s/%s/wallets/%s/balances", payoutsAccountPath, account, walletID)
	if err := c.agent.get(ctx, path, query, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// CreatePayout executes a payout against a quote. This is the money-movement
// call; callers must have passed the one-time-code gate before reaching it.
func (c *PayoutsClient) CreatePayout(ctx context.Context, account string, request PayoutRequest) (*Payout, error) {
	var payout Payout
	path := fmt.Sprintf("%s/%s/payout", payoutsAccountPath, account)
	if err := c.agent.post(ctx, path, request, &payout, nil); err != nil {
		return nil, err
	}
	return &payout, nil
}

// ListRecipients fetches the recipient registry across accounts, optionally
// filtered by provider. The upstream wraps the listing in a recipients object
// or returns a bare list.
func (c *PayoutsClient) ListRecipients(ctx context.Context, provider, excludeProvider string) ([]Recipient, error) {
	query := url.Values{}
	if provider != "" {
		query.Set("provider", provider)
	}
	if excludeProvider != "" {
		query.Set("exclude_provider", excludeProvider)
	}

	var raw json.RawMessage
	if err := c.agent.get(ctx, payoutsRecipientsPath, query, &raw); err != nil {
		return nil, err
	}
	var wrapped struct {
		Recipients []Recipient `json:"recipients"`
	}
	if errWrapped := json.Unmarshal(raw, &wrapped); errWrapped == nil && wrapped.Recipients != nil {
		return wrapped.Recipients, nil
	}
	return decodeObjectOrList[Recipient](c.agent.partner, raw)
}

// CreateRecipient registers a payout destination.
func (c *PayoutsClient) CreateRecipient(ctx context.Context, data map[string]any) (*Recipient, error) {
	var recipient Recipient
	if err := c.agent.post(ctx, payoutsRecipientsPath, data, &recipient, nil); err != nil {
		return nil, err
	}
	return &recipient, nil
}

// UpdateRecipient changes an existing payout destination.
func (c *PayoutsClient) UpdateRecipient(ctx context.Context, recipientID string, data map[string]any) (*Recipient, error) {
	var recipient Recipient
	path := fmt.Sprintf("%s/%s", payoutsRecipientsPath, recipientID)
	if err := c.agent.put(ctx, path, data, &recipient); err != nil {
		return nil, err
	}
	return &recipient, nil
}

// DeleteRecipient removes a payout destination from the registry.
func (c *PayoutsClient) DeleteRecipient(ctx context.Context, recipientID string) error {
	return c.agent.delete(ctx, fmt.Sprintf("%s/%s", payoutsRecipientsPath, recipientID))
}

// GetPayoutHistory lists past payouts for an account.
func (c *PayoutsClient) GetPayoutHistory(ctx context.Context, account string) (*PayoutHistory, error) {
	var history PayoutHistory
	path := fmt.Sprintf("%s/%s/payout", payoutsAccountPath, account)
	if err := c.agent.get(ctx, path, nil, &history); err != nil {
		return nil, err
	}
	return &history, nil
}
