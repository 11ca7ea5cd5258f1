package partners

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"azkaban/internal/apierr"
	"azkaban/internal/secrets"
)

func setPartnerEnv(t *testing.T, urlName, keyName, baseURL string) {
	t.Helper()
	t.Setenv(urlName, baseURL)
	t.Setenv(keyName, "test-api-key")
}

func TestNewAgent_MissingCredentials(t *testing.T) {
	t.Setenv(SecretLedgerBaseURL, "")
	t.Setenv(SecretLedgerAPIKey, "")

	_, err := NewLedgerClient(context.Background(), secrets.EnvResolver{})
	typed, ok := apierr.As(err)
	if !ok || typed.Kind != apierr.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAgent_RetriesTransientGet(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if got := r.Header.Get("x-api-key"); got != "test-api-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(LedgerTransactionsPage{
			Pagination: LedgerPagination{Page: 1, Limit: 10},
		})
	}))
	defer server.Close()
	setPartnerEnv(t, SecretLedgerBaseURL, SecretLedgerAPIKey, server.URL)

	client, err := NewLedgerClient(context.Background(), secrets.EnvResolver{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	page, errList := client.ListTransactions(context.Background(), LedgerTransactionsFilter{})
	if errList != nil {
		t.Fatalf("expected success after retries, got %v", errList)
	}
	if page.Pagination.Page != 1 {
		t.Fatalf("unexpected page: %+v", page.Pagination)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestAgent_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"no such account"}`))
	}))
	defer server.Close()
	setPartnerEnv(t, SecretLedgerBaseURL, SecretLedgerAPIKey, server.URL)

	client, err := NewLedgerClient(context.Background(), secrets.EnvResolver{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, errList := client.ListTransactions(context.Background(), LedgerTransactionsFilter{})
	var upstream *UpstreamError
	if !errors.As(errList, &upstream) || upstream.Status != http.StatusNotFound {
		t.Fatalf("expected upstream 404, got %v", errList)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", got)
	}
}

func TestAgent_NeverRetriesMutations(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.Header.Get("Idempotency-Key"); got != "key-123" {
			t.Errorf("expected idempotency key header, got %q", got)
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("ledger exploded"))
	}))
	defer server.Close()
	setPartnerEnv(t, SecretLedgerBaseURL, SecretLedgerAPIKey, server.URL)

	client, err := NewLedgerClient(context.Background(), secrets.EnvResolver{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, errCreate := client.CreateTransaction(context.Background(), map[string]any{"amount": "10"}, "key-123")
	var upstream *UpstreamError
	if !errors.As(errCreate, &upstream) || upstream.Status != http.StatusInternalServerError {
		t.Fatalf("expected upstream 500, got %v", errCreate)
	}
	if upstream.Body != "ledger exploded" {
		t.Fatalf("expected upstream body, got %q", upstream.Body)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("mutations must not be retried, got %d attempts", got)
	}
}

func TestVaultClient_ListAccountsNormalizesSingleObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != vaultAccountsPath {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"0","name":"Treasury","assets":[{"id":"USDC","balance":"12.5"}]}`))
	}))
	defer server.Close()
	setPartnerEnv(t, SecretVaultBaseURL, SecretVaultAPIKey, server.URL)

	client, err := NewVaultClient(context.Background(), secrets.EnvResolver{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	accounts, errList := client.ListAccounts(context.Background())
	if errList != nil {
		t.Fatalf("list accounts: %v", errList)
	}
	if len(accounts) != 1 || accounts[0].Name != "Treasury" {
		t.Fatalf("expected single normalized account, got %+v", accounts)
	}
	if len(accounts[0].Assets) != 1 || accounts[0].Assets[0].Balance != "12.5" {
		t.Fatalf("expected asset balance, got %+v", accounts[0].Assets)
	}
}

func TestVaultClient_EmptyExternalWallets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":"no external wallets found","code":404,"data":[]}`))
	}))
	defer server.Close()
	setPartnerEnv(t, SecretVaultBaseURL, SecretVaultAPIKey, server.URL)

	client, err := NewVaultClient(context.Background(), secrets.EnvResolver{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	wallets, errList := client.ListExternalWallets(context.Background())
	if errList != nil {
		t.Fatalf("list external wallets: %v", errList)
	}
	if len(wallets) != 0 {
		t.Fatalf("expected empty wallet list, got %+v", wallets)
	}
}

func TestVaultClient_CreateTransaction(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != vaultTransferPath {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var request VaultTransferRequest
		if errDecode := json.NewDecoder(r.Body).Decode(&request); errDecode != nil {
			t.Errorf("decode request: %v", errDecode)
		}
		if request.SourceVaultID != "0" || request.DestinationWalletID != "ext-1" || request.Amount != "25.00" {
			t.Errorf("unexpected request %+v", request)
		}
		_ = json.NewEncoder(w).Encode(VaultTransferResult{ID: "tx-1", Status: "SUBMITTED"})
	}))
	defer server.Close()
	setPartnerEnv(t, SecretVaultBaseURL, SecretVaultAPIKey, server.URL)

	client, err := NewVaultClient(context.Background(), secrets.EnvResolver{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	result, errCreate := client.CreateTransaction(context.Background(), VaultTransferRequest{
		Network:             "polygon",
		Service:             "BLOCKCHAIN_WITHDRAWAL",
		Token:               "usdc",
		SourceVaultID:       "0",
		DestinationWalletID: "ext-1",
		FeeLevel:            "MEDIUM",
		Amount:              "25.00",
	})
	if errCreate != nil {
		t.Fatalf("create transaction: %v", errCreate)
	}
	if result.ID != "tx-1" || result.Status != "SUBMITTED" {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("transfers must not be retried, got %d attempts", got)
	}
}

func TestPayoutsClient_RecipientManagement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == payoutsRecipientsPath:
			if got := r.URL.Query().Get("exclude_provider"); got != "cobre" {
				t.Errorf("expected exclude_provider filter, got %q", got)
			}
			_, _ = w.Write([]byte(`{"recipients":[{"id":"r-1","user_id":"u-1","provider":"kira"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == payoutsRecipientsPath:
			_, _ = w.Write([]byte(`{"id":"r-2","user_id":"u-1","provider":"kira"}`))
		case r.Method == http.MethodDelete && r.URL.Path == payoutsRecipientsPath+"/r-2":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	setPartnerEnv(t, SecretPayoutsBaseURL, SecretPayoutsAPIKey, server.URL)

	client, err := NewPayoutsClient(context.Background(), secrets.EnvResolver{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	recipients, errList := client.ListRecipients(ctx, "", "cobre")
	if errList != nil {
		t.Fatalf("list recipients: %v", errList)
	}
	if len(recipients) != 1 || recipients[0].ID != "r-1" {
		t.Fatalf("expected unwrapped recipient list, got %+v", recipients)
	}

	created, errCreate := client.CreateRecipient(ctx, map[string]any{"user_id": "u-1", "provider": "kira"})
	if errCreate != nil {
		t.Fatalf("create recipient: %v", errCreate)
	}
	if created.ID != "r-2" {
		t.Fatalf("unexpected created recipient %+v", created)
	}

	if errDelete := client.DeleteRecipient(ctx, "r-2"); errDelete != nil {
		t.Fatalf("delete recipient: %v", errDelete)
	}
}

func TestPayoutsClient_GetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != payoutsAccountPath+"/transfer/quote" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("amount") != "100.00" || query.Get("base_currency") != "USD" ||
			query.Get("quote_currency") != "COP" || query.Get("provider") != "kira" {
			t.Errorf("unexpected query %v", query)
		}
		_ = json.NewEncoder(w).Encode(Quote{
			QuoteID:       "q-1",
			BaseCurrency:  "USD",
			QuoteCurrency: "COP",
			BaseAmount:    "100.00",
			QuoteAmount:   "412000.00",
			Rate:          "4120",
			Status:        "active",
		})
	}))
	defer server.Close()
	setPartnerEnv(t, SecretPayoutsBaseURL, SecretPayoutsAPIKey, server.URL)

	client, err := NewPayoutsClient(context.Background(), secrets.EnvResolver{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	quote, errQuote := client.GetQuote(context.Background(), QuoteParams{
		Account:       "transfer",
		Amount:        "100.00",
		BaseCurrency:  "USD",
		QuoteCurrency: "COP",
		Provider:      "kira",
	})
	if errQuote != nil {
		t.Fatalf("get quote: %v", errQuote)
	}
	if quote.QuoteID != "q-1" || quote.QuoteAmount != "412000.00" {
		t.Fatalf("unexpected quote %+v", quote)
	}
}

func TestPayoutsClient_CreatePayout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != payoutsAccountPath+"/transfer/payout" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var request PayoutRequest
		if errDecode := json.NewDecoder(r.Body).Decode(&request); errDecode != nil {
			t.Errorf("decode request: %v", errDecode)
		}
		if request.QuoteID != "q-1" || request.WalletID != "w-1" {
			t.Errorf("unexpected request %+v", request)
		}
		_ = json.NewEncoder(w).Encode(Payout{PayoutID: "p-1", QuoteID: "q-1", Status: "pending"})
	}))
	defer server.Close()
	setPartnerEnv(t, SecretPayoutsBaseURL, SecretPayoutsAPIKey, server.URL)

	client, err := NewPayoutsClient(context.Background(), secrets.EnvResolver{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	payout, errCreate := client.CreatePayout(context.Background(), "transfer", PayoutRequest{
		WalletID:      "w-1",
		BaseCurrency:  "USD",
		QuoteCurrency: "COP",
		Amount:        "100.00",
		QuoteID:       "q-1",
		Token:         "USDC",
		Provider:      "kira",
	})
	if errCreate != nil {
		t.Fatalf("create payout: %v", errCreate)
	}
	if payout.PayoutID != "p-1" || payout.Status != "pending" {
		t.Fatalf("unexpected payout %+v", payout)
	}
}
