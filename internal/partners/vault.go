package partners

import (
	"context"
	"encoding/json"
	"fmt"

	"azkaban/internal/secrets"
)

// Secret names for the custody vault API.
const (
	SecretVaultBaseURL = "VAULT_BASE_URL"
	SecretVaultAPIKey  = "VAULT_API_KEY"
)

const (
	vaultAccountsPath        = "/vault/accounts"
	vaultExternalWalletsPath = "/vault/external-wallets"
	vaultEstimateFeePath     = "/vault/transactions/estimate-fee"
	vaultTransferPath        = "/vault/transactions/vault-to-vault"
)

// VaultAsset is one asset balance inside a custody account. Amounts are
// decimal strings, never floats.
type VaultAsset struct {
	ID           string `json:"id"`
	Total        string `json:"total"`
	Balance      string `json:"balance"`
	LockedAmount string `json:"lockedAmount"`
	Available    string `json:"available"`
	Pending      string `json:"pending"`
	Frozen       string `json:"frozen"`
	Staked       string `json:"staked"`
}

// VaultAccount is a custody account with its asset balances.
type VaultAccount struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	HiddenOnUI bool         `json:"hiddenOnUI"`
	AutoFuel   bool         `json:"autoFuel"`
	Assets     []VaultAsset `json:"assets"`
}

// RefreshBalanceResult acknowledges an asynchronous balance refresh.
type RefreshBalanceResult struct {
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// TransferPeer identifies one side of a custody transfer.
type TransferPeer struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// EstimateFeeRequest asks for fee estimates for a prospective transfer.
type EstimateFeeRequest struct {
	Operation   string       `json:"operation"`
	Source      TransferPeer `json:"source"`
	Destination TransferPeer `json:"destination"`
	AssetID     string       `json:"assetId"`
	Amount      string       `json:"amount"`
}

// FeeEstimate is one priority tier of a fee estimate.
type FeeEstimate struct {
	NetworkFee  string `json:"networkFee"`
	GasPrice    string `json:"gasPrice"`
	GasLimit    string `json:"gasLimit"`
	BaseFee     string `json:"baseFee"`
	PriorityFee string `json:"priorityFee"`
}

// EstimateFeeResult carries the three priority tiers.
type EstimateFeeResult struct {
	Low    FeeEstimate `json:"low"`
	Medium FeeEstimate `json:"medium"`
	High   FeeEstimate `json:"high"`
}

// VaultTransferRequest moves funds out of a custody vault, either to another
// vault or to a whitelisted external wallet. Exactly one destination field is
// expected.
type VaultTransferRequest struct {
	Network             string `json:"network"`
	Service             string `json:"service"`
	Token               string `json:"token"`
	SourceVaultID       string `json:"sourceVaultId"`
	DestinationWalletID string `json:"destinationWalletId,omitempty"`
	DestinationVaultID  string `json:"destinationVaultId,omitempty"`
	FeeLevel            string `json:"feeLevel"`
	Amount              string `json:"amount"`
}

// VaultTransferResult acknowledges a submitted transfer.
type VaultTransferResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ExternalWalletAsset is one asset registered on an external wallet.
type ExternalWalletAsset struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Address string `json:"address"`
	Tag     string `json:"tag"`
}

// ExternalWallet is a whitelisted destination outside the custody vault.
type ExternalWallet struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	CustomerRefID string                `json:"customerRefId"`
	Assets        []ExternalWalletAsset `json:"assets"`
}

// VaultClient proxies the blockchain custody vault.
type VaultClient struct {
	agent *agent
}

// NewVaultClient builds a VaultClient with credentials from the resolver.
func NewVaultClient(ctx context.Context, resolver secrets.Resolver) (*VaultClient, error) {
	a, err := newAgent(ctx, resolver, "vault", SecretVaultBaseURL, SecretVaultAPIKey)
	if err != nil {
		return nil, err
	}
	return &VaultClient{agent: a}, nil
}

// ListAccounts fetches all custody accounts. The upstream returns either a
// list or a single object; a single object is normalized into a one-element
// list.
func (c *VaultClient) ListAccounts(ctx context.Context) ([]VaultAccount, error) {
	var raw json.RawMessage
	if err := c.agent.get(ctx, vaultAccountsPath, nil, &raw); err != nil {
		return nil, err
	}
	return decodeObjectOrList[VaultAccount](c.agent.partner, raw)
}

// RefreshBalance triggers a balance refresh for one account asset.
func (c *VaultClient) RefreshBalance(ctx context.Context, accountID, asset string) (*RefreshBalanceResult, error) {
	path := fmt.Sprintf("%s/%s/%s/balance", vaultAccountsPath, accountID, asset)
	var result RefreshBalanceResult
	if err := c.agent.post(ctx, path, nil, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// EstimateFee returns fee tiers for a prospective transfer.
func (c *VaultClient) EstimateFee(ctx context.Context, request EstimateFeeRequest) (*EstimateFeeResult, error) {
	var result EstimateFeeResult
	if err := c.agent.post(ctx, vaultEstimateFeePath, request, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTransaction submits a custody transfer. This moves funds and is
// never retried; callers must have passed the one-time-code gate before
// reaching it.
func (c *VaultClient) CreateTransaction(ctx context.Context, request VaultTransferRequest) (*VaultTransferResult, error) {
	var result VaultTransferResult
	if err := c.agent.post(ctx, vaultTransferPath, request, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListExternalWallets fetches the whitelisted external wallets. An empty
// whitelist comes back upstream as a message object instead of a list; it is
// normalized to an empty slice.
func (c *VaultClient) ListExternalWallets(ctx context.Context) ([]ExternalWallet, error) {
	var raw json.RawMessage
	if err := c.agent.get(ctx, vaultExternalWalletsPath, nil, &raw); err != nil {
		return nil, err
	}
	var empty struct {
		Message string `json:"message"`
		Data    []any  `json:"data"`
	}
	if errEmpty := json.Unmarshal(raw, &empty); errEmpty == nil && empty.Message != "" {
		return nil, nil
	}
	return decodeObjectOrList[ExternalWallet](c.agent.partner, raw)
}

// decodeObjectOrList accepts a JSON list or a bare object, normalizing both
// to a slice.
func decodeObjectOrList[T any](partner string, raw json.RawMessage) ([]T, error) {
	var list []T
	if errList := json.Unmarshal(raw, &list); errList == nil {
		return list, nil
	}
	var single T
	if errSingle := json.Unmarshal(raw, &single); errSingle != nil {
		return nil, fmt.Errorf("partners: decode %s response: %w", partner, errSingle)
	}
	return []T{single}, nil
}
