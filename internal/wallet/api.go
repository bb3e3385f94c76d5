package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const apiTimeout = 15 * time.Second

// APIClient talks to a server-wallet REST API (Privy compatible): wallets
// are created and used by id, and signing happens server side.
type APIClient struct {
	BaseURL   string
	AppID     string
	AppSecret string
	HTTP      *http.Client
	Attempts  int
}

// WalletInfo is the API's view of a wallet.
type WalletInfo struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	ChainType string `json:"chain_type"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// Transaction is an unsigned native-token transfer. Value is hex wei.
type Transaction struct {
	To      string `json:"to"`
	Value   string `json:"value"`
	ChainID int64  `json:"chain_id,omitempty"`
}

func (c *APIClient) header() http.Header {
	h := http.Header{}
	if c.AppID != "" {
		h.Set("privy-app-id", c.AppID)
		creds := base64.StdEncoding.EncodeToString([]byte(c.AppID + ":" + c.AppSecret))
		h.Set("Authorization", "Basic "+creds)
	}
	return h
}

func (c *APIClient) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimRight(c.BaseURL, "/") + "/v1/" + strings.Join(escaped, "/")
}

// do sends a request that is safe to repeat, retrying transient failures.
func (c *APIClient) do(ctx context.Context, method, url string, body, out any) error {
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	return c.send(ctx, method, url, c.header(), body, out, attempts)
}

// doOnce sends a request that changes remote state. It is attempted once
// and carries a fresh idempotency key, so a failure after the server acted
// never repeats the action.
func (c *APIClient) doOnce(ctx context.Context, method, url string, body, out any) error {
	h := c.header()
	h.Set("privy-idempotency-key", uuid.NewString())
	return c.send(ctx, method, url, h, body, out, 1)
}

func (c *APIClient) send(ctx context.Context, method, url string, h http.Header, body, out any, attempts int) error {
	if c.BaseURL == "" {
		return errors.New("wallet api url is not configured")
	}
	return doJSON(ctx, c.HTTP, request{
		method:  method,
		url:     url,
		header:  h,
		body:    body,
		timeout: apiTimeout,
	}, attempts, out)
}

// CreateWallet creates a new server wallet for chainType.
func (c *APIClient) CreateWallet(ctx context.Context, chainType string) (WalletInfo, error) {
	var w WalletInfo
	err := c.doOnce(ctx, http.MethodPost, c.endpoint("wallets"), map[string]string{"chain_type": chainType}, &w)
	if err != nil {
		return WalletInfo{}, fmt.Errorf("create wallet: %w", err)
	}
	if w.ID == "" || w.Address == "" {
		return WalletInfo{}, errors.New("create wallet: reply missing id or address")
	}
	return w, nil
}

// GetWallet fetches a wallet by id.
func (c *APIClient) GetWallet(ctx context.Context, id string) (WalletInfo, error) {
	var w WalletInfo
	if err := c.do(ctx, http.MethodGet, c.endpoint("wallets", id), nil, &w); err != nil {
		return WalletInfo{}, fmt.Errorf("get wallet %s: %w", id, err)
	}
	return w, nil
}

// SendTransaction signs and broadcasts tx from the wallet and returns the
// transaction hash.
func (c *APIClient) SendTransaction(ctx context.Context, walletID string, tx Transaction) (string, error) {
	body := map[string]any{
		"method": "eth_sendTransaction",
		"caip2":  fmt.Sprintf("eip155:%d", tx.ChainID),
		"params": map[string]any{"transaction": tx},
	}
	var out struct {
		Data struct {
			Hash string `json:"hash"`
		} `json:"data"`
	}
	if err := c.doOnce(ctx, http.MethodPost, c.endpoint("wallets", walletID, "rpc"), body, &out); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	if out.Data.Hash == "" {
		return "", errors.New("send transaction: reply missing hash")
	}
	return out.Data.Hash, nil
}
