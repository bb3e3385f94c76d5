package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/onchain-voice-lab/internal/logging"
)

// Config holds the settings the wallet service needs.
type Config struct {
	DataFile  string
	APIURL    string
	AppID     string
	AppSecret string
	ChainType string
	NetworkID string
	ChainID   int64
	RPCURL    string
	FaucetURL string
}

// Details summarises the active wallet.
type Details struct {
	WalletID  string `json:"wallet_id"`
	Address   string `json:"address"`
	NetworkID string `json:"network_id"`
	ChainID   int64  `json:"chain_id"`
}

func (d Details) String() string {
	return fmt.Sprintf("Wallet %s\nAddress: %s\nNetwork: %s (chain %d)", d.WalletID, d.Address, d.NetworkID, d.ChainID)
}

// Service ties the persisted wallet to the wallet API and the chain node.
type Service struct {
	cfg   Config
	store *Store
	api   *APIClient
	rpc   *RPCClient
	http  *http.Client

	mu   sync.Mutex
	data *Data
}

// NewService builds a Service. A nil client uses http.DefaultClient.
func NewService(cfg Config, client *http.Client) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.ChainType == "" {
		cfg.ChainType = "ethereum"
	}
	return &Service{
		cfg:   cfg,
		store: NewStore(cfg.DataFile),
		api:   &APIClient{BaseURL: cfg.APIURL, AppID: cfg.AppID, AppSecret: cfg.AppSecret, HTTP: client},
		rpc:   &RPCClient{URL: cfg.RPCURL, HTTP: client},
		http:  client,
	}
}

// Ensure returns the saved wallet, creating and saving a new one on first
// use.
func (s *Service) Ensure(ctx context.Context) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != nil {
		return *s.data, nil
	}
	d, err := s.store.Load()
	if err == nil {
		s.data = &d
		logging.Infow("loaded wallet", "wallet_id", d.WalletID, "address", d.Address, "path", s.store.Path())
		return d, nil
	}
	if !errors.Is(err, ErrNoWallet) {
		return Data{}, err
	}
	info, err := s.api.CreateWallet(ctx, s.cfg.ChainType)
	if err != nil {
		return Data{}, err
	}
	d = Data{
		WalletID:  info.ID,
		Address:   info.Address,
		ChainType: info.ChainType,
		NetworkID: s.cfg.NetworkID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Save(d); err != nil {
		return Data{}, fmt.Errorf("save wallet: %w", err)
	}
	s.data = &d
	logging.Infow("created wallet", "wallet_id", d.WalletID, "address", d.Address, "path", s.store.Path())
	return d, nil
}

// Details returns the active wallet's identity as the wallet API reports
// it. When the API cannot be reached the saved record is used.
func (s *Service) Details(ctx context.Context) (Details, error) {
	d, err := s.Ensure(ctx)
	if err != nil {
		return Details{}, err
	}
	address := d.Address
	if info, err := s.api.GetWallet(ctx, d.WalletID); err != nil {
		logging.Warnw("wallet lookup failed; using saved record", "wallet_id", d.WalletID, "error", err)
	} else if info.Address != "" && !strings.EqualFold(info.Address, d.Address) {
		logging.Warnw("wallet address differs from saved record", "wallet_id", d.WalletID, "saved", d.Address, "api", info.Address)
		address = info.Address
	}
	return Details{WalletID: d.WalletID, Address: address, NetworkID: s.cfg.NetworkID, ChainID: s.cfg.ChainID}, nil
}

// Balance returns the wallet's native balance in wei.
func (s *Service) Balance(ctx context.Context) (*big.Int, error) {
	d, err := s.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return s.rpc.Balance(ctx, d.Address)
}

// Transfer sends amount (decimal ether) to the address to and returns the
// transaction hash.
func (s *Service) Transfer(ctx context.Context, to, amount string) (string, error) {
	to = strings.TrimSpace(to)
	if !ValidAddress(to) {
		return "", fmt.Errorf("invalid destination address %q", to)
	}
	wei, err := ParseEther(amount)
	if err != nil {
		return "", err
	}
	d, err := s.Ensure(ctx)
	if err != nil {
		return "", err
	}
	hash, err := s.api.SendTransaction(ctx, d.WalletID, Transaction{To: to, Value: ToHex(wei), ChainID: s.cfg.ChainID})
	if err != nil {
		return "", err
	}
	logging.Infow("transfer submitted", "wallet_id", d.WalletID, "to", to, "amount", amount, "hash", hash)
	return hash, nil
}

// RequestFunds asks the configured testnet faucet to fund the wallet.
func (s *Service) RequestFunds(ctx context.Context) (string, error) {
	if s.cfg.NetworkID != "base-sepolia" {
		return "", fmt.Errorf("faucet is only available on base-sepolia, not %s", s.cfg.NetworkID)
	}
	if s.cfg.FaucetURL == "" {
		return "", errors.New("no faucet url configured")
	}
	d, err := s.Ensure(ctx)
	if err != nil {
		return "", err
	}
	var out struct {
		TxHash  string `json:"tx_hash"`
		Message string `json:"message"`
	}
	err = doJSON(ctx, s.http, request{
		method:  http.MethodPost,
		url:     s.cfg.FaucetURL,
		body:    map[string]string{"address": d.Address, "network_id": s.cfg.NetworkID},
		timeout: 30 * time.Second,
	}, 1, &out)
	if err != nil {
		return "", fmt.Errorf("request faucet funds: %w", err)
	}
	switch {
	case out.TxHash != "":
		return fmt.Sprintf("Received test funds in transaction %s", out.TxHash), nil
	case out.Message != "":
		return out.Message, nil
	}
	return "Faucet request submitted", nil
}
