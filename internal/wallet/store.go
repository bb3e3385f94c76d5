// Package wallet manages the agent's server-side wallet: the persisted
// wallet record, the wallet API, the chain RPC node and the MCP tools that
// expose them.
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/onchain-voice-lab/internal/fileio"
)

// ErrNoWallet means no wallet record has been saved yet.
var ErrNoWallet = errors.New("wallet: no saved wallet")

// Data is the wallet record kept between runs.
type Data struct {
	WalletID  string    `json:"wallet_id"`
	Address   string    `json:"address"`
	ChainType string    `json:"chain_type"`
	NetworkID string    `json:"network_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists Data as JSON in a single file.
type Store struct {
	path string
}

func NewStore(path string) *Store { return &Store{path: path} }

func (s *Store) Path() string { return s.path }

// Load returns ErrNoWallet when the file does not exist or is empty.
func (s *Store) Load() (Data, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Data{}, ErrNoWallet
	}
	if err != nil {
		return Data{}, err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return Data{}, ErrNoWallet
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if d.WalletID == "" {
		return Data{}, fmt.Errorf("parse %s: wallet_id missing", s.path)
	}
	return d, nil
}

// Save writes d atomically with owner-only permissions.
func (s *Store) Save(d Data) error {
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return fileio.SaveFileAtomic(s.path, append(raw, '\n'), 0o600)
}
