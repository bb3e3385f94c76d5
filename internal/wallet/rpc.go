package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// RPCClient is a minimal Ethereum JSON-RPC client.
type RPCClient struct {
	URL  string
	HTTP *http.Client
	id   atomic.Int64
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	if c.URL == "" {
		return errors.New("rpc url is not configured")
	}
	if params == nil {
		params = []any{}
	}
	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.id.Add(1),
		"method":  method,
		"params":  params,
	}
	var reply struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	err := doJSON(ctx, c.HTTP, request{method: http.MethodPost, url: c.URL, body: body, timeout: 10 * time.Second}, 2, &reply)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if reply.Error != nil {
		return fmt.Errorf("%s: %w", method, reply.Error)
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// Balance returns the latest balance of address in wei.
func (c *RPCClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	var hex string
	if err := c.call(ctx, "eth_getBalance", []any{address, "latest"}, &hex); err != nil {
		return nil, err
	}
	return parseHexBig(hex)
}

// ChainID returns the node's chain id.
func (c *RPCClient) ChainID(ctx context.Context) (int64, error) {
	var hex string
	if err := c.call(ctx, "eth_chainId", nil, &hex); err != nil {
		return 0, err
	}
	n, err := parseHexBig(hex)
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

func parseHexBig(s string) (*big.Int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return n, nil
}
