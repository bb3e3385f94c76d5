package wallet

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/onchain-voice-lab/internal/logging"
)

type noArgs struct{}

type transferArgs struct {
	To     string `json:"to" jsonschema:"destination address, 0x followed by 40 hex characters"`
	Amount string `json:"amount" jsonschema:"amount of native token to send, in whole units such as 0.001"`
}

func textResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}}
}

func errorResult(tool string, err error) *sdk.CallToolResult {
	logging.Warnw("wallet tool failed", "tool", tool, "error", err)
	res := textResult(err.Error())
	res.IsError = true
	return res
}

// NewServer returns an MCP server exposing svc's tools.
func NewServer(svc *Service, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: "wallet", Version: version}, nil)
	RegisterTools(server, svc)
	return server
}

// RegisterTools adds the wallet tools to server.
func RegisterTools(server *sdk.Server, svc *Service) {
	sdk.AddTool(server, &sdk.Tool{
		Name:        "get_wallet_details",
		Description: "Get the agent wallet's id, address and network.",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, _ noArgs) (*sdk.CallToolResult, any, error) {
		d, err := svc.Details(ctx)
		if err != nil {
			return errorResult("get_wallet_details", err), nil, nil
		}
		return textResult(d.String()), nil, nil
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        "get_balance",
		Description: "Get the agent wallet's native token balance.",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, _ noArgs) (*sdk.CallToolResult, any, error) {
		wei, err := svc.Balance(ctx)
		if err != nil {
			return errorResult("get_balance", err), nil, nil
		}
		return textResult(fmt.Sprintf("Balance: %s ETH", FormatEther(wei))), nil, nil
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        "request_faucet_funds",
		Description: "Request test funds from the faucet. Only available on base-sepolia.",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, _ noArgs) (*sdk.CallToolResult, any, error) {
		msg, err := svc.RequestFunds(ctx)
		if err != nil {
			return errorResult("request_faucet_funds", err), nil, nil
		}
		return textResult(msg), nil, nil
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        "transfer",
		Description: "Transfer native token from the agent wallet to another address.",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, args transferArgs) (*sdk.CallToolResult, any, error) {
		hash, err := svc.Transfer(ctx, args.To, args.Amount)
		if err != nil {
			return errorResult("transfer", err), nil, nil
		}
		return textResult(fmt.Sprintf("Transferred %s ETH to %s. Transaction hash: %s", args.Amount, args.To, hash)), nil, nil
	})
}
