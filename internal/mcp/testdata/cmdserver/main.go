package main

import (
	"context"
	"log"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoArgs struct {
	Message string `json:"message"`
}

func main() {
	server := sdk.NewServer(&sdk.Implementation{Name: "test-command", Version: "1.0.0"}, nil)

	sdk.AddTool(server, &sdk.Tool{Name: "echo", Description: "echo back messages"}, func(ctx context.Context, req *sdk.CallToolRequest, args echoArgs) (*sdk.CallToolResult, any, error) {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: args.Message}},
		}, nil, nil
	})
	sdk.AddTool(server, &sdk.Tool{Name: "env", Description: "report CMDSERVER_GREETING"}, func(ctx context.Context, req *sdk.CallToolRequest, _ struct{}) (*sdk.CallToolResult, any, error) {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: os.Getenv("CMDSERVER_GREETING")}},
		}, nil, nil
	})

	if err := server.Run(context.Background(), &sdk.StdioTransport{}); err != nil {
		log.Printf("server exited: %v", err)
	}
}
