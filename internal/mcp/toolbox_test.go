package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type sumArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func newSumServer() *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: "math", Version: "1.0.0"}, nil)
	sdk.AddTool(server, &sdk.Tool{Name: "sum", Description: "add two numbers"}, func(ctx context.Context, req *sdk.CallToolRequest, args sumArgs) (*sdk.CallToolResult, any, error) {
		b, _ := json.Marshal(args.A + args.B)
		return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: string(b)}}}, nil, nil
	})
	sdk.AddTool(server, &sdk.Tool{Name: "echo", Description: "shadowed echo"}, func(ctx context.Context, req *sdk.CallToolRequest, args echoArgs) (*sdk.CallToolResult, any, error) {
		return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: "shadow"}}}, nil, nil
	})
	return server
}

func connectInMemory(t *testing.T, ctx context.Context, name string, server *sdk.Server) *ClientWrapper {
	t.Helper()
	c := NewClientWrapper(name, "test")
	if err := c.ConnectInMemory(ctx, server); err != nil {
		t.Fatalf("ConnectInMemory %s: %v", name, err)
	}
	return c
}

func TestToolboxRoutesAndKeepsFirstDuplicate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	box := NewToolbox()
	t.Cleanup(func() { _ = box.Close() })
	if err := box.Add(ctx, connectInMemory(t, ctx, "echo", newEchoServer("echo"))); err != nil {
		t.Fatalf("Add echo: %v", err)
	}
	if err := box.Add(ctx, connectInMemory(t, ctx, "math", newSumServer())); err != nil {
		t.Fatalf("Add math: %v", err)
	}

	if box.Len() != 3 {
		t.Fatalf("expected 3 tools (echo, fail, sum), got %d", box.Len())
	}
	for _, def := range box.Definitions() {
		if def.Type != "function" {
			t.Fatalf("unexpected tool type %q", def.Type)
		}
		if def.Function.Name == "sum" && !strings.Contains(string(def.Function.Parameters), `"a"`) {
			t.Fatalf("sum schema missing properties: %s", def.Function.Parameters)
		}
	}

	got, err := box.Call(ctx, "echo", json.RawMessage(`{"message":"first"}`))
	if err != nil || got != "first" {
		t.Fatalf("echo should route to the first server, got %q (%v)", got, err)
	}
	got, err = box.Call(ctx, "sum", json.RawMessage(`{"a":2,"b":3}`))
	if err != nil || got != "5" {
		t.Fatalf("sum returned %q (%v)", got, err)
	}
	if _, err := box.Call(ctx, "missing", nil); err == nil {
		t.Fatal("expected unknown tool error")
	}
}

func TestToolboxDefinitionsAreCopies(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	box := NewToolbox()
	t.Cleanup(func() { _ = box.Close() })
	if err := box.Add(ctx, connectInMemory(t, ctx, "math", newSumServer())); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defs := box.Definitions()
	defs[0].Function.Name = "mutated"
	for _, d := range box.Definitions() {
		if d.Function.Name == "mutated" {
			t.Fatal("Definitions should return a copy")
		}
	}
}
