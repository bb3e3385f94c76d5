package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/onchain-voice-lab/internal/agent"
	"github.com/onchain-voice-lab/internal/mcp"
)

type fakeRunner struct {
	input string
	steps []agent.Step
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, threadID, input string, onStep func(agent.Step)) (string, error) {
	f.input = input
	if f.err != nil {
		return "", f.err
	}
	for _, s := range f.steps {
		onStep(s)
	}
	return "final", nil
}

func post(t *testing.T, e http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chatbot", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestChatbotReturnsStepsWithoutSeparators(t *testing.T) {
	r := &fakeRunner{steps: []agent.Step{
		{Kind: agent.StepTools, Content: "Balance: 1 ETH", Tool: "get_balance"},
		{Kind: agent.StepAgent, Content: "You have 1 ETH."},
	}}
	e := New()
	MountChatbot(e, r)

	rec := post(t, e, `{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"},{"role":"user","content":"what's my balance?"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if r.input != "what's my balance?" {
		t.Fatalf("expected last user message, got %q", r.input)
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "Balance: 1 ETH\nYou have 1 ETH." {
		t.Fatalf("unexpected response %q", resp.Response)
	}
}

func TestChatbotRejectsMissingUserMessage(t *testing.T) {
	e := New()
	MountChatbot(e, &fakeRunner{})
	rec := post(t, e, `{"messages":[{"role":"assistant","content":"hello"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatbotAgentError(t *testing.T) {
	e := New()
	MountChatbot(e, &fakeRunner{err: errors.New("boom")})
	rec := post(t, e, `{"messages":[{"role":"user","content":"send 1 eth"}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("expected error text, got %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	e := New()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMountMCPServesTools(t *testing.T) {
	server := sdk.NewServer(&sdk.Implementation{Name: "ws-server", Version: "test"}, nil)
	type echoArgs struct {
		Message string `json:"message"`
	}
	sdk.AddTool(server, &sdk.Tool{Name: "echo", Description: "echo back messages"}, func(ctx context.Context, req *sdk.CallToolRequest, args echoArgs) (*sdk.CallToolResult, any, error) {
		return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: args.Message}}}, nil, nil
	})

	e := New()
	MountMCP(e, server)
	srv := httptest.NewServer(e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := mcp.NewClientWrapper("server-test", "test")
	if err := client.ConnectWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/mcp/ws"); err != nil {
		t.Fatalf("ConnectWebSocket: %v", err)
	}
	defer client.Close()

	out, err := client.CallTool(ctx, "echo", json.RawMessage(`{"message":"over echo"}`))
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if out != "over echo" {
		t.Fatalf("unexpected tool output %q", out)
	}
}
