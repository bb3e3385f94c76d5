package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "mcp.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadMergesInOrder(t *testing.T) {
	first := writeManifest(t, t.TempDir(), `{"mcpServers":{
		"wallet":{"command":"wallet-mcp","env":{"WALLET_API_URL":"${TEST_WALLET_URL}"}},
		"remote":{"transport":{"type":"websocket","url":"ws://a/mcp/ws"},"enabled":false}}}`)
	second := writeManifest(t, t.TempDir(), `{"mcpServers":{
		"remote":{"transport":{"type":"websocket","url":"ws://b/mcp/ws"}}}}`)
	t.Setenv("TEST_WALLET_URL", "https://wallets.example")

	res, err := Load(true, first, second)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Order) != 2 || res.Order[0] != "remote" || res.Order[1] != "wallet" {
		t.Fatalf("unexpected order %v", res.Order)
	}
	remote := res.Servers["remote"]
	if remote.Transport.URL != "ws://b/mcp/ws" || !remote.EnabledValue() {
		t.Fatalf("later manifest should win, got %+v", remote)
	}
	if got := res.Servers["wallet"].Env["WALLET_API_URL"]; got != "https://wallets.example" {
		t.Fatalf("env not expanded: %q", got)
	}
	if len(res.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %v", res.Sources)
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json")
	res, err := Load(false, missing)
	if err != nil {
		t.Fatalf("optional manifest should not fail: %v", err)
	}
	if len(res.Order) != 0 {
		t.Fatalf("expected no servers, got %v", res.Order)
	}
	if _, err := Load(true, missing); err == nil {
		t.Fatal("required manifest should fail when missing")
	}
}

func TestLoadResultOverride(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `{"mcpServers":{"wallet":{"command":"wallet-mcp"}}}`)
	t.Setenv("MCP_CONFIG_PATH", path)
	res, err := LoadResult()
	if err != nil {
		t.Fatalf("LoadResult: %v", err)
	}
	if len(res.Order) != 1 || res.Order[0] != "wallet" {
		t.Fatalf("unexpected servers %v", res.Order)
	}
}
