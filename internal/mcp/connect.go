package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/onchain-voice-lab/internal/logging"
	mcpconfig "github.com/onchain-voice-lab/internal/mcp/config"
)

const (
	wsConnectTimeout      = 5 * time.Second
	commandConnectTimeout = 10 * time.Second
)

// ConnectManifest connects every enabled server in the manifest and adds it
// to box. Servers that fail to connect are logged and skipped. It returns
// the number of servers connected.
func ConnectManifest(ctx context.Context, clientName string, manifest mcpconfig.Result, box *Toolbox) int {
	connected := 0
	for _, serverName := range manifest.Order {
		server := manifest.Servers[serverName]
		if !server.EnabledValue() {
			logging.Debugw("skipping disabled mcp server", "server", serverName)
			continue
		}
		client := NewClientWrapper(clientName, "v0.1.0")
		var err error
		switch {
		case server.Transport != nil && strings.EqualFold(server.Transport.Type, "websocket"):
			if server.Transport.URL == "" {
				logging.Warnw("mcp server missing websocket url", "server", serverName)
				continue
			}
			cctx, cancel := context.WithTimeout(ctx, wsConnectTimeout)
			err = client.ConnectWebSocket(cctx, server.Transport.URL)
			cancel()
		case server.Command != "":
			cctx, cancel := context.WithTimeout(ctx, commandConnectTimeout)
			err = client.ConnectCommand(cctx, serverName, server.Command, server.Args, server.Env)
			cancel()
		default:
			logging.Warnw("mcp server missing transport configuration", "server", serverName)
			continue
		}
		if err != nil {
			logging.Warnw("mcp server connect failed", "server", serverName, "error", err)
			continue
		}
		if err := box.Add(ctx, client); err != nil {
			logging.Warnw("mcp tool discovery failed", "server", serverName, "error", err)
			_ = client.Close()
			continue
		}
		connected++
	}
	return connected
}
