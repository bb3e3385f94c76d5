package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/onchain-voice-lab/internal/config"
	"github.com/onchain-voice-lab/internal/logging"
	"github.com/onchain-voice-lab/internal/server"
	"github.com/onchain-voice-lab/internal/wallet"
)

const version = "v0.1.0"

func main() {
	addr := flag.String("addr", "", "serve MCP over websocket on this address instead of stdio")
	flag.Parse()

	_ = godotenv.Load()
	// stdout carries the stdio transport.
	if os.Getenv("LOG_OUTPUT") == "" {
		_ = os.Setenv("LOG_OUTPUT", "stderr")
	}
	logging.Init()
	defer func() { _ = logging.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logging.FatalExitf("load config", "error", err)
	}
	svc := wallet.NewService(cfg.Wallet.ServiceConfig(), nil)
	mcpServer := wallet.NewServer(svc, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listen := *addr
	if listen == "" {
		if port := os.Getenv("PORT"); port != "" {
			listen = ":" + port
		}
	}
	if listen == "" {
		logging.Infow("wallet mcp server on stdio", "network_id", cfg.Wallet.NetworkID)
		if err := mcpServer.Run(ctx, &sdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			logging.Errorw("wallet mcp server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	e := server.New()
	server.MountMCP(e, mcpServer)
	go func() {
		logging.Infow("wallet mcp server listening", "addr", listen, "network_id", cfg.Wallet.NetworkID)
		if err := e.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.FatalExitf("wallet mcp server failed", "error", err)
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Warnw("wallet mcp server shutdown", "error", err)
	}
}
