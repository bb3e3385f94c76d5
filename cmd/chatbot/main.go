package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onchain-voice-lab/internal/agent"
	"github.com/onchain-voice-lab/internal/config"
	"github.com/onchain-voice-lab/internal/logging"
	"github.com/onchain-voice-lab/internal/mcp"
	mcpconfig "github.com/onchain-voice-lab/internal/mcp/config"
	"github.com/onchain-voice-lab/internal/voice"
	"github.com/onchain-voice-lab/internal/wallet"
	"github.com/onchain-voice-lab/llm"
)

const version = "v0.1.0"

const (
	modeChat  = "chat"
	modeAuto  = "auto"
	modeAudio = "audio"
	modeTest  = "test"
	modeServe = "serve"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdin := bufio.NewReader(os.Stdin)
	mode := normalizeMode(cfg.Mode)
	for {
		if mode == "" {
			mode = chooseMode(stdin, os.Stdout)
		}
		if mode == "" {
			return 0
		}
		// The TUI owns the terminal in audio mode.
		if mode == modeAudio && os.Getenv("LOG_OUTPUT") == "" {
			_ = os.Setenv("LOG_OUTPUT", "chatbot.log")
		}
		logging.Init()

		if mode == modeTest {
			if err := runMicTest(ctx, cfg, os.Stdout); err != nil {
				fmt.Fprintf(os.Stdout, "Microphone test failed: %v\n", err)
			}
			mode = ""
			continue
		}
		code := run(ctx, cfg, mode, stdin)
		_ = logging.Sync()
		return code
	}
}

func run(ctx context.Context, cfg config.Config, mode string, stdin io.Reader) int {
	svc := wallet.NewService(cfg.Wallet.ServiceConfig(), nil)
	ag, tools, err := buildAgent(ctx, cfg, svc)
	if err != nil {
		logging.Errorw("agent setup failed", "error", err)
		fmt.Fprintf(os.Stderr, "agent setup failed: %v\n", err)
		return 1
	}
	defer func() { _ = tools.Close() }()
	logging.Infow("agent ready", "mode", mode, "tools", tools.Len(), "thread_id", cfg.Agent.ThreadID)

	switch mode {
	case modeChat:
		err = agent.RunChat(ctx, stdin, os.Stdout, ag, cfg.Agent.ThreadID)
	case modeAuto:
		err = agent.RunAutonomous(ctx, os.Stdout, ag, cfg.Agent.ThreadID, cfg.Agent.AutonomousPrompt, cfg.Agent.Interval)
	case modeAudio:
		err = runAudio(ctx, cfg, ag)
	case modeServe:
		err = runServe(ctx, cfg, ag, tools, svc)
	}
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, voice.ErrRetriesExhausted):
		logging.Errorw("realtime connection failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	default:
		logging.Errorw("mode exited with error", "mode", mode, "error", err)
		fmt.Fprintf(os.Stderr, "%s mode failed: %v\n", mode, err)
		return 1
	}
}

func normalizeMode(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", modeChat:
		return modeChat
	case "2", modeAuto, "autonomous":
		return modeAuto
	case "3", modeAudio, "voice":
		return modeAudio
	case "4", modeTest:
		return modeTest
	case "5", modeServe, "server":
		return modeServe
	}
	return ""
}

// chooseMode shows the menu until a valid choice is entered. It returns ""
// on EOF.
func chooseMode(in *bufio.Reader, out io.Writer) string {
	for {
		fmt.Fprintln(out, "\nAvailable modes:")
		fmt.Fprintln(out, "1. chat    - Interactive chat mode")
		fmt.Fprintln(out, "2. auto    - Autonomous action mode")
		fmt.Fprintln(out, "3. audio   - Voice interaction mode")
		fmt.Fprintln(out, "4. test    - Test microphone")
		fmt.Fprintln(out, "5. serve   - HTTP chatbot route")
		fmt.Fprint(out, "\nChoose a mode (enter number or name): ")
		line, err := in.ReadString('\n')
		if mode := normalizeMode(line); mode != "" {
			return mode
		}
		if err != nil {
			return ""
		}
		fmt.Fprintln(out, "Invalid choice. Please try again.")
	}
}

// buildAgent connects the MCP servers from the manifest. When none is
// configured the wallet tools run in-process.
func buildAgent(ctx context.Context, cfg config.Config, svc *wallet.Service) (*agent.Agent, *mcp.Toolbox, error) {
	box := mcp.NewToolbox()
	manifest, err := mcpconfig.LoadResult()
	if err != nil {
		logging.Warnw("mcp manifest not loaded", "error", err)
	}
	connected := 0
	if len(manifest.Servers) > 0 {
		connected = mcp.ConnectManifest(ctx, "onchain-voice-lab", manifest, box)
	}
	if connected == 0 {
		client := mcp.NewClientWrapper("wallet", version)
		if err := client.ConnectInMemory(ctx, wallet.NewServer(svc, version)); err != nil {
			return nil, nil, err
		}
		if err := box.Add(ctx, client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}

	ag := agent.New(agent.Config{
		Model:        llm.NewClientFromEnv(),
		Tools:        box,
		Instructions: cfg.Agent.Instructions,
		MaxSteps:     cfg.Agent.MaxSteps,
	})
	return ag, box, nil
}
