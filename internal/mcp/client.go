package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/onchain-voice-lab/internal/logging"
)

// ErrNotConnected is returned by tool calls made before a session exists.
var ErrNotConnected = errors.New("mcp: not connected")

const keepaliveInterval = 30 * time.Second

// ClientWrapper owns one MCP client session plus whatever resources its
// transport needs (a child process, a websocket).
type ClientWrapper struct {
	name            string
	client          *sdk.Client
	session         *sdk.ClientSession
	keepaliveCancel context.CancelFunc
	closers         []func() error
	mu              sync.Mutex
}

// NewClientWrapper creates a wrapper that identifies itself with name/version.
func NewClientWrapper(name, version string) *ClientWrapper {
	impl := &sdk.Implementation{Name: name, Version: version}
	return &ClientWrapper{name: name, client: sdk.NewClient(impl, nil)}
}

// ConnectWebSocket dials an MCP websocket endpoint. http(s) URLs are
// rewritten to ws(s).
func (w *ClientWrapper) ConnectWebSocket(ctx context.Context, rawurl string) error {
	u, err := url.Parse(rawurl)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	if err := w.connect(ctx, NewWebSocketTransport(conn)); err != nil {
		_ = conn.Close()
		return err
	}
	logging.Infow("mcp client connected", "server", w.name, "url", u.Redacted())
	return nil
}

// ConnectCommand spawns a local MCP server and talks to it over stdio.
// The child's stderr is forwarded to the debug log line by line.
func (w *ClientWrapper) ConnectCommand(ctx context.Context, serverName, command string, args []string, env map[string]string) error {
	if command == "" {
		return errors.New("command is required")
	}
	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		merged := os.Environ()
		for k, v := range env {
			merged = append(merged, k+"="+v)
		}
		cmd.Env = merged
	}
	stderr := &stderrLogger{server: serverName}
	cmd.Stderr = stderr

	transport := &sdk.CommandTransport{Command: cmd}
	if err := w.connect(ctx, transport); err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return fmt.Errorf("start %s: %w", command, err)
	}
	w.appendCloser(func() error {
		stderr.flush()
		return nil
	})
	logging.Infow("mcp command server started", "server", serverName, "command", command, "args", strings.Join(args, " "))
	return nil
}

// stderrLogger turns a child's stderr stream into debug log lines.
type stderrLogger struct {
	server string
	mu     sync.Mutex
	buf    []byte
}

func (l *stderrLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

func (l *stderrLogger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *stderrLogger) emit(line []byte) {
	if text := strings.TrimRight(string(line), "\r"); text != "" {
		logging.Debugw("mcp server stderr", "server", l.server, "line", text)
	}
}

// ConnectInMemory runs server inside this process and connects to it
// through an in-memory transport pair.
func (w *ClientWrapper) ConnectInMemory(ctx context.Context, server *sdk.Server) error {
	clientT, serverT := sdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	if err != nil {
		return fmt.Errorf("start in-memory server: %w", err)
	}
	if err := w.connect(ctx, clientT); err != nil {
		_ = ss.Close()
		return err
	}
	w.appendCloser(ss.Close)
	logging.Infow("mcp in-memory server connected", "server", w.name)
	return nil
}

func (w *ClientWrapper) appendCloser(fn func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closers = append(w.closers, fn)
}

func (w *ClientWrapper) connect(ctx context.Context, transport sdk.Transport) error {
	sess, err := w.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp connect: %w", err)
	}
	kaCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.session = sess
	if prev := w.keepaliveCancel; prev != nil {
		prev()
	}
	w.keepaliveCancel = cancel
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
				if err := sess.Ping(kaCtx, nil); err != nil {
					logging.Debugw("mcp keepalive failed", "server", w.name, "error", err)
				}
			}
		}
	}()
	return nil
}

func (w *ClientWrapper) currentSession() (*sdk.ClientSession, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return nil, ErrNotConnected
	}
	return w.session, nil
}

// ListTools returns every tool the server advertises.
func (w *ClientWrapper) ListTools(ctx context.Context) ([]*sdk.Tool, error) {
	sess, err := w.currentSession()
	if err != nil {
		return nil, err
	}
	var tools []*sdk.Tool
	params := &sdk.ListToolsParams{}
	for {
		res, err := sess.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools on %s: %w", w.name, err)
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		params = &sdk.ListToolsParams{Cursor: res.NextCursor}
	}
}

// CallTool invokes a tool and flattens its text content. A result flagged
// as an error by the server is returned as a Go error carrying that text.
func (w *ClientWrapper) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	sess, err := w.currentSession()
	if err != nil {
		return "", err
	}
	arguments := map[string]any{}
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("tool %s: decode arguments: %w", name, err)
		}
	}
	res, err := sess.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}
	var b strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return "", fmt.Errorf("tool %s: %s", name, b.String())
	}
	return b.String(), nil
}

// Close ends the session and releases transport resources in reverse order.
func (w *ClientWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	if w.keepaliveCancel != nil {
		w.keepaliveCancel()
		w.keepaliveCancel = nil
	}
	if w.session != nil {
		if err := w.session.Close(); err != nil {
			errs = append(errs, err)
		}
		w.session = nil
	}
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}
