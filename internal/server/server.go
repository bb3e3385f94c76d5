// Package server exposes the agent and the wallet tools over HTTP.
package server

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/onchain-voice-lab/internal/agent"
	"github.com/onchain-voice-lab/internal/logging"
	"github.com/onchain-voice-lab/internal/mcp"
)

const separator = "-------------------"

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// New returns an echo instance with the health route and middleware.
func New() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	return e
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			kv := []interface{}{"method", v.Method, "uri", v.URI, "status", v.Status, "latency_ms", v.Latency.Milliseconds()}
			if v.Error != nil {
				logging.Warnw("http request failed", append(kv, "error", v.Error)...)
				return nil
			}
			logging.Debugw("http request", kv...)
			return nil
		},
	})
}

// MountChatbot registers POST /api/chatbot. Every request runs on a fresh
// thread seeded only with the last user message.
func MountChatbot(e *echo.Echo, r agent.Runner) {
	e.POST("/api/chatbot", func(c echo.Context) error {
		var req ChatRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		}
		prompt := lastUserMessage(req.Messages)
		if prompt == "" {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no user message"})
		}

		threadID := uuid.NewString()
		var (
			mu  sync.Mutex
			out strings.Builder
		)
		onStep := func(s agent.Step) {
			mu.Lock()
			defer mu.Unlock()
			out.WriteString(s.Content)
			out.WriteString("\n")
			out.WriteString(separator)
			out.WriteString("\n")
		}
		final, err := r.Run(c.Request().Context(), threadID, prompt, onStep)
		if err != nil {
			logging.Errorw("chatbot request failed", "thread_id", threadID, "error", err)
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		mu.Lock()
		text := stripSeparators(out.String())
		mu.Unlock()
		if text == "" {
			text = strings.TrimSpace(final)
		}
		return c.JSON(http.StatusOK, ChatResponse{Response: text})
	})
}

// MountMCP serves server over websocket at /mcp/ws, one session per
// connection.
func MountMCP(e *echo.Echo, server *sdk.Server) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	e.GET("/mcp/ws", func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logging.Warnw("mcp websocket upgrade failed", "error", err)
			return nil
		}
		go func() {
			session, err := server.Connect(context.Background(), mcp.NewWebSocketTransport(conn), nil)
			if err != nil {
				logging.Errorw("mcp server connect failed", "error", err)
				_ = conn.Close()
				return
			}
			if err := session.Wait(); err != nil {
				logging.Debugw("mcp session ended", "error", err)
				return
			}
			logging.Debugw("mcp session ended")
		}()
		return nil
	})
}

func lastUserMessage(msgs []ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			if s := strings.TrimSpace(msgs[i].Content); s != "" {
				return s
			}
		}
	}
	return ""
}

func stripSeparators(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.Contains(l, separator) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
