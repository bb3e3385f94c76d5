package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/onchain-voice-lab/internal/logging"
	"github.com/onchain-voice-lab/llm"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// Toolbox merges the tools of several MCP sessions into one namespace and
// routes calls to the session that owns each tool. When two servers expose
// the same name the first registered wins.
type Toolbox struct {
	mu      sync.RWMutex
	clients []*ClientWrapper
	owner   map[string]*ClientWrapper
	defs    []llm.Tool
}

func NewToolbox() *Toolbox {
	return &Toolbox{owner: make(map[string]*ClientWrapper)}
}

// Add registers a connected client and indexes its tools.
func (b *Toolbox) Add(ctx context.Context, c *ClientWrapper) error {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients = append(b.clients, c)
	for _, t := range tools {
		if _, dup := b.owner[t.Name]; dup {
			logging.Warnw("duplicate mcp tool ignored", "tool", t.Name, "server", c.name)
			continue
		}
		schema := emptyObjectSchema
		if t.InputSchema != nil {
			if raw, err := json.Marshal(t.InputSchema); err == nil {
				schema = raw
			}
		}
		b.owner[t.Name] = c
		b.defs = append(b.defs, llm.Tool{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	logging.Infow("mcp tools registered", "server", c.name, "tools", len(tools))
	return nil
}

// Definitions returns the function definitions to advertise to the model.
func (b *Toolbox) Definitions() []llm.Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]llm.Tool, len(b.defs))
	copy(out, b.defs)
	return out
}

// Call runs the named tool.
func (b *Toolbox) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	b.mu.RLock()
	c, ok := b.owner[name]
	b.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return c.CallTool(ctx, name, args)
}

// Len reports how many tools are registered.
func (b *Toolbox) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.defs)
}

// Close closes every registered client.
func (b *Toolbox) Close() error {
	b.mu.Lock()
	clients := b.clients
	b.clients = nil
	b.mu.Unlock()
	var first error
	for _, c := range clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
