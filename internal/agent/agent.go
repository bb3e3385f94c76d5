// Package agent runs a tool-calling conversation loop against a chat model.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/onchain-voice-lab/internal/logging"
	"github.com/onchain-voice-lab/llm"
)

// ErrMaxSteps is returned when the model keeps calling tools past the
// configured step limit.
var ErrMaxSteps = errors.New("agent: step limit reached")

type StepKind string

const (
	// StepAgent carries model narrative.
	StepAgent StepKind = "agent"
	// StepTools carries the result of one tool invocation.
	StepTools StepKind = "tools"
)

// Step is one unit of progress reported while a request runs.
type Step struct {
	Kind    StepKind
	Content string
	Tool    string
}

// ChatModel is the subset of llm.Client the agent needs.
type ChatModel interface {
	CreateChatCompletion(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
}

// Toolset lists and invokes tools.
type Toolset interface {
	Definitions() []llm.Tool
	Call(ctx context.Context, name string, args json.RawMessage) (string, error)
}

type Config struct {
	Model        ChatModel
	Tools        Toolset
	Instructions string
	MaxSteps     int
}

// Agent keeps one message history per thread id for the life of the
// process. Requests on the same thread run one at a time.
type Agent struct {
	model        ChatModel
	tools        Toolset
	instructions string
	maxSteps     int

	mu      sync.Mutex
	threads map[string]*thread
}

type thread struct {
	mu      sync.Mutex
	history []llm.Message
}

func New(cfg Config) *Agent {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}
	return &Agent{
		model:        cfg.Model,
		tools:        cfg.Tools,
		instructions: cfg.Instructions,
		maxSteps:     maxSteps,
		threads:      make(map[string]*thread),
	}
}

func (a *Agent) thread(id string) *thread {
	a.mu.Lock()
	defer a.mu.Unlock()
	th, ok := a.threads[id]
	if !ok {
		th = &thread{}
		a.threads[id] = th
	}
	return th
}

// History returns a copy of the thread's messages.
func (a *Agent) History(threadID string) []llm.Message {
	th := a.thread(threadID)
	th.mu.Lock()
	defer th.mu.Unlock()
	return append([]llm.Message(nil), th.history...)
}

// Run sends input on threadID and drives the model until it answers
// without tool calls. Each narrative message and tool result is passed to
// onStep as it happens. The returned text joins the narrative messages.
// Tool failures are fed back to the model rather than aborting the run.
func (a *Agent) Run(ctx context.Context, threadID, input string, onStep func(Step)) (string, error) {
	if onStep == nil {
		onStep = func(Step) {}
	}
	th := a.thread(threadID)
	th.mu.Lock()
	defer th.mu.Unlock()

	msgs := append([]llm.Message(nil), th.history...)
	msgs = append(msgs, llm.Message{Role: "user", Content: input})

	var defs []llm.Tool
	if a.tools != nil {
		defs = a.tools.Definitions()
	}
	var narrative []string

	for step := 0; step < a.maxSteps; step++ {
		req := llm.ChatRequest{Messages: a.withInstructions(msgs), Tools: defs}
		resp, err := a.model.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("agent step %d: %w", step+1, err)
		}
		msg := resp.Message
		if msg.Role == "" {
			msg.Role = "assistant"
		}
		msgs = append(msgs, msg)

		if text := strings.TrimSpace(msg.Content); text != "" {
			narrative = append(narrative, text)
			onStep(Step{Kind: StepAgent, Content: text})
		}
		if len(msg.ToolCalls) == 0 {
			th.history = msgs
			return strings.Join(narrative, "\n"), nil
		}

		for _, call := range msg.ToolCalls {
			out := a.callTool(ctx, call)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			msgs = append(msgs, llm.Message{Role: "tool", ToolCallID: call.ID, Content: out})
			onStep(Step{Kind: StepTools, Content: out, Tool: call.Function.Name})
		}
	}
	return "", ErrMaxSteps
}

func (a *Agent) callTool(ctx context.Context, call llm.ToolCall) string {
	if a.tools == nil {
		return fmt.Sprintf("Error: tool %q is not available", call.Function.Name)
	}
	logging.Debugw("agent tool call", "tool", call.Function.Name, "call.id", call.ID)
	out, err := a.tools.Call(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
	if err != nil {
		logging.Warnw("agent tool call failed", "tool", call.Function.Name, "error", err)
		return "Error: " + err.Error()
	}
	return out
}

func (a *Agent) withInstructions(msgs []llm.Message) []llm.Message {
	if a.instructions == "" {
		return msgs
	}
	out := make([]llm.Message, 0, len(msgs)+1)
	out = append(out, llm.Message{Role: "system", Content: a.instructions})
	return append(out, msgs...)
}
