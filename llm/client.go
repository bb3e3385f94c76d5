package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	fallbackDelay  = 250 * time.Millisecond
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	MaxTokens     int
	HTTP          *http.Client
}

// Message is one chat message. Assistant messages may carry tool calls and
// tool messages answer one of them by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool advertises a callable function to the model.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type ChatResponse struct {
	ID           string
	Model        string
	Message      Message
	FinishReason string
}

// Content is the assistant text of the response.
func (r ChatResponse) Content() string { return r.Message.Content }

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

// NewClientFromEnv reads OPENAI_BASE_URL, OPENAI_API_KEY, OPENAI_MODEL,
// OPENAI_FALLBACK_MODEL and LLM_MAX_TOKENS.
func NewClientFromEnv() *Client {
	base := os.Getenv("OPENAI_BASE_URL")
	if base == "" {
		base = defaultBaseURL
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = defaultModel
	}
	maxTokens := 4000
	if v, err := strconv.Atoi(os.Getenv("LLM_MAX_TOKENS")); err == nil && v > 0 {
		maxTokens = v
	}
	return &Client{
		BaseURL:       strings.TrimRight(base, "/"),
		APIKey:        os.Getenv("OPENAI_API_KEY"),
		Model:         model,
		FallbackModel: os.Getenv("OPENAI_FALLBACK_MODEL"),
		MaxTokens:     maxTokens,
		HTTP:          &http.Client{Timeout: 60 * time.Second},
	}
}

// CreateChatCompletion sends req and returns the first choice. Network
// failures, 429 and 5xx are ErrTransient and are retried once with the
// fallback model when one is configured; other 4xx are ErrPermanent.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.Model
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if c.MaxTokens > 0 && (req.MaxTokens <= 0 || req.MaxTokens > c.MaxTokens) {
		req.MaxTokens = c.MaxTokens
	}

	resp, err := c.do(ctx, req)
	if err == nil || !errors.Is(err, ErrTransient) {
		return resp, err
	}
	if c.FallbackModel == "" || c.FallbackModel == req.Model {
		return resp, err
	}
	select {
	case <-ctx.Done():
		return ChatResponse{}, ctx.Err()
	case <-time.After(fallbackDelay):
	}
	req.Model = c.FallbackModel
	resp, ferr := c.do(ctx, req)
	if ferr != nil {
		return ChatResponse{}, fmt.Errorf("fallback %s: %w", req.Model, ferr)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: encode request: %v", ErrPermanent, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		kind := ErrPermanent
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = ErrTransient
		}
		return ChatResponse{}, fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Message      Message `json:"message"`
			FinishReason string  `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChatResponse{}, fmt.Errorf("%w: decode error: %v", ErrTransient, err)
	}
	if len(out.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("%w: response has no choices", ErrTransient)
	}
	model := out.Model
	if model == "" {
		model = req.Model
	}
	return ChatResponse{
		ID:           out.ID,
		Model:        model,
		Message:      out.Choices[0].Message,
		FinishReason: out.Choices[0].FinishReason,
	}, nil
}
