// Package llm defines the LLMClient contract consumed by the research core
// (spec.md §6) and a reference HTTP JSON implementation, grounded on the
// teacher's ai/client.go OpenAI-compatible HTTP client shape.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deepresearch/corerun/corelog"
)

// Role is a chat message's role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a chat-style LLM call.
type Message struct {
	Role    Role
	Content string
}

// Usage mirrors core.TokenUsage's shape.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of a Chat call.
type Response struct {
	Content string
	Usage   Usage
}

// Client is the capability contract the research core consumes (spec.md
// §6): Chat may fail; implementations must be safe to call concurrently
// and idempotent-safe (retrying a failed call must not have side effects
// beyond the remote token spend).
type Client interface {
	Chat(ctx context.Context, messages []Message, temperature float32, maxTokens int) (Response, error)
}

// HTTPClient is a reference OpenAI-compatible implementation, grounded on
// ai/client.go's request/response shape.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     corelog.Logger
}

// NewHTTPClient creates an HTTPClient. A zero-value logger argument uses a
// NoOpLogger.
func NewHTTPClient(apiKey, baseURL, model string, logger corelog.Logger) *HTTPClient {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &HTTPClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPClient) Chat(ctx context.Context, messages []Message, temperature float32, maxTokens int) (Response, error) {
	if c.apiKey == "" {
		return Response{}, fmt.Errorf("llm: API key not configured")
	}

	wireMessages := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		wireMessages = append(wireMessages, map[string]string{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}

	reqBody := map[string]interface{}{
		"model":       c.model,
		"messages":    wireMessages,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("llm request failed", map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(body),
		})
		return Response{}, fmt.Errorf("llm: status %d", resp.StatusCode)
	}

	var wire struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return Response{}, fmt.Errorf("llm: parse response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return Response{}, fmt.Errorf("llm: empty response")
	}

	return Response{
		Content: wire.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		},
	}, nil
}
