// Package llm is the remote analysis service boundary: an
// OpenAI-compatible chat-completions client plus the error taxonomy the
// dispatcher uses to decide between retrying and failing a shard.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"plcaudit/internal/config"
	"plcaudit/internal/logging"
)

// TokenUsage mirrors the provider's usage accounting.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is one model response with its usage metadata.
type Completion struct {
	Content string
	Usage   TokenUsage
}

// Client is the interface the dispatcher calls. A fake implementation
// substitutes for the remote service in tests.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
}

// APIError is a classified failure from the remote service.
// Transient failures (throttling, 5xx, timeouts) may be retried;
// everything else must fail the shard immediately.
type APIError struct {
	StatusCode int
	Message    string
	Transient  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// IsTransient reports whether an error is worth retrying.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// DeepSeekClient implements Client against any OpenAI-compatible
// chat-completions endpoint. DeepSeek is the default provider.
type DeepSeekClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewDeepSeekClient builds a client from configuration.
func NewDeepSeekClient(cfg config.LLMConfig, timeout time.Duration) *DeepSeekClient {
	return &DeepSeekClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends one prompt pair and returns the completion.
// Retrying is the caller's job: any failure comes back classified.
func (c *DeepSeekClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	if c.apiKey == "" {
		return nil, &APIError{StatusCode: http.StatusUnauthorized, Message: "API key not configured"}
	}

	// Apply the client timeout when the context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	logging.APIDebug("request: model=%s system_len=%d user_len=%d", c.model, len(systemPrompt), len(userPrompt))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unparseable response body: %v", err)}
	}
	if cr.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: cr.Error.Message}
	}
	if len(cr.Choices) == 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "no completion returned"}
	}

	logging.API("completion: model=%s tokens=%d elapsed=%v", c.model, cr.Usage.TotalTokens, time.Since(start))
	return &Completion{
		Content: strings.TrimSpace(cr.Choices[0].Message.Content),
		Usage:   cr.Usage,
	}, nil
}

// classifyStatus maps HTTP failures onto the retry taxonomy.
func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	transient := status == http.StatusTooManyRequests || status >= 500
	return &APIError{StatusCode: status, Message: msg, Transient: transient}
}
