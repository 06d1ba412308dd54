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

	"cadence/internal/faults"
	"cadence/internal/logging"
)

const (
	defaultBaseURL      = "https://api.anthropic.com/v1"
	defaultAPIVersion   = "2023-06-01"
	messagesPath        = "/messages"
	versionHeaderKey    = "anthropic-version"
	apiKeyHeaderKey     = "x-api-key"
	maxErrorBodyBytes   = 8 << 10
	defaultClientExpiry = 120 * time.Second
)

// Config configures the Anthropic client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type anthropicClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewAnthropicClient returns a Client backed by the Anthropic messages API.
func NewAnthropicClient(config Config, logger *logging.Logger) Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultClientExpiry
	}
	return &anthropicClient{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.OrNop(logger).WithModule("llm"),
	}
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type apiResponse struct {
	Content    []apiContentBlock `json:"content"`
	StopReason string            `json:"stop_reason"`
	Usage      apiUsage          `json:"usage"`
	Error      *apiError         `json:"error"`
}

func (c *anthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	payload := apiRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		System:    req.SystemPrompt,
		Messages:  []apiMessage{{Role: "user", Content: req.UserMessage}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, faults.Wrap(faults.CodeAPIError, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, faults.Wrap(faults.CodeAPIError, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(versionHeaderKey, defaultAPIVersion)
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeaderKey, c.apiKey)
	}

	c.logger.Debug("model call", "model", req.Model, "max_tokens", req.MaxTokens)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, mapTransportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapStatusError(resp.StatusCode, respBody)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, faults.Wrap(faults.CodeAPIError, "decode response", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, faults.Newf(faults.CodeAPIError, "%s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	var content strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	result := &Response{
		Content:      content.String(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		StopReason:   parsed.StopReason,
	}
	c.logger.Debug("model response",
		"stop_reason", result.StopReason,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens)
	return result, nil
}

// mapTransportError distinguishes caller cancellation from timeouts and
// connection failures.
func mapTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return faults.Wrap(faults.CodeAborted, "model call cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return faults.Wrap(faults.CodeAPITimeout, "model call timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return faults.Wrap(faults.CodeAPITimeout, "model call timed out", err)
	}
	return faults.Wrap(faults.CodeAPIError, "model call failed", err)
}

func mapStatusError(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > maxErrorBodyBytes {
		snippet = snippet[:maxErrorBodyBytes]
	}
	msg := fmt.Sprintf("status %d: %s", status, strings.TrimSpace(snippet))
	switch {
	case status == http.StatusTooManyRequests:
		return faults.New(faults.CodeAPIRateLimited, msg)
	case status == 529:
		return faults.New(faults.CodeAPIOverloaded, msg)
	case status == http.StatusRequestTimeout:
		return faults.New(faults.CodeAPITimeout, msg)
	case status >= 500:
		return faults.New(faults.CodeAPIError, msg)
	default:
		// Client errors (bad request, auth) will not succeed on retry.
		return faults.New(faults.CodeUnknown, msg)
	}
}
