// Package llm provides the message-client interface agents use to invoke a
// model, an Anthropic-backed implementation, and a scriptable mock.
package llm

import "context"

// Stop reasons reported by the model.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopStopSequence = "stop_sequence"
)

// Request is one completion call.
type Request struct {
	SystemPrompt string
	UserMessage  string
	Model        string
	MaxTokens    int
}

// Response carries the model output and token usage.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// Client completes a single-turn message exchange. Implementations return
// typed errors from the faults package so callers can decide retryability.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
