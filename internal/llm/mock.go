package llm

import (
	"context"
	"sync"
	"time"
)

// MockClient is a scriptable Client for tests. Responses are served in
// order; once the script is exhausted the last entry repeats. A nil script
// serves a fixed default response.
type MockClient struct {
	mu        sync.Mutex
	script    []MockResult
	calls     []Request
	delay     time.Duration
	inFlight  int
	peakUsage int
}

// MockResult is one scripted outcome.
type MockResult struct {
	Response *Response
	Err      error
}

// NewMockClient builds a mock serving the given script.
func NewMockClient(script ...MockResult) *MockClient {
	return &MockClient{script: script}
}

// SetDelay makes every Complete call block for d before returning, to
// exercise concurrency limits and cancellation.
func (m *MockClient) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	index := len(m.calls)
	m.calls = append(m.calls, req)
	m.inFlight++
	if m.inFlight > m.peakUsage {
		m.peakUsage = m.inFlight
	}
	delay := m.delay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, mapTransportError(ctx, ctx.Err())
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, mapTransportError(ctx, err)
	}

	result := m.resultFor(index)
	if result.Err != nil {
		return nil, result.Err
	}
	resp := *result.Response
	return &resp, nil
}

func (m *MockClient) resultFor(index int) MockResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.script) == 0 {
		return MockResult{Response: &Response{
			Content:      "mock response",
			InputTokens:  100,
			OutputTokens: 200,
			StopReason:   StopEndTurn,
		}}
	}
	if index >= len(m.script) {
		index = len(m.script) - 1
	}
	return m.script[index]
}

// Calls returns a copy of every request received so far.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount returns how many Complete calls have been made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// PeakInFlight returns the maximum number of concurrent Complete calls
// observed.
func (m *MockClient) PeakInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakUsage
}
