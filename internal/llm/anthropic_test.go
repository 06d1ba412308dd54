package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cadence/internal/faults"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAnthropicClient(Config{APIKey: "test-key", BaseURL: server.URL}, nil)
}

func TestComplete_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing version header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "Hello "}, {"type": "text", "text": "world"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`))
	})

	resp, err := client.Complete(context.Background(), Request{
		SystemPrompt: "You write copy.",
		UserMessage:  "Write a tagline.",
		Model:        "claude-sonnet-4-5",
		MaxTokens:    1024,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.StopReason != StopEndTurn {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 7 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestComplete_StatusMapping(t *testing.T) {
	cases := []struct {
		status    int
		want      faults.Code
		retryable bool
	}{
		{429, faults.CodeAPIRateLimited, true},
		{529, faults.CodeAPIOverloaded, true},
		{408, faults.CodeAPITimeout, true},
		{500, faults.CodeAPIError, true},
		{503, faults.CodeAPIError, true},
		// Client errors are permanent: retrying a rejected request
		// would just repeat the rejection.
		{400, faults.CodeUnknown, false},
		{401, faults.CodeUnknown, false},
		{403, faults.CodeUnknown, false},
	}
	for _, tc := range cases {
		status := tc.status
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error": {"type": "api_error", "message": "nope"}}`))
		})
		_, err := client.Complete(context.Background(), Request{Model: "m", MaxTokens: 10})
		if got := faults.CodeOf(err); got != tc.want {
			t.Errorf("status %d: code = %s, want %s", tc.status, got, tc.want)
		}
		if got := faults.Retryable(err); got != tc.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tc.status, got, tc.retryable)
		}
	}
}

func TestComplete_CancelledMapsToAborted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := client.Complete(ctx, Request{Model: "m", MaxTokens: 10})
	if got := faults.CodeOf(err); got != faults.CodeAborted {
		t.Errorf("code = %s, want ABORTED", got)
	}
}

func TestComplete_DeadlineMapsToTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, Request{Model: "m", MaxTokens: 10})
	if got := faults.CodeOf(err); got != faults.CodeAPITimeout {
		t.Errorf("code = %s, want API_TIMEOUT", got)
	}
}

func TestMockClient_ScriptAndPeak(t *testing.T) {
	mock := NewMockClient(
		MockResult{Response: &Response{Content: "one", StopReason: StopEndTurn}},
		MockResult{Err: faults.New(faults.CodeAPIRateLimited, "slow down")},
	)

	resp, err := mock.Complete(context.Background(), Request{Model: "m"})
	if err != nil || resp.Content != "one" {
		t.Fatalf("first call: %v %v", resp, err)
	}
	if _, err := mock.Complete(context.Background(), Request{Model: "m"}); !faults.HasCode(err, faults.CodeAPIRateLimited) {
		t.Errorf("second call err = %v", err)
	}
	// Script exhausted: last entry repeats.
	if _, err := mock.Complete(context.Background(), Request{Model: "m"}); !faults.HasCode(err, faults.CodeAPIRateLimited) {
		t.Errorf("third call err = %v", err)
	}
	if mock.CallCount() != 3 {
		t.Errorf("calls = %d, want 3", mock.CallCount())
	}
}
