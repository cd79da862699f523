package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRemoteEstimator(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotReq estimateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":0,"data":{"total_tokens":4242},"status":true}`))
	}))
	defer server.Close()

	estimator := NewRemoteEstimator(server.URL, "test-key", "kimi-k2-thinking")
	messages := []ChatMessage{
		SystemMessage("You are a writer."),
		UserMessage("Write a haiku."),
	}

	count, err := estimator.Estimate(context.Background(), messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 4242 {
		t.Errorf("expected 4242 tokens, got %d", count)
	}
	if gotPath != "/tokenizers/estimate-token-count" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotReq.Model != "kimi-k2-thinking" {
		t.Errorf("expected model in request, got %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 {
		t.Errorf("expected 2 messages in request, got %d", len(gotReq.Messages))
	}
}

func TestRemoteEstimatorServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	estimator := NewRemoteEstimator(server.URL, "test-key", "kimi-k2-thinking")
	_, err := estimator.Estimate(context.Background(), []ChatMessage{UserMessage("hi")})
	if err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestRemoteEstimatorAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"invalid model"}}`))
	}))
	defer server.Close()

	estimator := NewRemoteEstimator(server.URL, "test-key", "bogus-model")
	_, err := estimator.Estimate(context.Background(), []ChatMessage{UserMessage("hi")})
	if err == nil {
		t.Error("expected error for API error payload")
	}
}

func TestEstimateTokensLocal(t *testing.T) {
	messages := []ChatMessage{
		SystemMessage("0123456789012345"), // 16 chars -> 4 tokens
		{
			Role: "assistant",
			ToolCalls: []ToolCall{
				{ID: "call_1", Name: "write_file", Arguments: json.RawMessage(`{"path":"a"}`)}, // 12 chars -> 3 + overhead
			},
		},
	}

	got := EstimateTokensLocal(messages)
	want := 4 + 3 + toolCallOverhead
	if got != want {
		t.Errorf("expected %d tokens, got %d", want, got)
	}
}

func TestLocalEstimatorNeverFails(t *testing.T) {
	count, err := LocalEstimator{}.Estimate(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 for empty history, got %d", count)
	}
}
