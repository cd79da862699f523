// Token estimation for conversation histories.
//
// The agent loop needs the token size of the history before every call so it
// can compress ahead of the provider's hard limit. RemoteEstimator asks the
// provider's tokenizer endpoint, keyed by the same model used for generation
// so padding and message overhead match the real call. EstimateTokensLocal is
// a chars-based heuristic used where no tokenizer endpoint exists.
//
// Estimation failures are always recoverable: callers treat an error as a
// count of zero and skip compression for that iteration.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Estimator estimates the token size of a conversation history.
type Estimator interface {
	Estimate(ctx context.Context, messages []ChatMessage) (int, error)
}

// RemoteEstimator estimates token counts via an OpenAI-compatible tokenizer
// endpoint (Moonshot's /tokenizers/estimate-token-count).
type RemoteEstimator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewRemoteEstimator creates a remote estimator for the given endpoint and model.
func NewRemoteEstimator(baseURL, apiKey, model string) *RemoteEstimator {
	return &RemoteEstimator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type estimateRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type estimateResponse struct {
	Data struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Estimate posts the full history to the tokenizer endpoint and returns the
// reported token count.
func (e *RemoteEstimator) Estimate(ctx context.Context, messages []ChatMessage) (int, error) {
	body, err := json.Marshal(estimateRequest{Model: e.model, Messages: messages})
	if err != nil {
		return 0, fmt.Errorf("failed to encode estimate request: %w", err)
	}

	url := e.baseURL + "/tokenizers/estimate-token-count"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build estimate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("estimate request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read estimate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("estimate endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed estimateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0, fmt.Errorf("failed to decode estimate response: %w", err)
	}
	if parsed.Error != nil {
		return 0, fmt.Errorf("estimate endpoint error: %s", parsed.Error.Message)
	}

	return parsed.Data.TotalTokens, nil
}

// Verify RemoteEstimator implements Estimator
var _ Estimator = (*RemoteEstimator)(nil)

// charsPerToken is the heuristic for local estimation (~4 chars per token
// for English prose).
const charsPerToken = 4

// toolCallOverhead approximates the per-call token cost of ids, names, and
// wire framing beyond the raw argument text.
const toolCallOverhead = 25

// EstimateTokensLocal returns an approximate token count for a history using
// a chars-per-token heuristic. Used as the estimator for providers without a
// tokenizer endpoint and for tokens-saved reporting after compression.
func EstimateTokensLocal(messages []ChatMessage) int {
	var total int
	for _, msg := range messages {
		total += len(msg.Content) / charsPerToken
		total += len(msg.ReasoningContent) / charsPerToken
		for _, tc := range msg.ToolCalls {
			total += len(tc.Arguments)/charsPerToken + toolCallOverhead
		}
	}
	return total
}

// LocalEstimator adapts EstimateTokensLocal to the Estimator interface.
type LocalEstimator struct{}

// Estimate returns the heuristic token count. It never fails.
func (LocalEstimator) Estimate(_ context.Context, messages []ChatMessage) (int, error) {
	return EstimateTokensLocal(messages), nil
}

// Verify LocalEstimator implements Estimator
var _ Estimator = LocalEstimator{}
