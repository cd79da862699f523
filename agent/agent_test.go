package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/richinex/inkwell/compress"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/tools"
)

// scriptedProvider replays one event script per streaming call, in order.
// Chat (used by the compressor) returns a canned summary.
type scriptedProvider struct {
	scripts  [][]llm.StreamEvent
	errs     map[int]error
	summary  string
	calls    int
	catalogs [][]llm.ToolDefinition
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-model" }

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	summary := p.summary
	if summary == "" {
		summary = "session synopsis"
	}
	return llm.LLMResponse{Content: summary}, nil
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, defs []llm.ToolDefinition, events chan<- llm.StreamEvent) (*llm.TokenUsage, error) {
	call := p.calls
	p.calls++
	p.catalogs = append(p.catalogs, defs)

	if err, ok := p.errs[call]; ok {
		return nil, err
	}

	var script []llm.StreamEvent
	if call < len(p.scripts) {
		script = p.scripts[call]
	} else if len(p.scripts) > 0 {
		script = p.scripts[len(p.scripts)-1]
	}

	for _, event := range script {
		select {
		case events <- event:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

// blockingProvider parks until the context is cancelled, standing in for an
// in-flight model call at interruption time.
type blockingProvider struct {
	started chan struct{}
}

func (p *blockingProvider) Name() string  { return "blocking" }
func (p *blockingProvider) Model() string { return "blocking-model" }

func (p *blockingProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return llm.LLMResponse{Content: "synopsis"}, nil
}

func (p *blockingProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, defs []llm.ToolDefinition, events chan<- llm.StreamEvent) (*llm.TokenUsage, error) {
	if p.started != nil {
		close(p.started)
		p.started = nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// sequenceEstimator returns scripted counts, then repeats the last one.
type sequenceEstimator struct {
	counts []int
	err    error
	calls  int
}

func (e *sequenceEstimator) Estimate(ctx context.Context, messages []llm.ChatMessage) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	call := e.calls
	e.calls++
	if len(e.counts) == 0 {
		return 0, nil
	}
	if call < len(e.counts) {
		return e.counts[call], nil
	}
	return e.counts[len(e.counts)-1], nil
}

// echoTool reports the arguments it received, for dispatch assertions.
type echoTool struct {
	tools.BaseTool
}

func (echoTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        "echo",
		Description: "Echo the given text",
		Parameters: []tools.ToolParameter{
			{Name: "text", ParamType: "string", Description: "Text to echo", Required: false},
		},
	}
}

func (echoTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	var a struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tools.FailureResult(err), nil
	}
	return tools.SuccessResult("echo:" + a.Text), nil
}

func contentScript(text string) []llm.StreamEvent {
	return []llm.StreamEvent{
		{Role: "assistant"},
		{Content: text},
	}
}

func toolCallScript(id, name, args string) []llm.StreamEvent {
	return []llm.StreamEvent{
		{Role: "assistant"},
		{ToolCalls: []llm.ToolCallDelta{{Index: 0, ID: id, Name: name}}},
		{ToolCalls: []llm.ToolCallDelta{{Index: 0, Arguments: args}}},
	}
}

func newTestAgent(t *testing.T, config Config, provider llm.Provider, estimator llm.Estimator) *Agent {
	t.Helper()
	compressor := compress.New(llm.NewClient(provider), t.TempDir())
	return New(config, provider, compressor, estimator).WithOutput(io.Discard)
}

func TestRunCompletesWithoutToolCalls(t *testing.T) {
	provider := &scriptedProvider{
		scripts: [][]llm.StreamEvent{contentScript("Silent pond / a frog leaps in / the sound of water")},
	}
	a := newTestAgent(t, Config{SystemPrompt: WriterSystemPrompt, MaxIterations: 5}, provider, &sequenceEstimator{})

	result := a.Run(context.Background(), a.NewHistory("write a haiku"))

	if result.Status != StatusDone {
		t.Fatalf("expected done, got %v", result.Status)
	}
	if result.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", result.Iterations)
	}
	if len(result.History) != 3 {
		t.Fatalf("expected history of 3 turns, got %d", len(result.History))
	}
	final := result.History[2]
	if final.Role != "assistant" || !strings.Contains(final.Content, "frog") {
		t.Errorf("unexpected final turn: %+v", final)
	}
}

func TestRunUnknownToolProducesErrorTurnAndContinues(t *testing.T) {
	provider := &scriptedProvider{
		scripts: [][]llm.StreamEvent{
			toolCallScript("call_1", "list_files", "{}"),
			contentScript("done"),
		},
	}
	// No tools registered: list_files is unknown here.
	a := newTestAgent(t, Config{MaxIterations: 5}, provider, &sequenceEstimator{})

	result := a.Run(context.Background(), a.NewHistory("task"))

	if result.Status != StatusDone {
		t.Fatalf("expected done, got %v", result.Status)
	}
	if result.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", result.Iterations)
	}
	// system, user, assistant(tool call), tool result, assistant
	if len(result.History) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(result.History))
	}
	assistant := result.History[2]
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call on assistant turn, got %d", len(assistant.ToolCalls))
	}
	toolTurn := result.History[3]
	if toolTurn.Role != "tool" || toolTurn.ToolCallID != "call_1" {
		t.Errorf("unexpected tool turn: %+v", toolTurn)
	}
	if !strings.HasPrefix(toolTurn.Content, "Error: Unknown tool") {
		t.Errorf("expected unknown-tool error, got %q", toolTurn.Content)
	}
}

func TestRunCompressesOverThreshold(t *testing.T) {
	provider := &scriptedProvider{
		scripts: [][]llm.StreamEvent{contentScript("done")},
		summary: "wrote three chapters",
	}
	config := Config{
		MaxIterations:        5,
		TokenLimit:           200,
		CompressionThreshold: 100,
		KeepRecent:           2,
	}
	a := newTestAgent(t, config, provider, &sequenceEstimator{counts: []int{150, 10}})

	history := a.NewHistory("write a book")
	for i := 0; i < 6; i++ {
		history = append(history, llm.AssistantMessage(fmt.Sprintf("chapter progress %d", i)))
	}

	result := a.Run(context.Background(), history)

	if result.Status != StatusDone {
		t.Fatalf("expected done, got %v", result.Status)
	}
	// system, summary, 2 kept, new assistant
	if len(result.History) != 5 {
		t.Fatalf("expected 5 turns after compression, got %d", len(result.History))
	}
	if !strings.Contains(result.History[1].Content, "[CONTEXT SUMMARY]") {
		t.Errorf("expected tagged summary turn, got %q", result.History[1].Content)
	}
	if result.History[1].Role != "user" {
		t.Errorf("expected summary turn role user, got %q", result.History[1].Role)
	}
}

func TestRunEstimationFailureIsNonFatal(t *testing.T) {
	provider := &scriptedProvider{
		scripts: [][]llm.StreamEvent{contentScript("done")},
	}
	a := newTestAgent(t, Config{MaxIterations: 3}, provider, &sequenceEstimator{err: errors.New("tokenizer down")})

	result := a.Run(context.Background(), a.NewHistory("task"))

	if result.Status != StatusDone {
		t.Fatalf("expected done despite estimation failure, got %v", result.Status)
	}
}

func TestRunTransportErrorAbandonsIteration(t *testing.T) {
	provider := &scriptedProvider{
		scripts: [][]llm.StreamEvent{nil, contentScript("done")},
		errs:    map[int]error{0: errors.New("connection reset")},
	}
	a := newTestAgent(t, Config{MaxIterations: 5}, provider, &sequenceEstimator{})

	result := a.Run(context.Background(), a.NewHistory("task"))

	if result.Status != StatusDone {
		t.Fatalf("expected done, got %v", result.Status)
	}
	if result.Iterations != 2 {
		t.Errorf("expected 2 iterations (one abandoned), got %d", result.Iterations)
	}
	// The abandoned iteration must not have appended anything.
	if len(result.History) != 3 {
		t.Errorf("expected 3 turns, got %d", len(result.History))
	}
}

func TestRunCapReached(t *testing.T) {
	provider := &scriptedProvider{
		scripts: [][]llm.StreamEvent{toolCallScript("call_1", "echo", `{"text":"hi"}`)},
	}
	config := Config{
		MaxIterations: 2,
		Tools:         []tools.Tool{echoTool{}},
	}
	a := newTestAgent(t, config, provider, &sequenceEstimator{})

	result := a.Run(context.Background(), a.NewHistory("task"))

	if result.Status != StatusCapReached {
		t.Fatalf("expected cap-reached, got %v", result.Status)
	}
	if result.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", result.Iterations)
	}
	if result.SnapshotPath == "" {
		t.Fatal("expected a final snapshot at the cap")
	}
	if _, err := os.Stat(result.SnapshotPath); err != nil {
		t.Errorf("snapshot file missing: %v", err)
	}
}

func TestRunInterrupted(t *testing.T) {
	started := make(chan struct{})
	provider := &blockingProvider{started: started}
	a := newTestAgent(t, Config{MaxIterations: 5}, provider, &sequenceEstimator{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	done := make(chan Result, 1)
	go func() {
		done <- a.Run(ctx, a.NewHistory("task"))
	}()

	var result Result
	select {
	case result = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not exit after cancellation")
	}

	if result.Status != StatusInterrupted {
		t.Fatalf("expected interrupted, got %v", result.Status)
	}
	if result.SnapshotPath == "" {
		t.Fatal("expected an emergency snapshot")
	}
	data, err := os.ReadFile(result.SnapshotPath)
	if err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}
	// The snapshot content re-seeds a fresh history at restart.
	recovered := a.NewRecoveredHistory(string(data))
	if len(recovered) != 2 || recovered[1].Role != "user" {
		t.Fatalf("unexpected recovered history: %+v", recovered)
	}
	if !strings.Contains(recovered[1].Content, "[RECOVERED CONTEXT]") {
		t.Error("recovered turn missing marker")
	}
}

func TestRunPeriodicBackup(t *testing.T) {
	provider := &scriptedProvider{
		scripts: [][]llm.StreamEvent{contentScript("done")},
	}
	a := newTestAgent(t, Config{MaxIterations: 3, BackupInterval: 1}, provider, &sequenceEstimator{})

	result := a.Run(context.Background(), a.NewHistory("task"))

	if result.Status != StatusDone {
		t.Fatalf("expected done, got %v", result.Status)
	}
	if result.SnapshotPath == "" {
		t.Fatal("expected a backup snapshot from iteration 1")
	}
	if _, err := os.Stat(result.SnapshotPath); err != nil {
		t.Errorf("backup file missing: %v", err)
	}
}

func TestDispatchMalformedArgumentsEqualEmptyObject(t *testing.T) {
	provider := &scriptedProvider{}
	a := newTestAgent(t, Config{Tools: []tools.Tool{echoTool{}}}, provider, &sequenceEstimator{})

	base := a.NewHistory("task")

	malformed := a.dispatch(context.Background(), base, llm.ToolCall{
		ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"text": truncat`),
	})
	empty := a.dispatch(context.Background(), base, llm.ToolCall{
		ID: "call_2", Name: "echo", Arguments: json.RawMessage(`{}`),
	})

	gotMalformed := malformed[len(malformed)-1].Content
	gotEmpty := empty[len(empty)-1].Content
	if gotMalformed != gotEmpty {
		t.Errorf("malformed args (%q) and empty object (%q) must behave identically", gotMalformed, gotEmpty)
	}
}

func TestDispatchToolExecutionErrorBecomesResultText(t *testing.T) {
	provider := &scriptedProvider{}
	registry := []tools.Tool{tools.NewReadFileTool(1024)}
	a := newTestAgent(t, Config{Tools: registry}, provider, &sequenceEstimator{})

	history := a.dispatch(context.Background(), a.NewHistory("task"), llm.ToolCall{
		ID: "call_1", Name: "read_file", Arguments: json.RawMessage(`{"path":"/nonexistent/story.md"}`),
	})

	toolTurn := history[len(history)-1]
	if toolTurn.Role != "tool" || toolTurn.ToolCallID != "call_1" {
		t.Fatalf("unexpected tool turn: %+v", toolTurn)
	}
	if !strings.HasPrefix(toolTurn.Content, "Error:") {
		t.Errorf("expected error text as result, got %q", toolTurn.Content)
	}
}

func TestDispatchCompressContextReplacesHistory(t *testing.T) {
	provider := &scriptedProvider{summary: "compressed synopsis"}
	a := newTestAgent(t, Config{KeepRecent: 2}, provider, &sequenceEstimator{})

	history := a.NewHistory("write a book")
	for i := 0; i < 6; i++ {
		history = append(history, llm.AssistantMessage(fmt.Sprintf("turn %d", i)))
	}

	updated := a.dispatch(context.Background(), history, llm.ToolCall{
		ID: "call_1", Name: CompressContextTool, Arguments: json.RawMessage(`{}`),
	})

	// system, summary, 2 kept, plus the compression's own result turn
	if len(updated) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(updated))
	}
	if !strings.Contains(updated[1].Content, "[CONTEXT SUMMARY]") {
		t.Error("expected summary turn after self-compression")
	}
	last := updated[len(updated)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" || last.Content == "" {
		t.Errorf("expected non-empty tool result turn, got %+v", last)
	}
}

func TestCatalogIncludesReservedTool(t *testing.T) {
	provider := &scriptedProvider{
		scripts: [][]llm.StreamEvent{contentScript("done")},
	}
	a := newTestAgent(t, Config{MaxIterations: 1, Tools: []tools.Tool{echoTool{}}}, provider, &sequenceEstimator{})

	a.Run(context.Background(), a.NewHistory("task"))

	if len(provider.catalogs) == 0 {
		t.Fatal("provider saw no catalog")
	}
	catalog := provider.catalogs[0]
	names := make([]string, 0, len(catalog))
	for _, def := range catalog {
		names = append(names, def.Name)
	}
	if names[len(names)-1] != CompressContextTool {
		t.Errorf("expected reserved tool in catalog, got %v", names)
	}
	if names[0] != "echo" {
		t.Errorf("expected registered tool in catalog, got %v", names)
	}
}
