// The conversation-state engine: a single-owner message history driven
// through a bounded iteration loop.
//
// Each iteration is strictly sequential: measure the token budget, compress
// if needed, take a periodic backup, stream one model call, seal the
// response into the history, then either finish (no tool calls) or execute
// every tool call in emission order before the next call. The history is the
// only state crossing iteration boundaries, and nothing inside the loop may
// let an error escape an iteration; every recoverable failure degrades to
// "continue".
//
// Information Hiding:
// - Loop sequencing and budget policy hidden
// - Stream consumption hidden
// - Tool dispatch and the reserved compression tool hidden

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/richinex/inkwell/compress"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/storage"
	"github.com/richinex/inkwell/tools"
)

// Status is the terminal state of a run.
type Status int

const (
	// StatusDone means the model produced a turn with no tool calls.
	StatusDone Status = iota
	// StatusCapReached means the iteration cap was hit before completion.
	StatusCapReached
	// StatusInterrupted means the run was cancelled from outside.
	StatusInterrupted
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusCapReached:
		return "cap-reached"
	case StatusInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Result is the outcome of a run.
type Result struct {
	Status       Status
	Iterations   int               // Iterations consumed, including abandoned ones
	History      []llm.ChatMessage // Final history at exit
	SnapshotPath string            // Most recent recovery snapshot, if any was written
}

// CompressContextTool is the reserved tool name the model uses to request
// compression itself. It is intercepted before registry lookup and never
// dispatches to a registered tool.
const CompressContextTool = "compress_context"

// compressContextDefinition declares the reserved tool in the wire catalog.
func compressContextDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        CompressContextTool,
		Description: "Compress the conversation history into a summary to free context space. Call this when the conversation is getting long and earlier details are already saved to files.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}
}

// Agent owns the message history for the lifetime of one run.
type Agent struct {
	config       Config
	provider     llm.Provider
	toolRegistry *tools.Registry
	toolExecutor *tools.Executor
	compressor   *compress.Compressor
	estimator    llm.Estimator
	store        storage.ConversationStorage
	sessionID    string
	out          io.Writer
}

// New creates an agent with the given configuration and collaborators.
func New(config Config, provider llm.Provider, compressor *compress.Compressor, estimator llm.Estimator) *Agent {
	registry := tools.NewRegistry()
	for _, tool := range config.Tools {
		_ = registry.Register(tool) // Ignore duplicate errors - caller's responsibility
	}

	return &Agent{
		config:       config.withDefaults(),
		provider:     provider,
		toolRegistry: registry,
		toolExecutor: tools.NewDefaultExecutor(),
		compressor:   compressor,
		estimator:    estimator,
		out:          os.Stdout,
	}
}

// WithStorage enables best-effort conversation persistence per iteration.
func (a *Agent) WithStorage(store storage.ConversationStorage, sessionID string) *Agent {
	a.store = store
	a.sessionID = sessionID
	return a
}

// WithOutput redirects narration and status output. Pass io.Discard to run
// silently; finalization semantics are unaffected.
func (a *Agent) WithOutput(w io.Writer) *Agent {
	a.out = w
	return a
}

// WithToolExecutor overrides the tool executor.
func (a *Agent) WithToolExecutor(executor *tools.Executor) *Agent {
	a.toolExecutor = executor
	return a
}

// NewHistory builds the initial history for a fresh task.
func (a *Agent) NewHistory(task string) []llm.ChatMessage {
	return []llm.ChatMessage{
		llm.SystemMessage(a.config.SystemPrompt),
		llm.UserMessage(task),
	}
}

// NewRecoveredHistory builds the initial history from a recovery snapshot's
// content, wrapped so the model recognizes it as restored context.
func (a *Agent) NewRecoveredHistory(snapshot string) []llm.ChatMessage {
	return []llm.ChatMessage{
		llm.SystemMessage(a.config.SystemPrompt),
		llm.UserMessage(fmt.Sprintf(
			"[RECOVERED CONTEXT]\n\n%s\n\n[END RECOVERED CONTEXT]\n\nPlease continue the work from where we left off.",
			snapshot,
		)),
	}
}

// Run drives the loop to a terminal state. It never returns an error: every
// in-loop failure is recovered, and interruption and cap-exhaustion are
// ordinary outcomes reported in the Result.
func (a *Agent) Run(ctx context.Context, history []llm.ChatMessage) Result {
	var lastSnapshot string

	for iteration := 1; iteration <= a.config.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return a.interrupted(history, iteration, lastSnapshot)
		}

		fmt.Fprintf(a.out, "\n── iteration %d/%d ──\n", iteration, a.config.MaxIterations)

		// Budget check before the call; estimation failure skips compression
		// for this iteration only.
		count, err := a.estimator.Estimate(ctx, history)
		if err != nil {
			fmt.Fprintf(a.out, "warning: token estimation failed: %v\n", err)
			count = 0
		} else {
			fmt.Fprintf(a.out, "context: %d/%d tokens (%.1f%%)\n",
				count, a.config.TokenLimit, float64(count)/float64(a.config.TokenLimit)*100)
		}

		if count >= a.config.CompressionThreshold {
			fmt.Fprintf(a.out, "approaching token limit, compressing context...\n")
			result, err := a.compressor.Compress(ctx, history, a.config.KeepRecent)
			if err != nil {
				// Budget overrun risk is deferred to the provider's own
				// rejection, which the iteration error path absorbs.
				fmt.Fprintf(a.out, "warning: compression failed: %v\n", err)
			} else {
				history = result.Messages
				lastSnapshot = result.SnapshotPath
				fmt.Fprintf(a.out, "%s (~%d tokens saved)\n", result.Summary, result.TokensSaved)
			}
		}

		if a.config.BackupInterval > 0 && iteration%a.config.BackupInterval == 0 {
			result, err := a.compressor.Compress(ctx, history, len(history))
			if err != nil {
				fmt.Fprintf(a.out, "warning: backup failed: %v\n", err)
			} else {
				lastSnapshot = result.SnapshotPath
				fmt.Fprintf(a.out, "backup saved: %s\n", result.SnapshotPath)
			}
		}

		message, err := a.streamResponse(ctx, history)
		if err != nil {
			if ctx.Err() != nil {
				return a.interrupted(history, iteration, lastSnapshot)
			}
			// Iteration abandoned: nothing was appended, the next pass
			// retries with the same history.
			fmt.Fprintf(a.out, "error during iteration %d: %v\nattempting to continue...\n", iteration, err)
			continue
		}

		history = append(history, message)
		a.persist(ctx, history)

		if len(message.ToolCalls) == 0 {
			fmt.Fprintf(a.out, "\ntask completed in %d iteration(s)\n", iteration)
			return Result{
				Status:       StatusDone,
				Iterations:   iteration,
				History:      history,
				SnapshotPath: lastSnapshot,
			}
		}

		fmt.Fprintf(a.out, "\nmodel requested %d tool call(s)\n", len(message.ToolCalls))
		for _, call := range message.ToolCalls {
			history = a.dispatch(ctx, history, call)
		}
		a.persist(ctx, history)
	}

	fmt.Fprintf(a.out, "\nreached maximum of %d iterations, saving final context...\n", a.config.MaxIterations)
	if path, ok := a.emergencySnapshot(history); ok {
		lastSnapshot = path
		fmt.Fprintf(a.out, "context saved: %s\n", path)
	}

	return Result{
		Status:       StatusCapReached,
		Iterations:   a.config.MaxIterations,
		History:      history,
		SnapshotPath: lastSnapshot,
	}
}

// streamResponse issues one streaming model call and accumulates the events
// into a sealed assistant turn. This is the loop's only blocking I/O point.
func (a *Agent) streamResponse(ctx context.Context, history []llm.ChatMessage) (llm.ChatMessage, error) {
	events := make(chan llm.StreamEvent, 64)

	type streamOutcome struct {
		usage *llm.TokenUsage
		err   error
	}
	outcomeCh := make(chan streamOutcome, 1)

	go func() {
		defer close(events)
		usage, err := a.provider.StreamChat(ctx, history, a.catalog(), events)
		outcomeCh <- streamOutcome{usage: usage, err: err}
	}()

	builder := newResponseBuilder(newNarrator(a.out))
	for event := range events {
		builder.apply(event)
	}

	outcome := <-outcomeCh
	if outcome.err != nil {
		return llm.ChatMessage{}, outcome.err
	}

	builder.narrator.streamDone()
	if outcome.usage != nil {
		fmt.Fprintf(a.out, "usage: %d prompt + %d completion tokens\n",
			outcome.usage.PromptTokens, outcome.usage.CompletionTokens)
	}

	return builder.finalize(), nil
}

// catalog returns the wire tool catalog: registered tools plus the reserved
// compression tool.
func (a *Agent) catalog() []llm.ToolDefinition {
	return append(a.toolRegistry.Definitions(), compressContextDefinition())
}

// dispatch executes one tool call and appends exactly one result turn,
// whatever happens. The returned slice is the history to use from here on;
// the reserved compression tool replaces it wholesale.
func (a *Agent) dispatch(ctx context.Context, history []llm.ChatMessage, call llm.ToolCall) []llm.ChatMessage {
	args := call.Arguments
	if len(args) == 0 || !json.Valid(args) {
		// Lenient policy: malformed arguments become an empty object and the
		// tool itself reports whatever is missing.
		args = json.RawMessage(`{}`)
	}

	fmt.Fprintf(a.out, "  -> %s\n", call.Name)

	var resultText string
	switch {
	case call.Name == CompressContextTool:
		result, err := a.compressor.Compress(ctx, history, a.config.KeepRecent)
		if err != nil {
			resultText = fmt.Sprintf("Error: context compression failed: %v", err)
		} else {
			history = result.Messages
			resultText = result.Summary
		}
	default:
		tool, exists := a.toolRegistry.Get(call.Name)
		if !exists {
			resultText = fmt.Sprintf("Error: Unknown tool '%s'", call.Name)
		} else {
			result, err := a.toolExecutor.Execute(ctx, tool, args)
			if err != nil {
				resultText = fmt.Sprintf("Error: %v", err)
			} else {
				resultText = result.Text()
			}
		}
	}

	fmt.Fprintf(a.out, "     %s\n", firstLine(resultText, 200))
	return append(history, llm.ToolResultMessage(call.ID, call.Name, resultText))
}

// interrupted performs the best-effort emergency save and reports the
// terminal state. Failures during the save never block shutdown.
func (a *Agent) interrupted(history []llm.ChatMessage, iteration int, lastSnapshot string) Result {
	fmt.Fprintf(a.out, "\ninterrupted, saving context...\n")
	if path, ok := a.emergencySnapshot(history); ok {
		lastSnapshot = path
		fmt.Fprintf(a.out, "context saved: %s\n", path)
	}
	return Result{
		Status:       StatusInterrupted,
		Iterations:   iteration,
		History:      history,
		SnapshotPath: lastSnapshot,
	}
}

// emergencySnapshot runs snapshot-only compression on a fresh context, since
// the run context is typically already cancelled when it is needed.
func (a *Agent) emergencySnapshot(history []llm.ChatMessage) (string, bool) {
	if len(history) == 0 {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := a.compressor.Compress(ctx, history, len(history))
	if err != nil {
		return "", false
	}
	return result.SnapshotPath, true
}

// persist saves the history best-effort; the durable record of the task is
// the files on disk, not the session row.
func (a *Agent) persist(ctx context.Context, history []llm.ChatMessage) {
	if a.store == nil || a.sessionID == "" {
		return
	}
	_ = a.store.Save(ctx, a.sessionID, history) // Best-effort persistence
}

func firstLine(s string, max int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
