// Package compress replaces older conversation turns with a synthesized
// summary while persisting a durable recovery snapshot.
//
// Two modes share one pipeline:
//   - Shrinking (keepRecent < len-1): the returned history is the leading
//     system turn, one summary turn, and the last keepRecent turns verbatim.
//   - Snapshot-only (keepRecent >= len-1): the history is returned unchanged;
//     only the snapshot artifact matters to the caller.
//
// Snapshots are write-only, timestamp-named, and never overwritten, so they
// can be written without locking and survive a crash of the writing process.
//
// Information Hiding:
// - Summarization prompt and transcript rendering hidden
// - Snapshot file naming and layout hidden

package compress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/richinex/inkwell/llm"
)

// summaryTag marks the synthesized summary turn so the model recognizes it
// as compressed context rather than user input.
const summaryTag = "[CONTEXT SUMMARY]"

// SnapshotPrefix is the filename prefix of recovery snapshot files.
const SnapshotPrefix = ".context_summary_"

// Result is the outcome of one compression run.
type Result struct {
	Messages     []llm.ChatMessage // Replacement history (same slice in snapshot-only mode)
	Summary      string            // Human-readable status line
	TokensSaved  int               // Heuristic estimate of tokens removed
	SnapshotPath string            // Recovery snapshot written during this run
}

// Compressor summarizes conversation history via an LLM and persists
// recovery snapshots to a directory.
type Compressor struct {
	client *llm.Client
	dir    string
	now    func() time.Time
}

// New creates a compressor writing snapshots to dir.
func New(client *llm.Client, dir string) *Compressor {
	return &Compressor{
		client: client,
		dir:    dir,
		now:    time.Now,
	}
}

// Compress summarizes everything before the kept tail and returns the
// replacement history. keepRecent >= len(messages)-1 keeps the history intact
// and only writes a snapshot.
func (c *Compressor) Compress(ctx context.Context, messages []llm.ChatMessage, keepRecent int) (Result, error) {
	if len(messages) == 0 {
		return Result{}, fmt.Errorf("cannot compress empty history")
	}
	if keepRecent < 0 {
		keepRecent = 0
	}

	shrinking := keepRecent < len(messages)-1
	cut := len(messages)
	if shrinking {
		cut = len(messages) - keepRecent
	}

	// Everything after the system turn up to the cut is what the summary
	// must cover. In snapshot-only mode that is the whole conversation.
	span := messages[1:cut]
	summary, err := c.summarize(ctx, span)
	if err != nil {
		return Result{}, fmt.Errorf("summarization failed: %w", err)
	}

	tail := messages[cut:]
	snapshotPath, err := c.writeSnapshot(summary, tail)
	if err != nil {
		return Result{}, fmt.Errorf("failed to persist snapshot: %w", err)
	}

	if !shrinking {
		return Result{
			Messages:     messages,
			Summary:      fmt.Sprintf("Context snapshot saved (%d messages kept)", len(messages)),
			SnapshotPath: snapshotPath,
		}, nil
	}

	summaryTurn := llm.UserMessage(fmt.Sprintf(
		"%s\n\nEarlier turns of this conversation were compressed to stay within the context window. Summary of the work so far:\n\n%s\n\n[END CONTEXT SUMMARY]\n\nContinue the task. The most recent turns follow unchanged.",
		summaryTag, summary,
	))

	compressed := make([]llm.ChatMessage, 0, keepRecent+2)
	compressed = append(compressed, messages[0], summaryTurn)
	compressed = append(compressed, tail...)

	saved := llm.EstimateTokensLocal(span) - llm.EstimateTokensLocal([]llm.ChatMessage{summaryTurn})
	if saved < 0 {
		saved = 0
	}

	return Result{
		Messages:     compressed,
		Summary:      fmt.Sprintf("Compressed %d messages into a summary, kept %d recent", len(span), keepRecent),
		TokensSaved:  saved,
		SnapshotPath: snapshotPath,
	}, nil
}

// summarize asks the model for a resumable synopsis of the given turns.
func (c *Compressor) summarize(ctx context.Context, span []llm.ChatMessage) (string, error) {
	if len(span) == 0 {
		return "(no prior turns)", nil
	}

	prompt := []llm.ChatMessage{
		llm.SystemMessage("You condense agent work sessions. Produce a synopsis that lets the agent resume exactly where it left off: the original task, the plan, files written so far (paths and what each contains), decisions made, and what remains to be done. Be specific about file paths. Plain markdown, no preamble."),
		llm.UserMessage("Summarize this session transcript:\n\n" + renderTranscript(span)),
	}

	summary, err := c.client.Chat(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(summary) == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}
	return summary, nil
}

// renderTranscript flattens turns into plain text for the summarizer.
// Reasoning traces are omitted; they are voluminous and already distilled
// into the visible content and tool calls.
func renderTranscript(span []llm.ChatMessage) string {
	var b strings.Builder
	for _, msg := range span {
		switch msg.Role {
		case "tool":
			fmt.Fprintf(&b, "[tool result: %s]\n%s\n\n", msg.Name, truncate(msg.Content, 2000))
		case "assistant":
			if msg.Content != "" {
				fmt.Fprintf(&b, "[assistant]\n%s\n\n", truncate(msg.Content, 4000))
			}
			for _, tc := range msg.ToolCalls {
				fmt.Fprintf(&b, "[assistant called %s]\n%s\n\n", tc.Name, truncate(string(tc.Arguments), 2000))
			}
		default:
			fmt.Fprintf(&b, "[%s]\n%s\n\n", msg.Role, truncate(msg.Content, 4000))
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}

// writeSnapshot persists the recovery artifact. The file is self-describing
// markdown: re-submitting its content verbatim as a user turn is enough to
// resume the session.
func (c *Compressor) writeSnapshot(summary string, tail []llm.ChatMessage) (string, error) {
	if c.dir != "" {
		if err := os.MkdirAll(c.dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	var b strings.Builder
	b.WriteString("# Session Context Snapshot\n\n")
	fmt.Fprintf(&b, "Saved: %s\n\n", c.now().Format(time.RFC3339))
	b.WriteString("## Summary\n\n")
	b.WriteString(summary)
	b.WriteString("\n")

	if len(tail) > 0 {
		b.WriteString("\n## Recent turns (verbatim at save time)\n\n")
		for _, msg := range tail {
			switch {
			case msg.Role == "tool":
				fmt.Fprintf(&b, "**tool %s**: %s\n\n", msg.Name, truncate(msg.Content, 500))
			case len(msg.ToolCalls) > 0:
				for _, tc := range msg.ToolCalls {
					fmt.Fprintf(&b, "**assistant -> %s**: %s\n\n", tc.Name, truncate(string(tc.Arguments), 500))
				}
			case msg.Content != "":
				fmt.Fprintf(&b, "**%s**: %s\n\n", msg.Role, truncate(msg.Content, 500))
			}
		}
	}

	name := fmt.Sprintf("%s%s.md", SnapshotPrefix, c.now().Format("20060102_150405"))
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", err
	}
	return path, nil
}
