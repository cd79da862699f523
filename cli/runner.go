// Command execution for CLI commands.
//
// Information Hiding:
// - Provider, estimator and storage wiring hidden
// - Session lifecycle hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/compress"
	"github.com/richinex/inkwell/config"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/storage"
	"github.com/richinex/inkwell/tools"
)

// Options holds CLI execution options.
type Options struct {
	Provider  string
	SessionID string
}

// Run executes a writing task. An empty task prompts interactively.
func Run(ctx context.Context, task string, opts Options) error {
	if task == "" {
		entered, err := promptForTask()
		if err != nil {
			return err
		}
		if entered == "" {
			fmt.Println("No task given, exiting.")
			return nil
		}
		task = entered
	}

	return runSession(ctx, opts, func(a *agent.Agent) []llm.ChatMessage {
		return a.NewHistory(task)
	})
}

// Recover resumes work from a snapshot file written by a previous run.
func Recover(ctx context.Context, snapshotPath string, opts Options) error {
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	fmt.Printf("Recovering from %s (%d bytes)\n", snapshotPath, len(data))

	return runSession(ctx, opts, func(a *agent.Agent) []llm.ChatMessage {
		return a.NewRecoveredHistory(string(data))
	})
}

// runSession wires the provider, tools, compressor and storage, then drives
// the agent to a terminal state.
func runSession(ctx context.Context, opts Options, seed func(*agent.Agent) []llm.ChatMessage) error {
	settings, err := config.New(opts.Provider)
	if err != nil {
		return err
	}

	apiKey, err := config.APIKeyFor(opts.Provider)
	if err != nil {
		keyEnv, envErr := config.APIKeyEnvFor(opts.Provider)
		if envErr == nil {
			return fmt.Errorf("%s is not set; export it or add it to .env", keyEnv)
		}
		return err
	}
	fmt.Printf("API key: %s\n", maskKey(apiKey))

	provider, err := createProvider(settings, apiKey)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(settings.Workspace.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	client := llm.NewClient(provider)
	compressor := compress.New(client, settings.Workspace.SnapshotDir)
	estimator := createEstimator(settings, apiKey)

	agentConfig := agent.Config{
		SystemPrompt:         agent.WriterSystemPrompt,
		Tools:                tools.WritingCatalog(settings.Workspace.Dir),
		MaxIterations:        settings.Agent.MaxIterations,
		TokenLimit:           settings.Agent.TokenLimit,
		CompressionThreshold: settings.Agent.CompressionThreshold,
		KeepRecent:           settings.Agent.KeepRecent,
		BackupInterval:       settings.Agent.BackupInterval,
	}

	a := agent.New(agentConfig, provider, compressor, estimator)

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	store, err := storage.OpenSQLite(settings.Workspace.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: session persistence disabled: %v\n", err)
	} else {
		defer store.Close()
		a = a.WithStorage(store, sessionID)
	}

	printBanner(settings, sessionID)

	result := a.Run(ctx, seed(a))

	switch result.Status {
	case agent.StatusDone:
		fmt.Printf("\nSession %s finished after %d iteration(s).\n", sessionID, result.Iterations)
	case agent.StatusCapReached:
		fmt.Printf("\nSession %s stopped at the iteration cap.\n", sessionID)
		if result.SnapshotPath != "" {
			fmt.Printf("Resume with: inkwell recover %s\n", result.SnapshotPath)
		}
	case agent.StatusInterrupted:
		fmt.Printf("\nSession %s interrupted.\n", sessionID)
		if result.SnapshotPath != "" {
			fmt.Printf("Resume with: inkwell recover %s\n", result.SnapshotPath)
		}
	}

	return nil
}

// ListSessions prints stored session IDs, most recent first.
func ListSessions(ctx context.Context, opts Options) error {
	settings, err := config.New(opts.Provider)
	if err != nil {
		return err
	}

	store, err := storage.OpenSQLite(settings.Workspace.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}

	fmt.Println("Stored sessions:")
	for _, id := range sessions {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

// ListTools lists the writing tool catalog.
func ListTools(verbose bool) {
	registry, err := tools.WithDefaults("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	fmt.Println("Available tools:")
	fmt.Println()

	for _, meta := range registry.List() {
		fmt.Printf("  %s\n", meta.Name)
		fmt.Printf("    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Println("    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Printf("      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Println()
	}

	fmt.Printf("  %s\n", agent.CompressContextTool)
	fmt.Println("    Compress the conversation history into a summary (built in)")
	fmt.Println()
}

func createProvider(settings config.Settings, apiKey string) (llm.Provider, error) {
	switch settings.LLM.Provider {
	case "moonshot":
		return llm.NewMoonshotProvider(
			apiKey,
			settings.LLM.BaseURL,
			settings.LLM.Model,
			settings.LLM.MaxTokens,
			float32(settings.LLM.Temperature),
		), nil
	case "anthropic":
		return llm.NewAnthropicProvider(
			apiKey,
			settings.LLM.Model,
			settings.LLM.MaxTokens,
			float32(settings.LLM.Temperature),
		), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", settings.LLM.Provider)
	}
}

// createEstimator picks the token estimator for the provider. Moonshot exposes
// a tokenizer endpoint; everything else falls back to the local heuristic.
func createEstimator(settings config.Settings, apiKey string) llm.Estimator {
	if settings.LLM.Provider == "moonshot" {
		return llm.NewRemoteEstimator(settings.LLM.BaseURL, apiKey, settings.LLM.Model)
	}
	return llm.LocalEstimator{}
}

// promptForTask reads a task from stdin when none was given on the command line.
func promptForTask() (string, error) {
	fmt.Println("Describe the writing task (or 'quit' to exit):")
	fmt.Print("> ")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return "", scanner.Err()
	}

	input := strings.TrimSpace(scanner.Text())
	if input == "quit" || input == "exit" {
		return "", nil
	}
	return input, nil
}

func printBanner(settings config.Settings, sessionID string) {
	fmt.Println()
	fmt.Println("=== inkwell ===")
	fmt.Printf("provider:   %s (%s)\n", settings.LLM.Provider, settings.LLM.Model)
	fmt.Printf("workspace:  %s\n", settings.Workspace.Dir)
	fmt.Printf("session:    %s\n", sessionID)
	fmt.Printf("budget:     %d tokens, compress at %d, keep %d recent\n",
		settings.Agent.TokenLimit, settings.Agent.CompressionThreshold, settings.Agent.KeepRecent)
	fmt.Println()
}

// maskKey shows enough of a key to confirm which one is loaded.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
