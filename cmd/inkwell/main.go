// Package main provides the inkwell CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/richinex/inkwell/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider  string
	sessionID string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "inkwell",
		Short: "Autonomous long-form writing agent",
		Long: `An agent that writes novels, documentation and other long-form work
directly into files, managing its own context window as it goes.

The agent streams model output, executes file tools, compresses its own
conversation history when the token budget runs low, and leaves recovery
snapshots so interrupted sessions can be resumed.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "moonshot", "LLM provider (moonshot, anthropic)")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session ID for conversation persistence (default: random)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(recoverCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on Ctrl-C so the agent can save
// its work before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [task]",
		Short: "Execute a writing task",
		Long: `Execute a writing task. The task describes what to write; the agent
plans, writes chapter files into the workspace, and finishes on its own.

With no task argument, prompts for one interactively.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			var task string
			if len(args) > 0 {
				task = args[0]
			}
			return cli.Run(ctx, task, cli.Options{Provider: provider, SessionID: sessionID})
		},
	}
}

func recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover [snapshot-file]",
		Short: "Resume work from a recovery snapshot",
		Long: `Resume an interrupted or capped session from a snapshot file.

Snapshots are written into the workspace as .context_summary_*.md whenever
a session is interrupted, hits its iteration cap, or takes a periodic backup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return cli.Recover(ctx, args[0], cli.Options{Provider: provider, SessionID: sessionID})
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListSessions(context.Background(), cli.Options{Provider: provider})
		},
	}
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ListTools(verboseTools)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}
