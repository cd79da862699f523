package agent

import (
	"github.com/richinex/inkwell/tools"
)

// Config holds the agent's identity and loop budgets. Budgets are plain
// values passed at construction so multiple agents (tests included) can run
// with different limits concurrently.
type Config struct {
	// SystemPrompt is the leading system turn of every session.
	SystemPrompt string

	// Tools available to the model beyond the reserved compress_context.
	Tools []tools.Tool

	// MaxIterations is the hard cap on loop iterations.
	MaxIterations int

	// TokenLimit is the provider-enforced context ceiling, used for status
	// reporting. CompressionThreshold must sit strictly below it.
	TokenLimit int

	// CompressionThreshold triggers compression before the next model call
	// once the estimated history size reaches it.
	CompressionThreshold int

	// KeepRecent is the number of trailing turns kept verbatim when the
	// history is compressed.
	KeepRecent int

	// BackupInterval saves a recovery snapshot every N iterations.
	// Zero disables periodic backups.
	BackupInterval int
}

// Loop budget defaults, sized for a 200k-context reasoning model.
const (
	DefaultMaxIterations        = 300
	DefaultTokenLimit           = 200000
	DefaultCompressionThreshold = 180000 // 90% of the token limit
	DefaultKeepRecent           = 10
	DefaultBackupInterval       = 50
)

// DefaultConfig returns a config with the default loop budgets and no tools.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        DefaultMaxIterations,
		TokenLimit:           DefaultTokenLimit,
		CompressionThreshold: DefaultCompressionThreshold,
		KeepRecent:           DefaultKeepRecent,
		BackupInterval:       DefaultBackupInterval,
	}
}

// withDefaults fills zero-valued budgets so a partially specified config is
// safe to run.
func (c Config) withDefaults() Config {
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.TokenLimit == 0 {
		c.TokenLimit = DefaultTokenLimit
	}
	if c.CompressionThreshold == 0 {
		c.CompressionThreshold = c.TokenLimit * 9 / 10
	}
	if c.KeepRecent == 0 {
		c.KeepRecent = DefaultKeepRecent
	}
	return c
}
