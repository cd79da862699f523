// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig
	Agent     AgentConfig
	Workspace WorkspaceConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	MaxTokens   uint32
	Temperature float64
}

// AgentConfig holds the loop budgets for a writing run.
type AgentConfig struct {
	MaxIterations        int
	TokenLimit           int
	CompressionThreshold int
	KeepRecent           int
	BackupInterval       int
}

// WorkspaceConfig holds filesystem locations for a run.
type WorkspaceConfig struct {
	// Dir is where the agent's file tools operate.
	Dir string
	// SnapshotDir is where recovery snapshots are written.
	SnapshotDir string
	// DBPath is the SQLite session database.
	DBPath string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv       string
	defaultModel   string
	apiKeyEnv      string
	baseURLEnv     string
	defaultBaseURL string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"moonshot": {
		modelEnv:       "MOONSHOT_MODEL",
		defaultModel:   "kimi-k2-thinking",
		apiKeyEnv:      "MOONSHOT_API_KEY",
		baseURLEnv:     "MOONSHOT_BASE_URL",
		defaultBaseURL: "https://api.moonshot.ai/v1",
	},
	"anthropic": {
		modelEnv:     "ANTHROPIC_MODEL",
		defaultModel: "claude-sonnet-4-20250514",
		apiKeyEnv:    "ANTHROPIC_API_KEY",
	},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"kimi":   "moonshot",
	"claude": "anthropic",
}

// New creates settings for the specified provider, loading values from environment variables.
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 65536)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 1.0)
	if err != nil {
		return Settings{}, err
	}

	maxIterations, err := getEnvInt("AGENT_MAX_ITERATIONS", 300)
	if err != nil {
		return Settings{}, err
	}

	tokenLimit, err := getEnvInt("AGENT_TOKEN_LIMIT", 200000)
	if err != nil {
		return Settings{}, err
	}

	compressionThreshold, err := getEnvInt("AGENT_COMPRESSION_THRESHOLD", tokenLimit*9/10)
	if err != nil {
		return Settings{}, err
	}

	keepRecent, err := getEnvInt("AGENT_KEEP_RECENT", 10)
	if err != nil {
		return Settings{}, err
	}

	backupInterval, err := getEnvInt("AGENT_BACKUP_INTERVAL", 50)
	if err != nil {
		return Settings{}, err
	}

	// Get model from environment or use default
	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}

	var baseURL string
	if info.baseURLEnv != "" {
		baseURL = os.Getenv(info.baseURLEnv)
		if baseURL == "" {
			baseURL = info.defaultBaseURL
		}
	}

	workspaceDir := os.Getenv("INKWELL_WORKSPACE")
	if workspaceDir == "" {
		workspaceDir = "workspace"
	}
	snapshotDir := os.Getenv("INKWELL_SNAPSHOT_DIR")
	if snapshotDir == "" {
		snapshotDir = workspaceDir
	}
	dbPath := os.Getenv("INKWELL_DB")
	if dbPath == "" {
		dbPath = "inkwell_sessions.db"
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       model,
			BaseURL:     baseURL,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Agent: AgentConfig{
			MaxIterations:        maxIterations,
			TokenLimit:           tokenLimit,
			CompressionThreshold: compressionThreshold,
			KeepRecent:           keepRecent,
			BackupInterval:       backupInterval,
		},
		Workspace: WorkspaceConfig{
			Dir:         workspaceDir,
			SnapshotDir: snapshotDir,
			DBPath:      dbPath,
		},
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// APIKeyEnvFor returns the environment variable name holding a provider's key.
func APIKeyEnvFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}
	return info.apiKeyEnv, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
