// Package config provides YAML-based configuration for hibiki.
// Configuration is loaded with a layered precedence: defaults → YAML file →
// env vars. Environment variables always win, so a bare-env deployment
// (the common case for a bot token) needs no file at all.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. HIBIKI_CONFIG environment variable
//  3. ~/.hibiki/config.yaml
//  4. ./hibiki.yaml
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure. Field names mirror
// the env var naming (lowercase, underscored).
type Config struct {
	// Discord configures the platform connection.
	Discord DiscordConfig `yaml:"discord"`

	// Model configures the LLM chat backend.
	Model ModelConfig `yaml:"model"`

	// Memory configures the bounded conversation window.
	Memory MemoryConfig `yaml:"memory"`

	// Search configures the Google Custom Search integration.
	Search SearchConfig `yaml:"search"`

	// Archive configures the persistent transcript archive.
	Archive ArchiveConfig `yaml:"archive"`

	// Ops configures the operational HTTP endpoint (health, metrics).
	Ops OpsConfig `yaml:"ops"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse generation tracing.
	Tracing TracingConfig `yaml:"tracing"`
}

// DiscordConfig holds platform connection settings.
type DiscordConfig struct {
	// Token is the bot token. Prefer env var DISCORD_TOKEN.
	Token string `yaml:"token"`
	// TargetChannelID is the only channel the bot responds in.
	TargetChannelID string `yaml:"target_channel_id"`
}

// ModelConfig holds LLM backend settings.
type ModelConfig struct {
	// Provider selects the backend: gemini, openai, ollama, bedrock.
	Provider string `yaml:"provider"`
	// MaxTokens caps the response length.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
	// Gemini holds Gemini settings (the production default).
	Gemini GeminiConfig `yaml:"gemini"`
	// OpenAI holds OpenAI settings.
	OpenAI OpenAIConfig `yaml:"openai"`
	// Ollama holds Ollama settings.
	Ollama OllamaConfig `yaml:"ollama"`
	// Bedrock holds Bedrock-compatible endpoint settings.
	Bedrock BedrockConfig `yaml:"bedrock"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
}

// OllamaConfig holds Ollama settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// BedrockConfig holds Bedrock-compatible endpoint settings.
type BedrockConfig struct {
	// APIKey is the endpoint credential. Prefer env var BEDROCK_API_KEY.
	APIKey string `yaml:"api_key"`
	// BaseURL is the endpoint URL.
	BaseURL string `yaml:"base_url"`
	// ModelID is the model identifier.
	ModelID string `yaml:"model_id"`
}

// MemoryConfig holds the eviction limits for the conversation window.
type MemoryConfig struct {
	// MaxAgeMinutes is the age window for the first eviction pass.
	MaxAgeMinutes int `yaml:"max_age_minutes"`
	// MaxMessages is the per-channel count cap.
	MaxMessages int `yaml:"max_messages"`
	// TokenLimit is the estimated token budget for one channel's window.
	TokenLimit int `yaml:"token_limit"`
	// HistoryFetchLimit is how many platform messages are merged at
	// context-assembly time.
	HistoryFetchLimit int `yaml:"history_fetch_limit"`
}

// SearchConfig holds Google Custom Search settings.
type SearchConfig struct {
	// APIKey is the search API key. Prefer env var GOOGLE_SEARCH_API_KEY.
	APIKey string `yaml:"api_key"`
	// EngineID is the custom search engine ID.
	EngineID string `yaml:"engine_id"`
	// ResultCount is the number of results folded into the prompt.
	ResultCount int `yaml:"result_count"`
}

// ArchiveConfig holds transcript archive settings.
type ArchiveConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// OpsConfig holds the operational HTTP server settings.
type OpsConfig struct {
	// Addr is the listen address for /healthz and /metrics.
	Addr string `yaml:"addr"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"DISCORD_TOKEN", func(c *Config) string { return c.Discord.Token }},
	{"TARGET_CHANNEL_ID", func(c *Config) string { return c.Discord.TargetChannelID }},
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return floatStr(c.Model.Temperature) }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"BEDROCK_API_KEY", func(c *Config) string { return c.Model.Bedrock.APIKey }},
	{"BEDROCK_BASE_URL", func(c *Config) string { return c.Model.Bedrock.BaseURL }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"MEMORY_MAX_AGE_MINUTES", func(c *Config) string { return intStr(c.Memory.MaxAgeMinutes) }},
	{"MEMORY_MAX_MESSAGES", func(c *Config) string { return intStr(c.Memory.MaxMessages) }},
	{"MEMORY_TOKEN_LIMIT", func(c *Config) string { return intStr(c.Memory.TokenLimit) }},
	{"HISTORY_FETCH_LIMIT", func(c *Config) string { return intStr(c.Memory.HistoryFetchLimit) }},
	{"GOOGLE_SEARCH_API_KEY", func(c *Config) string { return c.Search.APIKey }},
	{"GOOGLE_SEARCH_ENGINE_ID", func(c *Config) string { return c.Search.EngineID }},
	{"SEARCH_RESULT_COUNT", func(c *Config) string { return intStr(c.Search.ResultCount) }},
	{"HIBIKI_ARCHIVE_DB", func(c *Config) string { return c.Archive.DBPath }},
	{"HIBIKI_OPS_ADDR", func(c *Config) string { return c.Ops.Addr }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		v := m.value(&cfg)
		if v == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		os.Setenv(m.envKey, v)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("HIBIKI_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".hibiki", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("hibiki.yaml"); err == nil {
		return "hibiki.yaml"
	}

	return ""
}

// Settings is the fully resolved runtime configuration, read from the
// environment after Load has layered in any YAML file.
type Settings struct {
	// DiscordToken is the bot token (required).
	DiscordToken string
	// TargetChannelID is the watched channel (required).
	TargetChannelID string

	// MaxAge is the memory age window.
	MaxAge time.Duration
	// MaxMessages is the memory count cap.
	MaxMessages int
	// TokenLimit is the memory token budget.
	TokenLimit int
	// HistoryFetchLimit is the platform history merge bound.
	HistoryFetchLimit int

	// SearchAPIKey and SearchEngineID enable the !search command when both
	// are set.
	SearchAPIKey   string
	SearchEngineID string
	// SearchResultCount is the number of search results used per query.
	SearchResultCount int

	// ArchiveDBPath is the transcript archive location ("disabled" to skip).
	ArchiveDBPath string

	// OpsAddr is the health/metrics listen address.
	OpsAddr string
}

// FromEnv reads Settings from the environment, applying the deployed
// defaults: 10 minute window, 20 messages, 7168 tokens, 5 fetched messages.
func FromEnv() Settings {
	return Settings{
		DiscordToken:      os.Getenv("DISCORD_TOKEN"),
		TargetChannelID:   os.Getenv("TARGET_CHANNEL_ID"),
		MaxAge:            time.Duration(getEnvInt("MEMORY_MAX_AGE_MINUTES", 10)) * time.Minute,
		MaxMessages:       getEnvInt("MEMORY_MAX_MESSAGES", 20),
		TokenLimit:        getEnvInt("MEMORY_TOKEN_LIMIT", 7168),
		HistoryFetchLimit: getEnvInt("HISTORY_FETCH_LIMIT", 5),
		SearchAPIKey:      os.Getenv("GOOGLE_SEARCH_API_KEY"),
		SearchEngineID:    os.Getenv("GOOGLE_SEARCH_ENGINE_ID"),
		SearchResultCount: getEnvInt("SEARCH_RESULT_COUNT", 3),
		ArchiveDBPath:     os.Getenv("HIBIKI_ARCHIVE_DB"),
		OpsAddr:           getEnvOrDefault("HIBIKI_OPS_ADDR", "127.0.0.1:9190"),
	}
}

// Validate checks the settings a running bot cannot do without.
func (s Settings) Validate() error {
	if s.DiscordToken == "" {
		return fmt.Errorf("config: DISCORD_TOKEN is required")
	}
	if s.TargetChannelID == "" {
		return fmt.Errorf("config: TARGET_CHANNEL_ID is required")
	}
	if _, err := strconv.ParseUint(s.TargetChannelID, 10, 64); err != nil {
		return fmt.Errorf("config: TARGET_CHANNEL_ID must be a numeric channel ID: %w", err)
	}
	return nil
}

// SearchEnabled reports whether both search credentials are configured.
func (s Settings) SearchEnabled() bool {
	return s.SearchAPIKey != "" && s.SearchEngineID != ""
}

// getEnvOrDefault returns the named env var, or fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named env var, or fallback when
// unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr converts a float32 to string, returning "" for zero values.
func floatStr(v float32) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
