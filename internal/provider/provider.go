// Package provider defines the factory for selecting and constructing the
// LLM chat backend at runtime. Gemini is the production default; OpenAI,
// Ollama, and Bedrock-compatible endpoints are supported for local and
// alternative deployments.
package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendBedrock selects a Bedrock-compatible endpoint.
	BackendBedrock Backend = "bedrock"
)

// Config holds provider configuration resolved from environment variables or
// explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name or ID (e.g. "gemini-2.0-flash", "gpt-4o").
	Model string

	// APIKey is the authentication credential for the selected provider.
	// Unused for Ollama.
	APIKey string

	// BaseURL overrides the default API endpoint (Ollama and Bedrock).
	BaseURL string

	// MaxTokens caps the number of tokens the model may generate per reply.
	MaxTokens int

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Validate checks that the config names a known backend with its required
// credentials, so misconfiguration fails at startup rather than on the first
// message.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGemini, BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("provider: API key is required for %s backend", c.Backend)
		}
	case BackendOllama:
		// No credentials; BaseURL defaults to localhost.
	case BackendBedrock:
		if c.APIKey == "" || c.BaseURL == "" {
			return fmt.Errorf("provider: API key and base URL are required for bedrock backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid values: gemini, openai, ollama, bedrock)", c.Backend)
	}
	if c.Model == "" {
		return fmt.Errorf("provider: model name is required")
	}
	return nil
}

// ConfigFromEnv reads provider configuration from environment variables.
// MODEL_PROVIDER selects the backend; each provider uses its native
// credential env vars.
//
//	MODEL_PROVIDER = gemini | openai | ollama | bedrock (default: gemini)
//
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-2.0-flash)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o)
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	Bedrock: BEDROCK_API_KEY, BEDROCK_BASE_URL, BEDROCK_MODEL_ID
//
//	Shared:  MODEL_MAX_TOKENS (default: 2048), MODEL_TEMPERATURE (default: 0.7)
func ConfigFromEnv() *Config {
	cfg := &Config{
		Backend:     Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendGemini))),
		MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 2048),
		Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0.7),
	}

	switch cfg.Backend {
	case BackendOpenAI:
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.Model = getEnvOrDefault("OPENAI_MODEL", "gpt-4o")
	case BackendOllama:
		cfg.BaseURL = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		cfg.Model = getEnvOrDefault("OLLAMA_MODEL", "llama3")
	case BackendBedrock:
		cfg.APIKey = os.Getenv("BEDROCK_API_KEY")
		cfg.BaseURL = os.Getenv("BEDROCK_BASE_URL")
		cfg.Model = os.Getenv("BEDROCK_MODEL_ID")
	default:
		cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
		cfg.Model = getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash")
	}

	return cfg
}

// New constructs a ChatModel from an explicit Config, delegating to the
// appropriate backend constructor. The config is validated first so callers
// get a clear error at startup rather than on the first message.
func New(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendGemini:
		return newGemini(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendBedrock:
		return newBedrock(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q", cfg.Backend)
	}
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

// getEnvFloat32 returns the float32 value of the named env var, or fallback
// when unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
