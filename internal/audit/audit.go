// Package audit provides a structured audit log entry for process startup.
// It records the command name, resolved configuration source, and sanitised
// environment state so operators can trace what a bot instance was running
// with, without ever exposing secret values.
//
// Secrets are logged as presence/absence only.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	// key is the environment variable name.
	key string
	// secret indicates the value should be redacted to presence/absence.
	secret bool
}

// auditKeys is the ordered list of env vars included in every audit entry.
var auditKeys = []auditEntry{
	{"DISCORD_TOKEN", true},
	{"TARGET_CHANNEL_ID", false},
	{"MODEL_PROVIDER", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"BEDROCK_API_KEY", true},
	{"BEDROCK_MODEL_ID", false},
	{"GOOGLE_SEARCH_API_KEY", true},
	{"GOOGLE_SEARCH_ENGINE_ID", false},
	{"MEMORY_MAX_AGE_MINUTES", false},
	{"MEMORY_MAX_MESSAGES", false},
	{"MEMORY_TOKEN_LIMIT", false},
	{"HISTORY_FETCH_LIMIT", false},
	{"HIBIKI_ARCHIVE_DB", false},
	{"HIBIKI_OPS_ADDR", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// LogCommandStart emits a structured audit entry when a CLI command begins.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}

	for _, entry := range auditKeys {
		val := os.Getenv(entry.key)
		if entry.secret {
			attrs = append(attrs, slog.String(entry.key, presence(val)))
		} else {
			attrs = append(attrs, slog.String(entry.key, valOrUnset(val)))
		}
	}

	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path with the home directory
// redacted, or "none" if no file was loaded.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(p, home) {
		return "~" + strings.TrimPrefix(p, home)
	}
	return p
}
