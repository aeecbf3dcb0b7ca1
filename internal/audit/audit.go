// Package audit logs one structured entry per CLI invocation: the command,
// the config file it resolved, and the settings that decide where documents
// and questions are sent. Secrets are reported as "set" or "unset", never by
// value.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// setting is one environment variable included in the audit entry.
type setting struct {
	// key is the environment variable name.
	key string
	// secret redacts the value to presence/absence.
	secret bool
}

// settings are grouped so related keys sit together in the log line.
var settings = []struct {
	group string
	keys  []setting
}{
	{"model", []setting{
		{"MODEL_PROVIDER", false},
		{"OLLAMA_HOST", false},
		{"OLLAMA_MODEL", false},
		{"OPENAI_API_KEY", true},
		{"OPENAI_MODEL", false},
		{"AZURE_OPENAI_API_KEY", true},
		{"AZURE_OPENAI_ENDPOINT", false},
		{"AZURE_OPENAI_DEPLOYMENT", false},
		{"GOOGLE_API_KEY", true},
		{"GEMINI_MODEL", false},
		{"AWS_REGION", false},
		{"BEDROCK_MODEL_ID", false},
	}},
	{"embedding", []setting{
		{"EMBEDDING_PROVIDER", false},
		{"EMBEDDING_MODEL", false},
		{"EMBEDDING_DIMENSIONS", false},
		{"EMBEDDING_API_KEY", true},
	}},
	{"docqa", []setting{
		{"DOCQA_SERVER", false},
		{"DOCQA_API_KEY", true},
		{"DOCQA_STATUS_DB", false},
		{"DOCQA_CHUNK_SIZE", false},
		{"DOCQA_CHUNK_OVERLAP", false},
		{"DOCQA_MAX_FILES", false},
		{"DOCQA_TOP_K", false},
		{"DOCQA_CONTEXT_BUDGET", false},
	}},
	{"qdrant", []setting{
		{"QDRANT_ENABLED", false},
		{"QDRANT_HOST", false},
		{"QDRANT_PORT", false},
		{"QDRANT_COLLECTION", false},
		{"QDRANT_API_KEY", true},
	}},
	{"observability", []setting{
		{"LOG_LEVEL", false},
		{"LOG_FORMAT", false},
		{"LANGFUSE_PUBLIC_KEY", true},
		{"LANGFUSE_SECRET_KEY", true},
	}},
}

// extraSecrets are never audited but must still be redacted by SanitiseKey.
var extraSecrets = []string{"AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN", "BEDROCK_API_KEY"}

// secretKeys is derived from settings and extraSecrets.
var secretKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, g := range settings {
		for _, s := range g.keys {
			if s.secret {
				m[s.key] = true
			}
		}
	}
	for _, k := range extraSecrets {
		m[k] = true
	}
	return m
}()

// LogCommandStart emits the audit entry for a command invocation.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, g := range settings {
		groupAttrs := make([]any, 0, len(g.keys))
		for _, s := range g.keys {
			groupAttrs = append(groupAttrs, slog.String(s.key, SanitiseKey(s.key, os.Getenv(s.key))))
		}
		attrs = append(attrs, slog.Group(g.group, groupAttrs...))
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for known secret keys, or the value
// (or "unset") otherwise. Safe to use in log messages.
func SanitiseKey(key, value string) string {
	if secretKeys[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path with the home directory shown
// as "~", or "none" if no file was loaded.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
