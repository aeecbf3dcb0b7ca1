package embedder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// chatModelMarkers are name fragments of chat/completion model families.
// Any of them in EMBEDDING_MODEL, without "embed" also present, triggers a
// startup warning.
var chatModelMarkers = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen",
	"solar", "vicuna", "falcon", "yi-",
}

// looksLikeChatModel reports whether model is probably a chat model. Names
// containing "embed" (qwen3-embedding, mxbai-embed-large) never match.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, m := range chatModelMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// requirement is a setting a backend cannot start without. Any one of keys
// satisfies it.
type requirement struct {
	what string
	keys []string
}

// backendRequirements lists what each remote backend needs. Ollama and local
// have sensible defaults for everything.
var backendRequirements = map[string][]requirement{
	BackendOpenAI: {
		{"API key", []string{"EMBEDDING_API_KEY", "OPENAI_API_KEY"}},
	},
	BackendAzure: {
		{"API key", []string{"EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY"}},
		{"endpoint", []string{"EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT"}},
	},
	BackendOllama: nil,
	BackendLocal:  nil,
}

// Validate is a pre-flight check run before the embedder is built, so a
// broken configuration fails at startup instead of on the first upload.
// Every problem found is reported in one error wrapping rag.ErrValidation.
// Suspicious but usable settings only log a warning.
func Validate(log *slog.Logger) error {
	backend := Backend()

	reqs, known := backendRequirements[backend]
	if !known {
		return fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, local): %w", backend, rag.ErrValidation)
	}

	var problems []error
	for _, r := range reqs {
		if !anySet(r.keys) {
			problems = append(problems, fmt.Errorf("%s %s missing: set %s", backend, r.what, strings.Join(r.keys, " or ")))
		}
	}
	if raw := os.Getenv("EMBEDDING_DIMENSIONS"); raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n <= 0 {
			problems = append(problems, fmt.Errorf("EMBEDDING_DIMENSIONS must be a positive integer, got %q", raw))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("embedder: invalid configuration: %w: %w", rag.ErrValidation, errors.Join(problems...))
	}

	if backend != BackendOllama && os.Getenv("EMBEDDING_PROVIDER") == "" {
		log.Warn("embedder: EMBEDDING_PROVIDER not set, following MODEL_PROVIDER",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_PROVIDER explicitly (ollama, openai, azure or local)"),
		)
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model; retrieval quality will suffer",
			slog.String("model", model),
			slog.String("hint", "use an embedding model such as nomic-embed-text or text-embedding-3-small"),
		)
	}
	return nil
}

// anySet reports whether at least one of keys has a non-empty value.
func anySet(keys []string) bool {
	for _, k := range keys {
		if getEnv(k) != "" {
			return true
		}
	}
	return false
}
