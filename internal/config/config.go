// Package config layers an optional YAML file under the environment. Values
// from the file are exported as environment variables only where the
// variable is unset, so env (including .env) always wins and the rest of the
// program reads configuration from the environment alone.
//
// File search order:
//  1. --config flag (must exist when given)
//  2. DOCQA_CONFIG
//  3. ~/.docqa/config.yaml
//  4. ./docqa.yaml
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the YAML file layout. Every leaf field carries an env tag naming
// the environment variable it feeds; nested structs are walked.
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider used for chunks and questions.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the optional Qdrant mirror.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Client configures the CLI's connection to a running server.
	Client ClientConfig `yaml:"client"`

	// Ingestion configures splitting, upload limits and embedding concurrency.
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Retrieval configures cross-document search and context assembly.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Store configures the ingestion status database.
	Store StoreConfig `yaml:"store"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, bedrock, gemini.
	Provider string `yaml:"provider" env:"MODEL_PROVIDER"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens" env:"MODEL_MAX_TOKENS"`

	// Temperature controls response randomness, 0 to 1.
	Temperature float32 `yaml:"temperature" env:"MODEL_TEMPERATURE"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Bedrock holds AWS Bedrock-specific settings.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host" env:"OLLAMA_HOST"`
	// Model is the Ollama model name.
	Model string `yaml:"model" env:"OLLAMA_MODEL"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key" env:"OPENAI_API_KEY"`
	// Model is the OpenAI model name.
	Model string `yaml:"model" env:"OPENAI_MODEL"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key" env:"AZURE_OPENAI_API_KEY"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint" env:"AZURE_OPENAI_ENDPOINT"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment" env:"AZURE_OPENAI_DEPLOYMENT"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version" env:"AZURE_OPENAI_API_VERSION"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	// Region is the AWS region for Bedrock.
	Region string `yaml:"region" env:"AWS_REGION"`
	// ModelID is the Bedrock model identifier.
	ModelID string `yaml:"model_id" env:"BEDROCK_MODEL_ID"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key" env:"GOOGLE_API_KEY"`
	// Model is the Gemini model name.
	Model string `yaml:"model" env:"GEMINI_MODEL"`
}

// EmbeddingConfig holds embedding provider settings for RAG.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, local).
	Provider string `yaml:"provider" env:"EMBEDDING_PROVIDER"`
	// Model is the embedding model name.
	Model string `yaml:"model" env:"EMBEDDING_MODEL"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key" env:"EMBEDDING_API_KEY"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint" env:"EMBEDDING_ENDPOINT"`
	// Timeout is the per-request embedding timeout as a Go duration (e.g. "30s").
	Timeout string `yaml:"timeout" env:"EMBEDDING_TIMEOUT"`
}

// QdrantConfig holds Qdrant mirror settings.
type QdrantConfig struct {
	// Enabled turns on mirroring of ready documents into Qdrant.
	Enabled bool `yaml:"enabled" env:"QDRANT_ENABLED"`
	// Host is the Qdrant server hostname.
	Host string `yaml:"host" env:"QDRANT_HOST"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port" env:"QDRANT_PORT"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection" env:"QDRANT_COLLECTION"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key" env:"QDRANT_API_KEY"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls" env:"QDRANT_TLS"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host" env:"DOCQA_HOST"`
	// Port is the TCP port.
	Port int `yaml:"port" env:"DOCQA_PORT"`
	// APIKey is the Bearer token for API authentication. Prefer env var DOCQA_API_KEY.
	APIKey string `yaml:"api_key" env:"DOCQA_API_KEY"`
	// AskTimeout bounds a single question as a Go duration (e.g. "2m").
	AskTimeout string `yaml:"ask_timeout" env:"DOCQA_ASK_TIMEOUT"`
}

// ClientConfig holds settings for CLI commands that talk to a server.
type ClientConfig struct {
	// Server is the base URL of the docqa server (e.g. http://127.0.0.1:8080).
	Server string `yaml:"server" env:"DOCQA_SERVER"`
}

// IngestionConfig holds document ingestion settings.
type IngestionConfig struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `yaml:"chunk_size" env:"DOCQA_CHUNK_SIZE"`
	// ChunkOverlap is the maximum overlap between adjacent chunks.
	ChunkOverlap int `yaml:"chunk_overlap" env:"DOCQA_CHUNK_OVERLAP"`
	// MaxFiles is the maximum number of files per upload.
	MaxFiles int `yaml:"max_files" env:"DOCQA_MAX_FILES"`
	// MaxFileSizeMB is the per-file size limit in mebibytes.
	MaxFileSizeMB int `yaml:"max_file_size_mb" env:"DOCQA_MAX_FILE_SIZE_MB"`
	// EmbedBatchSize is the number of chunks sent per embedding call.
	EmbedBatchSize int `yaml:"embed_batch_size" env:"DOCQA_EMBED_BATCH_SIZE"`
	// EmbedConcurrency bounds parallel embedding calls per document.
	EmbedConcurrency int `yaml:"embed_concurrency" env:"DOCQA_EMBED_CONCURRENCY"`
	// MaxConcurrentDocuments bounds documents processed at once.
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" env:"DOCQA_MAX_CONCURRENT_DOCUMENTS"`
	// DocumentTimeout bounds a single document's ingestion as a Go duration.
	DocumentTimeout string `yaml:"document_timeout" env:"DOCQA_DOCUMENT_TIMEOUT"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	// TopK is the number of chunks requested from each document.
	TopK int `yaml:"top_k" env:"DOCQA_TOP_K"`
	// MaxDocuments caps how many documents contribute to the context.
	MaxDocuments int `yaml:"max_documents" env:"DOCQA_MAX_DOCUMENTS"`
	// ContextBudget is the maximum context length in characters.
	ContextBudget int `yaml:"context_budget" env:"DOCQA_CONTEXT_BUDGET"`
	// SearchTimeout bounds a per-document search as a Go duration.
	SearchTimeout string `yaml:"search_timeout" env:"DOCQA_SEARCH_TIMEOUT"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level" env:"LOG_LEVEL"`
	// Format is the log output format: json, text.
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// StoreConfig holds ingestion status database settings.
type StoreConfig struct {
	// DBPath is the SQLite database path. Empty keeps statuses in memory;
	// "default" selects ~/.docqa/status.db.
	DBPath string `yaml:"db_path" env:"DOCQA_STATUS_DB"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key" env:"LANGFUSE_PUBLIC_KEY"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key" env:"LANGFUSE_SECRET_KEY"`
	// Host is the Langfuse API host.
	Host string `yaml:"host" env:"LANGFUSE_HOST"`
}

// binding is one environment variable and the value the file gives it.
type binding struct {
	env   string
	value string
}

// bindings walks cfg and returns every env-tagged field whose value is
// non-zero. Zero values are omitted so an explicit 0 or false in the file
// never masks a default.
func bindings(cfg *Config) []binding {
	var out []binding
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		t := v.Type()
		for i := range t.NumField() {
			f, fv := t.Field(i), v.Field(i)
			if fv.Kind() == reflect.Struct {
				walk(fv)
				continue
			}
			env := f.Tag.Get("env")
			if env == "" || fv.IsZero() {
				continue
			}
			out = append(out, binding{env: env, value: formatValue(fv)})
		}
	}
	walk(reflect.ValueOf(cfg).Elem())
	return out
}

// EnvKeys lists every environment variable the file can set, in field order.
func EnvKeys() []string {
	var keys []string
	var walk func(t reflect.Type)
	walk = func(t reflect.Type) {
		for i := range t.NumField() {
			f := t.Field(i)
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type)
				continue
			}
			if env := f.Tag.Get("env"); env != "" {
				keys = append(keys, env)
			}
		}
	}
	walk(reflect.TypeOf(Config{}))
	return keys
}

// formatValue renders a leaf field the way the environment readers parse it.
func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32)
	default:
		return v.String()
	}
}

// Load reads the resolved YAML file and exports its non-zero values as
// environment variables that are not already set. It returns the loaded
// path, or "" when no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied, shadowed := 0, 0
	for _, b := range bindings(&cfg) {
		if os.Getenv(b.env) != "" {
			shadowed++
			continue
		}
		if err := os.Setenv(b.env, b.value); err != nil {
			return "", fmt.Errorf("config: set %s: %w", b.env, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
		slog.Int("keys_shadowed_by_env", shadowed),
	)
	return path, nil
}

// resolveConfigPath returns the first config file that exists. An explicit
// path that does not exist is an error; the implicit locations are optional.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %s: %w", explicit, err)
		}
		return explicit, nil
	}

	candidates := []string{os.Getenv("DOCQA_CONFIG")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".docqa", "config.yaml"))
	}
	candidates = append(candidates, "docqa.yaml")

	for _, p := range candidates {
		if p == "" {
			continue
		}
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config: %s: %w", p, err)
		}
	}
	return "", nil
}
