package provider

import (
	"context"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"
)

// constructor builds a chat model for one backend from a validated Config.
type constructor func(ctx context.Context, cfg *Config) (model.BaseChatModel, error)

// constructors maps each supported backend to its factory in backends.go.
var constructors = map[Backend]constructor{
	BackendOllama:  newOllama,
	BackendOpenAI:  newOpenAI,
	BackendAzure:   newAzure,
	BackendBedrock: newBedrock,
	BackendGemini:  newGemini,
}

// backendNames returns the supported backend names in sorted order.
func backendNames() []string {
	names := make([]string, 0, len(constructors))
	for b := range constructors {
		names = append(names, string(b))
	}
	slices.Sort(names)
	return names
}

// ConfigFromEnv resolves a Config from the environment. MODEL_PROVIDER picks
// the backend and each backend reads its own native variables:
//
//	MODEL_PROVIDER  ollama (default) | openai | azure | bedrock | gemini
//	ollama          OLLAMA_HOST, OLLAMA_MODEL (llama3)
//	openai          OPENAI_API_KEY, OPENAI_MODEL (gpt-4o-mini), OPENAI_BASE_URL
//	azure           AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT,
//	                AZURE_OPENAI_DEPLOYMENT, AZURE_OPENAI_API_VERSION (2024-02-01)
//	bedrock         AWS_REGION (us-east-1), BEDROCK_MODEL_ID, BEDROCK_API_KEY, BEDROCK_BASE_URL
//	gemini          GOOGLE_API_KEY, GEMINI_MODEL (gemini-1.5-flash)
//	all             MODEL_MAX_TOKENS (1024), MODEL_TEMPERATURE (0.2), MODEL_TIMEOUT (2m)
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(envOr("MODEL_PROVIDER", string(BackendOllama), parseString)),
		Ollama: ProviderOllama{
			Host:  envOr("OLLAMA_HOST", "http://localhost:11434", parseString),
			Model: envOr("OLLAMA_MODEL", "llama3", parseString),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   envOr("OPENAI_MODEL", "gpt-4o-mini", parseString),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: envOr("AZURE_OPENAI_API_VERSION", "2024-02-01", parseString),
		},
		Bedrock: ProviderBedrock{
			AWSRegion: envOr("AWS_REGION", "us-east-1", parseString),
			ModelID:   os.Getenv("BEDROCK_MODEL_ID"),
			APIKey:    os.Getenv("BEDROCK_API_KEY"),
			BaseURL:   os.Getenv("BEDROCK_BASE_URL"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  envOr("GEMINI_MODEL", "gemini-1.5-flash", parseString),
		},
		Tuning: SharedTuning{
			MaxTokens:   envOr("MODEL_MAX_TOKENS", 1024, strconv.Atoi),
			Temperature: envOr("MODEL_TEMPERATURE", float32(0.2), parseFloat32),
			Timeout:     envOr("MODEL_TIMEOUT", 2*time.Minute, time.ParseDuration),
		},
	}
}

// NewFromEnv is New(ctx, ConfigFromEnv()).
func NewFromEnv(ctx context.Context) (model.BaseChatModel, error) {
	return New(ctx, ConfigFromEnv())
}

// New validates cfg and builds the chat model for its backend, so a bad
// configuration fails at startup rather than on the first question.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return constructors[cfg.Backend](ctx, cfg)
}

// envOr parses the named variable with parse, returning fallback when it is
// unset or does not parse.
func envOr[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := parse(raw)
	if err != nil {
		return fallback
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat32(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	return float32(f), err
}
