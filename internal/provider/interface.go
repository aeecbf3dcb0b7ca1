// Package provider selects and constructs the generative model backend at
// runtime. Supported backends: Ollama, OpenAI, Azure OpenAI, AWS Bedrock
// (via the Ark runtime), Google Gemini.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama base URL (OLLAMA_HOST).
	Host string
	// Model is the chat model name (OLLAMA_MODEL, default llama3).
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is the bearer token (OPENAI_API_KEY).
	APIKey string
	// Model is the chat model name (OPENAI_MODEL).
	Model string
	// BaseURL overrides the API base for OpenAI-compatible servers (OPENAI_BASE_URL).
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is the api-key header value (AZURE_OPENAI_API_KEY).
	APIKey string
	// Endpoint is the resource URL, e.g. https://my.openai.azure.com (AZURE_OPENAI_ENDPOINT).
	Endpoint string
	// Deployment is the chat deployment name (AZURE_OPENAI_DEPLOYMENT).
	Deployment string
	// APIVersion is the REST API version (AZURE_OPENAI_API_VERSION).
	APIVersion string
}

// ProviderBedrock holds AWS Bedrock settings.
type ProviderBedrock struct {
	// AWSRegion is the Bedrock region (AWS_REGION).
	AWSRegion string
	// ModelID is the Bedrock model id (BEDROCK_MODEL_ID).
	ModelID string
	// APIKey is an optional runtime key (BEDROCK_API_KEY).
	APIKey string
	// BaseURL is an optional runtime endpoint override (BEDROCK_BASE_URL).
	BaseURL string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	// APIKey is the AI Studio key (GOOGLE_API_KEY).
	APIKey string
	// Model is the model name (GEMINI_MODEL).
	Model string
}

// SharedTuning holds generation settings common to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness, 0 to 1. Grounded answers
	// want it low.
	Temperature float32
	// Timeout bounds a single model request. Zero leaves the client default.
	Timeout time.Duration
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the block matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Bedrock     ProviderBedrock
	Gemini      ProviderGemini

	// Tuning applies to every backend.
	Tuning SharedTuning
}

// setting is one required value together with the environment variable
// that supplies it.
type setting struct {
	env   string
	value string
}

// required lists the settings the selected backend cannot run without. ok is
// false for an unknown backend.
func (c *Config) required() (_ []setting, ok bool) {
	switch c.Backend {
	case BackendOllama:
		return []setting{{"OLLAMA_MODEL", c.Ollama.Model}}, true
	case BackendOpenAI:
		return []setting{{"OPENAI_API_KEY", c.OpenAI.APIKey}, {"OPENAI_MODEL", c.OpenAI.Model}}, true
	case BackendAzure:
		az := c.AzureOpenAI
		return []setting{
			{"AZURE_OPENAI_API_KEY", az.APIKey},
			{"AZURE_OPENAI_ENDPOINT", az.Endpoint},
			{"AZURE_OPENAI_DEPLOYMENT", az.Deployment},
		}, true
	case BackendBedrock:
		return []setting{{"AWS_REGION", c.Bedrock.AWSRegion}, {"BEDROCK_MODEL_ID", c.Bedrock.ModelID}}, true
	case BackendGemini:
		return []setting{{"GOOGLE_API_KEY", c.Gemini.APIKey}, {"GEMINI_MODEL", c.Gemini.Model}}, true
	default:
		return nil, false
	}
}

// Validate reports every missing required setting for the selected backend
// in one error, naming the environment variables that supply them.
func (c *Config) Validate() error {
	reqs, ok := c.required()
	if !ok {
		return fmt.Errorf("provider: unknown backend %q (valid: %s)", c.Backend, strings.Join(backendNames(), ", "))
	}
	var missing []string
	for _, r := range reqs {
		if r.value == "" {
			missing = append(missing, r.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("provider: %s backend requires %s", c.Backend, strings.Join(missing, ", "))
	}
	return nil
}

// ModelName returns the model or deployment name of the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendBedrock:
		return c.Bedrock.ModelID
	case BackendGemini:
		return c.Gemini.Model
	default:
		return ""
	}
}

// HealthCheckConfig is a zero-cost reachability probe for a backend. It must
// not consume tokens.
type HealthCheckConfig interface {
	HealthCheck(ctx context.Context) error
}
