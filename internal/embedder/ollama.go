package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// defaultOllamaTimeout applies when OllamaConfig.Timeout is zero. Cold
	// model loads on a laptop routinely take tens of seconds.
	defaultOllamaTimeout = 60 * time.Second

	// maxOllamaResponse caps the embed reply. A 768-dim batch of 64 inputs is
	// well under 2 MiB of JSON.
	maxOllamaResponse = 32 << 20
)

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama base URL, e.g. "http://localhost:11434".
	Host string
	// Model is the embedding model, e.g. "nomic-embed-text".
	Model string
	// Timeout bounds each embed request. Zero means 60s.
	Timeout time.Duration
	// KeepAlive is forwarded as keep_alive, e.g. "10m". Empty leaves the
	// server default.
	KeepAlive string
}

// OllamaEmbedder implements rag.Embedder against POST /api/embed. It holds no
// mutable state and is safe for concurrent use.
type OllamaEmbedder struct {
	endpoint  string
	model     string
	keepAlive string
	client    *http.Client
}

// NewOllamaEmbedder constructs an OllamaEmbedder from cfg.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}
	return &OllamaEmbedder{
		endpoint:  strings.TrimRight(cfg.Host, "/") + "/api/embed",
		model:     cfg.Model,
		keepAlive: cfg.KeepAlive,
		client:    &http.Client{Timeout: timeout},
	}
}

// Model returns the configured embedding model name.
func (e *OllamaEmbedder) Model() string { return e.model }

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

// ollamaEmbedResponse is the /api/embed reply. Error is set on failures.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order. An empty batch makes no
// request.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, status, err := e.post(ctx, ollamaEmbedRequest{Model: e.model, Input: texts, KeepAlive: e.keepAlive})
	if err != nil {
		return nil, err
	}

	var out ollamaEmbedResponse
	decodeErr := json.Unmarshal(body, &out)
	if status/100 != 2 {
		if decodeErr == nil && out.Error != "" {
			return nil, fmt.Errorf("ollama embedder: %s (model %s)", out.Error, e.model)
		}
		return nil, fmt.Errorf("ollama embedder: HTTP %d", status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w", decodeErr)
	}
	if err := checkVectors(out.Embeddings, len(texts)); err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return out.Embeddings, nil
}

// post sends one embed request and returns the raw body and status code.
func (e *OllamaEmbedder) post(ctx context.Context, payload ollamaEmbedRequest) ([]byte, int, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, 0, fmt.Errorf("ollama embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("ollama embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOllamaResponse))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("ollama embedder: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// checkVectors verifies a backend returned want non-empty vectors of one
// shared dimension.
func checkVectors(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("expected %d embeddings, got %d", want, len(vecs))
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("embedding %d is empty", i)
		}
		if len(v) != dim {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}
