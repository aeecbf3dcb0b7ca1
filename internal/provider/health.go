package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// healthTimeout bounds a health probe when the caller's context has no
// deadline.
const healthTimeout = 5 * time.Second

// httpChecker probes a backend with a single authenticated GET that lists
// models. Listing models costs nothing and proves both reachability and
// credentials.
type httpChecker struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// HealthCheckFor returns a zero-cost probe for cfg's backend, or nil when the
// backend offers no such endpoint (bedrock, gemini).
func HealthCheckFor(cfg *Config) HealthCheckConfig {
	client := &http.Client{Timeout: healthTimeout}
	switch cfg.Backend {
	case BackendOllama:
		host := cfg.Ollama.Host
		if host == "" {
			host = "http://localhost:11434"
		}
		return &httpChecker{url: strings.TrimRight(host, "/") + "/api/tags", client: client}
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &httpChecker{
			url:     strings.TrimRight(base, "/") + "/models",
			headers: map[string]string{"Authorization": "Bearer " + cfg.OpenAI.APIKey},
			client:  client,
		}
	case BackendAzure:
		az := cfg.AzureOpenAI
		return &httpChecker{
			url:     strings.TrimRight(az.Endpoint, "/") + "/openai/models?api-version=" + az.APIVersion,
			headers: map[string]string{"api-key": az.APIKey},
			client:  client,
		}
	default:
		return nil
	}
}

// HealthCheck issues the probe and treats any 2xx as healthy.
func (c *httpChecker) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}
