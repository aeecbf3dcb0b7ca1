package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
)

// dependency adapts a probe function to Pinger.
type dependency struct {
	name string
	ping func(ctx context.Context) error
}

func (d dependency) Name() string                   { return d.name }
func (d dependency) Ping(ctx context.Context) error { return d.ping(ctx) }

// NewLLMPinger probes the chat backend named name. It uses hc when the
// backend has a zero-cost listing endpoint; otherwise (bedrock, gemini) it
// falls back to a one-word Generate call, which spends tokens.
func NewLLMPinger(m model.BaseChatModel, hc provider.HealthCheckConfig, name string) Pinger {
	return dependency{name: name, ping: func(ctx context.Context) error {
		if hc != nil {
			if err := hc.HealthCheck(ctx); err != nil {
				return fmt.Errorf("%s health check failed: %w", name, err)
			}
			return nil
		}
		if m == nil {
			return fmt.Errorf("%s: no model configured", name)
		}
		logging.FromContext(ctx).Debug("ready: probing model with Generate", slog.String("backend", name))
		msg, err := m.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
		switch {
		case err != nil:
			return fmt.Errorf("generate failed: %w", err)
		case msg == nil:
			return errors.New("generate returned nil response")
		}
		return nil
	}}
}

// NewEmbedderPinger probes the embedding backend by embedding one word. It
// reports as "embedder:<backend>".
func NewEmbedderPinger(e rag.Embedder, backend string) Pinger {
	return dependency{name: "embedder:" + backend, ping: func(ctx context.Context) error {
		vecs, err := e.Embed(ctx, []string{"ping"})
		if err != nil {
			return fmt.Errorf("embed failed: %w", err)
		}
		if len(vecs) != 1 || len(vecs[0]) == 0 {
			return fmt.Errorf("embed returned %d vectors", len(vecs))
		}
		return nil
	}}
}

// NewStorePinger probes the ingestion status store.
func NewStorePinger(s interface{ Ping(ctx context.Context) error }) Pinger {
	return dependency{name: "status_store", ping: s.Ping}
}

// NewQdrantPinger probes the Qdrant mirror with its HealthCheck RPC.
func NewQdrantPinger(c *qdrant.Client) Pinger {
	return dependency{name: "qdrant", ping: func(ctx context.Context) error {
		if _, err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		return nil
	}}
}
