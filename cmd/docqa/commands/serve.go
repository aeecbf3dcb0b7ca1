package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/tracing"
	"github.com/54b3r/docqa-go/internal/version"
)

// drainTimeout bounds how long serve waits for in-flight ingestions after
// the HTTP server has stopped.
const drainTimeout = 30 * time.Second

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP server",
		Long: `Start the docqa HTTP server.

Documents uploaded to the server are split, embedded and kept in memory, one
vector index per document. Questions are answered from the most relevant
chunks across all (or a chosen subset of) documents.

Examples:
  docqa serve
  docqa serve --port 9090
  MODEL_PROVIDER=openai EMBEDDING_PROVIDER=openai docqa serve
  QDRANT_ENABLED=true docqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting",
				slog.String("version", version.String()),
				slog.String("provider", os.Getenv("MODEL_PROVIDER")),
			)

			// Setup Langfuse tracing: opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised",
				slog.String("provider", string(providerCfg.Backend)),
				slog.String("model", providerCfg.ModelName()),
			)

			k, err := buildKernel(ctx, log, kernelOptions{
				statusDB: statusDBPath(log),
				mirror:   os.Getenv("QDRANT_ENABLED") == "true",
				metrics:  prometheus.DefaultRegisterer,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer k.close()

			docAgent, err := agent.New(&agent.Config{
				ChatModel: chatModel,
				Retriever: k.retriever,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			pingers := []server.Pinger{
				server.NewLLMPinger(chatModel, provider.HealthCheckFor(providerCfg), string(providerCfg.Backend)),
				server.NewEmbedderPinger(k.embedder, k.backend),
				server.NewStorePinger(k.statuses),
			}
			if k.mirror != nil {
				pingers = append(pingers, server.NewQdrantPinger(k.mirror.Client()))
			}

			// Flag defaults are resolved here so .env and YAML values apply.
			if host == "" {
				host = getEnvOrDefault("DOCQA_HOST", "127.0.0.1")
			}
			if port == 0 {
				port = getEnvInt("DOCQA_PORT", 8080)
			}

			srv, err := server.New(docAgent, k.pipeline, &server.Config{
				Host:       host,
				Port:       port,
				AskTimeout: getEnvDuration("DOCQA_ASK_TIMEOUT", 0),
				Logger:     log,
				Pingers:    pingers,
				APIKey:     os.Getenv("DOCQA_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			serveErr := srv.Start(ctx)

			// Let accepted uploads finish so their statuses are recorded.
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			if err := k.pipeline.Shutdown(drainCtx); err != nil {
				log.Warn("ingestion did not drain before shutdown", slog.Any("error", err))
			}

			return serveErr
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: DOCQA_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: DOCQA_PORT or 8080)")

	return cmd
}
