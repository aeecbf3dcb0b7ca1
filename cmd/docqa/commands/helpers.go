package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/client"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/registry"
	"github.com/54b3r/docqa-go/internal/splitter"
	"github.com/54b3r/docqa-go/internal/store"
)

// getEnvOrDefault returns the value of the environment variable key, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key, or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// getEnvDuration returns the Go duration value of key, or fallback when
// unset or unparseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// ingestionConfigFromEnv reads the DOCQA_* ingestion settings. Unset values
// stay zero so the pipeline applies its own defaults.
func ingestionConfigFromEnv() ingestion.Config {
	cfg := ingestion.Config{
		MaxFiles:               getEnvInt("DOCQA_MAX_FILES", 0),
		MaxFileSize:            int64(getEnvInt("DOCQA_MAX_FILE_SIZE_MB", 0)) << 20,
		EmbedBatchSize:         getEnvInt("DOCQA_EMBED_BATCH_SIZE", 0),
		EmbedConcurrency:       getEnvInt("DOCQA_EMBED_CONCURRENCY", 0),
		MaxConcurrentDocuments: int64(getEnvInt("DOCQA_MAX_CONCURRENT_DOCUMENTS", 0)),
		DocumentTimeout:        getEnvDuration("DOCQA_DOCUMENT_TIMEOUT", 0),
	}
	if size := getEnvInt("DOCQA_CHUNK_SIZE", 0); size > 0 {
		cfg.Splitter = splitter.Config{
			ChunkSize:    size,
			ChunkOverlap: getEnvInt("DOCQA_CHUNK_OVERLAP", min(splitter.DefaultChunkOverlap, size/5)),
			Separators:   splitter.DefaultSeparators,
		}
	}
	return cfg
}

// retrieverConfigFromEnv reads the DOCQA_* retrieval settings.
func retrieverConfigFromEnv() rag.RetrieverConfig {
	return rag.RetrieverConfig{
		TopK:          getEnvInt("DOCQA_TOP_K", 0),
		MaxDocuments:  getEnvInt("DOCQA_MAX_DOCUMENTS", 0),
		ContextBudget: getEnvInt("DOCQA_CONTEXT_BUDGET", 0),
		SearchTimeout: getEnvDuration("DOCQA_SEARCH_TIMEOUT", 0),
	}
}

// newClient builds an API client from DOCQA_SERVER and DOCQA_API_KEY, with
// --server taking precedence when set.
func newClient(server string) (*client.Client, error) {
	if server == "" {
		server = getEnvOrDefault("DOCQA_SERVER", client.DefaultServer)
	}
	return client.New(client.Config{
		BaseURL: server,
		APIKey:  os.Getenv("DOCQA_API_KEY"),
	})
}

// kernel is the in-process ingestion and retrieval stack shared by serve and
// the serverless ask mode.
type kernel struct {
	embedder  rag.Embedder
	backend   string
	registry  *registry.Registry
	statuses  *store.SQLiteStore
	mirror    *rag.QdrantMirror
	pipeline  *ingestion.Pipeline
	retriever *rag.Retriever
	closers   []func()
}

// close releases resources in reverse order of acquisition.
func (k *kernel) close() {
	for i := len(k.closers) - 1; i >= 0; i-- {
		k.closers[i]()
	}
}

// memoryDB keeps the status store in process memory.
const memoryDB = ":memory:"

// kernelOptions controls buildKernel.
type kernelOptions struct {
	// statusDB is the SQLite path; memoryDB keeps statuses in memory.
	statusDB string
	// mirror enables the Qdrant mirror.
	mirror bool
	// metrics receives the ingestion and retrieval collectors. Nil disables them.
	metrics prometheus.Registerer
}

// buildKernel validates the embedder configuration and wires the registry,
// status store, optional Qdrant mirror, ingestion pipeline and retriever.
func buildKernel(ctx context.Context, log *slog.Logger, opts kernelOptions) (_ *kernel, err error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	k := &kernel{embedder: emb, backend: embedder.Backend(), registry: registry.New()}
	defer func() {
		if err != nil {
			k.close()
		}
	}()
	log.Info("embedder initialised", slog.String("backend", k.backend))

	statuses, err := store.Open(opts.statusDB)
	if err != nil {
		return nil, err
	}
	k.statuses = statuses
	k.closers = append(k.closers, func() { _ = statuses.Close() })
	log.Info("status store opened", slog.String("path", opts.statusDB))

	if opts.statusDB != memoryDB {
		n, err := statuses.Reconcile(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			log.Info("status store: closed out statuses from a previous run", slog.Int64("rows", n))
		}
	}

	var mirror ingestion.Mirror
	if opts.mirror {
		qm, err := rag.NewQdrantMirror(ctx, &rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "docqa-chunks"),
			VectorSize: uint64(embedder.DefaultDimensions(k.backend)), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		k.mirror = qm
		mirror = qm
		k.closers = append(k.closers, func() { _ = qm.Close() })
		log.Info("qdrant mirror enabled", slog.String("collection", getEnvOrDefault("QDRANT_COLLECTION", "docqa-chunks")))
	}

	var ingMetrics *ingestion.Metrics
	var ragMetrics *rag.Metrics
	if opts.metrics != nil {
		ingMetrics = ingestion.NewMetrics(opts.metrics)
		ragMetrics = rag.NewMetrics(opts.metrics)
	}

	pipeline, err := ingestion.NewPipeline(ingestion.Deps{
		Embedder: emb,
		Registry: k.registry,
		Statuses: statuses,
		Mirror:   mirror,
		Metrics:  ingMetrics,
	}, ingestionConfigFromEnv())
	if err != nil {
		return nil, err
	}
	k.pipeline = pipeline

	rcfg := retrieverConfigFromEnv()
	rcfg.Metrics = ragMetrics
	retriever, err := rag.NewRetriever(emb, k.registry, rcfg)
	if err != nil {
		return nil, err
	}
	k.retriever = retriever

	return k, nil
}

// statusDBPath resolves DOCQA_STATUS_DB. Statuses stay in memory unless a
// file is asked for; "default" selects ~/.docqa/status.db.
func statusDBPath(log *slog.Logger) string {
	p := os.Getenv("DOCQA_STATUS_DB")
	switch p {
	case "", memoryDB:
		return memoryDB
	case "default":
		def, err := store.DefaultDBPath()
		if err != nil {
			log.Warn("status store: could not resolve default path, using memory", slog.Any("error", err))
			return memoryDB
		}
		return def
	default:
		return p
	}
}

// readUploads loads local files as uploads named by their base name.
func readUploads(paths []string) ([]ingestion.Upload, error) {
	uploads := make([]ingestion.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		uploads = append(uploads, ingestion.Upload{Name: filepath.Base(p), Data: data})
	}
	return uploads, nil
}
