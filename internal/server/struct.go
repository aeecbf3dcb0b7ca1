package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request, including
	// upload bodies.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds a single question from retrieval to model response.
	// Defaults to 2 minutes if zero.
	AskTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is exposed on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker answers questions. *agent.DocumentAgent satisfies it; tests inject
// a fake.
type asker interface {
	Ask(ctx context.Context, q rag.Query) (*agent.Answer, error)
}

// documentService is the ingestion surface used by the document handlers.
// *ingestion.Pipeline satisfies it.
type documentService interface {
	Submit(ctx context.Context, uploads []ingestion.Upload) (*ingestion.Task, error)
	Delete(ctx context.Context, id string) error
	List() []string
	Status(ctx context.Context, id string) (*store.DocumentStatus, error)
	TaskStatus(ctx context.Context, taskID string) (*store.TaskStatus, error)
	Config() ingestion.Config
}

// Server is the HTTP server that exposes document upload and question
// answering.
type Server struct {
	// asker answers POST /api/ask and POST /ask.
	asker asker
	// docs handles upload, listing, deletion, and status queries.
	docs documentService
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by the server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask and POST /ask.
type askRequest struct {
	// Question is the natural language question.
	Question string `json:"question"`
	// Documents optionally restricts retrieval to these document ids.
	Documents []string `json:"documents,omitempty"`
}

// askResponse is the JSON response for a successful question.
type askResponse struct {
	Answer  string   `json:"answer"`
	Found   bool     `json:"found"`
	Sources []string `json:"sources"`
}

// uploadResponse is returned once an upload batch has been accepted.
type uploadResponse struct {
	Message   string   `json:"message"`
	TaskID    string   `json:"task_id"`
	Documents []string `json:"documents"`
}

// deleteRequest is the JSON body for DELETE /api/documents and DELETE /delete.
type deleteRequest struct {
	Filename string `json:"filename"`
}

// messageResponse carries a human-readable confirmation.
type messageResponse struct {
	Message string `json:"message"`
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// documentsResponse is the JSON response for GET /api/documents.
type documentsResponse struct {
	Documents []string `json:"documents"`
}

// debugResponse is the JSON response for GET /debug.
type debugResponse struct {
	StoredFiles []string `json:"stored_files"`
}

// taskResponse is the JSON response for GET /api/tasks/{id}.
type taskResponse struct {
	TaskID    string                 `json:"task_id"`
	Done      bool                   `json:"done"`
	CreatedAt time.Time              `json:"created_at"`
	Documents []store.DocumentStatus `json:"documents"`
}
