// Package client is a small HTTP client for a running docqa server. The CLI
// uses it so that ingest, ask and delete act on the server's in-memory
// registry rather than on a private one.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

const (
	// DefaultServer is used when no base URL is configured.
	DefaultServer = "http://127.0.0.1:8080"

	// DefaultTimeout bounds a single request. Questions can be slow, so this
	// is generous.
	DefaultTimeout = 3 * time.Minute

	// DefaultPollInterval is the delay between task status polls in WaitTask.
	DefaultPollInterval = 500 * time.Millisecond
)

// Config holds the client settings.
type Config struct {
	// BaseURL is the server root, e.g. http://127.0.0.1:8080.
	BaseURL string
	// APIKey is sent as a Bearer token when non-empty.
	APIKey string
	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// HTTPClient overrides the underlying client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the docqa HTTP API.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	poll    time.Duration
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	// StatusCode is the HTTP status.
	StatusCode int
	// Message is the server's error field, or the raw body when it was not JSON.
	Message string
	// Details carries the server's details field, if any.
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("client: server returned %d: %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("client: server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code onto the shared error taxonomy so callers can
// use errors.Is(err, rag.ErrNotFound) on remote failures too.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return rag.ErrNotFound
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return rag.ErrValidation
	case http.StatusBadGateway:
		return rag.ErrGeneration
	default:
		return nil
	}
}

// Answer is the server's reply to a question.
type Answer struct {
	Answer  string   `json:"answer"`
	Found   bool     `json:"found"`
	Sources []string `json:"sources"`
}

// Accepted is the server's reply to an upload.
type Accepted struct {
	Message   string   `json:"message"`
	TaskID    string   `json:"task_id"`
	Documents []string `json:"documents"`
}

// Task is the server's view of an ingestion task.
type Task struct {
	TaskID    string                 `json:"task_id"`
	Done      bool                   `json:"done"`
	CreatedAt time.Time              `json:"created_at"`
	Documents []store.DocumentStatus `json:"documents"`
}

// New constructs a Client. An empty BaseURL selects DefaultServer.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(cfg.BaseURL, "/")
	if raw == "" {
		raw = DefaultServer
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("client: invalid server URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: server URL %q must use http or https", raw)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{baseURL: u, apiKey: cfg.APIKey, http: hc, poll: DefaultPollInterval}, nil
}

// Upload sends a batch of documents as multipart/form-data under the "file"
// field. The server accepts the batch and ingests it in the background.
func (c *Client) Upload(ctx context.Context, uploads []ingestion.Upload) (*Accepted, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, u := range uploads {
		part, err := mw.CreateFormFile("file", u.Name)
		if err != nil {
			return nil, fmt.Errorf("client: upload: %w", err)
		}
		if _, err := part.Write(u.Data); err != nil {
			return nil, fmt.Errorf("client: upload: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("client: upload: %w", err)
	}

	var out Accepted
	if err := c.do(ctx, http.MethodPost, "/api/documents", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask sends a question, optionally restricted to a subset of documents.
func (c *Client) Ask(ctx context.Context, question string, documents []string) (*Answer, error) {
	payload, err := json.Marshal(struct {
		Question  string   `json:"question"`
		Documents []string `json:"documents,omitempty"`
	}{question, documents})
	if err != nil {
		return nil, fmt.Errorf("client: ask: %w", err)
	}
	var out Answer
	if err := c.do(ctx, http.MethodPost, "/api/ask", "application/json", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the ids of every ready document.
func (c *Client) List(ctx context.Context) ([]string, error) {
	var out struct {
		Documents []string `json:"documents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/documents", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Delete removes a document. A document that is not ready yields an error
// wrapping rag.ErrNotFound.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/documents/"+url.PathEscape(id), "", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// DocumentStatus returns the latest recorded status of a document.
func (c *Client) DocumentStatus(ctx context.Context, id string) (*store.DocumentStatus, error) {
	var out store.DocumentStatus
	if err := c.do(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(id)+"/status", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Task returns the status of every document in an ingestion task.
func (c *Client) Task(ctx context.Context, id string) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitTask polls a task until every document reaches a terminal state or ctx
// is done.
func (c *Client) WaitTask(ctx context.Context, id string) (*Task, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		t, err := c.Task(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.Done {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, fmt.Errorf("client: wait for task %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// do sends one request and decodes a JSON reply into out.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	// path is already escaped; JoinPath treats its elements that way.
	u := c.baseURL.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("client: %s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: %s %s: decode response: %w", method, path, err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}
	return apiErr
}

// IsNotFound reports whether err is a remote or local not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, rag.ErrNotFound)
}
