package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

const (
	// DefaultHTTPTimeout is the timeout for fetching a remote document.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultUserAgent is sent with every fetch request.
	DefaultUserAgent = "docqa/1.0 (document ingestion)"
)

// Fetcher downloads remote documents into Uploads.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxFileSize int64
}

// NewFetcher returns a Fetcher. Zero values select the defaults.
func NewFetcher(timeout time.Duration, userAgent string, maxFileSize int64) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		userAgent:   userAgent,
		maxFileSize: maxFileSize,
	}
}

// Fetch retrieves rawURL and names the upload after the last path segment.
// Bodies larger than the size limit are rejected rather than truncated.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Upload, error) {
	name, err := NameFromURL(rawURL)
	if err != nil {
		return Upload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Upload{}, fmt.Errorf("ingestion: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/pdf,text/plain,text/markdown,text/*;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return Upload{}, fmt.Errorf("ingestion: fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Upload{}, fmt.Errorf("ingestion: fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxFileSize+1))
	if err != nil {
		return Upload{}, fmt.Errorf("ingestion: read body from %s: %w", rawURL, err)
	}
	if int64(len(data)) > f.maxFileSize {
		return Upload{}, fmt.Errorf("ingestion: %s exceeds the %d byte limit", rawURL, f.maxFileSize)
	}
	return Upload{Name: name, Data: data}, nil
}

// NameFromURL derives a document id from the final path segment of rawURL,
// falling back to the host when the path is empty.
func NameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("ingestion: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("ingestion: unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("ingestion: url %q has no host", rawURL)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return u.Host, nil
	}
	return base, nil
}
