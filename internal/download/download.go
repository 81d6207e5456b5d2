// Package download fetches firmware and GPS quickfix payloads.
package download

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Fetcher retrieves the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: HTTP %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// HTTP fetches over HTTP(S).
type HTTP struct {
	client  *http.Client
	logger  *log.Logger
	maxSize int64
}

var _ Fetcher = (*HTTP)(nil)

// DefaultMaxSize bounds a download. The largest payload, the main firmware,
// is a few megabytes.
const DefaultMaxSize = 32 << 20

// NewHTTP returns a Fetcher using client, or a client with a one minute
// timeout when client is nil.
func NewHTTP(client *http.Client, logger *log.Logger) *HTTP {
	if logger == nil {
		panic("Download: logger cannot be nil")
	}
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	return &HTTP{client: client, logger: logger, maxSize: DefaultMaxSize}
}

func (h *HTTP) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if int64(len(data)) > h.maxSize {
		return nil, fmt.Errorf("download %s: larger than %d bytes", url, h.maxSize)
	}
	h.logger.Printf("Download: %s (%d bytes)", url, len(data))
	return data, nil
}
