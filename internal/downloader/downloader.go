package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/brensch/tripparquet/internal/config"
)

const userAgent = "tripparquet-downloader"

// ErrBadStatus is wrapped by every non-2xx response failure.
var ErrBadStatus = errors.New("bad response status")

// StatusError records the HTTP status of a failed fetch.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("bad status '%s' fetching %s: %s", e.Status, e.URL, e.Body)
	}
	return fmt.Sprintf("bad status '%s' fetching %s", e.Status, e.URL)
}

func (e *StatusError) Unwrap() error { return ErrBadStatus }

// ProgressFunc receives the bytes written so far and the expected total (-1 if unknown).
type ProgressFunc func(written, total int64)

// Options configures the HTTP client.
type Options struct {
	// Timeout covers the whole request/response cycle.
	Timeout time.Duration
	// ChunkSize is the read/write buffer size used when streaming to disk.
	ChunkSize int
	// Token, when set, is sent as a bearer credential.
	Token string
}

// OptionsFromConfig derives client options from the application config.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Timeout:   cfg.RequestTimeout,
		ChunkSize: cfg.ChunkSize,
		Token:     cfg.Token,
	}
}

// Client streams remote payloads to local files.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a client. Redirects are followed by the standard policy.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultRequestTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = config.DefaultChunkSize
	}
	if opts.Token != "" {
		logger.Info("Using bearer token for authenticated requests.")
	} else {
		logger.Warn("No token configured, using unauthenticated requests (may be rate limited).", slog.String("env", config.TokenEnvVar))
	}
	return &Client{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Header returns the request headers sent with every fetch.
func (c *Client) Header() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/octet-stream")
	h.Set("User-Agent", userAgent)
	if c.opts.Token != "" {
		h.Set("Authorization", "Bearer "+c.opts.Token)
	}
	return h
}

// Fetch GETs url and streams the body to dest in ChunkSize pieces, calling progress
// after every chunk. A partially written dest is removed on failure.
func (c *Client) Fetch(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request for %s: %w", url, err)
	}
	req.Header = c.Header()

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http do request for %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create directory for %s: %w", dest, err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}

	written, copyErr := c.copyChunks(f, resp.Body, resp.ContentLength, progress)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(dest)
		return written, fmt.Errorf("stream %s to %s: %w", url, dest, err)
	}
	return written, nil
}

func (c *Client) copyChunks(w io.Writer, r io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, c.opts.ChunkSize)
	var written int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			m, writeErr := w.Write(buf[:n])
			written += int64(m)
			if writeErr != nil {
				return written, writeErr
			}
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
