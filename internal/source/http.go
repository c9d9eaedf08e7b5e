// Package source fetches connection snapshots from the backend over HTTP.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/skobkin/conntop-web/internal/snapshot"
)

const maxBodyBytes = 32 << 20

// ErrFetch matches every error returned by HTTPSource.Fetch.
var ErrFetch = errors.New("snapshot fetch failed")

// Kind classifies a fetch failure.
type Kind string

const (
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindDecode    Kind = "decode"
)

// FetchError describes a failed snapshot fetch.
type FetchError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s: unexpected status %d", ErrFetch, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %s: %v", ErrFetch, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports ErrFetch as a match so callers need not know the concrete type.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// HTTPSource polls a single backend URL.
type HTTPSource struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewHTTPSource validates the backend URL and builds a source. A zero timeout
// leaves fetches bounded only by the caller's context.
func NewHTTPSource(rawURL string, timeout time.Duration, client *http.Client, logger *slog.Logger) (*HTTPSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("source url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("source url %q has no host", rawURL)
	}
	if timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &HTTPSource{
		url:     u.String(),
		client:  client,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// URL returns the polled endpoint.
func (s *HTTPSource) URL() string {
	return s.url
}

// Fetch retrieves and decodes one snapshot.
func (s *HTTPSource) Fetch(ctx context.Context) (snapshot.Snapshot, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return snapshot.Snapshot{}, &FetchError{Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return snapshot.Snapshot{}, &FetchError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return snapshot.Snapshot{}, &FetchError{Kind: KindStatus, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return snapshot.Snapshot{}, &FetchError{Kind: KindTransport, Err: err}
	}
	if len(data) > maxBodyBytes {
		return snapshot.Snapshot{}, &FetchError{Kind: KindDecode, Err: fmt.Errorf("body exceeds %d bytes", maxBodyBytes)}
	}

	snap, err := snapshot.Decode(data)
	if err != nil {
		return snapshot.Snapshot{}, &FetchError{Kind: KindDecode, Err: err}
	}

	s.logger.Debug("snapshot fetched",
		"connections", len(snap.Connections),
		"processes", len(snap.Processes),
		"bytes", len(data),
	)
	return snap, nil
}
