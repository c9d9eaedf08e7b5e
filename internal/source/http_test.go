package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchDecodesSnapshot(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.RawQuery != "" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("unexpected Accept header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"connections":[{"inode":7,"bytes_downloaded":3,"bytes_uploaded":4}],"processes":[{"pid":1,"inodes":[7]}]}`))
	}))
	defer ts.Close()

	src := newTestSource(t, ts.URL, time.Second)

	snap, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(snap.Connections) != 1 || snap.Connections[0].TotalBytes() != 7 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.Processes) != 1 || snap.Processes[0].PID != 1 {
		t.Fatalf("unexpected processes %+v", snap.Processes)
	}
}

func TestFetchErrorKinds(t *testing.T) {
	t.Parallel()

	statusServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer statusServer.Close()

	decodeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"processes": []}`))
	}))
	defer decodeServer.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	cases := []struct {
		name string
		url  string
		kind Kind
	}{
		{name: "status", url: statusServer.URL, kind: KindStatus},
		{name: "decode", url: decodeServer.URL, kind: KindDecode},
		{name: "transport", url: closedURL, kind: KindTransport},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := newTestSource(t, tc.url, time.Second)
			_, err := src.Fetch(context.Background())
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrFetch) {
				t.Fatalf("expected ErrFetch match, got %v", err)
			}
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("expected *FetchError, got %T", err)
			}
			if fetchErr.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, fetchErr.Kind)
			}
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	src := newTestSource(t, ts.URL, 30*time.Millisecond)

	start := time.Now()
	_, err := src.Fetch(context.Background())
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("fetch took too long: %s", elapsed)
	}
}

func TestNewHTTPSourceValidation(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	invalid := []string{"", "localhost:8080", "ftp://localhost", "http://"}
	for _, raw := range invalid {
		if _, err := NewHTTPSource(raw, time.Second, nil, logger); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}

	if _, err := NewHTTPSource("http://localhost:8080", -time.Second, nil, logger); err == nil {
		t.Errorf("expected error for negative timeout")
	}

	src, err := NewHTTPSource("http://localhost:8080", 0, nil, logger)
	if err != nil {
		t.Fatalf("NewHTTPSource returned error: %v", err)
	}
	if src.URL() != "http://localhost:8080" {
		t.Fatalf("unexpected url %q", src.URL())
	}
}

func newTestSource(t *testing.T, rawURL string, timeout time.Duration) *HTTPSource {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	src, err := NewHTTPSource(rawURL, timeout, nil, logger)
	if err != nil {
		t.Fatalf("NewHTTPSource returned error: %v", err)
	}
	return src
}
