package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skobkin/conntop-web/internal/config"
)

func testConfig(sourceURL string) config.Config {
	return config.Config{
		ListenAddr:     "127.0.0.1:0",
		SourceURL:      sourceURL,
		PollInterval:   10 * time.Millisecond,
		FetchTimeout:   time.Second,
		AllowedOrigins: []string{"*"},
		SysfsRoot:      "/nonexistent",
		WS: config.WebsocketConfig{
			MaxClients:   4,
			WriteTimeout: time.Second,
			ReadTimeout:  time.Second,
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewControllerRejectsBadSource(t *testing.T) {
	t.Parallel()

	if _, err := NewController(testConfig("ftp://backend"), discardLogger()); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}

	cfg := testConfig("http://localhost:8080")
	cfg.PollInterval = 0
	if _, err := NewController(cfg, discardLogger()); err == nil {
		t.Fatalf("expected error for zero poll interval")
	}
}

func TestNewControllerPollsBackend(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"connections":[{"inode":7,"bytes_downloaded":5}],"processes":[{"pid":3,"command":"nc","inodes":[7]}]}`)
	}))
	t.Cleanup(backend.Close)

	controller, err := NewController(testConfig(backend.URL), discardLogger())
	if err != nil {
		t.Fatalf("NewController error: %v", err)
	}
	if err := controller.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := controller.FindProcess(7); got != "nc" {
		t.Fatalf("expected process label nc, got %q", got)
	}
}

func TestDiscoverInterfaces(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://localhost:8080")
	if got := DiscoverInterfaces(cfg, discardLogger()); got != nil {
		t.Fatalf("expected nil when discovery disabled, got %+v", got)
	}

	cfg.EnableInterfaces = true
	if got := DiscoverInterfaces(cfg, discardLogger()); got != nil {
		t.Fatalf("expected nil for missing sysfs root, got %+v", got)
	}

	root := t.TempDir()
	ifaceDir := filepath.Join(root, "class", "net", "lo")
	if err := os.MkdirAll(ifaceDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ifaceDir, "operstate"), []byte("unknown\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.SysfsRoot = root

	got := DiscoverInterfaces(cfg, discardLogger())
	if len(got) != 1 || got[0].Name != "lo" || !got[0].Virtual {
		t.Fatalf("unexpected interfaces %+v", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"connections":[],"processes":[]}`)
	}))
	t.Cleanup(backend.Close)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, discardLogger(), testConfig(backend.URL))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}
