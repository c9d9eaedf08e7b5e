// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skobkin/conntop-web/internal/config"
	"github.com/skobkin/conntop-web/internal/dashboard"
	"github.com/skobkin/conntop-web/internal/httpserver"
	"github.com/skobkin/conntop-web/internal/netdev"
	"github.com/skobkin/conntop-web/internal/source"
	"github.com/skobkin/conntop-web/internal/tui"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the web dashboard lifecycle.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")

	controller, err := NewController(cfg, baseLogger)
	if err != nil {
		return err
	}
	interfaces := DiscoverInterfaces(cfg, baseLogger)

	pollCtx, pollCancel := context.WithCancel(ctx)
	defer pollCancel()

	poller := controller.StartPolling(pollCtx)
	defer poller.Stop()

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), controller, interfaces)

	appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr, "source", cfg.SourceURL)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		pollCancel()
		<-poller.Done()
		return err
	case <-poller.Done():
		if err := poller.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("poller stopped: %w", err)
		}
		return shutdown(appLogger, srv, errCh, ctx.Err())
	case <-ctx.Done():
		pollCancel()
		<-poller.Done()
		return shutdown(appLogger, srv, errCh, ctx.Err())
	}
}

func shutdown(logger *slog.Logger, srv *httpserver.Server, errCh <-chan error, reason error) error {
	logger.Info("shutdown initiated", "reason", reason)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http shutdown: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// RunTUI polls the backend and renders the terminal dashboard until the user quits.
func RunTUI(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	controller, err := NewController(cfg, baseLogger)
	if err != nil {
		return err
	}
	interfaces := DiscoverInterfaces(cfg, baseLogger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	poller := controller.StartPolling(ctx)
	defer poller.Stop()

	return tui.New(controller, interfaces, cfg.SourceURL, baseLogger.With("component", "tui")).Run(ctx)
}

// NewController builds the HTTP snapshot source and the polling controller from configuration.
func NewController(cfg config.Config, baseLogger *slog.Logger) (*dashboard.Controller, error) {
	src, err := source.NewHTTPSource(cfg.SourceURL, cfg.FetchTimeout, nil, baseLogger.With("component", "source"))
	if err != nil {
		return nil, fmt.Errorf("init source: %w", err)
	}

	controller, err := dashboard.NewController(src, cfg.PollInterval, baseLogger.With("component", "dashboard"))
	if err != nil {
		return nil, fmt.Errorf("init dashboard: %w", err)
	}
	return controller, nil
}

// DiscoverInterfaces lists local network interfaces when enabled. Failures are logged, not fatal.
func DiscoverInterfaces(cfg config.Config, baseLogger *slog.Logger) []netdev.Info {
	if !cfg.EnableInterfaces {
		return nil
	}
	logger := baseLogger.With("component", "netdev")
	interfaces, err := netdev.Discover(cfg.SysfsRoot, logger)
	if err != nil {
		logger.Warn("interface discovery failed", "err", err)
		return nil
	}
	logger.Info("discovered interfaces", "count", len(interfaces))
	return interfaces
}
