package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/skobkin/conntop-web/internal/app"
	"github.com/skobkin/conntop-web/internal/config"
	"github.com/skobkin/conntop-web/internal/dashboard"
	"github.com/skobkin/conntop-web/internal/netdev"
	"github.com/skobkin/conntop-web/internal/version"
)

var (
	buildVersion = "dev"
	buildCommit  = ""
	buildTime    = ""
)

type options struct {
	sourceURL  string
	timeout    time.Duration
	jsonOutput bool
	interfaces bool
	sysfsRoot  string
	version    bool
}

func parseFlags(cfg config.Config) options {
	var opts options
	flag.StringVar(&opts.sourceURL, "source", cfg.SourceURL, "Backend URL serving connection snapshots")
	flag.DurationVar(&opts.timeout, "timeout", cfg.FetchTimeout, "Fetch timeout")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Emit the display model as JSON")
	flag.BoolVar(&opts.interfaces, "interfaces", false, "List local network interfaces instead of polling")
	flag.StringVar(&opts.sysfsRoot, "sysfs", cfg.SysfsRoot, "Path to sysfs root")
	flag.BoolVar(&opts.version, "version", false, "Print build information and exit")
	flag.Parse()
	return opts
}

func main() {
	version.Set(version.Info{
		Version:   buildVersion,
		Commit:    buildCommit,
		BuildTime: buildTime,
	})

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	opts := parseFlags(cfg)
	if opts.version {
		fmt.Println("conntop-snapshot", version.Current())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if opts.interfaces {
		infos, err := netdev.Discover(opts.sysfsRoot, logger.With("component", "netdev"))
		if err != nil {
			logger.Error("interface discovery failed", "err", err)
			os.Exit(1)
		}
		if err := printInterfaces(infos, opts.jsonOutput); err != nil {
			logger.Error("print interfaces", "err", err)
			os.Exit(1)
		}
		return
	}

	cfg.SourceURL = opts.sourceURL
	cfg.FetchTimeout = opts.timeout

	controller, err := app.NewController(cfg, logger)
	if err != nil {
		logger.Error("init failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := controller.Refresh(ctx); err != nil {
		logger.Error("fetch failed", "source", cfg.SourceURL, "err", err)
		os.Exit(1)
	}

	model := controller.Results()
	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(model); err != nil {
			logger.Error("encode output", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := printRows(controller.RowsFor(model)); err != nil {
		logger.Error("print rows", "err", err)
		os.Exit(1)
	}
}

func printRows(rows []dashboard.Row) error {
	if len(rows) == 0 {
		fmt.Println("No connections reported")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tDESTINATION\tPROTO\tPROCESS\tDOWN\tUP\tTOTAL")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Source, row.Destination, row.Transport, row.Process, row.Downloaded, row.Uploaded, row.Total)
	}
	return w.Flush()
}

func printInterfaces(infos []netdev.Info, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	if len(infos) == 0 {
		fmt.Println("No interfaces detected")
		return nil
	}
	fmt.Println("Discovered interfaces:")
	for _, info := range infos {
		fmt.Printf("- %s (state: %s, MAC: %s, driver: %s, PCI: %s, adapter: %s %s)\n",
			info.Name, info.OperState, info.MAC, info.Driver, info.PCI, info.Vendor, info.Model)
	}
	return nil
}
