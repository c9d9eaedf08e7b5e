// Package tui renders the dashboard model in a terminal.
package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/skobkin/conntop-web/internal/dashboard"
	"github.com/skobkin/conntop-web/internal/netdev"
)

const historySize = 120

var tableHeader = []string{"Source", "Destination", "Proto", "Process", "Down", "Up", "Total"}

// App draws connections, poll status and interfaces until the user quits.
type App struct {
	controller *dashboard.Controller
	interfaces []netdev.Info
	sourceURL  string
	logger     *slog.Logger
}

// New constructs a terminal App.
func New(controller *dashboard.Controller, interfaces []netdev.Info, sourceURL string, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &App{
		controller: controller,
		interfaces: interfaces,
		sourceURL:  sourceURL,
		logger:     logger,
	}
}

// Run takes over the terminal and blocks until q, Ctrl+C or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	if a.controller == nil {
		return fmt.Errorf("controller is required")
	}
	if err := ui.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer ui.Close()

	table := widgets.NewTable()
	table.Title = " Connections "
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.RowSeparator = false
	table.BorderStyle.Fg = ui.ColorGreen
	table.RowStyles[0] = ui.NewStyle(ui.ColorYellow, ui.ColorClear, ui.ModifierBold)

	status := widgets.NewParagraph()
	status.Title = " Status "
	status.BorderStyle.Fg = ui.ColorCyan

	ifaceList := widgets.NewList()
	ifaceList.Title = " Interfaces "
	ifaceList.Rows = interfaceRows(a.interfaces)
	ifaceList.TextStyle = ui.NewStyle(ui.ColorWhite)
	ifaceList.BorderStyle.Fg = ui.ColorYellow

	spark := widgets.NewSparkline()
	spark.LineColor = ui.ColorGreen
	sparkGroup := widgets.NewSparklineGroup(spark)
	sparkGroup.Title = " Tracked traffic "
	sparkGroup.BorderStyle.Fg = ui.ColorGreen

	grid := ui.NewGrid()
	termWidth, termHeight := ui.TerminalDimensions()
	grid.SetRect(0, 0, termWidth, termHeight)
	grid.Set(
		ui.NewRow(0.7, ui.NewCol(1.0, table)),
		ui.NewRow(0.3,
			ui.NewCol(0.4, status),
			ui.NewCol(0.3, ifaceList),
			ui.NewCol(0.3, sparkGroup),
		),
	)

	var (
		model   = a.controller.Results()
		history []float64
	)

	draw := func() {
		table.Rows = tableRows(a.controller.RowsFor(model))
		status.Text = statusText(a.sourceURL, a.controller.Stats(), model, time.Now())
		spark.Data = history
		if len(history) > 0 {
			sparkGroup.Title = " Tracked traffic: " + dashboard.FormatBytes(history[len(history)-1]) + " "
		}
		ui.Render(grid)
	}
	draw()

	updates, unsubscribe := a.controller.Subscribe()
	defer unsubscribe()

	uiEvents := ui.PollEvents()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-uiEvents:
			if e.Type == ui.KeyboardEvent && (e.ID == "q" || e.ID == "<C-c>") {
				return nil
			}
			if e.Type == ui.ResizeEvent {
				payload := e.Payload.(ui.Resize)
				grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				draw()
			}
		case next, ok := <-updates:
			if !ok {
				return nil
			}
			model = next
			history = appendHistory(history, float64(totalBytes(model)), historySize)
			a.logger.Debug("model rendered", "connections", len(model.Connections))
			draw()
		case <-ticker.C:
			draw()
		}
	}
}

func tableRows(rows []dashboard.Row) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, tableHeader)
	for _, row := range rows {
		process := row.Process
		if process == "" {
			process = "-"
		}
		out = append(out, []string{
			row.Source,
			row.Destination,
			row.Transport,
			process,
			row.Downloaded,
			row.Uploaded,
			row.Total,
		})
	}
	return out
}

func statusText(sourceURL string, stats dashboard.Stats, model dashboard.Model, now time.Time) string {
	var b strings.Builder
	b.WriteString("Source: " + sourceURL + "\n")
	fmt.Fprintf(&b, "%d connections, %d processes\n", len(model.Connections), len(model.Processes))

	if model.FetchedAt.IsZero() {
		b.WriteString("Waiting for first poll\n")
	} else {
		age := now.Sub(model.FetchedAt).Truncate(time.Second)
		if age < 0 {
			age = 0
		}
		b.WriteString("Updated " + age.String() + " ago\n")
	}

	fmt.Fprintf(&b, "Polls: %d, failures: %d", stats.Polls, stats.Failures)
	if stats.ConsecutiveFailures > 0 {
		b.WriteString("\n[Backend unreachable (" + strconv.FormatUint(stats.ConsecutiveFailures, 10) + "x): " + stats.LastError + "](fg:red)")
	}
	return b.String()
}

func interfaceRows(interfaces []netdev.Info) []string {
	if len(interfaces) == 0 {
		return []string{"(none discovered)"}
	}
	rows := make([]string, 0, len(interfaces))
	for _, info := range interfaces {
		line := info.Name + " " + info.OperState
		if info.SpeedMbps != nil {
			line += " " + strconv.Itoa(*info.SpeedMbps) + "Mb/s"
		}
		if label := strings.TrimSpace(info.Vendor + " " + info.Model); label != "" {
			line += " " + label
		} else if info.Virtual {
			line += " virtual"
		}
		rows = append(rows, line)
	}
	return rows
}

func totalBytes(model dashboard.Model) uint64 {
	var total uint64
	for _, conn := range model.Connections {
		total += conn.TotalBytes()
	}
	return total
}

func appendHistory(history []float64, value float64, size int) []float64 {
	if size > 0 && len(history) >= size {
		history = history[len(history)-size+1:]
	}
	return append(history, value)
}
