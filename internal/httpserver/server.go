package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/skobkin/conntop-web/internal/api"
	"github.com/skobkin/conntop-web/internal/config"
	"github.com/skobkin/conntop-web/internal/dashboard"
	"github.com/skobkin/conntop-web/internal/netdev"
	"github.com/skobkin/conntop-web/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second
	wsSendQueueSize   = 16
)

// Server wraps the HTTP surface area of the application.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	dashboard  *dashboard.Controller
	interfaces []netdev.Info

	maxWSClients int64
	wsActive     atomic.Int64
	wsTotal      atomic.Uint64
	wsRejected   atomic.Uint64
	wsSent       atomic.Uint64
	wsDropped    atomic.Uint64
	wsConnIDs    atomic.Uint64
}

// New assembles a Server with its handlers.
func New(cfg config.Config, logger *slog.Logger, controller *dashboard.Controller, interfaces []netdev.Info) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		dashboard:  controller,
		interfaces: interfaces,
	}

	if cfg.WS.MaxClients > 0 {
		s.maxWSClients = int64(cfg.WS.MaxClients)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.withRequestLogging)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/version", s.handleVersion)
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))

		r.Get("/", s.handleAPIDocs)
		r.Get("/healthz", s.handleHealthz)
		r.Get("/readyz", s.handleReadyz)
		r.Get("/version", s.handleVersion)
		r.Get("/results", s.handleResults)
		r.Get("/table", s.handleTable)
		r.Get("/stats", s.handleStats)
		r.Get("/processes/{inode}", s.handleFindProcess)
		r.Get("/format", s.handleFormatBytes)
		r.Get("/interfaces", s.handleInterfaces)
	})

	if s.cfg.EnablePrometheus {
		s.registerPrometheus(r)
	}
	if s.cfg.EnablePprof {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Handle("/*", s.staticHandler())

	return r
}

// Start begins serving HTTP until shutdown is requested.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	info := s.readiness()

	statusCode := http.StatusOK
	if info.Status != "ok" && info.Status != "stale" {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, r, statusCode, info)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, version.Current())
}

func (s *Server) handleAPIDocs(w http.ResponseWriter, r *http.Request) {
	logger := s.loggerFromContext(r.Context())
	data, err := embeddedAssets.ReadFile("assets/api.html")
	if err != nil {
		logger.Error("failed to read api docs asset", "err", err)
		http.Error(w, "missing api docs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		logger.Warn("failed to write api docs response", "err", err)
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.dashboard == nil {
		http.Error(w, "dashboard unavailable", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.dashboard.Results())
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	if s.dashboard == nil {
		http.Error(w, "dashboard unavailable", http.StatusServiceUnavailable)
		return
	}
	model := s.dashboard.Results()
	s.writeJSON(w, r, http.StatusOK, api.TableResponse{
		FetchedAt: model.FetchedAt,
		Rows:      s.dashboard.RowsFor(model),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.dashboard == nil {
		http.Error(w, "dashboard unavailable", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.dashboard.Stats())
}

func (s *Server) handleFindProcess(w http.ResponseWriter, r *http.Request) {
	if s.dashboard == nil {
		http.Error(w, "dashboard unavailable", http.StatusServiceUnavailable)
		return
	}

	inode, err := strconv.ParseUint(chi.URLParam(r, "inode"), 10, 64)
	if err != nil {
		http.Error(w, "invalid inode", http.StatusBadRequest)
		return
	}

	label := s.dashboard.FindProcess(inode)
	if label == "" {
		http.Error(w, "no process owns this inode", http.StatusNotFound)
		return
	}

	s.writeJSON(w, r, http.StatusOK, api.ProcessResponse{Inode: inode, Process: label})
}

func (s *Server) handleFormatBytes(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("bytes")
	if raw == "" {
		http.Error(w, "missing bytes parameter", http.StatusBadRequest)
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		http.Error(w, "invalid bytes parameter", http.StatusBadRequest)
		return
	}

	s.writeJSON(w, r, http.StatusOK, api.FormatResponse{Bytes: value, Formatted: dashboard.FormatBytes(value)})
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.EnableInterfaces {
		http.Error(w, "interface discovery disabled", http.StatusNotFound)
		return
	}
	interfaces := s.interfaces
	if interfaces == nil {
		interfaces = []netdev.Info{}
	}
	s.writeJSON(w, r, http.StatusOK, interfaces)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.loggerFromContext(r.Context()).Error("failed to encode response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.loggerFromContext(r.Context()).Warn("failed to write response", "err", err)
	}
}

func (s *Server) readiness() readyResponse {
	if s.dashboard == nil {
		return readyResponse{Status: "degraded", Reason: "dashboard_not_configured"}
	}

	stats := s.dashboard.Stats()
	resp := readyResponse{
		Source:              s.cfg.SourceURL,
		Polls:               stats.Polls,
		ConsecutiveFailures: stats.ConsecutiveFailures,
	}
	if !stats.LastSuccess.IsZero() {
		last := stats.LastSuccess
		resp.LastSuccess = &last
	}

	switch {
	case s.dashboard.Ready() && stats.ConsecutiveFailures == 0:
		resp.Status = "ok"
	case s.dashboard.Ready():
		resp.Status = "stale"
		resp.Reason = "backend_unreachable"
	case stats.Failures > 0:
		resp.Status = "degraded"
		resp.Reason = "backend_unreachable"
	default:
		resp.Status = "initializing"
		resp.Reason = "waiting_for_first_poll"
	}
	return resp
}

type readyResponse struct {
	Status              string     `json:"status"`
	Source              string     `json:"source,omitempty"`
	Polls               uint64     `json:"polls"`
	ConsecutiveFailures uint64     `json:"consecutive_failures"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	Reason              string     `json:"reason,omitempty"`
}
