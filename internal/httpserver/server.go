package httpserver

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ovhfleet/acquire/internal/config"
)

// Server holds the HTTP server's router and cross-cutting dependencies.
// Domain handlers (accounts, queue, monitor, notify) are mounted onto
// Router by the caller once the Engine (spec.md §9) has been constructed —
// Server itself owns no domain state.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	cfg       *config.Config
	startedAt time.Time
}

// NewServer builds the router with the ambient middleware stack and the
// unauthenticated health/metrics endpoints. Callers mount domain routes
// under APIRouter (a sub-router mounted at "/" on Router; all domain
// handlers sit behind APIKeyAuth and AccountScope).
func NewServer(cfg *config.Config, logger *slog.Logger, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		cfg:       cfg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID", "X-OVH-Account"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// APIRouter returns the sub-router that domain handlers mount onto. It
// carries the shared-secret auth and account-scoping middleware (spec.md §6);
// every route registered on it inherits both.
func (s *Server) APIRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(APIKeyAuth(s.cfg.APISecretKey, s.cfg.EnableAPIKeyAuth))
	r.Use(AccountScope)
	s.Router.Mount("/", r)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports whether the persisted-state directories (spec.md §6)
// exist and are accessible. Unlike the teacher's DB/Redis pings, this engine
// has no external datastore to probe — readiness is purely local-disk.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	for _, dir := range []string{s.cfg.DataDir, s.cfg.CacheDir, s.cfg.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			s.Logger.Error("readiness check failed", "dir", dir, "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "required directory not ready: "+dir)
			return
		}
	}
	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Stats is the aggregate-counts envelope returned by GET /stats (spec.md §4.8).
type Stats struct {
	Status                string `json:"status"`
	UptimeSeconds         int64  `json:"uptimeSeconds"`
	AccountCount          int    `json:"accountCount"`
	QueueRunning          int    `json:"queueRunning"`
	QueuePaused           int    `json:"queuePaused"`
	QueueCompleted        int    `json:"queueCompleted"`
	QueueFailed           int    `json:"queueFailed"`
	TotalUnitsPurchased   int    `json:"totalUnitsPurchased"`
	MonitorSubscriptions  int    `json:"monitorSubscriptions"`
	MonitorRunning        bool   `json:"monitorRunning"`
}

// StatsProvider is implemented by the Engine; kept as an interface here so
// this package has no dependency on pkg/queue or pkg/monitor.
type StatsProvider interface {
	Stats() Stats
}

// MountStats registers GET /stats against the given provider.
func (s *Server) MountStats(provider StatsProvider) {
	s.Router.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		stats := provider.Stats()
		stats.Status = "ok"
		stats.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
		Respond(w, http.StatusOK, stats)
	})
}
