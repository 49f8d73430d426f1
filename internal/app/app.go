// Package app wires the acquisition engine's components (C1-C8) into a
// single running process: it owns construction order, not behavior.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ovhfleet/acquire/internal/availability"
	"github.com/ovhfleet/acquire/internal/cart"
	"github.com/ovhfleet/acquire/internal/config"
	"github.com/ovhfleet/acquire/internal/httpserver"
	"github.com/ovhfleet/acquire/internal/notify"
	"github.com/ovhfleet/acquire/internal/ovhclient"
	"github.com/ovhfleet/acquire/internal/store"
	"github.com/ovhfleet/acquire/internal/telemetry"
	"github.com/ovhfleet/acquire/pkg/account"
	"github.com/ovhfleet/acquire/pkg/monitor"
	"github.com/ovhfleet/acquire/pkg/queue"
)

// Engine holds every constructed component (C1-C7) and the HTTP server
// (C8) they are mounted on.
type Engine struct {
	logger *slog.Logger
	cfg    *config.Config

	accounts *account.Store
	queue    *queue.Engine
	monitor  *monitor.Engine
	notifier *notify.Notifier
	srv      *httpserver.Server
}

// Stats implements httpserver.StatsProvider by merging the queue and
// monitor engines' own reports with the account count.
func (e *Engine) Stats() httpserver.Stats {
	qs := e.queue.Stats()
	ms := e.monitor.Status()
	accounts, err := e.accounts.List()
	accountCount := 0
	if err == nil {
		accountCount = len(accounts)
	}
	return httpserver.Stats{
		AccountCount:         accountCount,
		QueueRunning:         qs.Running,
		QueuePaused:          qs.Paused,
		QueueCompleted:       qs.Completed,
		QueueFailed:          qs.Failed,
		TotalUnitsPurchased:  qs.TotalUnitsPurchased,
		MonitorSubscriptions: ms.SubscriptionCount,
		MonitorRunning:       ms.Running,
	}
}

// New constructs every component and mounts every HTTP route. It starts no
// background loop; callers invoke Run for that.
func New(cfg *config.Config) (*Engine, error) {
	logger := telemetry.NewLogger(cfg.Debug)

	for _, dir := range []string{cfg.DataDir, cfg.CacheDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	st, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening data store: %w", err)
	}

	accountStore := account.NewStore(st)
	pool := ovhclient.NewPool(accountStore)
	prober := availability.NewProber(pool)
	driver := cart.NewDriver(pool)
	notifier := notify.New(cfg.TelegramBotToken, cfg.TelegramChatID, logger)

	queueStore := queue.NewStore(st)
	queueEngine := queue.NewEngine(queueStore, accountStore, prober, driver, notifier, logger, cfg.QueueTickInterval, cfg.QueueWorkerPoolSize)

	monitorStore := monitor.NewStore(st)
	monitorEngine := monitor.NewEngine(monitorStore, accountStore, prober, notifier, logger, cfg.MonitorCheckInterval)

	metricsReg := prometheus.NewRegistry()
	for _, c := range telemetry.All() {
		metricsReg.MustRegister(c)
	}

	srv := httpserver.NewServer(cfg, logger, metricsReg)
	api := srv.APIRouter()

	account.NewHandler(accountStore).Mount(api)
	notify.NewHandler(notifier).Mount(api)
	queue.NewHandler(queueStore, queueEngine).Mount(api)
	monitor.NewHandler(monitorStore, monitorEngine).Mount(api)

	e := &Engine{
		logger:   logger,
		cfg:      cfg,
		accounts: accountStore,
		queue:    queueEngine,
		monitor:  monitorEngine,
		notifier: notifier,
		srv:      srv,
	}
	srv.MountStats(e)

	return e, nil
}

// Run starts the HTTP server and both background loops (queue scheduler,
// availability monitor), blocking until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	e.monitor.Start(ctx)
	defer e.monitor.Stop()

	go e.queue.Run(ctx)
	defer e.queue.Stop()

	httpSrv := &http.Server{
		Addr:         e.cfg.ListenAddr(),
		Handler:      e.srv.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("acquire listening", "addr", e.cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		e.logger.Info("shutting down acquire")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

