package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/podium/internal/adapters/http/api"
	"github.com/okian/podium/internal/adapters/repository"
	app "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/magnet"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "podium exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, store, err := newService(cfg, log)
	if err != nil {
		return err
	}
	if err := startService(ctx, svc, store, log); err != nil {
		return err
	}

	go startSystemMetricsUpdater(ctx)

	srv := newHTTPServer(cfg, svc, log)
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("%w: %w", api.ErrServe, err)
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(cfg.ShutdownTimeoutMS)*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return runErr
}

// newService builds the ranking service and its snapshot store from cfg.
// The store is owned by the service once it has started.
func newService(cfg *config.Config, log logger.Logger) (*app.Service, repository.Store, error) {
	store, err := repository.Open(cfg.StoreDriver, cfg.StoreDSN, repository.WithLogger(log.Named("store")))
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithWorkerCount(cfg.SyncWorkerCount),
		app.WithQueueSize(cfg.SyncQueueSize),
		app.WithDefaultSize(cfg.RankingSize),
		app.WithBacklogLimit(cfg.BacklogLimit),
		app.WithMagnetOptions(
			magnet.WithThreshold(cfg.MagnetThreshold),
			magnet.WithStrength(cfg.MagnetStrength),
			magnet.WithInertia(cfg.MagnetInertia),
			magnet.WithMaxAlternatives(cfg.MagnetMaxAlternatives),
			magnet.WithMinGestureConfidence(cfg.MagnetMinGestureConfidence),
			magnet.WithMaxSpeed(cfg.MagnetMaxSpeed),
		),
	)
	return svc, store, nil
}

// startService starts svc, closing store when it does not come up.
func startService(ctx context.Context, svc *app.Service, store repository.Store, log logger.Logger) error {
	if err := svc.Start(ctx); err != nil {
		if cerr := store.Close(); cerr != nil {
			log.Error(ctx, "closing store failed", logger.Error(cerr))
		}
		return fmt.Errorf("starting service: %w", err)
	}
	return nil
}

func newHTTPServer(cfg *config.Config, svc *app.Service, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(svc, svc, api.WithLogger(log.Named("http"))).Register(mux)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater refreshes process gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.Default().RefreshInterval())
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
