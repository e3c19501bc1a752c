package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"vigil/internal/api"
	"vigil/internal/backend"
	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/root"
)

const shutdownTimeout = 10 * time.Second

// Run assembles the daemon and blocks until ctx is cancelled or the
// HTTP listener fails. On shutdown every watched root is torn down
// before Run returns.
func Run(ctx context.Context, cfg Config, logger *logging.Logger) error {
	if logger == nil {
		logger = LoggerFromConfig(cfg)
	}

	LogVersionInfo(logger)
	LogStartupFlags(logger, cfg)

	registry := metrics.Default

	busCtx, cancelBus := context.WithCancel(ctx)
	defer cancelBus()
	bus := event.NewBus[event.RootEvent](busCtx, event.BusOptions{})

	notifier, err := backend.NewNotifier(backend.Options{
		Logger: logger,
		ErrorHandler: func(err error) {
			bus.Publish(event.NewRootError("", err.Error()))
		},
	})
	if err != nil {
		return fmt.Errorf("start watch backend: %w", err)
	}
	defer notifier.Close()

	roots := root.NewRegistry(root.Options{
		Backend:  notifier,
		Bus:      bus,
		Logger:   logger,
		Metrics:  registry,
		MaxRoots: cfg.MaxRoots,
	})
	sessions := root.NewSessions(roots)

	reaperCtx, cancelReaper := context.WithCancel(ctx)
	defer cancelReaper()
	if cfg.ReaperDisabled {
		logger.Warn("idle reaper disabled", nil)
	} else {
		reaper := root.NewReaper(roots, cfg.SweepInterval, logger)
		go reaper.Run(reaperCtx)
	}

	mux := api.NewMux(api.Options{
		Registry:       roots,
		Sessions:       sessions,
		Bus:            bus,
		Logger:         logger,
		Metrics:        registry,
		AuthToken:      cfg.AuthToken,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	logger.Info("vigild listening", map[string]string{
		"addr":           cfg.ListenAddr,
		"sweep_interval": cfg.SweepInterval.String(),
		"max_roots":      strconv.Itoa(cfg.MaxRoots),
	})

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server stopped: %w", err)
			logger.Error("http server stopped", map[string]string{
				"error": err.Error(),
			})
		}
	}

	cancelReaper()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", map[string]string{
			"error": err.Error(),
		})
	}

	roots.Close()

	logger.Info("vigild stopped", nil)
	return runErr
}
