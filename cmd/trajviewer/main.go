// Package main is the entry point for the interactive trajectory viewer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/app"
	"github.com/Faultbox/mjtraj/internal/config"
	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/internal/watch"
	"github.com/Faultbox/mjtraj/internal/workspace"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	// Positional arguments are extra trajectory files or directories.
	cfg.Data.TrajectoryPaths = append(cfg.Data.TrajectoryPaths, config.Args()...)

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== mjtraj viewer ===")
	logger.Debug("configuration loaded", zap.Any("config", cfg))

	if err := run(cfg); err != nil {
		logger.Error("viewer error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("viewer closed normally")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws, err := workspace.Open(ctx, physics.NewTreeEngine(), cfg, ".")
	if err != nil {
		return err
	}

	a, err := app.New(cfg, ws)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Data.Watch {
		w, err := watch.New(watch.DefaultDebounce)
		if err != nil {
			return err
		}
		defer w.Close()
		if err := ws.Watch(w); err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("watcher stopped", zap.Error(err))
			}
		}()
		a.Watch(w.Events())
	}

	return a.Run(ctx)
}
