package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aldrinstellus/ivrdemo/internal/app"
	"github.com/aldrinstellus/ivrdemo/internal/config"
	"github.com/aldrinstellus/ivrdemo/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.Init(logging.DefaultConfig())
		bootLog.Fatal().Err(err).Msg("config error")
	}
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	mainLog := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("startup failed")
	}
	mainLog.Info().
		Str("voice", built.Voice.Detail).
		Str("brain", cfg.BrainMode).
		Bool("remoteBackend", cfg.BackendURL != "").
		Msg("ivr demo configured")

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mainLog.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		built.Calls.StartJanitor(gctx, 5*time.Second)
		<-gctx.Done()
		mainLog.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			mainLog.Warn().Err(err).Msg("graceful shutdown failed")
			_ = httpServer.Close()
		}
		return nil
	})

	runErr := g.Wait()
	built.Calls.CloseAll()
	if err := built.Cleanup(); err != nil {
		mainLog.Warn().Err(err).Msg("cleanup failed")
	}
	if runErr != nil {
		mainLog.Error().Err(runErr).Msg("server stopped with error")
		os.Exit(1)
	}
	mainLog.Info().Msg("shutdown complete")
}
