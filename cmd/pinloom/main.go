package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pinloom/pinloom/config"
	"github.com/ZanzyTHEbar/pinloom/pinloom/db"
	"github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness"
	"github.com/ZanzyTHEbar/pinloom/pinloom/generation/providers"
	"github.com/ZanzyTHEbar/pinloom/pinloom/pins"
	"github.com/ZanzyTHEbar/pinloom/pinloom/server"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: search ., .., etc/pinloom, user config dir)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "pinloom exited with error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer conn.Close()

	client := providers.NewClient(cfg.LLM)
	provider := providers.NewOpenAIProvider(client, cfg.LLM.PlannerModel, logger)

	factory := harness.NewFactory(cfg, conn, logger)
	toolset := factory.CreateTools(client, &http.Client{})
	orchestrator, err := factory.CreateOrchestrator(provider, toolset...)
	if err != nil {
		return fmt.Errorf("init orchestrator failed: %w", err)
	}

	srv := server.New(orchestrator, pins.NewStore(conn), server.NewAuthenticator(cfg.Auth), cfg.Server, logger)

	if err := config.Watch(configPath, logger, func(next *config.Config) {
		level := config.ParseLogLevel(next.Log.Level)
		zerolog.SetGlobalLevel(level)
		logger.Info().Str("level", level.String()).Msg("log level applied")
	}); err != nil {
		logger.Warn().Err(err).Msg("config hot reload disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			errCh <- listenErr
			return
		}
		errCh <- nil
	}()

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Strs("tools", orchestrator.Registry().Names()).
		Dur("read_timeout", cfg.Server.ReadTimeout).
		Dur("write_timeout", cfg.Server.WriteTimeout).
		Msg("pinloom listening")

	select {
	case listenErr := <-errCh:
		if listenErr != nil {
			return fmt.Errorf("listen failed: %w", listenErr)
		}
		return nil
	case <-ctx.Done():
		logger.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutdown signal received, draining in-flight requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		logger.Warn().Msg("in-flight requests exceeded shutdown timeout, forcing close")
		_ = httpServer.Close()
	} else {
		logger.Info().Msg("shutdown complete")
	}

	if listenErr := <-errCh; listenErr != nil {
		return fmt.Errorf("listen failed during shutdown: %w", listenErr)
	}
	return nil
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	zerolog.SetGlobalLevel(config.ParseLogLevel(cfg.Level))
	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
