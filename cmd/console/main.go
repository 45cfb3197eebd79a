package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailtriage/internal/backend"
	"mailtriage/internal/config"
	"mailtriage/internal/console"
	"mailtriage/internal/server"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger("console")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := backend.NewClient(cfg.BackendURL, &http.Client{
		Timeout: time.Duration(cfg.AnalysisTimeout)*time.Second + 30*time.Second,
	}).WithToken(cfg.APIToken)

	view := console.NewView()
	loader := console.NewLoader(client, view, cfg.Location(), logger)
	coordinator := console.NewCoordinator(client, loader, view, logger)
	web := console.NewWeb(cfg.AppName+" Console", view, loader, coordinator, logger,
		server.RequestID(),
		server.RequestLogger(logger),
		server.Metrics("console"),
	)

	logger.Info().Str("backend", cfg.BackendURL).Msg("Console configured")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return web.Start(":" + cfg.ConsolePort)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return web.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("Console stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("Console stopped")
}
