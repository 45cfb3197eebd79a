package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailtriage/internal/analysis"
	"mailtriage/internal/config"
	"mailtriage/internal/database"
	"mailtriage/internal/server"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger("api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Warn().Err(err).Msg("Database connection failed")
		logger.Info().Msg("Starting server without database connection")
	} else {
		logger.Info().Str("driver", database.DetectDriver(cfg.DatabaseURL)).Msg("Database connection established successfully")
		defer db.Close()

		if err := database.NewStore(db).Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Database migration failed")
		}
	}

	evaluator := analysis.NewEvaluator(cfg, logger)
	if _, err := evaluator.SystemPrompt(); err != nil {
		logger.Warn().Err(err).Msg("Labeling guide unavailable, analysis will fail until it is present")
	}

	// Create and initialize server
	srv := server.New(cfg, db, evaluator, logger)
	srv.Initialize()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(srv.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("Server stopped")
}
