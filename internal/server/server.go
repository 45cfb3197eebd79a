package server

import (
	"context"
	"errors"
	"net/http"

	"mailtriage/internal/auth"
	"mailtriage/internal/config"
	"mailtriage/internal/database"
	"mailtriage/internal/handlers"
	"mailtriage/internal/metrics"
	"mailtriage/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Server represents the backend API server
type Server struct {
	echo      *echo.Echo
	db        *sqlx.DB
	config    *config.Config
	logger    zerolog.Logger
	evaluator handlers.Evaluator
}

// New creates a new server instance. db may be nil, the email endpoints then answer 503.
func New(cfg *config.Config, db *sqlx.DB, evaluator handlers.Evaluator, logger zerolog.Logger) *Server {
	return &Server{
		config:    cfg,
		db:        db,
		logger:    logger,
		evaluator: evaluator,
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(RequestID())
	s.echo.Use(RequestLogger(s.logger))
	s.echo.Use(Metrics("api"))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	// Hide Echo banner
	s.echo.HideBanner = true
	s.echo.HidePort = true

	// Setup routes
	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	if s.config.EnableSwagger {
		s.echo.GET("/swagger/*", echoSwagger.WrapHandler)
	}
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/", handlers.RootHandler(s.config.AppName, s.config.Version))
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.db))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/app_status", handlers.AppStatusHandler(s.config.AppName, s.config.Version))

	if s.db == nil {
		v1.Any("/parser/*", databaseUnavailable)
		v1.Any("/rules/*", databaseUnavailable)
		return
	}

	api := handlers.NewEmailAPI(database.NewStore(s.db), s.evaluator, s.config.MaxUploadMB, s.logger)
	requireToken := auth.Middleware(auth.NewManager(s.config.APIToken))

	v1.POST("/rules/generate_from_file", api.GenerateFromFile, requireToken)
	v1.POST("/parser/parse_message", api.ParseMessage, requireToken)
	v1.GET("/parser/get", api.Collections)
	v1.GET("/parser/emails", api.ListParsedEmails)
	v1.DELETE("/parser/emails/:id", api.DeleteParsedEmail, requireToken)
}

func databaseUnavailable(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Detail: "Database connection not initialized"})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server and blocks until it stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Server shutting down")
	return s.echo.Shutdown(ctx)
}
