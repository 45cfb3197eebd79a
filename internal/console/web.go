package console

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"mailtriage/internal/metrics"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Web serves the console page and receives the user's form posts
type Web struct {
	echo        *echo.Echo
	title       string
	view        *View
	loader      *Loader
	coordinator *Coordinator
	logger      zerolog.Logger
}

// NewWeb builds the console router. mw is applied before the routes, the cmd passes the
// shared request id, logging and metrics middleware.
func NewWeb(title string, view *View, loader *Loader, coordinator *Coordinator, logger zerolog.Logger, mw ...echo.MiddlewareFunc) *Web {
	w := &Web{
		echo:        echo.New(),
		title:       title,
		view:        view,
		loader:      loader,
		coordinator: coordinator,
		logger:      logger,
	}
	w.echo.HideBanner = true
	w.echo.HidePort = true
	w.echo.Use(mw...)
	w.echo.Use(middleware.Recover())

	w.echo.GET("/", w.index)
	w.echo.POST("/upload", w.upload)
	w.echo.POST("/emails/:id/delete", w.requestDelete)
	w.echo.POST("/emails/delete/confirm", w.confirmDelete)
	w.echo.POST("/emails/delete/cancel", w.cancelDelete)
	w.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	w.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	return w
}

// Handler exposes the router
func (w *Web) Handler() http.Handler {
	return w.echo
}

// Start listens on addr until Shutdown
func (w *Web) Start(addr string) error {
	w.logger.Info().Str("addr", addr).Msg("Console starting")
	if err := w.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the console server
func (w *Web) Shutdown(ctx context.Context) error {
	return w.echo.Shutdown(ctx)
}

// index is the page load: reset the notice area, fetch both collections, then render
func (w *Web) index(c echo.Context) error {
	w.view.ClearNotice()
	_ = w.loader.Reload(c.Request().Context()) // failures are shown as a notice
	return w.render(c)
}

func (w *Web) upload(c echo.Context) error {
	var u *Upload

	fh, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		w.logger.Warn().Err(err).Msg("Could not read upload form")
	case fh.Filename != "":
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		u = &Upload{Filename: fh.Filename, Content: f}
	}

	_ = w.coordinator.SubmitUpload(c.Request().Context(), u)
	return w.render(c)
}

func (w *Web) requestDelete(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid email id")
	}
	w.coordinator.RequestDelete(id)
	return w.render(c)
}

func (w *Web) confirmDelete(c echo.Context) error {
	_ = w.coordinator.ConfirmDelete(c.Request().Context())
	return w.render(c)
}

func (w *Web) cancelDelete(c echo.Context) error {
	w.coordinator.CancelDelete()
	return w.render(c)
}

func (w *Web) render(c echo.Context) error {
	var buf bytes.Buffer
	if err := RenderPage(&buf, w.title, w.view.Snapshot()); err != nil {
		w.logger.Error().Err(err).Msg("Failed to render console page")
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
