package console

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"mailtriage/internal/backend"
	"mailtriage/internal/metrics"
	"mailtriage/internal/models"

	"github.com/rs/zerolog"
)

// Notice texts of the upload and delete workflow
const (
	NoFileText        = "Please select a file to upload."
	UploadBusyText    = "An upload is already in progress."
	UploadingText     = "Uploading and analyzing..."
	UploadSuccessText = "File uploaded and analyzed successfully!"
	SoftFailurePrefix = "Analysis failed, but the file was still saved. Error: "
	UploadNetworkText = "Network error or server unreachable."
	DeleteSuccessText = "Email deleted successfully!"
	DeleteErrorPrefix = "Error deleting email: "
	DeleteNetworkText = "Network error during deletion."
	uploadErrorPrefix = "Error: "
)

var (
	// ErrNoFile is returned when an upload is submitted without a file
	ErrNoFile = errors.New("no file selected")
	// ErrUploadInProgress is returned when an upload is submitted while another one runs
	ErrUploadInProgress = errors.New("upload already in progress")
)

// API is the part of the backend the coordinator mutates
type API interface {
	UploadEmail(ctx context.Context, filename string, content io.Reader) (*models.UploadResult, error)
	DeleteParsedEmail(ctx context.Context, id int) error
}

// Reloader refreshes the tables after a confirmed mutation
type Reloader interface {
	Reload(ctx context.Context) error
}

// Upload is a file chosen for upload
type Upload struct {
	Filename string
	Content  io.Reader
}

// Coordinator issues uploads and deletes and reloads the tables once the backend confirms
type Coordinator struct {
	api       API
	reloader  Reloader
	view      *View
	logger    zerolog.Logger
	uploading atomic.Bool
}

// NewCoordinator wires the coordinator to the backend and the loader
func NewCoordinator(api API, reloader Reloader, view *View, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		api:      api,
		reloader: reloader,
		view:     view,
		logger:   logger,
	}
}

// SubmitUpload sends the file for parsing and evaluation. A soft failure (stored, but not
// evaluated) is reported as a warning and is not an error.
func (c *Coordinator) SubmitUpload(ctx context.Context, u *Upload) error {
	if u == nil || u.Filename == "" || u.Content == nil {
		c.view.SetNotice(LevelWarning, NoFileText)
		metrics.RecordMutation("upload", "rejected")
		return ErrNoFile
	}
	if !c.uploading.CompareAndSwap(false, true) {
		c.view.SetNotice(LevelWarning, UploadBusyText)
		metrics.RecordMutation("upload", "rejected")
		return ErrUploadInProgress
	}
	defer c.uploading.Store(false)

	logger := c.logger.With().Str("filename", u.Filename).Logger()
	c.view.SetNotice(LevelInfo, UploadingText)

	result, err := c.api.UploadEmail(ctx, u.Filename, u.Content)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			logger.Error().Err(err).Int("status", apiErr.StatusCode).Msg("Upload failed")
			c.view.SetNotice(LevelDanger, uploadErrorPrefix+apiErr.Message())
		} else {
			logger.Error().Err(err).Msg("Network error during upload")
			c.view.SetNotice(LevelDanger, UploadNetworkText)
		}
		metrics.RecordMutation("upload", "error")
		return err
	}

	if result.Failed() {
		logger.Warn().Str("details", result.FailureDetails()).Msg("Upload stored but analysis failed")
		c.view.SetNotice(LevelWarning, SoftFailurePrefix+result.FailureDetails())
		metrics.RecordMutation("upload", "soft_failure")
	} else {
		logger.Info().Str("verdict", result.Verdict).Msg("Upload analyzed")
		c.view.SetNotice(LevelSuccess, UploadSuccessText)
		metrics.RecordMutation("upload", "ok")
	}

	c.reload(ctx)
	return nil
}

// RequestDelete records id as pending and opens the confirmation prompt. Nothing is sent.
func (c *Coordinator) RequestDelete(id int) {
	c.view.openConfirmation(id)
}

// CancelDelete closes the prompt and forgets the pending id
func (c *Coordinator) CancelDelete() {
	c.view.closeConfirmation()
}

// ConfirmDelete deletes the pending parsed email. The backend removes the raw counterpart,
// so a single request is sent. The prompt is closed whatever the outcome.
func (c *Coordinator) ConfirmDelete(ctx context.Context) error {
	id, ok := c.view.takePending()
	if !ok {
		return nil
	}
	logger := c.logger.With().Int("id", id).Logger()

	if err := c.api.DeleteParsedEmail(ctx, id); err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			logger.Error().Err(err).Int("status", apiErr.StatusCode).Msg("Delete failed")
			c.view.SetNotice(LevelDanger, DeleteErrorPrefix+apiErr.Message())
		} else {
			logger.Error().Err(err).Msg("Network error during deletion")
			c.view.SetNotice(LevelDanger, DeleteNetworkText)
		}
		metrics.RecordMutation("delete", "error")
		return err
	}

	logger.Info().Msg("Email deleted")
	c.view.SetNotice(LevelSuccess, DeleteSuccessText)
	metrics.RecordMutation("delete", "ok")
	c.reload(ctx)
	return nil
}

// reload refreshes the tables; a failure has already replaced the notice
func (c *Coordinator) reload(ctx context.Context) {
	if err := c.reloader.Reload(ctx); err != nil && !errors.Is(err, ErrStaleReload) {
		c.logger.Warn().Err(err).Msg("Reload after mutation failed")
	}
}
