package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"mailtriage/internal/database"
	"mailtriage/internal/emails"
	"mailtriage/internal/metrics"
	"mailtriage/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const invalidFileTypeDetail = "Invalid file type. Please upload a .eml or .arf file."

// EmailStore is the persistence used by the email endpoints
type EmailStore interface {
	Collections(ctx context.Context) (*models.Collections, error)
	ListParsedEmails(ctx context.Context) ([]models.ParsedEmail, error)
	CreateRawEmail(ctx context.Context, content string) (int, error)
	CreateParsedEmail(ctx context.Context, p *models.ParsedEmail) (int, error)
	DeleteParsedEmail(ctx context.Context, id int) (int64, error)
}

// Evaluator produces the LLM verdict for a parsed message
type Evaluator interface {
	Evaluate(ctx context.Context, msg *emails.Message) (*models.Analysis, error)
}

// EmailAPI serves the ingestion, listing and delete endpoints
type EmailAPI struct {
	store          EmailStore
	evaluator      Evaluator
	logger         zerolog.Logger
	maxUploadBytes int64
	now            func() time.Time
}

// NewEmailAPI wires the email endpoints to their store and evaluator
func NewEmailAPI(store EmailStore, evaluator Evaluator, maxUploadMB int, logger zerolog.Logger) *EmailAPI {
	return &EmailAPI{
		store:          store,
		evaluator:      evaluator,
		logger:         logger,
		maxUploadBytes: int64(maxUploadMB) << 20,
		now:            time.Now,
	}
}

// uploadError is a client error detected while reading the multipart file
type uploadError struct {
	status int
	detail string
}

func (e *uploadError) Error() string { return e.detail }

// readUpload returns the name and content of the multipart "file" field
func (a *EmailAPI) readUpload(c echo.Context) (string, []byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, &uploadError{status: http.StatusUnprocessableEntity, detail: "Field 'file' is required."}
	}
	if !emails.HasAllowedExtension(fh.Filename) {
		return fh.Filename, nil, &uploadError{status: http.StatusBadRequest, detail: invalidFileTypeDetail}
	}

	f, err := fh.Open()
	if err != nil {
		return fh.Filename, nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := io.Reader(f)
	if a.maxUploadBytes > 0 {
		reader = io.LimitReader(f, a.maxUploadBytes+1)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return fh.Filename, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if a.maxUploadBytes > 0 && int64(len(content)) > a.maxUploadBytes {
		return fh.Filename, nil, &uploadError{
			status: http.StatusRequestEntityTooLarge,
			detail: fmt.Sprintf("File exceeds the %d MB upload limit.", a.maxUploadBytes>>20),
		}
	}
	return fh.Filename, content, nil
}

// GenerateFromFile parses an uploaded email, evaluates it and stores both records
// @Summary Parse an EML file and generate detection rules
// @Description Upload an email file (.eml or .arf) to parse it and then use an LLM to generate detection rules based on its content.
// @Tags Rules
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "The .eml or .arf file to be analyzed."
// @Success 200 {object} models.Analysis
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/rules/generate_from_file [post]
func (a *EmailAPI) GenerateFromFile(c echo.Context) error {
	ctx := c.Request().Context()

	filename, content, err := a.readUpload(c)
	if err != nil {
		return a.uploadFailure(c, filename, err, "An unexpected error occurred: ")
	}
	logger := a.logger.With().Str("filename", filename).Logger()
	logger.Info().Int("bytes", len(content)).Msg("Received file for rule generation")

	rawID, err := a.store.CreateRawEmail(ctx, emails.SanitizeRaw(content))
	if err != nil {
		return a.unexpected(c, logger, "An unexpected error occurred: ", err)
	}
	logger.Info().Int("raw_email_id", rawID).Msg("Raw email saved")

	msg, err := emails.Parse(content)
	if err != nil {
		return a.unexpected(c, logger, "An unexpected error occurred: ", err)
	}

	var result any
	outcome := "ok"
	analysis, err := a.evaluator.Evaluate(ctx, msg)
	if err != nil {
		logger.Error().Err(err).Msg("Ollama analysis failed")
		result = models.AnalysisFailure{Error: "Ollama analysis failed", Details: err.Error()}
		outcome = "soft_failure"
	} else {
		result = analysis
	}

	evaluation, err := json.Marshal(result)
	if err != nil {
		return a.unexpected(c, logger, "An unexpected error occurred: ", err)
	}

	parsed := emails.ToParsedEmail(msg, rawID, string(evaluation), a.now())
	if _, err := a.store.CreateParsedEmail(ctx, parsed); err != nil {
		return a.unexpected(c, logger, "An unexpected error occurred: ", err)
	}
	logger.Info().Int("parsed_email_id", parsed.ID).Str("outcome", outcome).Msg("Parsed email saved")

	metrics.RecordIngest(outcome)
	return c.JSON(http.StatusOK, result)
}

// ParseMessage parses and stores an uploaded email and returns the parsed structure.
// Unlike GenerateFromFile, an evaluation failure fails the request.
// @Summary Parse an EML or ARF file
// @Description Upload an email file (.eml or .arf) to parse its headers, body, and attachments.
// @Tags Parser
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "The .eml or .arf file to be parsed."
// @Success 200 {object} emails.Message
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/parser/parse_message [post]
func (a *EmailAPI) ParseMessage(c echo.Context) error {
	ctx := c.Request().Context()
	const prefix = "An error occurred while parsing the file: "

	filename, content, err := a.readUpload(c)
	if err != nil {
		return a.uploadFailure(c, filename, err, prefix)
	}
	logger := a.logger.With().Str("filename", filename).Logger()
	logger.Info().Int("bytes", len(content)).Msg("Received file for parsing")

	rawID, err := a.store.CreateRawEmail(ctx, emails.SanitizeRaw(content))
	if err != nil {
		return a.unexpected(c, logger, prefix, err)
	}

	msg, err := emails.Parse(content)
	if err != nil {
		return a.unexpected(c, logger, prefix, err)
	}

	analysis, err := a.evaluator.Evaluate(ctx, msg)
	if err != nil {
		return a.unexpected(c, logger, prefix, err)
	}
	evaluation, err := json.Marshal(analysis)
	if err != nil {
		return a.unexpected(c, logger, prefix, err)
	}

	parsed := emails.ToParsedEmail(msg, rawID, string(evaluation), a.now())
	if _, err := a.store.CreateParsedEmail(ctx, parsed); err != nil {
		return a.unexpected(c, logger, prefix, err)
	}
	logger.Info().Int("raw_email_id", rawID).Int("parsed_email_id", parsed.ID).Msg("Parsed email saved")

	metrics.RecordIngest("ok")
	return c.JSON(http.StatusOK, msg)
}

// Collections returns both tables for visualization
// @Summary Retrieve all raw and parsed emails
// @Tags Parser
// @Produce json
// @Success 200 {object} models.Collections
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/parser/get [get]
func (a *EmailAPI) Collections(c echo.Context) error {
	collections, err := a.store.Collections(c.Request().Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to load email collections")
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Detail: "Failed to load emails."})
	}
	return c.JSON(http.StatusOK, collections)
}

// ListParsedEmails returns every parsed email with its evaluation decoded
// @Summary Retrieve all parsed emails
// @Tags Parser
// @Produce json
// @Success 200 {array} models.ParsedEmailSummary
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/parser/emails [get]
func (a *EmailAPI) ListParsedEmails(c echo.Context) error {
	parsed, err := a.store.ListParsedEmails(c.Request().Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list parsed emails")
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Detail: "Failed to load emails."})
	}

	out := make([]models.ParsedEmailSummary, 0, len(parsed))
	for _, p := range parsed {
		out = append(out, models.ParsedEmailSummary{
			ID:               p.ID,
			FromAddress:      p.FromAddress,
			ToAddress:        p.ToAddress,
			Subject:          p.Subject,
			Date:             p.Date.Time,
			SenderIP:         p.SenderIP,
			OllamaEvaluation: decodeEvaluation(p.OllamaEvaluation),
			RawEmailID:       p.RawEmailID,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteParsedEmail removes a parsed email and its raw counterpart
// @Summary Delete a parsed email
// @Description Deletes the parsed email and cascades to the raw email it references.
// @Tags Parser
// @Produce json
// @Param id path int true "Parsed email id"
// @Success 200 {object} models.DeleteResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/parser/emails/{id} [delete]
func (a *EmailAPI) DeleteParsedEmail(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Detail: "Invalid email id."})
	}

	rawDeleted, err := a.store.DeleteParsedEmail(c.Request().Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		return c.JSON(http.StatusNotFound, models.ErrorResponse{Detail: "Email not found"})
	}
	if err != nil {
		a.logger.Error().Err(err).Int("id", id).Msg("Failed to delete parsed email")
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Detail: fmt.Sprintf("Failed to delete email: %v", err)})
	}

	a.logger.Info().Int("id", id).Int64("raw_deleted", rawDeleted).Msg("Parsed email deleted")
	return c.JSON(http.StatusOK, models.DeleteResponse{Status: "deleted", ID: id})
}

func (a *EmailAPI) uploadFailure(c echo.Context, filename string, err error, prefix string) error {
	var ue *uploadError
	if errors.As(err, &ue) {
		a.logger.Warn().Str("filename", filename).Int("status", ue.status).Msg(ue.detail)
		metrics.RecordIngest("rejected")
		return c.JSON(ue.status, models.ErrorResponse{Detail: ue.detail})
	}
	return a.unexpected(c, a.logger.With().Str("filename", filename).Logger(), prefix, err)
}

func (a *EmailAPI) unexpected(c echo.Context, logger zerolog.Logger, prefix string, err error) error {
	logger.Error().Err(err).Msg("Failed to ingest email")
	metrics.RecordIngest("error")
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Detail: prefix + err.Error()})
}

// decodeEvaluation turns the stored JSON text back into a value; text that is not JSON is
// returned unchanged
func decodeEvaluation(evaluation *string) any {
	if evaluation == nil || *evaluation == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(*evaluation), &v); err != nil {
		return *evaluation
	}
	return v
}
