package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mailtriage/internal/database"
	"mailtriage/internal/emails"
	"mailtriage/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEmail = "Received: from mx.example.net (mx.example.net [198.51.100.20])\r\n" +
	"From: Billing <billing@examp1e.com>\r\n" +
	"To: victim@example.org\r\n" +
	"Subject: Invoice overdue\r\n" +
	"Date: Wed, 01 May 2024 10:00:00 +0000\r\n" +
	"\r\n" +
	"Pay now at http://examp1e.com/pay\r\n"

// memoryStore is an in-memory EmailStore
type memoryStore struct {
	mu        sync.Mutex
	raw       []models.RawEmail
	parsed    []models.ParsedEmail
	nextID    int
	failRaw   error
	failList  error
	failDel   error
	deleteIDs []int
}

func (m *memoryStore) Collections(context.Context) (*models.Collections, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	return &models.Collections{
		ParsedEmails: append([]models.ParsedEmail{}, m.parsed...),
		RawEmails:    append([]models.RawEmail{}, m.raw...),
	}, nil
}

func (m *memoryStore) ListParsedEmails(context.Context) ([]models.ParsedEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	return append([]models.ParsedEmail{}, m.parsed...), nil
}

func (m *memoryStore) CreateRawEmail(_ context.Context, content string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRaw != nil {
		return 0, m.failRaw
	}
	m.nextID++
	m.raw = append(m.raw, models.RawEmail{ID: m.nextID, RawContent: content})
	return m.nextID, nil
}

func (m *memoryStore) CreateParsedEmail(_ context.Context, p *models.ParsedEmail) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.parsed = append(m.parsed, *p)
	for i := range m.raw {
		if p.RawEmailID != nil && m.raw[i].ID == *p.RawEmailID {
			id := p.ID
			m.raw[i].ParsedEmailID = &id
		}
	}
	return p.ID, nil
}

func (m *memoryStore) DeleteParsedEmail(_ context.Context, id int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteIDs = append(m.deleteIDs, id)
	if m.failDel != nil {
		return 0, m.failDel
	}
	for i, p := range m.parsed {
		if p.ID == id {
			m.parsed = append(m.parsed[:i], m.parsed[i+1:]...)
			return 1, nil
		}
	}
	return 0, database.ErrNotFound
}

type stubEvaluator struct {
	analysis *models.Analysis
	err      error
	calls    int
}

func (s *stubEvaluator) Evaluate(context.Context, *emails.Message) (*models.Analysis, error) {
	s.calls++
	return s.analysis, s.err
}

func newTestAPI(store *memoryStore, eval *stubEvaluator) *EmailAPI {
	api := NewEmailAPI(store, eval, 1, zerolog.Nop())
	api.now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }
	return api
}

func multipartRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestGenerateFromFile(t *testing.T) {
	phishing := &models.Analysis{
		Verdict:  models.VerdictMalicious,
		Category: "Credential Harvesting (Phishing)",
		Reason:   "lookalike domain",
		Rules:    []models.DetectionRule{{Type: "domain_reputation", Value: "examp1e.com"}},
	}

	tests := []struct {
		name           string
		filename       string
		content        []byte
		store          *memoryStore
		eval           *stubEvaluator
		expectedStatus int
		check          func(t *testing.T, body map[string]any, store *memoryStore)
	}{
		{
			name:           "stores both records and returns the analysis",
			filename:       "invoice.eml",
			content:        []byte(sampleEmail),
			store:          &memoryStore{},
			eval:           &stubEvaluator{analysis: phishing},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any, store *memoryStore) {
				assert.Equal(t, "Malicious", body["verdict"])
				require.Len(t, store.raw, 1)
				require.Len(t, store.parsed, 1)

				p := store.parsed[0]
				assert.Equal(t, "billing@examp1e.com", p.FromAddress)
				assert.Equal(t, "victim@example.org", p.ToAddress)
				require.NotNil(t, p.SenderIP)
				assert.Equal(t, "198.51.100.20", *p.SenderIP)
				require.NotNil(t, p.RawEmailID)
				assert.Equal(t, store.raw[0].ID, *p.RawEmailID)
				require.NotNil(t, store.raw[0].ParsedEmailID)
				assert.Equal(t, p.ID, *store.raw[0].ParsedEmailID)
				assert.Contains(t, *p.OllamaEvaluation, `"verdict":"Malicious"`)
			},
		},
		{
			name:           "evaluation failure is a soft failure",
			filename:       "report.ARF",
			content:        []byte(sampleEmail),
			store:          &memoryStore{},
			eval:           &stubEvaluator{err: errors.New("connection refused")},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any, store *memoryStore) {
				assert.Equal(t, "Ollama analysis failed", body["error"])
				assert.Equal(t, "connection refused", body["details"])
				require.Len(t, store.parsed, 1)
				assert.Contains(t, *store.parsed[0].OllamaEvaluation, "Ollama analysis failed")
			},
		},
		{
			name:           "rejects other extensions",
			filename:       "notes.txt",
			content:        []byte(sampleEmail),
			store:          &memoryStore{},
			eval:           &stubEvaluator{},
			expectedStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any, store *memoryStore) {
				assert.Equal(t, invalidFileTypeDetail, body["detail"])
				assert.Empty(t, store.raw)
			},
		},
		{
			name:           "missing file field",
			store:          &memoryStore{},
			eval:           &stubEvaluator{},
			expectedStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, body map[string]any, store *memoryStore) {
				assert.Equal(t, "Field 'file' is required.", body["detail"])
			},
		},
		{
			name:           "oversized upload",
			filename:       "big.eml",
			content:        bytes.Repeat([]byte("a"), (1<<20)+1),
			store:          &memoryStore{},
			eval:           &stubEvaluator{},
			expectedStatus: http.StatusRequestEntityTooLarge,
			check: func(t *testing.T, body map[string]any, store *memoryStore) {
				assert.Equal(t, "File exceeds the 1 MB upload limit.", body["detail"])
				assert.Empty(t, store.raw)
			},
		},
		{
			name:           "store failure is unexpected",
			filename:       "invoice.eml",
			content:        []byte(sampleEmail),
			store:          &memoryStore{failRaw: errors.New("database is locked")},
			eval:           &stubEvaluator{},
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any, store *memoryStore) {
				assert.Equal(t, "An unexpected error occurred: database is locked", body["detail"])
			},
		},
		{
			name:           "unparseable content keeps the raw email",
			filename:       "broken.eml",
			content:        []byte("no headers here"),
			store:          &memoryStore{},
			eval:           &stubEvaluator{},
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any, store *memoryStore) {
				assert.True(t, strings.HasPrefix(body["detail"].(string), "An unexpected error occurred: "))
				assert.Len(t, store.raw, 1)
				assert.Empty(t, store.parsed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := multipartRequest(t, "/api/v1/rules/generate_from_file", tt.filename, tt.content)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := newTestAPI(tt.store, tt.eval).GenerateFromFile(c)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			tt.check(t, body, tt.store)
		})
	}
}

func TestParseMessage(t *testing.T) {
	t.Run("returns the parsed structure", func(t *testing.T) {
		store := &memoryStore{}
		eval := &stubEvaluator{analysis: &models.Analysis{Verdict: models.VerdictSpam}}

		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(multipartRequest(t, "/api/v1/parser/parse_message", "a.eml", []byte(sampleEmail)), rec)

		require.NoError(t, newTestAPI(store, eval).ParseMessage(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var msg emails.Message
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
		assert.Equal(t, "Invoice overdue", msg.Header.Subject)
		assert.Len(t, store.parsed, 1)
	})

	t.Run("evaluation failure is fatal", func(t *testing.T) {
		store := &memoryStore{}
		eval := &stubEvaluator{err: errors.New("timeout")}

		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(multipartRequest(t, "/api/v1/parser/parse_message", "a.eml", []byte(sampleEmail)), rec)

		require.NoError(t, newTestAPI(store, eval).ParseMessage(c))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var body models.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "An error occurred while parsing the file: timeout", body.Detail)
		assert.Len(t, store.raw, 1)
		assert.Empty(t, store.parsed)
	})
}

func TestCollections(t *testing.T) {
	rawID, parsedID := 1, 2
	store := &memoryStore{
		raw:    []models.RawEmail{{ID: 1, RawContent: "From: a", ParsedEmailID: &parsedID}},
		parsed: []models.ParsedEmail{{ID: 2, Subject: "hi", RawEmailID: &rawID}},
	}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/parser/get", nil), rec)

	require.NoError(t, newTestAPI(store, &stubEvaluator{}).Collections(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got models.Collections
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.RawEmails, 1)
	require.Len(t, got.ParsedEmails, 1)
	assert.Equal(t, 2, *got.RawEmails[0].ParsedEmailID)
	assert.Equal(t, 1, *got.ParsedEmails[0].RawEmailID)
}

func TestCollections_Failure(t *testing.T) {
	store := &memoryStore{failList: errors.New("connection reset")}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/parser/get", nil), rec)

	require.NoError(t, newTestAPI(store, &stubEvaluator{}).Collections(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListParsedEmails_DecodesEvaluation(t *testing.T) {
	good := `{"verdict":"Spam"}`
	bad := "not json"
	store := &memoryStore{parsed: []models.ParsedEmail{
		{ID: 1, OllamaEvaluation: &good},
		{ID: 2, OllamaEvaluation: &bad},
		{ID: 3},
	}}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/parser/emails", nil), rec)

	require.NoError(t, newTestAPI(store, &stubEvaluator{}).ListParsedEmails(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, map[string]any{"verdict": "Spam"}, got[0]["ollama_evaluation"])
	assert.Equal(t, "not json", got[1]["ollama_evaluation"])
	assert.Nil(t, got[2]["ollama_evaluation"])
}

func TestDeleteParsedEmail(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		store          *memoryStore
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "deletes existing email",
			id:             "42",
			store:          &memoryStore{parsed: []models.ParsedEmail{{ID: 42}}},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"deleted","id":42}`,
		},
		{
			name:           "unknown id",
			id:             "7",
			store:          &memoryStore{},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"detail":"Email not found"}`,
		},
		{
			name:           "non-numeric id",
			id:             "abc",
			store:          &memoryStore{},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"detail":"Invalid email id."}`,
		},
		{
			name:           "store failure",
			id:             "42",
			store:          &memoryStore{failDel: errors.New("deadlock")},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"detail":"Failed to delete email: deadlock"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
			c.SetPath("/api/v1/parser/emails/:id")
			c.SetParamNames("id")
			c.SetParamValues(tt.id)

			require.NoError(t, newTestAPI(tt.store, &stubEvaluator{}).DeleteParsedEmail(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.JSONEq(t, tt.expectedBody, rec.Body.String())
		})
	}
}
