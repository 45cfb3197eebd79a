// Package backend is the HTTP client for the parser API used by the console and the CLI.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"mailtriage/internal/models"
)

const (
	collectionsPath = "/api/v1/parser/get"
	uploadPath      = "/api/v1/rules/generate_from_file"
	parsedEmailPath = "/api/v1/parser/emails/"
)

var (
	// ErrTransport wraps failures where no HTTP response was received
	ErrTransport = errors.New("backend unreachable")
	// ErrMalformedResponse wraps 2xx responses whose body could not be decoded
	ErrMalformedResponse = errors.New("malformed response body")
)

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	StatusText string
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d %s: %s", e.StatusCode, e.StatusText, e.Message())
}

// Message is the text shown to users: the error detail when the body carried one,
// otherwise the status text
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.StatusText
}

// Client talks to the parser API
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a client for baseURL. A nil httpClient uses a client without timeout;
// callers bound requests through their context.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// WithToken makes every request carry token as a bearer token
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// FetchCollections returns both email collections in backend order
func (c *Client) FetchCollections(ctx context.Context) (*models.Collections, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+collectionsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var out models.Collections
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	// an absent or null list decodes to nil, [] decodes to an empty slice
	if out.ParsedEmails == nil || out.RawEmails == nil {
		return nil, fmt.Errorf("%w: %s: parsed_emails and raw_emails must both be lists", ErrMalformedResponse, collectionsPath)
	}
	return &out, nil
}

// UploadEmail posts one file as the multipart field "file" and returns the decoded result.
// A soft failure is still a successful call; check UploadResult.Failed.
func (c *Client) UploadEmail(ctx context.Context, filename string, content io.Reader) (*models.UploadResult, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out models.UploadResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteParsedEmail deletes one parsed email; the backend removes its raw counterpart
func (c *Client) DeleteParsedEmail(ctx context.Context, id int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+parsedEmailPath+strconv.Itoa(id), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, nil)
}

// do sends req and decodes a 2xx body into out when out is not nil
func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", ErrTransport, req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, req.URL.Path, err)
	}
	return nil
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
	}

	var payload struct {
		Detail  any `json:"detail"`
		Details any `json:"details"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Detail = models.Stringify(payload.Detail)
		if apiErr.Detail == "" {
			apiErr.Detail = models.Stringify(payload.Details)
		}
	}
	return apiErr
}

// statusText returns the reason phrase the server sent, e.g. "Not Found"
func statusText(resp *http.Response) string {
	if text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); text != "" && text != resp.Status {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
