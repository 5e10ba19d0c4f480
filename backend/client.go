// Package backend talks to the translation-management service. The service
// exposes a small set of operations; upload, machine translation, and
// export are asynchronous and may answer with either an immediate result
// or a job handle that must be polled to completion.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.openlocalize.io"

// DefaultTimeout bounds a single HTTP request.
const DefaultTimeout = 60 * time.Second

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// APIError is a non-success response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// RateLimitError is a throttled request. RetryAfter carries the server's
// Retry-After hint when present, zero otherwise.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client is an HTTP client for the backend API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	// PollInterval is the cadence for job-status polling. Distinct from
	// the export backoff policy: polling checks the status of a known
	// job, backoff retries a rejected export request.
	PollInterval time.Duration
}

// New creates a Client. An empty baseURL selects DefaultBaseURL; a zero
// timeout selects DefaultTimeout.
func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		http:         &http.Client{Transport: transport, Timeout: timeout},
		PollInterval: 2 * time.Second,
	}
}

// ---------------------------------------------------------------------------
// Async operation results
// ---------------------------------------------------------------------------

// JobHandle is an opaque reference to a backend-side asynchronous job.
type JobHandle struct {
	ID string `json:"id"`
}

// Operation is the tagged result of an asynchronous remote operation:
// either an immediate result payload or a deferred job handle.
type Operation struct {
	// Result is the immediate payload; nil when the work was deferred.
	Result json.RawMessage
	// Job is the handle to poll; nil when the result was immediate.
	Job *JobHandle
}

// Deferred reports whether the operation must be polled.
func (op *Operation) Deferred() bool {
	return op.Job != nil
}

// asyncResponse is the wire shape shared by upload and translation
// endpoints.
type asyncResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Job    *JobHandle      `json:"job,omitempty"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// ProjectLanguages fetches the locales configured for a project.
func (c *Client) ProjectLanguages(ctx context.Context, projectID string) ([]string, error) {
	var resp struct {
		Languages []string `json:"languages"`
	}
	path := fmt.Sprintf("/v2/projects/%s/languages", url.PathEscape(projectID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Languages, nil
}

// UploadRequest describes one source file upload.
type UploadRequest struct {
	ProjectID    string `json:"-"`
	Filename     string `json:"filename"`
	Content      []byte `json:"content"`
	SourceLocale string `json:"source_locale"`
}

// UploadFile sends a neutral resource file to the backend. Filename is the
// forward-slash relative path used for remote addressing.
func (c *Client) UploadFile(ctx context.Context, req UploadRequest) (*Operation, error) {
	var resp asyncResponse
	path := fmt.Sprintf("/v2/projects/%s/files", url.PathEscape(req.ProjectID))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &Operation{Result: resp.Result, Job: resp.Job}, nil
}

// TranslateRequest triggers machine translation for one locale.
type TranslateRequest struct {
	ProjectID string `json:"-"`
	Locale    string `json:"locale"`
	// Mode "missing-only" guarantees existing human translations are
	// never overwritten.
	Mode string `json:"mode"`
}

// TranslateModeMissingOnly fills only untranslated entries.
const TranslateModeMissingOnly = "missing-only"

// TriggerMachineTranslation asks the backend to machine-translate missing
// entries for a locale.
func (c *Client) TriggerMachineTranslation(ctx context.Context, req TranslateRequest) (*Operation, error) {
	if req.Mode == "" {
		req.Mode = TranslateModeMissingOnly
	}
	var resp asyncResponse
	path := fmt.Sprintf("/v2/projects/%s/translations", url.PathEscape(req.ProjectID))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &Operation{Result: resp.Result, Job: resp.Job}, nil
}

// ExportRequest asks for an archive of translated files for one locale.
type ExportRequest struct {
	ProjectID string `json:"-"`
	Locale    string `json:"locale"`
	Format    string `json:"format"`
}

// RequestExport requests a translation archive and returns its download
// URL. A throttled request surfaces as *RateLimitError; any other
// non-success response as *APIError.
func (c *Client) RequestExport(ctx context.Context, req ExportRequest) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	path := fmt.Sprintf("/v2/projects/%s/exports", url.PathEscape(req.ProjectID))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", &APIError{StatusCode: http.StatusOK, Message: "export response carried no url"}
	}
	return resp.URL, nil
}

// DownloadBundle fetches the archive at url, following redirects.
func (c *Client) DownloadBundle(ctx context.Context, bundleURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bundleURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return io.ReadAll(resp.Body)
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

// doJSON performs one API request with a JSON body and decodes a JSON
// response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// errorMessage extracts the backend's error message from a response body,
// falling back to the raw (truncated) body.
func errorMessage(body []byte) string {
	var resp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.Error != "" {
			return resp.Error
		}
		if resp.Message != "" {
			return resp.Message
		}
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
