package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is used when no API address is configured.
const DefaultBaseURL = "http://localhost:8000"

// Client provides typed access to the logscribe API for command-line tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: time.Minute},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, reader, contentType, token, v)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// Token is the access token payload emitted by /auth/login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}
	var tok Token
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &tok); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// Accepted is returned once an upload is spooled and queued for ingestion.
type Accepted struct {
	UploadID int64  `json:"upload_id"`
	Status   string `json:"status"`
}

// Upload sends content as a multipart file named filename.
func (c *Client) Upload(ctx context.Context, token, filename string, content io.Reader) (Accepted, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return Accepted{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return Accepted{}, fmt.Errorf("copy upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Accepted{}, fmt.Errorf("close multipart body: %w", err)
	}
	var out Accepted
	if err := c.send(ctx, http.MethodPost, "/logs/upload", &buf, mw.FormDataContentType(), token, &out); err != nil {
		return Accepted{}, err
	}
	return out, nil
}

// UploadStatus reports ingestion progress for one upload.
type UploadStatus struct {
	UploadID     int64  `json:"upload_id"`
	Status       string `json:"status"`
	Format       string `json:"format"`
	ParsedLines  int    `json:"parsed_lines"`
	SkippedLines int    `json:"skipped_lines"`
}

// Done reports whether ingestion reached a terminal status.
func (s UploadStatus) Done() bool {
	return s.Status == "completed" || s.Status == "failed"
}

// Status fetches the status of an upload owned by the caller.
func (c *Client) Status(ctx context.Context, token string, uploadID int64) (UploadStatus, error) {
	var out UploadStatus
	path := fmt.Sprintf("/logs/upload/%d/status", uploadID)
	if err := c.do(ctx, http.MethodGet, path, nil, token, &out); err != nil {
		return UploadStatus{}, err
	}
	return out, nil
}

// WaitForUpload polls Status every interval until the upload is terminal or ctx ends.
func (c *Client) WaitForUpload(ctx context.Context, token string, uploadID int64, interval time.Duration) (UploadStatus, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.Status(ctx, token, uploadID)
		if err != nil || st.Done() {
			return st, err
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// LogEntry models a persisted entry in search results.
type LogEntry struct {
	ID               int64          `json:"id"`
	UploadID         int64          `json:"upload_id"`
	Timestamp        string         `json:"timestamp"`
	Level            string         `json:"log_level"`
	Source           string         `json:"source"`
	Message          string         `json:"message"`
	AdditionalFields map[string]any `json:"additional_fields"`
}

// SearchQuery holds optional search filters; zero values are omitted.
type SearchQuery struct {
	Text     string
	Level    string
	Source   string
	UploadID int64
	Page     int
	PerPage  int
}

func (q SearchQuery) values() url.Values {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.Level != "" {
		v.Set("log_level", q.Level)
	}
	if q.Source != "" {
		v.Set("source", q.Source)
	}
	if q.UploadID > 0 {
		v.Set("upload_id", strconv.FormatInt(q.UploadID, 10))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return v
}

// SearchPage is one page of search results.
type SearchPage struct {
	Logs    []LogEntry `json:"logs"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

// Search runs a filtered search.
func (c *Client) Search(ctx context.Context, token string, q SearchQuery) (SearchPage, error) {
	path := "/logs/search"
	if encoded := q.values().Encode(); encoded != "" {
		path += "?" + encoded
	}
	var page SearchPage
	if err := c.do(ctx, http.MethodGet, path, nil, token, &page); err != nil {
		return SearchPage{}, err
	}
	return page, nil
}
