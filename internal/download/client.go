package download

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

	"github.com/google/uuid"

	"github.com/ytget/dlsync/internal/model"
	"github.com/ytget/dlsync/internal/normalize"
)

const (
	// DefaultListLimit matches the service's own default for /api/list/downloads
	DefaultListLimit = 2

	// RequestIDHeader carries a per-request id for correlating service logs
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 512
)

// Response is the envelope the service wraps every answer in
type Response struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	ErrorMsg  string          `json:"error_msg,omitempty"`
}

// SubmitRequest is the body of a new download
type SubmitRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// Submission is the service's acknowledgement of a new download
type Submission struct {
	TaskID   string  `json:"task_id"`
	URL      string  `json:"url"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

// Update converts the acknowledgement into a task update
func (s *Submission) Update() model.TaskUpdate {
	status, ok := model.ParseTaskStatus(s.Status)
	if !ok {
		status = model.TaskStatusPending
	}
	return model.TaskUpdate{
		TaskID:   s.TaskID,
		Status:   status,
		Progress: s.Progress,
		URL:      s.URL,
		Message:  s.Message,
	}
}

var _ Downloader = (*Client)(nil)

// Client talks to the service over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP creates a client using a caller-provided http.Client
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the service address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status fetches GET /api/status. The payload is returned as decoded JSON
// so that the normalizer can deal with whatever shape the service sends.
func (c *Client) Status(ctx context.Context) (any, error) {
	return c.getRaw(ctx, "/api/status", nil)
}

// ListDownloads fetches GET /api/list/downloads?limit=N
func (c *Client) ListDownloads(ctx context.Context, limit int) (any, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	return c.getRaw(ctx, "/api/list/downloads", q)
}

// Submit sends POST /api/downloads
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, ErrEmptyURL
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode submit request: %w", err)
	}

	var sub Submission
	if err := c.call(ctx, http.MethodPost, "/api/downloads", body, &sub); err != nil {
		return nil, err
	}
	if sub.TaskID == "" {
		return nil, fmt.Errorf("submit %s: response carries no task id", req.URL)
	}
	return &sub, nil
}

// Cancel sends DELETE /api/downloads/{task_id}
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}
	return c.call(ctx, http.MethodDelete, "/api/downloads/"+url.PathEscape(taskID), nil, nil)
}

func (c *Client) getRaw(ctx context.Context, path string, query url.Values) (any, error) {
	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	data, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	payload, err := normalize.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return payload, nil
}

// call performs a request whose answer is an envelope and decodes its data
// into out, which may be nil
func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	data, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if !resp.Success {
		return &APIError{Code: resp.ErrorCode, Message: resp.ErrorMsg}
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(data))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: text}
	}
	return data, nil
}

func requestID() string {
	// v7 ids sort by time, which keeps service logs readable
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
