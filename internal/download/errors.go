package download

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyURL is returned when submitting without a URL
	ErrEmptyURL = errors.New("url is required")

	// ErrEmptyTaskID is returned when a task id is required but missing
	ErrEmptyTaskID = errors.New("task id is required")
)

// Error codes reported by the service in the error_code field
const (
	CodeInternal          = "INTERNAL_ERROR"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidURL        = "INVALID_URL"
	CodeDownloadFailed    = "DOWNLOAD_FAILED"
	CodeTaskNotFound      = "TASK_NOT_FOUND"
	CodeTaskAlreadyExists = "TASK_ALREADY_EXISTS"
)

// StatusError is returned for responses outside the 2xx range
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// APIError is returned when the service answers with success=false
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return "api error: " + e.Message
	}
	return fmt.Sprintf("api error %s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err means the service does not know the task
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == CodeTaskNotFound || apiErr.Code == CodeNotFound
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusNotFound
	}
	return false
}
