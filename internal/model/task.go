package model

import (
	"fmt"
	"strings"
	"time"
)

// UnknownTaskID is used for wire records that carry no identity at all
const UnknownTaskID = "unknown"

// TaskUpdate is the canonical state of one task as seen in a single snapshot
type TaskUpdate struct {
	TaskID          string     `json:"task_id"`
	Status          TaskStatus `json:"status"`
	Progress        float64    `json:"progress"`         // 0 to 100
	DownloadedBytes float64    `json:"downloaded_bytes"` // bytes received so far
	TotalBytes      float64    `json:"total_bytes"`      // 0 if unknown
	DownloadSpeed   float64    `json:"download_speed"`   // bytes per second
	ETASeconds      float64    `json:"eta_seconds"`      // 0 if unknown
	Error           string     `json:"error,omitempty"`  // empty when no error

	// Display fields, present only when the service sends them
	Title       string    `json:"title,omitempty"`
	URL         string    `json:"url,omitempty"`
	Message     string    `json:"status_message,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// LocalTask is a client-held task entry: the last known update plus fields
// that only exist on the client side.
type LocalTask struct {
	TaskUpdate

	Optimistic bool      // created from a submission, not yet echoed by the service
	Epoch      uint64    // session in which the entry was created
	AddedAt    time.Time // when the client first learned about the task
	RetiredAt  time.Time // when the task left the active view
}

// GetETAString returns ETA formatted as hh:mm:ss, or "—" if unknown
func (lt *LocalTask) GetETAString() string {
	eta := int(lt.ETASeconds)
	if eta <= 0 {
		return "—"
	}

	hours := eta / 3600
	minutes := (eta % 3600) / 60
	seconds := eta % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// GetSpeedString returns download speed in a human readable form
func (lt *LocalTask) GetSpeedString() string {
	speed := lt.DownloadSpeed
	switch {
	case speed <= 0:
		return "—"
	case speed >= 1024*1024:
		return fmt.Sprintf("%.1fMB/s", speed/1024/1024)
	case speed >= 1024:
		return fmt.Sprintf("%.1fKB/s", speed/1024)
	default:
		return fmt.Sprintf("%.0fB/s", speed)
	}
}

// GetDisplayTitle returns title, URL or task id in order of preference
func (lt *LocalTask) GetDisplayTitle() string {
	// Titles that are just the submitted URL are not useful
	if lt.Title != "" && !strings.HasPrefix(lt.Title, "http") {
		return lt.Title
	}

	if lt.URL != "" {
		return lt.URL
	}
	if lt.Title != "" {
		return lt.Title
	}
	return lt.TaskID
}

// SortTime returns the timestamp used to order recently finished tasks
func (lt *LocalTask) SortTime() time.Time {
	if !lt.RetiredAt.IsZero() {
		return lt.RetiredAt
	}
	if !lt.LastUpdated.IsZero() {
		return lt.LastUpdated
	}
	if !lt.CreatedAt.IsZero() {
		return lt.CreatedAt
	}
	return lt.AddedAt
}
