package model

import "strings"

// TaskStatus represents the status of a download task as reported by the service
type TaskStatus string

const (
	// TaskStatusPending means the task is queued but not started
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusDownloading means the download is in progress
	TaskStatusDownloading TaskStatus = "downloading"

	// TaskStatusProcessing means the media is being post-processed
	TaskStatusProcessing TaskStatus = "processing"

	// TaskStatusCompleted means the task finished successfully
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed means the task finished unsuccessfully
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCancelled means the task was cancelled by the user
	TaskStatusCancelled TaskStatus = "cancelled"

	// TaskStatusError means the service reported an error but kept the task
	TaskStatusError TaskStatus = "error"
)

var knownStatuses = map[TaskStatus]struct{}{
	TaskStatusPending:     {},
	TaskStatusDownloading: {},
	TaskStatusProcessing:  {},
	TaskStatusCompleted:   {},
	TaskStatusFailed:      {},
	TaskStatusCancelled:   {},
	TaskStatusError:       {},
}

// ParseTaskStatus maps a wire value to a TaskStatus. The second result is
// false for values outside the known set.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	ts := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	_, ok := knownStatuses[ts]
	return ts, ok
}

// String returns the string representation of TaskStatus
func (ts TaskStatus) String() string {
	return string(ts)
}

// IsActive returns true while the service is still working on the task
func (ts TaskStatus) IsActive() bool {
	return ts == TaskStatusPending || ts == TaskStatusDownloading || ts == TaskStatusProcessing
}

// IsTerminal returns true if no further progress updates are expected
func (ts TaskStatus) IsTerminal() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusFailed || ts == TaskStatusCancelled
}

// ConnectionState is the state of the link between the client and the status endpoint
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionError        ConnectionState = "error"
)

// String returns the string representation of ConnectionState
func (cs ConnectionState) String() string {
	return string(cs)
}

// Transport modes reported alongside connection state changes
const (
	ModePolling   = "polling"
	ModeWebSocket = "websocket"
)

// ConnectionEvent is the payload of a connection state change
type ConnectionEvent struct {
	State    ConnectionState `json:"state"`
	Previous ConnectionState `json:"previous,omitempty"`
	Mode     string          `json:"mode"`
	Attempts int             `json:"attempts"`
	Error    string          `json:"error,omitempty"`
}
