package download

import "context"

// Downloader defines the operations of the remote download service.
type Downloader interface {
	// Status returns the raw payload of the polling endpoint
	Status(ctx context.Context) (any, error)

	// ListDownloads returns the raw payload of the newest tasks, limit of them
	ListDownloads(ctx context.Context, limit int) (any, error)

	// Submit creates a download task
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)

	// Cancel asks the service to cancel a pending or running task
	Cancel(ctx context.Context, taskID string) error
}
