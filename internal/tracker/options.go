package tracker

import (
	"context"
	"time"

	"github.com/ytget/dlsync/internal/bus"
	"github.com/ytget/dlsync/internal/clock"
	"github.com/ytget/dlsync/internal/config"
	"github.com/ytget/dlsync/internal/download"
	"github.com/ytget/dlsync/internal/eventloop"
	"github.com/ytget/dlsync/internal/model"
	"github.com/ytget/dlsync/internal/platform"
	"github.com/ytget/dlsync/internal/transport"
)

// historyTimeout bounds one write to the history store
const historyTimeout = 5 * time.Second

// Options configure the synchronization service
type Options struct {
	// Mode selects the status source: model.ModePolling or model.ModeWebSocket
	Mode string
	// PushURL is the websocket endpoint used in websocket mode
	PushURL string

	PollInterval         time.Duration
	ReconnectInterval    time.Duration
	LivenessInterval     time.Duration
	RequestTimeout       time.Duration
	MaxReconnectAttempts int
	RecentLimit          int

	// Format and Quality are sent with every submission
	Format  string
	Quality string
	// ExpandPlaylists submits each video of a playlist URL separately
	ExpandPlaylists bool
}

// OptionsFromConfig maps resolved client configuration onto service options
func OptionsFromConfig(c config.Options) Options {
	opts := Options{
		Mode:                 c.Mode,
		PollInterval:         c.PollInterval,
		ReconnectInterval:    c.ReconnectInterval,
		LivenessInterval:     c.LivenessInterval,
		RequestTimeout:       c.RequestTimeout,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		Format:               c.Format,
		Quality:              string(c.Quality),
		ExpandPlaylists:      c.ExpandPlaylists,
	}
	if pushURL, err := transport.WebSocketURL(c.ServerURL); err == nil {
		opts.PushURL = pushURL
	}
	return opts
}

// History persists tasks that left the active view
type History interface {
	Record(ctx context.Context, t model.LocalTask) error
	Recent(ctx context.Context, limit int) ([]model.LocalTask, error)
}

// Expander splits a playlist URL into its videos
type Expander interface {
	Expand(ctx context.Context, rawURL string) (*platform.Playlist, error)
}

// Deps are the collaborators of the service. Only Downloader is required.
type Deps struct {
	Downloader download.Downloader
	Bus        *bus.Bus
	Clock      clock.Clock
	// Executor serializes every event; defaults to running inline
	Executor eventloop.Executor
	// Spawn runs blocking work off the executor; defaults to a new goroutine
	Spawn    func(func())
	History  History
	Expander Expander
}

func (d Deps) withDefaults() Deps {
	if d.Bus == nil {
		d.Bus = bus.New()
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Executor == nil {
		d.Executor = eventloop.Inline{}
	}
	if d.Spawn == nil {
		d.Spawn = func(f func()) { go f() }
	}
	return d
}
