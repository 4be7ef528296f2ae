// Command dlsync follows the task list of a download service from a
// terminal and optionally submits a URL first.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ytget/dlsync/internal/bus"
	"github.com/ytget/dlsync/internal/config"
	"github.com/ytget/dlsync/internal/download"
	"github.com/ytget/dlsync/internal/eventloop"
	"github.com/ytget/dlsync/internal/history"
	"github.com/ytget/dlsync/internal/model"
	"github.com/ytget/dlsync/internal/platform"
	"github.com/ytget/dlsync/internal/tracker"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const submitTimeout = 90 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var (
		envFile   = flag.String("env", "", "dotenv file to load before the environment")
		server    = flag.String("server", "", "download service base URL")
		mode      = flag.String("mode", "", "status source: polling or websocket")
		poll      = flag.Duration("poll", 0, "polling interval")
		attempts  = flag.Int("attempts", 0, "reconnect attempts before giving up")
		submitURL = flag.String("submit", "", "URL to submit after connecting")
		noHistory = flag.Bool("no-history", false, "do not record finished tasks")
		verbose   = flag.Bool("v", false, "log every task update")
	)
	flag.Parse()

	log.Printf("dlsync %s", version)

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	opts, err := config.LoadOptions(files...)
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}
	if *server != "" {
		opts.ServerURL = *server
	}
	if *mode != "" {
		opts.Mode = strings.ToLower(*mode)
	}
	if *poll > 0 {
		opts.PollInterval = *poll
	}
	if *attempts > 0 {
		opts.MaxReconnectAttempts = *attempts
	}
	if opts, err = opts.Normalize(); err != nil {
		log.Printf("config: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := eventloop.New()
	defer loop.Close()

	deps := tracker.Deps{
		Downloader: download.NewClient(opts.ServerURL, opts.RequestTimeout),
		Executor:   loop,
	}
	if opts.ExpandPlaylists {
		deps.Expander = platform.NewPlaylistExpander()
	}
	if !*noHistory {
		store, err := history.Open(ctx, opts.HistoryPath)
		if err != nil {
			log.Printf("history: disabled: %v", err)
		} else {
			defer store.Close()
			deps.History = store
			if _, err := store.Prune(ctx, history.DefaultKeep); err != nil {
				log.Printf("history: %v", err)
			}
		}
	}

	svc, err := tracker.New(tracker.OptionsFromConfig(opts), deps)
	if err != nil {
		log.Printf("tracker: %v", err)
		return 1
	}
	defer svc.Close()

	restoreCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
	if err := svc.RestoreRecent(restoreCtx); err != nil {
		log.Printf("tracker: %v", err)
	}
	cancel()
	log.Printf("recent: %d finished task(s)", len(svc.Recent()))

	gaveUp := make(chan struct{}, 1)
	unsubscribe := svc.Bus().Subscribe(bus.Wildcard, func(data any) {
		env, ok := data.(bus.Envelope)
		if !ok {
			return
		}
		if line := describe(env, *verbose); line != "" {
			log.Print(line)
		}
		if ev, ok := env.Data.(model.ConnectionEvent); ok && ev.State == model.ConnectionError && ev.Attempts >= opts.MaxReconnectAttempts {
			select {
			case gaveUp <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	log.Printf("connecting to %s (%s)", opts.ServerURL, opts.Mode)
	svc.Connect()

	if *submitURL != "" {
		subCtx, cancel := context.WithTimeout(ctx, submitTimeout)
		sub, err := svc.Submit(subCtx, *submitURL)
		cancel()
		if err != nil {
			log.Printf("submit: %v", err)
		}
		if sub != nil {
			log.Printf("submitted %d task(s) for %s", len(sub.Tasks), sub.URL)
		}
	}

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
		return 0
	case <-gaveUp:
		log.Printf("giving up after %d attempts", opts.MaxReconnectAttempts)
		return 1
	}
}

// describe renders one bus event as a log line; empty means skip
func describe(env bus.Envelope, verbose bool) string {
	switch data := env.Data.(type) {
	case model.ConnectionEvent:
		line := fmt.Sprintf("connection: %s -> %s (%s)", data.Previous, data.State, data.Mode)
		if data.Error != "" {
			line += fmt.Sprintf(": %s [attempt %d]", data.Error, data.Attempts)
		}
		return line
	case tracker.TaskList:
		return fmt.Sprintf("tasks: %d active, %d recent (+%d ~%d -%d)",
			len(data.Active), len(data.Recent),
			len(data.Changes.Inserted), len(data.Changes.Updated), len(data.Changes.Removed))
	case model.LocalTask:
		if env.Type != bus.TopicTaskRetired {
			return ""
		}
		line := fmt.Sprintf("finished: %s %s", data.GetDisplayTitle(), data.Status)
		if data.Error != "" {
			line += ": " + data.Error
		}
		return line
	case model.TaskUpdate:
		if !verbose || env.Type != bus.TopicTaskStatusUpdate {
			return ""
		}
		return fmt.Sprintf("update: %s %s %.1f%%", data.TaskID, data.Status, data.Progress)
	case tracker.Submitted:
		return fmt.Sprintf("submitted: %s (%d task(s))", data.URL, len(data.Tasks))
	}
	if env.Type == bus.TopicSystemStatus {
		return fmt.Sprintf("server: %v", env.Data)
	}
	return ""
}
