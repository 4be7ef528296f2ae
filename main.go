package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	"github.com/ytget/dlsync/internal/config"
	"github.com/ytget/dlsync/internal/download"
	"github.com/ytget/dlsync/internal/eventloop"
	"github.com/ytget/dlsync/internal/history"
	"github.com/ytget/dlsync/internal/platform"
	"github.com/ytget/dlsync/internal/tracker"
	"github.com/ytget/dlsync/internal/ui"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const (
	AppID   = "com.ytget.dlsync"
	AppName = "Download Sync"

	WindowWidth  = 800
	WindowHeight = 600

	historyOpenTimeout = 5 * time.Second
)

func main() {
	// Log version information
	fmt.Printf("%s v%s starting...\n", AppName, version)

	// Create new Fyne app
	myApp := app.NewWithID(AppID)

	// Apply compact theme
	myApp.Settings().SetTheme(ui.NewStatusTheme())

	windowTitle := fmt.Sprintf("%s v%s", AppName, version)
	myWindow := myApp.NewWindow(windowTitle)
	myWindow.Resize(fyne.NewSize(WindowWidth, WindowHeight))

	// Resolve settings
	settings := config.NewSettings(myApp)
	opts, err := settings.Options()
	if err != nil {
		log.Printf("settings: %v, using defaults", err)
		opts = config.DefaultOptions()
	}

	// Initialize services
	loop := eventloop.New()
	defer loop.Close()

	deps := tracker.Deps{
		Downloader: download.NewClient(opts.ServerURL, opts.RequestTimeout),
		Executor:   loop,
		Expander:   platform.NewPlaylistExpander(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyOpenTimeout)
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
	cancel()

	svc, err := tracker.New(tracker.OptionsFromConfig(opts), deps)
	if err != nil {
		log.Fatalf("tracker: %v", err)
	}
	defer svc.Close()

	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), historyOpenTimeout)
	if err := svc.RestoreRecent(restoreCtx); err != nil {
		log.Printf("tracker: %v", err)
	}
	restoreCancel()

	// Create and setup UI
	root := ui.NewRootUI(myWindow, svc, settings)
	defer root.Close()

	svc.Connect()

	// Show and run
	myWindow.ShowAndRun()
}
