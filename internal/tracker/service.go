// Package tracker wires the status source, the connection state machine,
// the normalizer, the message bus and the reconciler into one service.
//
// Exactly one Service is created per application by main and closed at
// shutdown. Every event is handled on the configured executor, so bus
// subscribers see a single ordered stream.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/dlsync/internal/bus"
	"github.com/ytget/dlsync/internal/connection"
	"github.com/ytget/dlsync/internal/download"
	"github.com/ytget/dlsync/internal/eventloop"
	"github.com/ytget/dlsync/internal/model"
	"github.com/ytget/dlsync/internal/normalize"
	"github.com/ytget/dlsync/internal/platform"
	"github.com/ytget/dlsync/internal/reconcile"
	"github.com/ytget/dlsync/internal/transport"
)

var (
	// ErrNotConnected is returned by operations that need a wanted connection
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("service closed")
)

// Snapshot is the payload of bus.TopicTaskSnapshot
type Snapshot struct {
	Seq     uint64
	Shape   normalize.Shape
	Updates []model.TaskUpdate
	// Events marks pushed task events, which are merged but never treated
	// as a complete list
	Events bool
}

// TaskList is the payload of bus.TopicTaskListChanged
type TaskList struct {
	Active  []model.LocalTask
	Recent  []model.LocalTask
	Changes reconcile.Changes
}

// Submitted is the payload of bus.TopicTaskSubmitted
type Submitted struct {
	ID       string // groups the tasks created by one Submit call
	URL      string
	Playlist string // playlist title when the URL was expanded
	Tasks    []model.LocalTask
}

// Service is the status-synchronization service
type Service struct {
	opts       Options
	downloader download.Downloader
	bus        *bus.Bus
	exec       eventloop.Executor
	spawn      func(func())
	history    History
	expander   Expander

	rec     *reconcile.Reconciler
	source  transport.Source
	machine *connection.Machine

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe []func()
	writes      sync.WaitGroup // history writes in flight

	mu      sync.Mutex
	session uint64
	closed  bool
}

// New creates a disconnected service
func New(opts Options, deps Deps) (*Service, error) {
	if deps.Downloader == nil {
		return nil, errors.New("tracker: downloader is required")
	}
	deps = deps.withDefaults()
	if opts.Mode == "" {
		opts.Mode = model.ModePolling
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		opts:       opts,
		downloader: deps.Downloader,
		bus:        deps.Bus,
		exec:       deps.Executor,
		spawn:      deps.Spawn,
		history:    deps.History,
		expander:   deps.Expander,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.rec = reconcile.New(reconcile.Options{RecentLimit: opts.RecentLimit, Clock: deps.Clock})

	srcOpts := transport.Options{
		Interval: opts.PollInterval,
		Timeout:  opts.RequestTimeout,
		Clock:    deps.Clock,
		Executor: deps.Executor,
		Spawn:    deps.Spawn,
	}
	switch opts.Mode {
	case model.ModePolling:
		s.source = transport.NewPoller(s.downloader.Status, s.handleResult, srcOpts)
	case model.ModeWebSocket:
		if opts.PushURL == "" {
			cancel()
			return nil, errors.New("tracker: websocket mode needs a push url")
		}
		s.source = transport.NewPush(opts.PushURL, s.handleResult, srcOpts)
	default:
		cancel()
		return nil, fmt.Errorf("tracker: unknown mode %q", opts.Mode)
	}

	s.machine = connection.New(s.source, s.onConnectionEvent, connection.Options{
		ReconnectInterval: opts.ReconnectInterval,
		MaxAttempts:       opts.MaxReconnectAttempts,
		LivenessInterval:  opts.LivenessInterval,
		Clock:             deps.Clock,
		Executor:          deps.Executor,
	})

	s.unsubscribe = append(s.unsubscribe, s.bus.Subscribe(bus.TopicTaskSnapshot, s.onSnapshot))
	if s.history != nil {
		s.unsubscribe = append(s.unsubscribe, s.bus.Subscribe(bus.TopicTaskRetired, s.onRetired))
	}
	return s, nil
}

// Bus returns the bus every event is published on
func (s *Service) Bus() *bus.Bus {
	return s.bus
}

// Mode returns the status source mode
func (s *Service) Mode() string {
	return s.source.Mode()
}

// State returns the connection state
func (s *Service) State() model.ConnectionState {
	return s.machine.State()
}

// Active returns the active tasks in creation order
func (s *Service) Active() []model.LocalTask {
	return s.rec.Active()
}

// Recent returns the recently finished tasks, most recent first
func (s *Service) Recent() []model.LocalTask {
	return s.rec.Recent()
}

// RestoreRecent seeds the recent list from the service's newest downloads
// and from the history store, which wins for tasks found in both. Whatever
// loads is applied even when the other source fails.
func (s *Service) RestoreRecent(ctx context.Context) error {
	limit := s.opts.RecentLimit
	if limit <= 0 {
		limit = reconcile.DefaultRecentLimit
	}

	var (
		tasks []model.LocalTask
		errs  []error
	)
	if payload, err := s.downloader.ListDownloads(ctx, limit); err != nil {
		errs = append(errs, fmt.Errorf("list downloads: %w", err))
	} else {
		for _, u := range normalize.Normalize(payload).Updates {
			if u.Status.IsTerminal() {
				tasks = append(tasks, model.LocalTask{TaskUpdate: u, RetiredAt: u.LastUpdated})
			}
		}
	}
	if s.history != nil {
		stored, err := s.history.Recent(ctx, limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("read history: %w", err))
		}
		tasks = append(tasks, stored...)
	}

	s.rec.SeedRecent(tasks)
	log.Printf("tracker: restored %d finished tasks", len(tasks))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("restore recent: %w", err)
	}
	return nil
}

// Connect starts synchronization. It is a no-op while already connecting
// or connected; after reconnection gave up it starts over.
func (s *Service) Connect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	state := s.machine.State()
	fresh := state != model.ConnectionConnecting && state != model.ConnectionConnected
	if fresh {
		s.session++
	}
	s.mu.Unlock()

	if fresh {
		s.rec.Reset()
	}
	s.machine.Connect()
}

// Disconnect stops synchronization. Nothing is published for the old
// session after it returns, apart from the disconnected event itself.
func (s *Service) Disconnect() {
	s.mu.Lock()
	s.session++
	s.mu.Unlock()
	s.machine.Disconnect()
}

// Close disconnects and releases the service. It waits for history writes
// already started, so the store may be closed once it returns.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Disconnect()
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.writes.Wait()
	s.cancel()
}

// Refresh fetches the full task list once outside the regular schedule
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	session := s.session
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if s.machine.State() == model.ConnectionDisconnected {
		return ErrNotConnected
	}
	return s.refresh(ctx, session)
}

func (s *Service) refresh(ctx context.Context, session uint64) error {
	payload, err := s.downloader.Status(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	s.exec.Post(func() {
		if !s.current(session) {
			return
		}
		s.dispatch(0, payload, false)
	})
	return nil
}

func (s *Service) current(session uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.session == session
}

// Submit creates download tasks for rawURL. A playlist URL is expanded into
// one task per video when enabled. Every accepted task is added to the
// active set right away; per-video failures are joined into the error.
func (s *Service) Submit(ctx context.Context, rawURL string) (*Submitted, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, download.ErrEmptyURL
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	result := &Submitted{ID: submissionID(), URL: rawURL}
	items := []platform.PlaylistItem{{URL: rawURL}}
	if s.opts.ExpandPlaylists && s.expander != nil && platform.IsPlaylistURL(rawURL) {
		pl, err := s.expander.Expand(ctx, rawURL)
		switch {
		case err != nil:
			log.Printf("tracker: playlist expansion failed, submitting %s as is: %v", rawURL, err)
		case len(pl.Items) == 0:
			log.Printf("tracker: playlist %s is empty, submitting as is", rawURL)
		default:
			items = pl.Items
			result.Playlist = pl.Title
		}
	}

	var (
		errs    []error
		changes reconcile.Changes
	)
	for _, item := range items {
		sub, err := s.downloader.Submit(ctx, download.SubmitRequest{
			URL:     item.URL,
			Format:  s.opts.Format,
			Quality: s.opts.Quality,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("submit %s: %w", item.URL, err))
			continue
		}

		u := sub.Update()
		if u.URL == "" {
			u.URL = item.URL
		}
		if u.Title == "" {
			u.Title = item.Title
		}
		ch := s.rec.AddOptimistic(u)
		changes.Inserted = append(changes.Inserted, ch.Inserted...)
		changes.Updated = append(changes.Updated, ch.Updated...)

		if local, ok := s.rec.Get(u.TaskID); ok {
			result.Tasks = append(result.Tasks, local)
		}
	}

	if len(result.Tasks) > 0 {
		s.exec.Post(func() {
			s.bus.Publish(bus.TopicTaskSubmitted, *result)
			s.publishChanges(changes)
		})
	}
	if err := errors.Join(errs...); err != nil {
		log.Printf("tracker: %d of %d submissions failed: %v", len(errs), len(items), err)
		return result, err
	}
	return result, nil
}

// Cancel removes the task from the active set and asks the service to
// cancel it. The local removal stands even when the request fails.
func (s *Service) Cancel(ctx context.Context, taskID string) error {
	if taskID == "" {
		return download.ErrEmptyTaskID
	}
	if _, ok := s.rec.Cancel(taskID); ok {
		s.exec.Post(func() {
			s.publishChanges(reconcile.Changes{Removed: []string{taskID}})
		})
	}

	if err := s.downloader.Cancel(ctx, taskID); err != nil {
		log.Printf("tracker: cancel %s failed: %v", taskID, err)
		return fmt.Errorf("cancel %s: %w", taskID, err)
	}
	return nil
}

// handleResult runs on the executor for every live source result
func (s *Service) handleResult(res transport.Result) {
	s.machine.Observe(res)
	if res.Err != nil {
		return
	}

	if s.opts.Mode == model.ModeWebSocket {
		if res.Payload == nil {
			// the stream only carries changes; load the full list once per dial
			s.mu.Lock()
			session := s.session
			s.mu.Unlock()
			s.spawn(func() {
				ctx, cancel := context.WithTimeout(s.ctx, s.requestTimeout())
				defer cancel()
				if err := s.refresh(ctx, session); err != nil {
					log.Printf("tracker: initial list after dial: %v", err)
				}
			})
			return
		}
		s.dispatch(res.Seq, pushFrame(res.Payload), true)
		return
	}
	s.dispatch(res.Seq, res.Payload, false)
}

// dispatch normalizes one payload and publishes it. Normalization finishes
// before anything is published; null payloads and snapshots older than the
// applied one publish nothing.
func (s *Service) dispatch(seq uint64, payload any, events bool) {
	batch := normalize.Normalize(payload)
	if batch.Empty() {
		return
	}
	if batch.IsSystem() {
		s.bus.Publish(bus.TopicSystemStatus, batch.System)
		return
	}
	if !events && s.rec.Stale(seq) {
		log.Printf("tracker: ignoring snapshot %d, a newer one was applied", seq)
		return
	}

	for _, u := range batch.Updates {
		s.bus.Publish(bus.TopicTaskStatusUpdate, u)
		s.bus.Publish(bus.TopicDownloadProgress, u)
	}
	s.bus.Publish(bus.TopicTaskSnapshot, Snapshot{
		Seq:     seq,
		Shape:   batch.Shape,
		Updates: batch.Updates,
		Events:  events,
	})
}

func (s *Service) onSnapshot(data any) {
	snap, ok := data.(Snapshot)
	if !ok {
		return
	}

	var ch reconcile.Changes
	if snap.Events {
		ch = s.rec.ApplyEvents(snap.Updates)
	} else {
		ch = s.rec.ApplySnapshot(snap.Seq, snap.Updates)
	}
	if ch.Stale {
		log.Printf("tracker: ignoring snapshot %d, a newer one was applied", snap.Seq)
		return
	}
	s.publishChanges(ch)
}

func (s *Service) publishChanges(ch reconcile.Changes) {
	if ch.Empty() {
		return
	}
	s.bus.Publish(bus.TopicTaskListChanged, TaskList{
		Active:  s.rec.Active(),
		Recent:  s.rec.Recent(),
		Changes: ch,
	})
	for _, t := range ch.Retired {
		s.bus.Publish(bus.TopicTaskRetired, t)
	}
}

func (s *Service) onRetired(data any) {
	t, ok := data.(model.LocalTask)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.writes.Add(1)
	s.mu.Unlock()

	s.spawn(func() {
		defer s.writes.Done()
		ctx, cancel := context.WithTimeout(s.ctx, historyTimeout)
		defer cancel()
		if err := s.history.Record(ctx, t); err != nil {
			log.Printf("tracker: record %s in history: %v", t.TaskID, err)
		}
	})
}

func (s *Service) onConnectionEvent(ev model.ConnectionEvent) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	s.exec.Post(func() {
		s.mu.Lock()
		stale := s.session != session
		s.mu.Unlock()
		if stale {
			return
		}
		s.bus.Publish(bus.TopicConnectionStatusChanged, ev)
	})
}

func (s *Service) requestTimeout() time.Duration {
	if s.opts.RequestTimeout > 0 {
		return s.opts.RequestTimeout
	}
	return transport.DefaultRequestTimeout
}

// pushFrame fills in the status a download_progress frame implies
func pushFrame(payload any) any {
	obj, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	if obj["type"] != bus.TopicDownloadProgress {
		return payload
	}
	if _, present := obj["status"]; present {
		return payload
	}
	frame := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		frame[k] = v
	}
	frame["status"] = string(model.TaskStatusDownloading)
	return frame
}

func submissionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
