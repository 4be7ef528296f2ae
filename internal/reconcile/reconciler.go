// Package reconcile merges server snapshots with the client's locally held
// task list.
//
// The first snapshot after Reset replaces the local set with the server's
// non-terminal tasks, keeping optimistic entries created since that Reset.
// Every later snapshot merges: known tasks are updated in place, unknown
// tasks are inserted, and tasks reaching a terminal status move to a capped
// list of recently finished tasks. Tasks a snapshot does not mention are
// never evicted.
package reconcile

import (
	"sort"
	"sync"

	"github.com/ytget/dlsync/internal/clock"
	"github.com/ytget/dlsync/internal/model"
)

// DefaultRecentLimit caps the recently finished list
const DefaultRecentLimit = 5

// Options configure a Reconciler
type Options struct {
	RecentLimit int
	Clock       clock.Clock
}

// Changes describes what one operation did to the local set
type Changes struct {
	Inserted []string
	Updated  []string
	Removed  []string
	Retired  []model.LocalTask
	// Stale is set when a snapshot was ignored as older than one already applied
	Stale bool
}

// Empty reports whether nothing changed
func (c Changes) Empty() bool {
	return len(c.Inserted) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0 && len(c.Retired) == 0
}

// Reconciler owns the local task set
type Reconciler struct {
	opts Options

	mu      sync.Mutex
	epoch   uint64
	initial bool
	lastSeq uint64
	active  map[string]*model.LocalTask
	order   []string
	recent  []model.LocalTask
}

// New creates an empty reconciler awaiting its initial snapshot
func New(opts Options) *Reconciler {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Reconciler{
		opts:    opts,
		epoch:   1,
		initial: true,
		active:  make(map[string]*model.LocalTask),
	}
}

// Reset starts a new session: the next snapshot is treated as the initial
// load and sequence tracking starts over
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	r.initial = true
	r.lastSeq = 0
}

// ApplySnapshot merges one normalized snapshot. A non-zero seq older than
// the newest applied one is ignored, since polls may complete out of order.
func (r *Reconciler) ApplySnapshot(seq uint64, updates []model.TaskUpdate) Changes {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq != 0 && seq < r.lastSeq {
		return Changes{Stale: true}
	}
	if seq > r.lastSeq {
		r.lastSeq = seq
	}

	if r.initial {
		r.initial = false
		return r.replaceLocked(updates)
	}
	return r.mergeLocked(updates)
}

// Stale reports whether a snapshot with seq would be ignored by ApplySnapshot
func (r *Reconciler) Stale(seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return seq != 0 && seq < r.lastSeq
}

// ApplyEvents merges individually pushed task events. Events never count as
// the initial load and carry no snapshot sequence.
func (r *Reconciler) ApplyEvents(updates []model.TaskUpdate) Changes {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mergeLocked(updates)
}

func (r *Reconciler) replaceLocked(updates []model.TaskUpdate) Changes {
	var ch Changes
	now := r.opts.Clock.Now()

	previous := r.active
	r.active = make(map[string]*model.LocalTask, len(updates))
	order := make([]string, 0, len(updates))
	var finished []model.LocalTask
	finishedAt := make(map[string]int)

	for _, u := range updates {
		if u.Status.IsTerminal() {
			finishedAt[u.TaskID] = len(finished)
			finished = append(finished, model.LocalTask{TaskUpdate: u, AddedAt: now, RetiredAt: u.LastUpdated})
			continue
		}
		if _, dup := r.active[u.TaskID]; dup {
			continue
		}

		if local, ok := previous[u.TaskID]; ok {
			applyUpdate(local, u)
			local.Optimistic = false
			r.active[u.TaskID] = local
			ch.Updated = append(ch.Updated, u.TaskID)
		} else {
			r.active[u.TaskID] = &model.LocalTask{TaskUpdate: u, Epoch: r.epoch, AddedAt: now}
			ch.Inserted = append(ch.Inserted, u.TaskID)
		}
		order = append(order, u.TaskID)
	}

	// optimistic entries of the current session survive the replacement;
	// everything else from before is dropped
	for _, id := range r.order {
		local := previous[id]
		if _, kept := r.active[id]; kept {
			continue
		}
		if i, done := finishedAt[id]; done && local.Optimistic && local.Epoch == r.epoch {
			// a task submitted in this session finished before the first list
			applyUpdate(local, finished[i].TaskUpdate)
			local.Optimistic = false
			local.RetiredAt = now
			finished[i] = *local
			ch.Retired = append(ch.Retired, *local)
			continue
		}
		if local.Optimistic && local.Epoch == r.epoch {
			r.active[id] = local
			order = append(order, id)
			continue
		}
		ch.Removed = append(ch.Removed, id)
	}
	r.order = r.sortByCreationLocked(order)

	for _, t := range finished {
		r.addRecentLocked(t)
	}
	return ch
}

// sortByCreationLocked orders ids by the time the client learned about them,
// keeping snapshot order for ties
func (r *Reconciler) sortByCreationLocked(ids []string) []string {
	sort.SliceStable(ids, func(i, j int) bool {
		return r.active[ids[i]].AddedAt.Before(r.active[ids[j]].AddedAt)
	})
	return ids
}

func (r *Reconciler) mergeLocked(updates []model.TaskUpdate) Changes {
	var ch Changes
	now := r.opts.Clock.Now()

	for _, u := range updates {
		local, ok := r.active[u.TaskID]
		if !ok {
			// finished tasks the client never held are not news
			if u.Status.IsTerminal() {
				continue
			}
			r.active[u.TaskID] = &model.LocalTask{TaskUpdate: u, Epoch: r.epoch, AddedAt: now}
			r.order = append(r.order, u.TaskID)
			ch.Inserted = append(ch.Inserted, u.TaskID)
			continue
		}

		if !u.LastUpdated.IsZero() && u.LastUpdated.Before(local.LastUpdated) {
			continue
		}

		before := *local
		applyUpdate(local, u)
		local.Optimistic = false

		if local.Status.IsTerminal() {
			local.RetiredAt = now
			r.removeLocked(u.TaskID)
			r.addRecentLocked(*local)
			ch.Retired = append(ch.Retired, *local)
			continue
		}
		if *local != before {
			ch.Updated = append(ch.Updated, u.TaskID)
		}
	}
	return ch
}

// applyUpdate overwrites the mutable fields of local. Display fields are
// only replaced when the server sends them, and progress does not move
// backwards while the task stays active.
func applyUpdate(local *model.LocalTask, u model.TaskUpdate) {
	progress := u.Progress
	if local.Status.IsActive() && u.Status.IsActive() && progress < local.Progress {
		progress = local.Progress
	}

	local.Status = u.Status
	local.Progress = progress
	local.DownloadedBytes = u.DownloadedBytes
	local.TotalBytes = u.TotalBytes
	local.DownloadSpeed = u.DownloadSpeed
	local.ETASeconds = u.ETASeconds
	local.Error = u.Error

	if u.Title != "" {
		local.Title = u.Title
	}
	if u.URL != "" {
		local.URL = u.URL
	}
	if u.Message != "" {
		local.Message = u.Message
	}
	if !u.CreatedAt.IsZero() {
		local.CreatedAt = u.CreatedAt
	}
	if !u.LastUpdated.IsZero() {
		local.LastUpdated = u.LastUpdated
	}
}

// AddOptimistic records a task the user just submitted. If the server has
// already reported it, only missing display fields are filled in.
func (r *Reconciler) AddOptimistic(u model.TaskUpdate) Changes {
	r.mu.Lock()
	defer r.mu.Unlock()

	if local, ok := r.active[u.TaskID]; ok {
		if local.Title == "" {
			local.Title = u.Title
		}
		if local.URL == "" {
			local.URL = u.URL
		}
		return Changes{Updated: []string{u.TaskID}}
	}

	if u.Status == "" {
		u.Status = model.TaskStatusPending
	}
	r.active[u.TaskID] = &model.LocalTask{
		TaskUpdate: u,
		Optimistic: true,
		Epoch:      r.epoch,
		AddedAt:    r.opts.Clock.Now(),
	}
	r.order = append(r.order, u.TaskID)
	return Changes{Inserted: []string{u.TaskID}}
}

// Cancel removes a task from the active set right away. The removal is not
// undone if the server later rejects the cancellation; a snapshot that
// still reports the task brings it back.
func (r *Reconciler) Cancel(taskID string) (model.LocalTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	local, ok := r.active[taskID]
	if !ok {
		return model.LocalTask{}, false
	}
	removed := *local
	r.removeLocked(taskID)
	return removed, true
}

// Get returns the active entry for taskID
func (r *Reconciler) Get(taskID string) (model.LocalTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	local, ok := r.active[taskID]
	if !ok {
		return model.LocalTask{}, false
	}
	return *local, true
}

// Active returns copies of the active tasks in creation order
func (r *Reconciler) Active() []model.LocalTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.LocalTask, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.active[id])
	}
	return out
}

// Recent returns copies of the recently finished tasks, most recent first
func (r *Reconciler) Recent() []model.LocalTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.LocalTask, len(r.recent))
	copy(out, r.recent)
	return out
}

// SeedRecent restores recently finished tasks, e.g. from local history
func (r *Reconciler) SeedRecent(tasks []model.LocalTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		r.addRecentLocked(t)
	}
}

func (r *Reconciler) removeLocked(taskID string) {
	delete(r.active, taskID)
	next := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if id != taskID {
			next = append(next, id)
		}
	}
	r.order = next
}

func (r *Reconciler) addRecentLocked(t model.LocalTask) {
	next := make([]model.LocalTask, 0, len(r.recent)+1)
	next = append(next, t)
	for _, existing := range r.recent {
		if existing.TaskID != t.TaskID {
			next = append(next, existing)
		}
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].SortTime().After(next[j].SortTime())
	})
	if len(next) > r.opts.RecentLimit {
		next = next[:r.opts.RecentLimit]
	}
	r.recent = next
}
