// Package reconcile implements the client-side optimistic like toggle: apply
// the tentative flip immediately, reconcile with the authoritative counter
// store response, roll back to the exact pre-toggle snapshot on failure, and
// keep every concurrently rendered view of a post consistent through a shared
// count table. A guard set of in-flight posts shields pending toggles from
// stale realtime pushes.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/suplatzigram/go-engagement-cache/counter"
)

// State is the displayed engagement state of one post.
type State struct {
	Liked bool
	Count int64
}

// Toggler is the server boundary the reconciler calls. Satisfied by every
// counter.Store.
type Toggler interface {
	Toggle(ctx context.Context, postID, sessionID string) (counter.Result, error)
}

// Syncer receives settled toggles for durability. Satisfied by
// syncbridge.Bridge.
type Syncer interface {
	EnqueueLike(postID, sessionID string, liked bool, count int64)
}

// Options tunes a Reconciler.
type Options struct {
	// ToggleTimeout bounds the toggle round-trip. A hung request settles
	// through the failure path instead of pinning the post in Pending.
	ToggleTimeout time.Duration

	Logger *slog.Logger
}

// Reconciler owns the per-session client state shared by all views: the
// cross-view count table, the in-flight guard set, and the rollback
// snapshots. One Reconciler per browser session.
type Reconciler struct {
	counters  Toggler
	sync      Syncer
	sessionID string
	timeout   time.Duration
	log       *slog.Logger

	// shared is the cross-view table; every settled toggle and accepted
	// remote update is merged here last-writer-wins, and views read
	// through it.
	shared *xsync.MapOf[string, State]

	// inflight guards posts with a toggle in progress: re-clicks are
	// ignored and remote pushes dropped while a post is a member.
	inflight mapset.Set[string]

	// snapshots holds the exact pre-toggle state for rollback. Restoring
	// the snapshot, not inverting the delta, keeps rapid toggling from
	// compounding errors.
	mu        sync.Mutex
	snapshots map[string]State
}

// New creates a reconciler for one session.
func New(counters Toggler, syncer Syncer, sessionID string, opts Options) *Reconciler {
	if opts.ToggleTimeout <= 0 {
		opts.ToggleTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reconciler{
		counters:  counters,
		sync:      syncer,
		sessionID: sessionID,
		timeout:   opts.ToggleTimeout,
		log:       opts.Logger,
		shared:    xsync.NewMapOf[string, State](),
		inflight:  mapset.NewSet[string](),
		snapshots: make(map[string]State),
	}
}

// NewView creates a rendered view instance backed by this reconciler.
func (r *Reconciler) NewView() *View {
	return &View{r: r, local: make(map[string]State)}
}

// Pending reports whether a toggle is in flight for the post.
func (r *Reconciler) Pending(postID string) bool {
	return r.inflight.Contains(postID)
}

// HandleRemoteUpdate merges a pushed like-count into the shared table, unless
// the post has a toggle in flight: a stale broadcast must not clobber the
// optimistic state mid-request.
func (r *Reconciler) HandleRemoteUpdate(postID string, count int64) {
	if r.inflight.Contains(postID) {
		r.log.Debug("dropping remote update for in-flight post", "post_id", postID)
		return
	}
	prev, ok := r.shared.Load(postID)
	if !ok {
		r.shared.Store(postID, State{Liked: false, Count: count})
		return
	}
	prev.Count = count
	r.shared.Store(postID, prev)
}

// ToggleLike runs one complete toggle for the given view. The optimistic flip
// is applied synchronously before the store call; the method then blocks
// until the toggle settles, so callers that must not wait run it on its own
// goroutine. A second call for the same post while the first is pending is
// ignored entirely and reports false.
func (r *Reconciler) ToggleLike(ctx context.Context, v *View, postID string) bool {
	// Double-click guard: only the first click enters Pending.
	if !r.inflight.Add(postID) {
		return false
	}

	before := v.State(postID)
	r.mu.Lock()
	r.snapshots[postID] = before
	r.mu.Unlock()

	// Optimistic flip, visible to every view immediately.
	optimistic := State{Liked: !before.Liked, Count: before.Count + 1}
	if before.Liked {
		optimistic.Count = before.Count - 1
		if optimistic.Count < 0 {
			optimistic.Count = 0
		}
	}
	v.set(postID, optimistic)
	r.shared.Store(postID, optimistic)

	toggleCtx, cancel := context.WithTimeout(ctx, r.timeout)
	result, err := r.counters.Toggle(toggleCtx, postID, r.sessionID)
	cancel()

	if err != nil {
		// Full-fidelity rollback to the pre-toggle snapshot.
		r.log.Warn("toggle failed, rolling back", "post_id", postID, "error", err)
		v.set(postID, before)
		r.shared.Store(postID, before)
		r.settle(postID)
		return false
	}

	// Authoritative overwrite: server truth replaces the optimistic
	// delta, guarding against double counting when the two disagree.
	settled := State{Liked: result.Liked, Count: result.Count}
	v.set(postID, settled)
	r.shared.Store(postID, settled)
	r.settle(postID)

	if r.sync != nil {
		r.sync.EnqueueLike(postID, r.sessionID, result.Liked, result.Count)
	}
	return true
}

func (r *Reconciler) settle(postID string) {
	r.inflight.Remove(postID)
	r.mu.Lock()
	delete(r.snapshots, postID)
	r.mu.Unlock()
}

// View is one independently rendered surface showing posts (a feed card, a
// modal, a profile grid cell). Views bind initial server-rendered state and
// then read through the reconciler's shared table, so a toggle settled in
// any view is observed by all of them.
type View struct {
	r  *Reconciler
	mu sync.Mutex
	// local holds the view's bound state, used until (and beneath) shared
	// table entries.
	local map[string]State
}

// Bind seeds the view with server-rendered state. Binding never overwrites a
// shared entry: a settled toggle in another view is newer than the render
// this view came from.
func (v *View) Bind(postID string, liked bool, count int64) {
	state := State{Liked: liked, Count: count}
	v.mu.Lock()
	v.local[postID] = state
	v.mu.Unlock()
	v.r.shared.LoadOrStore(postID, state)
}

// State returns the post's displayed state: the shared table when it has an
// entry, the local binding otherwise.
func (v *View) State(postID string) State {
	if state, ok := v.r.shared.Load(postID); ok {
		return state
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.local[postID]
}

func (v *View) set(postID string, state State) {
	v.mu.Lock()
	v.local[postID] = state
	v.mu.Unlock()
}
