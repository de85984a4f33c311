package permit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oarkflow/permit/logger"
)

// ============================================================================
// POLICY LOADER
// ============================================================================

// Loader pulls the full tuple set from the store and publishes it as an
// immutable Snapshot behind an atomic pointer. In-flight evaluations always
// see a consistent snapshot; a refresh swaps the pointer, never the data.
type Loader struct {
	store   TupleStore
	logger  logger.Logger
	snap    atomic.Pointer[Snapshot]
	version atomic.Uint64

	backoffMin time.Duration
	backoffMax time.Duration

	mu       sync.Mutex
	onReload []func(*Snapshot)
}

func NewLoader(store TupleStore, log logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Loader{
		store:      store,
		logger:     log,
		backoffMin: 250 * time.Millisecond,
		backoffMax: 30 * time.Second,
	}
}

// SetBackoff adjusts the refresh retry window. Zero or negative values keep
// the current bounds. Call before Start.
func (l *Loader) SetBackoff(min, max time.Duration) {
	if min > 0 {
		l.backoffMin = min
	}
	if max > 0 {
		l.backoffMax = max
	}
	if l.backoffMax < l.backoffMin {
		l.backoffMax = l.backoffMin
	}
}

// Snapshot returns the current snapshot, or nil before the first Load.
func (l *Loader) Snapshot() *Snapshot {
	return l.snap.Load()
}

// OnReload registers a hook invoked after every successful snapshot swap.
// The decision cache hangs its invalidation here.
func (l *Loader) OnReload(fn func(*Snapshot)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = append(l.onReload, fn)
}

// Load performs the startup load. Failure here is fatal for the engine.
func (l *Loader) Load(ctx context.Context) error {
	if err := l.reload(ctx); err != nil {
		return &PolicyLoadError{Err: err}
	}
	return nil
}

// Reload refreshes the snapshot once. On failure the previous snapshot
// stays published and keeps serving.
func (l *Loader) Reload(ctx context.Context) error {
	if err := l.reload(ctx); err != nil {
		return &PolicyRefreshError{Attempt: 1, Err: err}
	}
	return nil
}

func (l *Loader) reload(ctx context.Context) error {
	tuples, err := l.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	snap := NewSnapshot(tuples, l.version.Add(1))
	l.snap.Store(snap)
	l.mu.Lock()
	hooks := make([]func(*Snapshot), len(l.onReload))
	copy(hooks, l.onReload)
	l.mu.Unlock()
	for _, fn := range hooks {
		fn(snap)
	}
	l.logger.Debug("policy snapshot swapped", "version", int(snap.Version()), "tuples", len(tuples))
	return nil
}

// Start loads the initial snapshot and then follows store mutations until
// ctx is done. Refresh failures are retried with exponential backoff while
// the stale snapshot continues to serve.
func (l *Loader) Start(ctx context.Context) error {
	if err := l.Load(ctx); err != nil {
		return err
	}
	ch, err := l.store.Watch(ctx)
	if err != nil {
		return &PolicyLoadError{Err: err}
	}
	go l.watch(ctx, ch)
	return nil
}

func (l *Loader) watch(ctx context.Context, ch <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			l.refreshWithBackoff(ctx)
		}
	}
}

func (l *Loader) refreshWithBackoff(ctx context.Context) {
	delay := l.backoffMin
	for attempt := 1; ; attempt++ {
		err := l.reload(ctx)
		if err == nil {
			return
		}
		rerr := &PolicyRefreshError{Attempt: attempt, Err: err}
		l.logger.Error("policy refresh failed, serving stale snapshot", "attempt", attempt, "error", rerr.Error())
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > l.backoffMax {
			delay = l.backoffMax
		}
	}
}
