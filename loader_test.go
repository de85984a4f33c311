package permit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyStore wraps a MemoryTupleStore and fails LoadAll on demand.
type flakyStore struct {
	*MemoryTupleStore
	fail bool
}

func (s *flakyStore) LoadAll(ctx context.Context) ([]Tuple, error) {
	if s.fail {
		return nil, errors.New("store unreachable")
	}
	return s.MemoryTupleStore.LoadAll(ctx)
}

func TestLoaderStartupFailureIsFatal(t *testing.T) {
	store := &flakyStore{MemoryTupleStore: NewMemoryTupleStore(), fail: true}
	l := NewLoader(store, nil)
	err := l.Load(context.Background())
	if err == nil {
		t.Fatalf("expected startup load failure")
	}
	var le *PolicyLoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected PolicyLoadError, got %T: %v", err, err)
	}
	if l.Snapshot() != nil {
		t.Fatalf("no snapshot may be published after a failed load")
	}
}

func TestLoaderServesStaleSnapshotOnRefreshFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryTupleStore: NewMemoryTupleStore()}
	_ = store.AddTuple(ctx, Permission("ADMIN", "/audit", "read"))

	l := NewLoader(store, nil)
	if err := l.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := l.Snapshot()

	store.fail = true
	err := l.Reload(ctx)
	if err == nil {
		t.Fatalf("expected refresh failure")
	}
	var re *PolicyRefreshError
	if !errors.As(err, &re) {
		t.Fatalf("expected PolicyRefreshError, got %T: %v", err, err)
	}
	if l.Snapshot() != before {
		t.Fatalf("failed refresh must keep the previous snapshot published")
	}
}

func TestLoaderSnapshotSwapIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTupleStore()
	_ = store.AddTuple(ctx, Permission("ADMIN", "/audit", "read"))

	l := NewLoader(store, nil)
	if err := l.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	v1 := l.Snapshot().Version()

	_ = store.AddTuple(ctx, Permission("ADMIN", "/billing", "read"))
	if err := l.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := l.Snapshot().Version(); got <= v1 {
		t.Fatalf("expected a newer snapshot version, got %d after %d", got, v1)
	}
}

func TestLoaderReloadHooksFire(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTupleStore()
	l := NewLoader(store, nil)

	fired := 0
	l.OnReload(func(s *Snapshot) { fired++ })
	if err := l.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := l.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fired != 2 {
		t.Fatalf("expected 2 hook invocations, got %d", fired)
	}
}

func TestWatchDrivenReload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewMemoryTupleStore()
	l := NewLoader(store, nil)
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	v1 := l.Snapshot().Version()

	// external mutation, not routed through the engine
	if err := store.AddTuple(ctx, Permission("ADMIN", "/audit", "read")); err != nil {
		t.Fatalf("add tuple: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if l.Snapshot().Version() > v1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("watch notification never triggered a reload")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
