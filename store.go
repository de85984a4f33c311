package permit

import (
	"context"
	"fmt"
	"sync"
)

// ============================================================================
// TUPLE STORE CONTRACT
// ============================================================================

// TupleStore persists policy tuples durably and signals mutations. The
// loader re-reads the full tuple set on every notification, so stores may
// coalesce signals freely.
type TupleStore interface {
	// LoadAll returns every tuple currently persisted.
	LoadAll(ctx context.Context) ([]Tuple, error)
	// AddTuple persists one tuple. Adding an existing tuple is a no-op.
	AddTuple(ctx context.Context, t Tuple) error
	// RemoveTuple deletes one tuple by column equality.
	RemoveTuple(ctx context.Context, t Tuple) error
	// Watch returns a channel that receives a signal after each mutation.
	// The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// MemoryTupleStore keeps tuples in memory. Used by tests, demos and as the
// seed target for config-driven setups.
type MemoryTupleStore struct {
	mu       sync.RWMutex
	tuples   []Tuple
	index    map[string]int
	watchers []chan struct{}
}

func NewMemoryTupleStore() *MemoryTupleStore {
	return &MemoryTupleStore{index: make(map[string]int)}
}

func (s *MemoryTupleStore) LoadAll(ctx context.Context) ([]Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tuple, len(s.tuples))
	copy(out, s.tuples)
	return out, nil
}

func (s *MemoryTupleStore) AddTuple(ctx context.Context, t Tuple) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t = t.Normalize()
	s.mu.Lock()
	if _, exists := s.index[t.Key()]; exists {
		s.mu.Unlock()
		return nil
	}
	s.index[t.Key()] = len(s.tuples)
	s.tuples = append(s.tuples, t)
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MemoryTupleStore) RemoveTuple(ctx context.Context, t Tuple) error {
	t = t.Normalize()
	s.mu.Lock()
	i, exists := s.index[t.Key()]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("tuple not found: %s", t.Key())
	}
	s.tuples = append(s.tuples[:i], s.tuples[i+1:]...)
	delete(s.index, t.Key())
	for j := i; j < len(s.tuples); j++ {
		s.index[s.tuples[j].Key()] = j
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MemoryTupleStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// notify signals every watcher without blocking; a watcher that already has
// a pending signal is skipped, the next reload reads the full set anyway.
func (s *MemoryTupleStore) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
