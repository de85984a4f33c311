package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/squealx"
)

// SQLTupleStore persists policy tuples in the flat six-column layout
// (ptype, v0..v5) via squealx. Watch signals are local to this process;
// wrap the store with RedisWatchStore to fan mutations out across nodes.
type SQLTupleStore struct {
	db       *squealx.DB
	mu       sync.Mutex
	watchers []chan struct{}
}

func NewSQLTupleStore(db *squealx.DB) *SQLTupleStore {
	return &SQLTupleStore{db: db}
}

func (s *SQLTupleStore) LoadAll(ctx context.Context) ([]permit.Tuple, error) {
	q := `SELECT ptype, v0, v1, v2, v3, v4, v5 FROM policy_rules`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]permit.Tuple, 0)
	for r.Next() {
		var ptype, v0, v1, v2, v3, v4, v5 string
		if err := r.Scan(&ptype, &v0, &v1, &v2, &v3, &v4, &v5); err != nil {
			return nil, err
		}
		out = append(out, permit.Tuple{Ptype: permit.Ptype(ptype), V0: v0, V1: v1, V2: v2, V3: v3, V4: v4, V5: v5})
	}
	return out, nil
}

func (s *SQLTupleStore) AddTuple(ctx context.Context, t permit.Tuple) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t = t.Normalize()
	exists, err := s.exists(ctx, t)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	q := `INSERT INTO policy_rules(ptype, v0, v1, v2, v3, v4, v5, created_at) VALUES(:ptype, :v0, :v1, :v2, :v3, :v4, :v5, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, q, tupleParams(t, map[string]any{"created_at": time.Now()})); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *SQLTupleStore) RemoveTuple(ctx context.Context, t permit.Tuple) error {
	t = t.Normalize()
	q := `DELETE FROM policy_rules WHERE ptype = :ptype AND v0 = :v0 AND v1 = :v1 AND v2 = :v2 AND v3 = :v3 AND v4 = :v4 AND v5 = :v5`
	res, err := s.db.NamedExecContext(ctx, q, tupleParams(t, nil))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("tuple not found: %s", t.Key())
	}
	s.notify()
	return nil
}

func (s *SQLTupleStore) Watch(ctx context.Context) (<-chan struct{}, error) {
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

// ListSince returns tuples persisted at or after the given time, for
// operator inspection of recent policy churn.
func (s *SQLTupleStore) ListSince(ctx context.Context, since time.Time) ([]permit.Tuple, error) {
	q := `SELECT ptype, v0, v1, v2, v3, v4, v5, created_at FROM policy_rules ORDER BY created_at ASC`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]permit.Tuple, 0)
	for r.Next() {
		var ptype, v0, v1, v2, v3, v4, v5 string
		var createdRaw interface{}
		if err := r.Scan(&ptype, &v0, &v1, &v2, &v3, &v4, &v5, &createdRaw); err != nil {
			return nil, err
		}
		created, ok := scanTime(createdRaw)
		if ok && created.Before(since) {
			continue
		}
		out = append(out, permit.Tuple{Ptype: permit.Ptype(ptype), V0: v0, V1: v1, V2: v2, V3: v3, V4: v4, V5: v5})
	}
	return out, nil
}

func (s *SQLTupleStore) exists(ctx context.Context, t permit.Tuple) (bool, error) {
	q := `SELECT COUNT(1) FROM policy_rules WHERE ptype = :ptype AND v0 = :v0 AND v1 = :v1 AND v2 = :v2 AND v3 = :v3 AND v4 = :v4 AND v5 = :v5`
	r, err := s.db.NamedQueryContext(ctx, q, tupleParams(t, nil))
	if err != nil {
		return false, err
	}
	defer r.Close()
	if !r.Next() {
		return false, nil
	}
	var n int
	if err := r.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLTupleStore) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func tupleParams(t permit.Tuple, extra map[string]any) map[string]any {
	params := map[string]any{
		"ptype": string(t.Ptype),
		"v0":    t.V0,
		"v1":    t.V1,
		"v2":    t.V2,
		"v3":    t.V3,
		"v4":    t.V4,
		"v5":    t.V5,
	}
	for k, v := range extra {
		params[k] = v
	}
	return params
}
