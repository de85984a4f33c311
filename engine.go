package permit

import (
	"context"
	"errors"
	"time"

	"github.com/oarkflow/permit/logger"
	"github.com/oarkflow/permit/utils"
)

// ============================================================================
// DECISION ENGINE
// ============================================================================

// Engine evaluates requests against the current policy snapshot and owns the
// administration path for tuple mutations. Evaluation is a pure in-memory
// function over the snapshot; no I/O happens on the hot path.
type Engine struct {
	store  TupleStore
	loader *Loader
	logger logger.Logger
	now    func() time.Time
}

type EngineOption func(*Engine) error

// WithLogger installs a structured logger on the engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithClock overrides the evaluation timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		e.now = now
		return nil
	}
}

func NewEngine(store TupleStore, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		store:  store,
		logger: logger.NewNullLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.loader = NewLoader(store, e.logger)
	return e, nil
}

// Start loads the initial snapshot (fatal on failure) and begins following
// store mutations.
func (e *Engine) Start(ctx context.Context) error {
	return e.loader.Start(ctx)
}

// Loader exposes the snapshot loader, mainly so the gateway can hang cache
// invalidation on reloads.
func (e *Engine) Loader() *Loader { return e.loader }

// Snapshot returns the current policy snapshot.
func (e *Engine) Snapshot() *Snapshot { return e.loader.Snapshot() }

// Evaluate decides one request against the current snapshot. Every failure
// path returns a deny decision; the error distinguishes integrity and
// internal faults from a plain policy deny.
func (e *Engine) Evaluate(ctx context.Context, req *Request) (*Decision, error) {
	deny := func(reason string) *Decision {
		return &Decision{Allowed: false, Reason: reason, EvaluatedAt: e.now()}
	}
	if err := ctx.Err(); err != nil {
		return deny(ReasonEvaluationError), &EvaluationError{Stage: "context", Err: err}
	}
	snap := e.loader.Snapshot()
	if snap == nil {
		return deny(ReasonEvaluationError), &EvaluationError{Stage: "snapshot", Err: errors.New("no policy snapshot loaded")}
	}

	action := NormalizeAction(req.Action)

	roles, warnings := snap.EffectiveRoles(req.SubjectID, req.TenantID, req.Roles)
	for _, w := range warnings {
		e.logger.Info("role hierarchy warning", "subject", req.SubjectID, "tenant", req.TenantID, "warning", w)
	}

	// Assignment-time validation should make this unreachable; if it trips,
	// deny and flag the integrity fault instead of granting an ambiguous
	// permission.
	if v := snap.Conflicts().Validate(roles); v != nil {
		e.logger.Error("policy integrity violation", "subject", req.SubjectID, "tenant", req.TenantID, "role_a", v.RoleA, "role_b", v.RoleB)
		return deny(ReasonConflictViolation), v
	}

	candidates := make([]permRule, 0, 4)
	candidates = append(candidates, snap.permsFor(req.SubjectID)...)
	for role := range roles {
		candidates = append(candidates, snap.permsFor(role)...)
	}

	for _, rule := range candidates {
		t := rule.tuple
		if t.V2 != action {
			continue
		}
		if !utils.MatchResource(req.Resource, t.V1) {
			continue
		}
		if rule.condErr != nil {
			return deny(ReasonEvaluationError), &EvaluationError{Stage: "condition", Err: rule.condErr}
		}
		if !rule.cond.Evaluate(req.Attrs) {
			continue
		}
		// literal tenant scope: a rule bound to tenant X never matches a
		// request for tenant Y
		if t.V4 != "" && t.V4 != req.TenantID {
			continue
		}
		if t.V5 != "" && req.Attrs[AttrFeatureEnabled] != t.V5 {
			continue
		}
		matched := t
		return &Decision{
			Allowed:     true,
			Reason:      ReasonRuleMatch,
			MatchedRule: &matched,
			EvaluatedAt: e.now(),
		}, nil
	}

	return deny(ReasonDefaultDeny), nil
}

// ============================================================================
// ADMINISTRATION
// ============================================================================

// AddPolicy persists a tuple and swaps in a fresh snapshot. Grouping rows go
// through the same SoD validation as AssignRole.
func (e *Engine) AddPolicy(ctx context.Context, t Tuple) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Ptype == PtypeGrouping {
		if err := e.validateAssignment(t.V0, t.V1, t.V2); err != nil {
			return err
		}
	}
	if err := e.store.AddTuple(ctx, t); err != nil {
		return err
	}
	return e.loader.Reload(ctx)
}

// RemovePolicy deletes a tuple and swaps in a fresh snapshot.
func (e *Engine) RemovePolicy(ctx context.Context, t Tuple) error {
	if err := e.store.RemoveTuple(ctx, t); err != nil {
		return err
	}
	return e.loader.Reload(ctx)
}

// AssignRole grants member the role within tenant (empty tenant = global).
// The assignment is rejected before it reaches the store if the resulting
// effective role set would contain a conflicting pair.
func (e *Engine) AssignRole(ctx context.Context, member, role, tenant string) error {
	return e.AddPolicy(ctx, RoleAssignment(member, role, tenant))
}

// RevokeRole removes a role assignment.
func (e *Engine) RevokeRole(ctx context.Context, member, role, tenant string) error {
	return e.RemovePolicy(ctx, RoleAssignment(member, role, tenant))
}

// AddConflict registers roleA and roleB as mutually exclusive.
func (e *Engine) AddConflict(ctx context.Context, roleA, roleB string) error {
	return e.AddPolicy(ctx, Conflict(roleA, roleB))
}

// RemoveConflict drops a mutual-exclusion pair.
func (e *Engine) RemoveConflict(ctx context.Context, roleA, roleB string) error {
	return e.RemovePolicy(ctx, Conflict(roleA, roleB))
}

// validateAssignment simulates the closure member would have after gaining
// role and checks it against the SoD registry. A global edge is visible in
// every tenant the member already has edges in, so each of those scopes is
// validated, not just the new edge's own scope.
func (e *Engine) validateAssignment(member, role, tenant string) error {
	snap := e.loader.Snapshot()
	if snap == nil {
		return nil // nothing loaded yet, seed path
	}
	scopes := map[string]struct{}{tenant: {}}
	for _, edge := range snap.edges[member] {
		scopes[edge.tenant] = struct{}{}
	}
	for scope := range scopes {
		// a tenant-scoped edge only changes the closure within its tenant
		if tenant != "" && tenant != scope {
			continue
		}
		roles, _ := snap.EffectiveRoles(member, scope, []string{role})
		if v := snap.Conflicts().Validate(roles); v != nil {
			return v
		}
	}
	return nil
}
