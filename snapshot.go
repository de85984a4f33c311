package permit

import (
	"sort"
	"time"
)

// ============================================================================
// IN-MEMORY SNAPSHOT
// ============================================================================

// permRule is a p tuple with its pre-compiled condition. A rule whose
// condition failed to compile keeps the error; evaluating such a rule denies
// the request with an EvaluationError rather than silently skipping it.
type permRule struct {
	tuple   Tuple
	cond    Expr
	condErr error
}

type roleEdge struct {
	parent string
	tenant string // empty means the edge applies in every tenant
}

// Snapshot is an immutable, pre-indexed view of one complete tuple set.
// Readers share snapshots freely; the loader replaces the whole snapshot on
// every refresh and never mutates one in place.
type Snapshot struct {
	version  uint64
	loadedAt time.Time

	perms     map[string][]permRule // p rows by v0 (subject or role)
	edges     map[string][]roleEdge // g rows by member
	conflicts *ConflictRegistry     // g2 rows

	// attribute names referenced by rule conditions, grouped by action, for
	// bounded decision-cache keys
	attrsByAction map[string][]string
}

// NewSnapshot indexes a full tuple set. Tuples that fail validation are
// skipped; conditions are compiled once here so evaluation never parses.
func NewSnapshot(tuples []Tuple, version uint64) *Snapshot {
	s := &Snapshot{
		version:       version,
		loadedAt:      time.Now(),
		perms:         make(map[string][]permRule),
		edges:         make(map[string][]roleEdge),
		conflicts:     NewConflictRegistry(),
		attrsByAction: make(map[string][]string),
	}
	attrSeen := make(map[string]map[string]bool)
	for _, t := range tuples {
		t = t.Normalize()
		if err := t.Validate(); err != nil {
			continue
		}
		switch t.Ptype {
		case PtypePermission:
			cond, condErr := CompileCondition(t.V3)
			s.perms[t.V0] = append(s.perms[t.V0], permRule{tuple: t, cond: cond, condErr: condErr})
			for _, name := range ReferencedAttrs(t.V3) {
				if attrSeen[t.V2] == nil {
					attrSeen[t.V2] = make(map[string]bool)
				}
				attrSeen[t.V2][name] = true
			}
		case PtypeGrouping:
			s.edges[t.V0] = append(s.edges[t.V0], roleEdge{parent: t.V1, tenant: t.V2})
		case PtypeConflict:
			s.conflicts.Add(t.V0, t.V1)
		}
	}
	for action, names := range attrSeen {
		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)
		s.attrsByAction[action] = sorted
	}
	return s
}

// Version returns the monotonically increasing snapshot version.
func (s *Snapshot) Version() uint64 { return s.version }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Conflicts exposes the SoD registry built from g2 rows.
func (s *Snapshot) Conflicts() *ConflictRegistry { return s.conflicts }

// RelevantAttrs returns the attribute names any loaded rule for the given
// action references. Only these values go into decision-cache keys, keeping
// cache cardinality bounded.
func (s *Snapshot) RelevantAttrs(action string) []string {
	return s.attrsByAction[action]
}

// permsFor returns the p rules whose v0 equals the given subject or role.
func (s *Snapshot) permsFor(key string) []permRule {
	return s.perms[key]
}

// edgeApplies reports whether a g edge is visible in the requesting tenant.
func edgeApplies(e roleEdge, tenantID string) bool {
	return e.tenant == "" || e.tenant == tenantID
}
