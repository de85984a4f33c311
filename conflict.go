package permit

// ============================================================================
// CONFLICT (SoD) REGISTRY
// ============================================================================

// ConflictRegistry tracks mutually exclusive role pairs from g2 rows. It is
// consulted at role-assignment time to reject conflicting assignments, and
// re-checked during evaluation as an integrity guard.
type ConflictRegistry struct {
	pairs map[string][]string // role -> roles it conflicts with
}

func NewConflictRegistry() *ConflictRegistry {
	return &ConflictRegistry{pairs: make(map[string][]string)}
}

// Add records roleA and roleB as mutually exclusive (symmetric).
func (r *ConflictRegistry) Add(roleA, roleB string) {
	r.pairs[roleA] = append(r.pairs[roleA], roleB)
	r.pairs[roleB] = append(r.pairs[roleB], roleA)
}

// ConflictsWith returns the roles the given role may not co-occur with.
func (r *ConflictRegistry) ConflictsWith(role string) []string {
	return r.pairs[role]
}

// Validate checks an effective role set against every registered pair and
// returns the first violation found, or nil.
func (r *ConflictRegistry) Validate(roles map[string]struct{}) *ConflictViolation {
	for role := range roles {
		for _, other := range r.pairs[role] {
			if _, ok := roles[other]; ok {
				return &ConflictViolation{RoleA: role, RoleB: other}
			}
		}
	}
	return nil
}
