package permit

import "fmt"

// ============================================================================
// ROLE HIERARCHY RESOLVER
// ============================================================================

// EffectiveRoles expands the reflexive-transitive closure of g edges
// reachable from the subject's direct assignments, scoped to the requesting
// tenant. Global edges (empty tenant) always apply; tenant edges only within
// their tenant. Inheritance cycles are broken by ignoring the closing edge;
// each ignored edge is reported as a warning, never a failure.
func (s *Snapshot) EffectiveRoles(subjectID, tenantID string, direct []string) (map[string]struct{}, []string) {
	roles := make(map[string]struct{})
	var warnings []string

	queue := make([]string, 0, len(direct)+4)
	for _, r := range direct {
		if _, ok := roles[r]; !ok {
			roles[r] = struct{}{}
			queue = append(queue, r)
		}
	}
	// direct assignments recorded as g rows for the subject
	for _, e := range s.edges[subjectID] {
		if !edgeApplies(e, tenantID) {
			continue
		}
		if _, ok := roles[e.parent]; !ok {
			roles[e.parent] = struct{}{}
			queue = append(queue, e.parent)
		}
	}

	for len(queue) > 0 {
		role := queue[0]
		queue = queue[1:]
		for _, e := range s.edges[role] {
			if !edgeApplies(e, tenantID) {
				continue
			}
			if _, ok := roles[e.parent]; ok {
				if s.reachable(e.parent, role, tenantID) {
					warnings = append(warnings, fmt.Sprintf("role inheritance cycle via %s -> %s, edge ignored", role, e.parent))
				}
				continue
			}
			roles[e.parent] = struct{}{}
			queue = append(queue, e.parent)
		}
	}
	return roles, warnings
}

// reachable reports whether `to` is in the tenant-scoped closure of `from`.
// Used only to tell a genuine cycle apart from a diamond when an edge lands
// on an already-expanded role.
func (s *Snapshot) reachable(from, to string, tenantID string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range s.edges[cur] {
			if !edgeApplies(e, tenantID) || visited[e.parent] {
				continue
			}
			if e.parent == to {
				return true
			}
			visited[e.parent] = true
			queue = append(queue, e.parent)
		}
	}
	return false
}
