package permit

import (
	"fmt"
	"strings"
)

// ============================================================================
// POLICY TUPLES
// ============================================================================

// Ptype selects the kind of rule a tuple row encodes.
type Ptype string

const (
	// PtypePermission is a permission rule: v0=subject (role or user id),
	// v1=resource pattern, v2=action, v3=optional attribute condition,
	// v4=optional tenant scope, v5=optional feature-enabled literal.
	PtypePermission Ptype = "p"
	// PtypeGrouping is a role assignment or role inheritance edge:
	// v0=member (subject or role), v1=parent role, v2=optional tenant scope.
	PtypeGrouping Ptype = "g"
	// PtypeConflict is a separation-of-duty constraint: v0=role A, v1=role B,
	// v2=ConflictMarker.
	PtypeConflict Ptype = "g2"
)

// ConflictMarker is the v2 value carried by g2 rows.
const ConflictMarker = "conflict"

// Tuple is a generalized policy row (ptype, v0..v5). All value columns are
// plain strings; empty means absent.
type Tuple struct {
	Ptype Ptype  `json:"ptype" yaml:"ptype"`
	V0    string `json:"v0" yaml:"v0"`
	V1    string `json:"v1" yaml:"v1"`
	V2    string `json:"v2,omitempty" yaml:"v2,omitempty"`
	V3    string `json:"v3,omitempty" yaml:"v3,omitempty"`
	V4    string `json:"v4,omitempty" yaml:"v4,omitempty"`
	V5    string `json:"v5,omitempty" yaml:"v5,omitempty"`
}

// NormalizeAction lowercases and trims an action verb so tuple and request
// actions compare with plain equality on the hot path.
func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

// Permission builds a p tuple. The action is normalized at construction.
func Permission(subject, resource, action string) Tuple {
	return Tuple{Ptype: PtypePermission, V0: subject, V1: resource, V2: NormalizeAction(action)}
}

// RoleAssignment builds a g tuple. An empty tenant means the edge is global.
func RoleAssignment(member, role, tenant string) Tuple {
	return Tuple{Ptype: PtypeGrouping, V0: member, V1: role, V2: tenant}
}

// Conflict builds a g2 tuple marking roleA and roleB as mutually exclusive.
func Conflict(roleA, roleB string) Tuple {
	return Tuple{Ptype: PtypeConflict, V0: roleA, V1: roleB, V2: ConflictMarker}
}

// Validate checks the structural invariants for the tuple's ptype.
func (t Tuple) Validate() error {
	switch t.Ptype {
	case PtypePermission:
		if t.V0 == "" || t.V1 == "" || t.V2 == "" {
			return fmt.Errorf("p tuple requires subject, resource and action: %s", t.Key())
		}
	case PtypeGrouping:
		if t.V0 == "" || t.V1 == "" {
			return fmt.Errorf("g tuple requires member and parent role: %s", t.Key())
		}
		if t.V0 == t.V1 {
			return fmt.Errorf("g tuple may not self-inherit: %s", t.Key())
		}
	case PtypeConflict:
		if t.V0 == "" || t.V1 == "" {
			return fmt.Errorf("g2 tuple requires two roles: %s", t.Key())
		}
		if t.V0 == t.V1 {
			return fmt.Errorf("g2 tuple may not conflict a role with itself: %s", t.Key())
		}
		if t.V2 != ConflictMarker {
			return fmt.Errorf("g2 tuple requires the %q marker: %s", ConflictMarker, t.Key())
		}
	default:
		return fmt.Errorf("unknown ptype %q", t.Ptype)
	}
	return nil
}

// Key returns a stable textual identity for the tuple, used for store
// deduplication and audit metadata.
func (t Tuple) Key() string {
	return strings.Join([]string{string(t.Ptype), t.V0, t.V1, t.V2, t.V3, t.V4, t.V5}, ",")
}

// Equal reports column-wise equality.
func (t Tuple) Equal(o Tuple) bool {
	return t.Ptype == o.Ptype && t.V0 == o.V0 && t.V1 == o.V1 &&
		t.V2 == o.V2 && t.V3 == o.V3 && t.V4 == o.V4 && t.V5 == o.V5
}

// Normalize returns a copy with the action column lowered for p rows.
func (t Tuple) Normalize() Tuple {
	if t.Ptype == PtypePermission {
		t.V2 = NormalizeAction(t.V2)
	}
	return t
}
