package permit

// Builders provide a fluent API for assembling policy tuples.

// PermissionBuilder builds a p tuple.
type PermissionBuilder struct {
	t Tuple
}

func NewPermissionBuilder() *PermissionBuilder {
	return &PermissionBuilder{t: Tuple{Ptype: PtypePermission}}
}

func (b *PermissionBuilder) Subject(s string) *PermissionBuilder  { b.t.V0 = s; return b }
func (b *PermissionBuilder) Resource(r string) *PermissionBuilder { b.t.V1 = r; return b }
func (b *PermissionBuilder) Action(a string) *PermissionBuilder {
	b.t.V2 = NormalizeAction(a)
	return b
}
func (b *PermissionBuilder) Condition(c string) *PermissionBuilder { b.t.V3 = c; return b }
func (b *PermissionBuilder) Tenant(t string) *PermissionBuilder    { b.t.V4 = t; return b }
func (b *PermissionBuilder) FeatureEnabled(v string) *PermissionBuilder {
	b.t.V5 = v
	return b
}
func (b *PermissionBuilder) Build() Tuple { return b.t }

// AssignmentBuilder builds a g tuple.
type AssignmentBuilder struct {
	t Tuple
}

func NewAssignmentBuilder() *AssignmentBuilder {
	return &AssignmentBuilder{t: Tuple{Ptype: PtypeGrouping}}
}

func (b *AssignmentBuilder) Member(m string) *AssignmentBuilder { b.t.V0 = m; return b }
func (b *AssignmentBuilder) Role(r string) *AssignmentBuilder   { b.t.V1 = r; return b }
func (b *AssignmentBuilder) Tenant(t string) *AssignmentBuilder { b.t.V2 = t; return b }
func (b *AssignmentBuilder) Build() Tuple                       { return b.t }

// ConflictBuilder builds a g2 tuple.
type ConflictBuilder struct {
	t Tuple
}

func NewConflictBuilder() *ConflictBuilder {
	return &ConflictBuilder{t: Tuple{Ptype: PtypeConflict, V2: ConflictMarker}}
}

func (b *ConflictBuilder) Between(roleA, roleB string) *ConflictBuilder {
	b.t.V0 = roleA
	b.t.V1 = roleB
	return b
}
func (b *ConflictBuilder) Build() Tuple { return b.t }
