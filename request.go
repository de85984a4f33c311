package permit

import (
	"strconv"
	"time"
)

// ============================================================================
// REQUEST CONTEXT & DECISION
// ============================================================================

// Well-known attribute names evaluated by p-rule conditions.
const (
	AttrSubscriptionPlan = "subscriptionPlan"
	AttrFeatureEnabled   = "featureEnabled"
	AttrComplianceLevel  = "complianceLevel"
	AttrTimestamp        = "timestamp"
	AttrOriginAddress    = "originAddress"
	AttrClientDescriptor = "clientDescriptor"
)

// Attributes is the per-request attribute bag. Values are strings; booleans
// are carried as "true"/"false" so condition matching stays bit-for-bit.
type Attributes map[string]string

// Request carries everything one authorization check needs. It is built
// fresh per inbound call and never persisted.
type Request struct {
	SubjectID string     `json:"subject_id"`
	Roles     []string   `json:"roles,omitempty"` // raw assigned roles as presented by the caller
	TenantID  string     `json:"tenant_id"`
	Resource  string     `json:"resource"`
	Action    string     `json:"action"`
	Attrs     Attributes `json:"attrs,omitempty"`
}

// NewRequest builds a Request with a normalized action and an empty
// attribute bag.
func NewRequest(subjectID, resource, action, tenantID string) *Request {
	return &Request{
		SubjectID: subjectID,
		Resource:  resource,
		Action:    NormalizeAction(action),
		TenantID:  tenantID,
		Attrs:     Attributes{},
	}
}

func (r *Request) WithRoles(roles ...string) *Request {
	r.Roles = append(r.Roles, roles...)
	return r
}

func (r *Request) WithAttr(name, value string) *Request {
	if r.Attrs == nil {
		r.Attrs = Attributes{}
	}
	r.Attrs[name] = value
	return r
}

func (r *Request) WithSubscriptionPlan(plan string) *Request {
	return r.WithAttr(AttrSubscriptionPlan, plan)
}

func (r *Request) WithFeatureEnabled(enabled bool) *Request {
	return r.WithAttr(AttrFeatureEnabled, strconv.FormatBool(enabled))
}

func (r *Request) WithComplianceLevel(level string) *Request {
	return r.WithAttr(AttrComplianceLevel, level)
}

func (r *Request) WithTimestamp(t time.Time) *Request {
	return r.WithAttr(AttrTimestamp, t.UTC().Format(time.RFC3339))
}

func (r *Request) WithOrigin(addr string) *Request {
	return r.WithAttr(AttrOriginAddress, addr)
}

func (r *Request) WithClient(descriptor string) *Request {
	return r.WithAttr(AttrClientDescriptor, descriptor)
}

// Decision is the outcome of one evaluation. MatchedRule is nil on deny.
type Decision struct {
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason"`
	MatchedRule *Tuple    `json:"matched_rule,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Decision reasons surfaced to callers and audit sinks. Internal error
// detail never rides on the decision itself.
const (
	ReasonRuleMatch         = "rule match"
	ReasonDefaultDeny       = "default deny"
	ReasonConflictViolation = "conflict violation"
	ReasonEvaluationError   = "evaluation error"
)
