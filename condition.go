package permit

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ============================================================================
// ATTRIBUTE CONDITION EVALUATOR
// ============================================================================

// Expr is a compiled attribute condition evaluated against a request's
// attribute bag. Unknown attribute names never match (fail closed).
type Expr interface {
	Evaluate(attrs Attributes) bool
	String() string
}

// TrueExpr matches unconditionally; an empty condition compiles to it.
type TrueExpr struct{}

func (e *TrueExpr) Evaluate(attrs Attributes) bool { return true }
func (e *TrueExpr) String() string                 { return "" }

// FalseExpr never matches. The literal condition "false" compiles to it:
// seed data uses it as an explicit denial marker, which under default-deny
// semantics simply makes the rule unmatchable.
type FalseExpr struct{}

func (e *FalseExpr) Evaluate(attrs Attributes) bool { return false }
func (e *FalseExpr) String() string                 { return "false" }

// EqExpr matches when the named attribute is present and equals the literal
// byte-for-byte (case-sensitive).
type EqExpr struct {
	Attr  string
	Value string
}

func (e *EqExpr) Evaluate(attrs Attributes) bool {
	v, ok := attrs[e.Attr]
	return ok && v == e.Value
}

func (e *EqExpr) String() string { return fmt.Sprintf("%s == %q", e.Attr, e.Value) }

// NeExpr matches when the named attribute is present and differs from the
// literal. An absent attribute is a non-match, same as EqExpr.
type NeExpr struct {
	Attr  string
	Value string
}

func (e *NeExpr) Evaluate(attrs Attributes) bool {
	v, ok := attrs[e.Attr]
	return ok && v != e.Value
}

func (e *NeExpr) String() string { return fmt.Sprintf("%s != %q", e.Attr, e.Value) }

// AndExpr is the conjunction of two conditions.
type AndExpr struct {
	Left  Expr
	Right Expr
}

func (e *AndExpr) Evaluate(attrs Attributes) bool {
	return e.Left.Evaluate(attrs) && e.Right.Evaluate(attrs)
}

func (e *AndExpr) String() string {
	return fmt.Sprintf("%s && %s", e.Left.String(), e.Right.String())
}

var termRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)\s*(==|!=)\s*("(?:[^"]*)"|\S+)$`)

// ParseCondition compiles a condition string into an Expr. Supported
// grammar: `attr == "literal"`, `attr != "literal"`, conjunctions joined by
// `&&`. Empty input compiles to TrueExpr, the literal "false" to FalseExpr.
func ParseCondition(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "true" {
		return &TrueExpr{}, nil
	}
	if s == "false" {
		return &FalseExpr{}, nil
	}
	parts := strings.Split(s, "&&")
	var expr Expr
	for _, part := range parts {
		term, err := parseTerm(part)
		if err != nil {
			return nil, err
		}
		if expr == nil {
			expr = term
		} else {
			expr = &AndExpr{Left: expr, Right: term}
		}
	}
	return expr, nil
}

func parseTerm(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	m := termRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("unsupported condition syntax: %q", s)
	}
	attr, op := m[1], m[2]
	lit := strings.Trim(m[3], `"`)
	if op == "==" {
		return &EqExpr{Attr: attr, Value: lit}, nil
	}
	return &NeExpr{Attr: attr, Value: lit}, nil
}

// exprCache memoizes compiled conditions so the hot path never re-parses.
var exprCache sync.Map // string -> compiledExpr

type compiledExpr struct {
	expr Expr
	err  error
}

// CompileCondition is ParseCondition behind a process-wide parse cache.
func CompileCondition(s string) (Expr, error) {
	if v, ok := exprCache.Load(s); ok {
		ce := v.(compiledExpr)
		return ce.expr, ce.err
	}
	expr, err := ParseCondition(s)
	exprCache.Store(s, compiledExpr{expr: expr, err: err})
	return expr, err
}

// ReferencedAttrs returns the attribute names a condition string mentions,
// in order of first appearance. Malformed conditions contribute nothing; the
// engine surfaces their parse error at evaluation time instead.
func ReferencedAttrs(condition string) []string {
	condition = strings.TrimSpace(condition)
	if condition == "" || condition == "true" || condition == "false" {
		return nil
	}
	var names []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(condition, "&&") {
		m := termRe.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
