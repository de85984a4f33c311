package permit

import "fmt"

// ============================================================================
// ERROR TAXONOMY
// ============================================================================

// PolicyLoadError reports a failed initial tuple load. It is fatal: the
// engine must not start serving without a snapshot.
type PolicyLoadError struct {
	Err error
}

func (e *PolicyLoadError) Error() string {
	return fmt.Sprintf("policy load failed: %v", e.Err)
}

func (e *PolicyLoadError) Unwrap() error { return e.Err }

// PolicyRefreshError reports a failed runtime refresh. It is transient: the
// previous snapshot keeps serving while the loader retries with backoff.
type PolicyRefreshError struct {
	Attempt int
	Err     error
}

func (e *PolicyRefreshError) Error() string {
	return fmt.Sprintf("policy refresh failed (attempt %d): %v", e.Attempt, e.Err)
}

func (e *PolicyRefreshError) Unwrap() error { return e.Err }

// ConflictViolation reports two mutually exclusive roles in one effective
// role set. On the administration path it rejects the mutation; on the
// evaluation path it denies the request and flags a policy-integrity fault.
type ConflictViolation struct {
	RoleA string
	RoleB string
}

func (e *ConflictViolation) Error() string {
	return fmt.Sprintf("conflicting roles %s and %s", e.RoleA, e.RoleB)
}

// EvaluationError reports an internal fault during evaluation (malformed
// condition, missing snapshot, timeout). The request is denied; the error
// distinguishes the fault from a legitimate policy deny in logs.
type EvaluationError struct {
	Stage string
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error at %s: %v", e.Stage, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
