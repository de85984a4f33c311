package permit

import (
	"context"
	"errors"
	"time"

	"github.com/oarkflow/permit/logger"
)

// ============================================================================
// ENFORCEMENT GATEWAY
// ============================================================================

// Evaluator is the decision-engine contract the gateway drives. Engine
// satisfies it; tests substitute slow or failing evaluators.
type Evaluator interface {
	Evaluate(ctx context.Context, req *Request) (*Decision, error)
}

// AuditFunc receives every decision together with its request context and
// any evaluation fault. The gateway invokes it asynchronously; forwarding to
// an audit sink is entirely the caller's responsibility.
type AuditFunc func(req *Request, dec *Decision, evalErr error)

type auditEvent struct {
	req *Request
	dec *Decision
	err error
}

// Gateway is the single enforcement entry point consumed by request guards.
// It normalizes the request, consults the decision cache, delegates to the
// engine on a miss and converts every internal fault into a deny.
type Gateway struct {
	engine  *Engine
	eval    Evaluator
	cache   *DecisionCache
	timeout time.Duration
	logger  logger.Logger
	auditCh chan auditEvent
}

type GatewayOption func(*Gateway) error

// WithEnforceTimeout bounds a single Enforce call. A stuck evaluation
// becomes a deny plus EvaluationError.
func WithEnforceTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) error {
		if d > 0 {
			g.timeout = d
		}
		return nil
	}
}

// WithDecisionCache replaces the default ristretto cache configuration.
func WithDecisionCache(c *DecisionCache) GatewayOption {
	return func(g *Gateway) error {
		g.cache = c
		return nil
	}
}

// WithAuditFunc installs the outbound audit hand-off.
func WithAuditFunc(fn AuditFunc) GatewayOption {
	return func(g *Gateway) error {
		if fn == nil {
			return nil
		}
		g.auditCh = make(chan auditEvent, 1024)
		go func() {
			for ev := range g.auditCh {
				fn(ev.req, ev.dec, ev.err)
			}
		}()
		return nil
	}
}

// WithEvaluator swaps the decision engine behind the gateway.
func WithEvaluator(ev Evaluator) GatewayOption {
	return func(g *Gateway) error {
		g.eval = ev
		return nil
	}
}

// WithGatewayLogger installs a structured logger on the gateway.
func WithGatewayLogger(l logger.Logger) GatewayOption {
	return func(g *Gateway) error {
		g.logger = l
		return nil
	}
}

func NewGateway(engine *Engine, opts ...GatewayOption) (*Gateway, error) {
	g := &Gateway{
		engine:  engine,
		eval:    engine,
		timeout: 250 * time.Millisecond,
		logger:  logger.NewNullLogger(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	if g.cache == nil {
		c, err := NewDecisionCache(0, 0, 0, 0)
		if err != nil {
			return nil, err
		}
		g.cache = c
	}
	// any snapshot swap (mutation or external refresh) flushes the cache
	engine.Loader().OnReload(func(*Snapshot) { g.cache.Invalidate() })
	return g, nil
}

// Cache exposes the decision cache, mainly for tests and metrics.
func (g *Gateway) Cache() *DecisionCache { return g.cache }

// Enforce decides one request. It never returns an allow on an internal
// fault: faults deny with an EvaluationError the caller can log apart from
// legitimate policy denies.
func (g *Gateway) Enforce(ctx context.Context, req *Request) (*Decision, error) {
	if a := NormalizeAction(req.Action); a != req.Action {
		// work on a copy, the caller's request stays untouched
		c := *req
		c.Action = a
		req = &c
	}

	var relevant []string
	if snap := g.engine.Snapshot(); snap != nil {
		relevant = snap.RelevantAttrs(req.Action)
	}
	key := CacheKey(req, relevant)
	if dec, ok := g.cache.Get(key); ok {
		g.audit(req, dec, nil)
		return dec, nil
	}

	dec, err := g.evaluateWithTimeout(ctx, req)
	if err != nil {
		// deny already shaped by the engine; never cache fault denies
		g.logger.Error("enforcement fault", "subject", req.SubjectID, "tenant", req.TenantID, "resource", req.Resource, "action", req.Action, "error", err.Error())
		g.audit(req, dec, err)
		return dec, err
	}

	g.cache.Set(key, dec)
	g.audit(req, dec, nil)
	return dec, nil
}

func (g *Gateway) evaluateWithTimeout(ctx context.Context, req *Request) (*Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		dec *Decision
		err error
	}
	done := make(chan result, 1)
	go func() {
		dec, err := g.eval.Evaluate(ctx, req)
		done <- result{dec: dec, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && res.dec == nil {
			res.dec = &Decision{Allowed: false, Reason: ReasonEvaluationError, EvaluatedAt: time.Now()}
		}
		return res.dec, res.err
	case <-ctx.Done():
		dec := &Decision{Allowed: false, Reason: ReasonEvaluationError, EvaluatedAt: time.Now()}
		return dec, &EvaluationError{Stage: "gateway", Err: errors.New("evaluation timed out")}
	}
}

func (g *Gateway) audit(req *Request, dec *Decision, err error) {
	if g.auditCh == nil {
		return
	}
	select {
	case g.auditCh <- auditEvent{req: req, dec: dec, err: err}:
	default:
		// audit must never block enforcement
	}
}
