package activity

import (
	"context"
	"time"
)

// admissionResult is delivered to a blocked wait_for_quorum caller exactly
// once.
type admissionResult struct {
	err error
}

// admissionRequest is a single pending wait_for_quorum call, held on the
// coordinator's deferred queue between mailbox steps. It is only ever
// touched from inside the serializer goroutine.
type admissionRequest struct {
	req    LeaseRequirement
	quorum Quorum
	unsafe bool

	// bypassed is set when this request is admitted through the bypass
	// shortcut rather than an actually-satisfied predicate, so onAdmit can
	// mark the resulting Activity exempt from later lease-state sweeps
	// (spec.md §8).
	bypassed bool

	// onAdmit runs inside the same mailbox step that decides admission,
	// before the result is handed back to the caller — this is what gives
	// start_activity its atomic admit-then-register semantics (spec.md
	// invariants 3 and 4). A non-nil error here fails the call instead.
	onAdmit func(s snapshot, bypassed bool) error

	resultCh chan admissionResult
	fired    bool

	quorumTimer *time.Timer
	hardTimer   *time.Timer
}

// attemptSucceed runs onAdmit (if any) and resolves the request
// successfully, all synchronously inside the caller's mailbox step. It
// reports whether the request was actually admitted.
func (r *admissionRequest) attemptSucceed(s snapshot) bool {
	if r.fired {
		return false
	}
	if r.onAdmit != nil {
		if err := r.onAdmit(s, r.bypassed); err != nil {
			r.fail(err)
			return false
		}
	}
	r.succeed()
	return true
}

func (r *admissionRequest) cleanup() {
	if r.quorumTimer != nil {
		r.quorumTimer.Stop()
	}
	if r.hardTimer != nil {
		r.hardTimer.Stop()
	}
}

func (r *admissionRequest) resolve(err error) {
	if r.fired {
		return
	}
	r.fired = true
	r.cleanup()
	r.resultCh <- admissionResult{err: err}
}

func (r *admissionRequest) fail(err error) { r.resolve(err) }

func (r *admissionRequest) succeed() { r.resolve(nil) }

func (r *admissionRequest) noQuorumErr(s snapshot) error {
	return &NoQuorumError{
		RequiredLease:       r.req,
		RequiredQuorum:      r.quorum,
		ObservedLocalLease:  s.localLease,
		ObservedHasLocal:    s.hasLocalLease,
		ObservedRemoteNodes: s.remoteNodesSlice(),
	}
}

// waitForQuorum implements spec.md §4.3's admission protocol, exposed
// directly as the wait_for_quorum operation (no registration side effect).
func (c *Coordinator) waitForQuorum(ctx context.Context, req LeaseRequirement, q Quorum, opts Options) error {
	return c.waitForQuorumHooked(ctx, req, q, opts, nil)
}

// waitForQuorumHooked is the shared implementation behind wait_for_quorum,
// start_activity, and register_process: evaluate the predicate
// immediately; if not satisfied and bypass mode is off, defer until a
// state transition satisfies it or opts.quorumTimeout() elapses. At
// quorumTimeout, a non-unsafe caller fails with a no-quorum error; an
// unsafe caller is admitted under the degraded predicate (no have_quorum
// conjunct) if it now holds, and otherwise also fails with a no-quorum
// error. opts.timeout() is a backstop past quorumTimeout, not a second
// chance to be admitted. onAdmit, when set, runs inside the same mailbox
// step that decides admission, giving callers atomic admit-then-register
// semantics.
func (c *Coordinator) waitForQuorumHooked(ctx context.Context, req LeaseRequirement, q Quorum, opts Options, onAdmit func(s snapshot, bypassed bool) error) error {
	if c.failed.Load() {
		return c.failErr
	}

	ar := &admissionRequest{req: req, quorum: q, unsafe: opts.Unsafe, onAdmit: onAdmit, resultCh: make(chan admissionResult, 1)}
	start := time.Now()

	err := c.send(func() {
		s := c.snapshot()
		if admitted(req, q, s) {
			ar.attemptSucceed(s)
			return
		}
		if c.bypass.ShouldBypass() {
			c.metrics.recordBypass()
			ar.bypassed = true
			ar.attemptSucceed(s)
			return
		}
		c.deferred = append(c.deferred, ar)
		ar.quorumTimer = time.AfterFunc(opts.quorumTimeout(), func() { c.onQuorumTimeout(ar) })
		ar.hardTimer = time.AfterFunc(opts.timeout(), func() { c.onHardTimeout(ar) })
	})
	if err != nil {
		return err
	}

	select {
	case res := <-ar.resultCh:
		c.recordWaitOutcome(res.err, start)
		return res.err
	case <-ctx.Done():
		_ = c.send(func() { c.dropDeferred(ar) })
		select {
		case res := <-ar.resultCh:
			c.recordWaitOutcome(res.err, start)
			return res.err
		default:
			c.metrics.observeWait("context-canceled", time.Since(start))
			return ctx.Err()
		}
	}
}

func (c *Coordinator) recordWaitOutcome(err error, start time.Time) {
	outcome := "admitted"
	if err != nil {
		outcome = "timeout"
	}
	c.metrics.observeWait(outcome, time.Since(start))
}

// onQuorumTimeout runs inside the serializer (via the mailbox) once a
// deferred request's quorumTimeout elapses. A non-unsafe caller fails
// immediately with a no-quorum error. An unsafe caller is admitted now if
// the degraded predicate holds, and otherwise also fails immediately with
// a no-quorum error — unsafe only widens the predicate at quorumTimeout,
// it never extends the wait past it. hardTimer, armed alongside
// quorumTimer, is a no-op once this has already resolved the request; it
// only still matters if a caller configures Timeout shorter than
// QuorumTimeout, in which case it fires and fails the request first.
func (c *Coordinator) onQuorumTimeout(ar *admissionRequest) {
	_ = c.send(func() {
		if ar.fired {
			return
		}
		s := c.snapshot()
		if ar.unsafe && admitUnsafe(ar.req, ar.quorum, s) {
			ar.attemptSucceed(s)
			c.removeDeferred(ar)
			return
		}
		ar.fail(ar.noQuorumErr(s))
		c.removeDeferred(ar)
	})
}

func (c *Coordinator) onHardTimeout(ar *admissionRequest) {
	_ = c.send(func() {
		if ar.fired {
			return
		}
		s := c.snapshot()
		ar.fail(ar.noQuorumErr(s))
		c.removeDeferred(ar)
	})
}

func (c *Coordinator) dropDeferred(ar *admissionRequest) {
	if ar.fired {
		return
	}
	ar.fail(context.Canceled)
	c.removeDeferred(ar)
}

func (c *Coordinator) removeDeferred(ar *admissionRequest) {
	for i, other := range c.deferred {
		if other == ar {
			c.deferred = append(c.deferred[:i], c.deferred[i+1:]...)
			return
		}
	}
}

// reevaluateDeferred is called once after every mailbox closure runs. It
// dispatches every deferred request whose predicate now holds, in FIFO
// registration order, per spec.md §4.3 step 3.
func (c *Coordinator) reevaluateDeferred() {
	if len(c.deferred) == 0 {
		return
	}
	s := c.snapshot()
	remaining := c.deferred[:0:0]
	for _, ar := range c.deferred {
		if !ar.fired && admitted(ar.req, ar.quorum, s) {
			ar.attemptSucceed(s)
			continue
		}
		remaining = append(remaining, ar)
	}
	c.deferred = remaining
}
