package activity

import (
	"context"
)

// StartActivity admits and launches a new activity body, per spec.md §4.4.
// Admission and registration happen as one indivisible step inside the
// serializer: if two callers race to start the same domain under different
// domain tokens, exactly one wins and the other observes
// DomainConflictError, never a window where both believe they are running.
//
// fn runs in its own goroutine with a context carrying the activity's token
// (retrievable via TokenFromContext) and canceled with a *terminationError
// cause if the coordinator forcibly shuts the activity down. StartActivity
// itself returns once admission succeeds or fails; it does not wait for fn
// to finish.
func (c *Coordinator) StartActivity(ctx context.Context, tok ActivityToken, quorum Quorum, opts Options, fn func(ctx context.Context) error) (*Worker, error) {
	if tok.DomainToken == "" {
		return nil, &NonLocalFunctionError{Detail: "domain token must not be empty"}
	}

	bodyCtx, cancel := context.WithCancelCause(context.Background())
	var worker *Worker
	bodyTok := tok

	err := c.waitForQuorumHooked(ctx, tok.Lease, quorum, opts, func(s snapshot, bypassed bool) error {
		if existingToken, existingName, ok := c.registry.domainOccupant(tok.Domain); ok {
			if existingToken != tok.DomainToken {
				return &DomainConflictError{
					RequestedDomain: tok.Domain,
					RequestedToken:  tok.DomainToken,
					ExistingToken:   existingToken,
					ExistingName:    existingName,
				}
			}
			// Same tree re-entering under the same domain token is fine;
			// nested calls go through RegisterProcess or a fresh
			// StartActivity for a sibling name, never a duplicate root.
		}
		if tok.Lease.IsLeaderSentinel() && s.hasLocalLease {
			// Nested calls made from the body are fenced to the exact
			// lease this activity was admitted under.
			bodyTok.Lease = ExactLease(s.localLease)
		}
		id := c.newWorkerID()
		worker = newWorker(id, cancel)
		a := &Activity{
			Worker:      worker,
			Domain:      tok.Domain,
			DomainToken: tok.DomainToken,
			Name:        tok.Name,
			Lease:       tok.Lease,
			Quorum:      quorum,
			Options:     opts,
			bypassed:    bypassed,
		}
		c.registry.add(a)
		c.metrics.setActiveActivities(c.registry.len())
		c.startMonitor(a)
		c.publish("activity.started", "activity started", map[string]string{"domain": a.Domain})
		return nil
	})
	if err != nil {
		cancel(nil)
		return nil, err
	}

	go func() {
		runErr := fn(WithToken(bodyCtx, bodyTok))
		if runErr == nil {
			if cause := context.Cause(bodyCtx); cause != nil && cause != context.Canceled {
				runErr = cause
			}
		}
		worker.finish(runErr)
	}()

	return worker, nil
}

// RegisterProcess adopts a caller-owned worker — one whose goroutine the
// coordinator does not itself spawn — as a live activity, per spec.md
// §4.4. Admission and registration are atomic with StartActivity's.
//
// In bypass mode this is a no-op (spec.md §4.7): no registry entry, no
// monitor, no coordinator involvement at all. The caller's process runs
// exactly as if the coordinator were never consulted.
func (c *Coordinator) RegisterProcess(ctx context.Context, tok ActivityToken, quorum Quorum, opts Options, ext ExternalWorker) error {
	if tok.DomainToken == "" {
		return &NonLocalFunctionError{Detail: "domain token must not be empty"}
	}
	if c.bypass.ShouldBypass() {
		c.metrics.recordBypass()
		return nil
	}
	return c.waitForQuorumHooked(ctx, tok.Lease, quorum, opts, func(s snapshot, bypassed bool) error {
		if existingToken, existingName, ok := c.registry.domainOccupant(tok.Domain); ok && existingToken != tok.DomainToken {
			return &DomainConflictError{
				RequestedDomain: tok.Domain,
				RequestedToken:  tok.DomainToken,
				ExistingToken:   existingToken,
				ExistingName:    existingName,
			}
		}
		id := c.newWorkerID()
		a := &Activity{
			Worker:      newWorker(id, nil),
			Domain:      tok.Domain,
			DomainToken: tok.DomainToken,
			Name:        tok.Name,
			Lease:       tok.Lease,
			Quorum:      quorum,
			Options:     opts,
			external:    &ext,
			bypassed:    bypassed,
		}
		c.registry.add(a)
		c.metrics.setActiveActivities(c.registry.len())
		c.startMonitor(a)
		c.publish("activity.started", "external process adopted", map[string]string{"domain": a.Domain})
		return nil
	})
}

// SwitchQuorum changes a live activity's quorum expression in place, per
// spec.md §4.4. The new expression is evaluated immediately; if it no
// longer holds, the activity is terminated with reason quorum-lost just as
// if a remote lease had dropped out from under it.
//
// In bypass mode this is a no-op (spec.md §4.7): the target's quorum is
// left untouched and nothing is terminated.
func (c *Coordinator) SwitchQuorum(domainToken DomainToken, newQuorum Quorum) error {
	if c.bypass.ShouldBypass() {
		c.metrics.recordBypass()
		return nil
	}
	return c.send(func() {
		var target *Activity
		for _, a := range c.registry.all() {
			if a.DomainToken == domainToken {
				target = a
				break
			}
		}
		if target == nil {
			return
		}
		target.Quorum = newQuorum
		s := c.snapshot()
		if !admitted(target.Lease, newQuorum, s) {
			target.terminate(TerminationReason{Kind: ReasonQuorumLost})
		}
	})
}

// startMonitor launches the goroutine that watches one activity's worker
// for exit and folds that back into the serializer as a registry removal,
// mirroring the health_monitor pattern used elsewhere in this codebase for
// watching long-running goroutines without blocking the owning loop.
func (c *Coordinator) startMonitor(a *Activity) {
	go func() {
		select {
		case <-a.done():
		case <-c.closed:
			return
		}
		_ = c.send(func() {
			c.removeActivity(a)
		})
	}()
}

func (c *Coordinator) removeActivity(a *Activity) {
	if _, ok := c.registry.byWorkerID(a.Worker.id); !ok {
		return
	}
	c.registry.remove(a)
	c.metrics.setActiveActivities(c.registry.len())
	reason := "completed"
	if a.pendingReason != nil {
		reason = a.pendingReason.Kind
		c.metrics.recordTermination(reason)
	}
	if reason != "completed" || !a.Options.Quiet {
		c.log.Info().Str("domain", a.Domain).Strs("name", a.Name).Str("reason", reason).Msg("activity ended")
	}
	c.publish("activity.ended", "activity ended", map[string]string{"domain": a.Domain, "reason": reason})
}

// --- Collaborator-death and lease-change sweeps (spec.md §4.5) ---

func (c *Coordinator) terminateAll(reason TerminationReason) {
	for _, a := range c.registry.all() {
		if a.bypassed {
			continue
		}
		a.terminate(reason)
	}
}

// terminateRequiringLeader terminates every activity whose quorum
// expression requires this node to be the acting leader — used when the
// acquirer dies, since this node can no longer solicit remote leases at
// all. Pure `follower` activities are left running.
func (c *Coordinator) terminateRequiringLeader(reason TerminationReason) {
	for _, a := range c.registry.all() {
		if a.bypassed {
			continue
		}
		if quorumRequiresLeader(a.Quorum) {
			a.terminate(reason)
		}
	}
}

// terminateLosingQuorum re-evaluates every live activity's admission
// predicate against current state and terminates those that no longer
// satisfy it. Activities admitted via bypass never held a real lease to
// lose, so they are exempt (spec.md §8).
func (c *Coordinator) terminateLosingQuorum(reason TerminationReason) {
	s := c.snapshot()
	for _, a := range c.registry.all() {
		if a.bypassed {
			continue
		}
		if !admitted(a.Lease, a.Quorum, s) {
			a.terminate(reason)
		}
	}
}
