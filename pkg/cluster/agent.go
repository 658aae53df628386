package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warden/pkg/activity"
)

// Agent implements the coordinator's lease-agent collaborator role for one
// node: it accepts Grant calls from whoever currently believes itself
// leader, runs a TTL timer per grant, and reports the resulting lifecycle
// back to the coordinator. Only one grant may be outstanding at a time —
// a second Grant before the first expires is rejected, matching
// spec.md's "one grant per expiry cycle" invariant.
type Agent struct {
	node        activity.NodeID
	coordinator *activity.Coordinator
	identity    string
	log         zerolog.Logger

	mu         sync.Mutex
	current    activity.LeaseHolder
	timer      *time.Timer
	generation uint64

	done chan struct{}
}

// NewAgent creates an Agent for node, reporting to coordinator.
func NewAgent(node activity.NodeID, coordinator *activity.Coordinator, log zerolog.Logger) *Agent {
	return &Agent{
		node:        node,
		coordinator: coordinator,
		identity:    fmt.Sprintf("agent-%s", node),
		log:         log.With().Str("component", "agent").Str("node", string(node)).Logger(),
	}
}

// Start registers this agent with the coordinator as the local lease
// agent. Call Stop to unregister; its death is then observed as collaborator
// death per spec.md §4.5.
func (a *Agent) Start() error {
	a.mu.Lock()
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()
	return a.coordinator.RegisterAgent(a.identity, done)
}

// Stop unregisters the agent, which the coordinator observes as agent
// death: every live activity is terminated with local-lease-expired.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.done != nil {
		close(a.done)
		a.done = nil
	}
}

// Grant accepts a lease grant from holder, valid for ttlSeconds. Rejected
// if a grant is already outstanding.
func (a *Agent) Grant(ctx context.Context, holder activity.LeaseHolder, ttlSeconds int64) error {
	a.mu.Lock()
	if !a.current.IsZero() {
		outstanding := a.current.Node
		a.mu.Unlock()
		return fmt.Errorf("agent %s already holds an outstanding lease from %s", a.node, outstanding)
	}
	a.current = holder
	a.generation++
	gen := a.generation
	a.mu.Unlock()

	if err := a.coordinator.LocalLeaseGranted(a.identity, holder); err != nil {
		a.mu.Lock()
		a.current = activity.LeaseHolder{}
		a.mu.Unlock()
		return err
	}

	a.mu.Lock()
	a.timer = time.AfterFunc(time.Duration(ttlSeconds)*time.Second, func() { a.onExpire(gen, holder) })
	a.mu.Unlock()
	a.log.Debug().Str("leader", string(holder.Node)).Int64("ttl_seconds", ttlSeconds).Msg("lease granted")
	return nil
}

// Renew extends the TTL of the currently outstanding grant without
// changing its epoch, provided holder matches what's currently held.
// Used by an acquirer's grant loop to keep a lease alive between Grant
// calls instead of forcing a fresh epoch every tick.
func (a *Agent) Renew(holder activity.LeaseHolder, ttlSeconds int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current.Equal(holder) {
		return fmt.Errorf("agent %s: renew holder mismatch", a.node)
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	gen := a.generation
	a.timer = time.AfterFunc(time.Duration(ttlSeconds)*time.Second, func() { a.onExpire(gen, holder) })
	return nil
}

func (a *Agent) onExpire(gen uint64, holder activity.LeaseHolder) {
	a.mu.Lock()
	if a.generation != gen || a.current.IsZero() {
		a.mu.Unlock()
		return // superseded by a newer grant or agent already stopped
	}
	a.current = activity.LeaseHolder{}
	a.timer = nil
	a.mu.Unlock()

	a.log.Debug().Str("leader", string(holder.Node)).Msg("lease expired")
	if err := a.coordinator.LocalLeaseExpired(a.identity, holder); err != nil {
		a.log.Warn().Err(err).Msg("local_lease_expired rejected")
	}
}
