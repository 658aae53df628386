package activity

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// EventSink receives coordinator lifecycle notifications. It is satisfied
// by *events.Broker; kept as a narrow interface here so this package does
// not depend on pkg/events directly.
type EventSink interface {
	PublishEvent(eventType, message string, metadata map[string]string)
}

// BypassChecker reports whether the coordinator should run in bypass mode
// for this call, per spec.md §4.7. It is evaluated on every call, not once
// at startup, so a rolling upgrade transitions without restart.
type BypassChecker interface {
	ShouldBypass() bool
}

// collaboratorSlot is a single-registration slot for the agent or acquirer
// role, per spec.md §4.1.
type collaboratorSlot struct {
	registered bool
	identity   string
	done       <-chan struct{}
}

// Coordinator is the cluster leader-activity coordinator. All of its state
// is owned by a single serializer goroutine; every public method sends a
// closure through the mailbox channel and waits for it to run, so state
// mutation, admission evaluation, and sub-call dispatch always happen in
// one indivisible step.
type Coordinator struct {
	selfNode NodeID
	bypass   BypassChecker
	events   EventSink
	log      zerolog.Logger
	metrics  *metricsRecorder

	mailbox chan func()
	closed  chan struct{}
	failed  atomic.Bool
	failErr error

	nextID uint64

	agent    collaboratorSlot
	acquirer collaboratorSlot

	hasLocalLease bool
	localLease    LeaseHolder

	leases      map[NodeID]struct{}
	quorumNodes []NodeID

	registry *registry
	deferred []*admissionRequest

	wg sync.WaitGroup
}

// Config configures a new Coordinator.
type Config struct {
	SelfNode NodeID
	Bypass   BypassChecker
	Events   EventSink
	Logger   zerolog.Logger
	Mailbox  int // mailbox buffer depth; 0 means a sensible default
}

// New creates and starts a Coordinator. Call Close to stop its serializer
// goroutine.
func New(cfg Config) *Coordinator {
	depth := cfg.Mailbox
	if depth <= 0 {
		depth = 64
	}
	c := &Coordinator{
		selfNode: cfg.SelfNode,
		bypass:   cfg.Bypass,
		events:   cfg.Events,
		log:      cfg.Logger,
		metrics:  newMetricsRecorder(),
		mailbox:  make(chan func(), depth),
		closed:   make(chan struct{}),
		leases:   make(map[NodeID]struct{}),
		registry: newRegistry(),
	}
	if c.bypass == nil {
		c.bypass = StaticBypass(false)
	}
	c.metrics.bind(cfg.SelfNode)
	c.wg.Add(1)
	go c.run()
	return c
}

// Close stops the serializer goroutine. Pending deferred waits are failed
// with a "coordinator closed" error; live activities are left running (the caller is
// responsible for tearing down its own process).
func (c *Coordinator) Close() {
	select {
	case <-c.closed:
		return
	default:
	}
	close(c.closed)
	c.wg.Wait()
}

// run is the single-threaded serializer: one goroutine, one mailbox.
func (c *Coordinator) run() {
	defer c.wg.Done()
	for {
		select {
		case fn := <-c.mailbox:
			c.step(fn)
		case <-c.closed:
			c.drainOnClose()
			return
		}
	}
}

// step executes one mailbox closure and, unless the coordinator has
// fail-stopped, re-evaluates every deferred wait_for_quorum request
// afterward — the only point at which deferred requests are dispatched.
// The closure itself (built by send) recovers its own panics into
// failStop, so a caller's synchronous error return is never racing
// against the fail-stop it reports.
func (c *Coordinator) step(fn func()) {
	fn()
	if !c.failed.Load() {
		c.reevaluateDeferred()
	}
}

func (c *Coordinator) failStop(err error) {
	c.failed.Store(true)
	c.failErr = err
	c.log.Error().Err(err).Msg("activity coordinator fail-stopped on internal invariant violation")
	for _, req := range c.deferred {
		req.fail(err)
	}
	c.deferred = nil
}

func (c *Coordinator) drainOnClose() {
	for _, req := range c.deferred {
		req.fail(fmt.Errorf("coordinator closed"))
	}
	c.deferred = nil
}

// send executes fn synchronously inside the serializer and returns once it
// has run. It is the building block every public method uses to cross into
// the single-threaded state.
func (c *Coordinator) send(fn func()) error {
	if c.failed.Load() {
		return c.failErr
	}
	done := make(chan struct{})
	var panicErr error
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = fmt.Errorf("coordinator invariant violation: %v", r)
				c.failStop(panicErr)
			}
			close(done)
		}()
		fn()
	}
	select {
	case c.mailbox <- wrapped:
	case <-c.closed:
		return fmt.Errorf("coordinator closed")
	}
	select {
	case <-done:
		return panicErr
	case <-c.closed:
		return fmt.Errorf("coordinator closed")
	}
}

func (c *Coordinator) snapshot() snapshot {
	s := snapshot{
		selfNode:           c.selfNode,
		acquirerRegistered: c.acquirer.registered,
		hasLocalLease:      c.hasLocalLease,
		localLease:         c.localLease,
		remoteLeases:       c.leases,
		quorumNodes:        c.quorumNodes,
	}
	return s
}

// --- Collaborator registration (spec.md §4.1) ---

// RegisterAgent installs identity as the local lease agent. done must close
// when that worker exits; the coordinator treats that as agent death.
func (c *Coordinator) RegisterAgent(identity string, done <-chan struct{}) error {
	return c.registerCollaborator("agent", &c.agent, identity, done, c.onAgentDied)
}

// RegisterAcquirer installs identity as the lease acquirer. done must close
// when that worker exits; the coordinator treats that as acquirer death.
func (c *Coordinator) RegisterAcquirer(identity string, done <-chan struct{}) error {
	return c.registerCollaborator("acquirer", &c.acquirer, identity, done, c.onAcquirerDied)
}

func (c *Coordinator) registerCollaborator(role string, slot *collaboratorSlot, identity string, done <-chan struct{}, onDeath func()) error {
	var regErr error
	if err := c.send(func() {
		if slot.registered {
			regErr = &SlotOccupiedError{Role: role, Expected: slot.identity}
			return
		}
		slot.registered = true
		slot.identity = identity
		slot.done = done
		c.log.Info().Str("role", role).Str("identity", identity).Msg("collaborator registered")
		go c.watchCollaborator(role, identity, done, onDeath)
	}); err != nil {
		return err
	}
	return regErr
}

func (c *Coordinator) watchCollaborator(role, identity string, done <-chan struct{}, onDeath func()) {
	select {
	case <-done:
	case <-c.closed:
		return
	}
	_ = c.send(func() {
		slot := c.agentSlot(role)
		if !slot.registered || slot.identity != identity {
			return // already replaced or unregistered
		}
		slot.registered = false
		slot.identity = ""
		slot.done = nil
		c.log.Warn().Str("role", role).Str("identity", identity).Msg("collaborator died")
		onDeath()
	})
}

func (c *Coordinator) agentSlot(role string) *collaboratorSlot {
	if role == "agent" {
		return &c.agent
	}
	return &c.acquirer
}

func (c *Coordinator) checkIdentity(role, identity string) error {
	slot := c.agentSlot(role)
	if !slot.registered || slot.identity != identity {
		return &WrongIdentityError{Role: role, Supplied: identity, Expected: slot.identity}
	}
	return nil
}

// --- Lease events from the acquirer (spec.md §4.1, §6) ---

// LeaseAcquired reports that the acquirer now holds a remote lease on node.
func (c *Coordinator) LeaseAcquired(identity string, node NodeID) error {
	return c.send(func() {
		if err := c.checkIdentity("acquirer", identity); err != nil {
			c.log.Warn().Err(err).Msg("lease_acquired from unregistered acquirer")
			return
		}
		c.leases[node] = struct{}{}
		c.metrics.setRemoteLeases(len(c.leases))
		c.publish("lease.acquired", fmt.Sprintf("remote lease acquired on %s", node), map[string]string{"node": string(node)})
	})
}

// LeaseLost reports that the acquirer no longer holds a remote lease on
// node. Every live activity is re-evaluated; those whose quorum no longer
// holds are terminated with reason quorum-lost(node).
func (c *Coordinator) LeaseLost(identity string, node NodeID) error {
	return c.send(func() {
		if err := c.checkIdentity("acquirer", identity); err != nil {
			c.log.Warn().Err(err).Msg("lease_lost from unregistered acquirer")
			return
		}
		delete(c.leases, node)
		c.metrics.setRemoteLeases(len(c.leases))
		c.publish("lease.lost", fmt.Sprintf("remote lease lost on %s", node), map[string]string{"node": string(node)})
		c.terminateLosingQuorum(TerminationReason{Kind: ReasonQuorumLost, Node: node})
	})
}

// --- Lease events from the agent (spec.md §4.1, §6) ---

// LocalLeaseGranted reports that the agent was granted holder as the local
// lease. Valid only while no local lease is currently held.
func (c *Coordinator) LocalLeaseGranted(identity string, holder LeaseHolder) error {
	return c.send(func() {
		if err := c.checkIdentity("agent", identity); err != nil {
			c.log.Warn().Err(err).Msg("local_lease_granted from unregistered agent")
			return
		}
		if c.hasLocalLease {
			c.log.Error().Msg("local_lease_granted while a local lease is already held: invariant violation")
			panic("local_lease_granted called with a local lease already held")
		}
		c.hasLocalLease = true
		c.localLease = holder
		c.metrics.setHasLocalLease(true)
		c.publish("lease.granted", fmt.Sprintf("local lease granted by %s", holder.Node), map[string]string{"leader": string(holder.Node)})
	})
}

// LocalLeaseExpired reports that the agent's local lease, previously
// holder, has expired. holder must match the currently-held lease exactly.
// Every live activity is terminated with reason local-lease-expired.
func (c *Coordinator) LocalLeaseExpired(identity string, holder LeaseHolder) error {
	return c.send(func() {
		if err := c.checkIdentity("agent", identity); err != nil {
			c.log.Warn().Err(err).Msg("local_lease_expired from unregistered agent")
			return
		}
		if !c.hasLocalLease || !c.localLease.Equal(holder) {
			c.log.Error().Msg("local_lease_expired holder mismatch: invariant violation")
			panic("local_lease_expired holder does not match currently-held lease")
		}
		c.hasLocalLease = false
		c.localLease = LeaseHolder{}
		c.metrics.setHasLocalLease(false)
		c.publish("lease.expired", fmt.Sprintf("local lease from %s expired", holder.Node), map[string]string{"leader": string(holder.Node)})
		c.terminateAll(TerminationReason{Kind: ReasonLocalLeaseExpired})
	})
}

// --- Collaborator death handlers (spec.md §4.5) ---

func (c *Coordinator) onAgentDied() {
	c.hasLocalLease = false
	c.localLease = LeaseHolder{}
	c.metrics.setHasLocalLease(false)
	c.publish("agent.died", "lease agent died; local lease implicitly gone", nil)
	c.terminateAll(TerminationReason{Kind: ReasonLocalLeaseExpired})
}

func (c *Coordinator) onAcquirerDied() {
	c.leases = make(map[NodeID]struct{})
	c.metrics.setRemoteLeases(0)
	c.publish("acquirer.died", "lease acquirer died; remote leases cleared", nil)
	c.terminateRequiringLeader(TerminationReason{Kind: ReasonLeaderProcessDied})
}

func (c *Coordinator) publish(eventType, message string, metadata map[string]string) {
	if c.events != nil {
		c.events.PublishEvent(eventType, message, metadata)
	}
}

func (c *Coordinator) newWorkerID() uint64 {
	c.nextID++
	return c.nextID
}
