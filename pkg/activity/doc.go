/*
Package activity implements Warden's cluster leader-activity coordinator.

The coordinator gates administrative operations ("activities") on two
preconditions: the local node holding a valid short-lived lease from the
current cluster leader, and a quorum of remote nodes acknowledging that
leader's authority. It supervises running activities and terminates them
the moment either precondition stops holding.

# Architecture

	┌───────────────────────── COORDINATOR ─────────────────────────┐
	│                                                                  │
	│  ┌──────────────┐   register/lease events   ┌────────────────┐ │
	│  │ Lease agent  │ ─────────────────────────▶ │                │ │
	│  │ (collaborator)│                            │                │ │
	│  └──────────────┘                            │                │ │
	│                                               │    Mailbox     │ │
	│  ┌──────────────┐   register/lease events    │  (serializer)  │ │
	│  │Lease acquirer│ ─────────────────────────▶ │                │ │
	│  │ (collaborator)│                            │                │ │
	│  └──────────────┘                            └───────┬────────┘ │
	│                                                       │          │
	│  run_activity / start_activity / register_process ────┘          │
	│  switch_quorum / membership events ────────────────────┘         │
	│                                                                  │
	│                     ┌─────────────────────┐                     │
	│                     │   Activity registry  │                     │
	│                     │  (domain, worker,     │                     │
	│                     │   monitor, quorum)    │                     │
	│                     └──────────┬────────────┘                     │
	│                                │                                  │
	│                     terminate on precondition loss                │
	└────────────────────────────────┼──────────────────────────────────┘
	                                 ▼
	                      activity worker goroutines
	                      (run in parallel, outside the
	                       serializer; coordinator only
	                       supervises them)

# Core components

Coordinator: owns the single in-memory state (collaborator slots, local
lease, remote lease set, quorum-node set, activity registry) and runs the
serializer loop. Every public method builds a closure and sends it through
the mailbox channel so that admission decisions, state mutations, and the
caller's sub-call all happen inside one indivisible step.

Quorum evaluator (quorum.go): pure functions over a Quorum expression and a
state snapshot — have_lease, have_quorum, quorum_requires_leader.

Admission protocol (admission.go): wait_for_quorum's deferred-wait queue.
Requests whose predicate isn't yet satisfied are parked and re-evaluated on
every state transition, dispatched in registration order.

Activity supervisor (supervisor.go): start_activity, register_process,
switch_quorum, and the termination/monitor bookkeeping that backs them.

Bypass dispatcher (bypass.go): short-circuits all of the above during a
rolling upgrade.

Membership tracker (membership.go): recomputes the quorum-node set from
membership events and re-checks every live activity when it changes.

# Concurrency model

The coordinator is a single-threaded serializer: a single goroutine drains
the mailbox channel, so every state mutation is strictly ordered. Activity
bodies run on independent goroutines outside the serializer; the
coordinator only supervises them via Worker's Done channel and a cancel
cause. wait_for_quorum is the only operation that blocks the caller — the
coordinator itself never blocks on it.
*/
package activity
