/*
Package cluster implements the Raft-backed membership and leader-election
layer the activity coordinator's collaborators run on top of.

A Warden cluster consists of 1-7 nodes that form a Raft quorum purely to
elect a leader and agree on membership. No cluster or activity state is
replicated through Raft: the FSM this package installs is intentionally
inert. Lease grants, epoch tokens, and activity state all live in
pkg/activity, one copy per node, coordinated by the leader soliciting
leases from followers directly rather than through the Raft log.

	┌──────────────────────── CLUSTER NODE ───────────────────────┐
	│                                                               │
	│  ┌───────────────────────────────────────────────┐          │
	│  │                  Node                          │          │
	│  │  - wraps *raft.Raft                            │          │
	│  │  - Bootstrap / Join / AddVoter / RemoveServer  │          │
	│  └──────────────────┬──────────────────────────────┘          │
	│                     │                                         │
	│  ┌──────────────────▼──────────────────────────────┐          │
	│  │         Raft Consensus Layer (election only)     │          │
	│  │  - TCP transport, BoltDB log + stable store      │          │
	│  │  - inert FSM: no cluster state in the log        │          │
	│  └──────────────────┬──────────────────────────────┘          │
	│                     │                                         │
	│       ┌─────────────┴─────────────┐                          │
	│       ▼                           ▼                          │
	│  ┌──────────┐              ┌─────────────┐                   │
	│  │  Agent   │              │  Acquirer   │                   │
	│  │ (local   │              │ (grant loop │                   │
	│  │  lease)  │              │  per peer,  │                   │
	│  │          │              │  leader only)│                  │
	│  └──────────┘              └─────────────┘                   │
	└───────────────────────────────────────────────────────────────┘

# Core components

Node wraps a *raft.Raft instance, providing Bootstrap/Join for cluster
formation and AddVoter/RemoveServer/GetClusterServers for membership
changes — all grounded in the same raft setup (TCP transport, raft-boltdb
log/stable store, file snapshot store, tuned heartbeat/election timeouts
for sub-10s failover) used elsewhere in this codebase for consensus.

EpochIssuer mints opaque lease epoch tokens using crypto/rand, the same
pattern this codebase uses for join-token generation, adapted to produce
unbounded-lifetime tokens rather than time-limited ones — an epoch is
retired by a new grant, not by a clock.

Agent implements pkg/activity's local-lease-agent collaborator role:
accepting Grant calls from whichever node currently believes itself
leader, running a TTL timer, and reporting expiry back to the
coordinator.

Acquirer implements pkg/activity's lease-acquirer collaborator role: for
each raft peer, a grant loop goroutine that starts when this node becomes
Raft leader and stops when it steps down, calling Grant once against that
peer's Agent through a Transport, then Renew on every tick (with a fresh
Grant when a renew is rejected), and reporting acquired/lost back to the
coordinator.

MembershipWatcher polls raft.Raft.GetConfiguration() on an interval and
feeds the resulting voter list to the coordinator's UpdateMembership.

# Concurrency model

Node's raft instance handles its own concurrency internally. Acquirer runs
one goroutine per peer per leadership term, torn down cleanly on
raft.Raft.LeaderCh() transitions. Agent's TTL timer runs on its own
goroutine per granted lease. None of this package's goroutines touch
pkg/activity state directly — they only call the Coordinator's exported
collaborator methods, which serialize internally.
*/
package cluster
