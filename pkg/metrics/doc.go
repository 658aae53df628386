/*
Package metrics provides Prometheus metrics and HTTP health/readiness
checks for Warden.

Metrics cover the two halves of the system: pkg/cluster's Raft-driven
membership state (ClusterMembersTotal, RaftLeader, RaftPeers,
RaftLogIndex, RaftAppliedIndex, EpochRotationsTotal, GrantLoopsActive) and
whatever HTTP surface cmd/wardenctl exposes alongside it
(APIRequestsTotal, APIRequestDuration). All are registered at package
init and served at /metrics via Handler().

Health tracking is separate from the Prometheus registry: RegisterComponent
and UpdateComponent let any component (typically "raft" and "cluster")
report up/down, and HealthHandler/ReadyHandler/LivenessHandler expose the
aggregate over HTTP. ReadyHandler in particular gates on a fixed list of
critical components — a node that hasn't finished Raft bootstrap or joined
a cluster reports not_ready rather than a bare 200.

# Usage

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())

	metrics.RegisterComponent("raft", true, "")
	metrics.RaftLeader.Set(1)

# See Also

  - Prometheus client_golang: https://github.com/prometheus/client_golang
  - pkg/cluster.MetricsCollector, which samples Raft state into these gauges
*/
package metrics
