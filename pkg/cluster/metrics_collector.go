package cluster

import (
	"context"
	"time"

	"github.com/cuemby/warden/pkg/metrics"
)

// MetricsCollector periodically samples a Node's Raft state into
// pkg/metrics' gauges. Grounded on the same poll-and-set pattern this
// codebase uses for health checks, applied to Raft instead.
type MetricsCollector struct {
	node     *Node
	interval time.Duration
}

// NewMetricsCollector creates a MetricsCollector sampling node every
// interval (defaulting to 5s if non-positive).
func NewMetricsCollector(node *Node, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &MetricsCollector{node: node, interval: interval}
}

// Run samples until ctx is canceled.
func (m *MetricsCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *MetricsCollector) sample() {
	stats := m.node.GetRaftStats()
	if stats == nil {
		return
	}
	if m.node.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}
	if idx, ok := stats["last_log_index"].(uint64); ok {
		metrics.RaftLogIndex.Set(float64(idx))
	}
	if idx, ok := stats["applied_index"].(uint64); ok {
		metrics.RaftAppliedIndex.Set(float64(idx))
	}
	servers, err := m.node.GetClusterServers()
	if err == nil {
		metrics.RaftPeers.Set(float64(len(servers)))
		metrics.ClusterMembersTotal.Set(float64(len(servers)))
	}
}
