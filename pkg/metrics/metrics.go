package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster membership metrics
	ClusterMembersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_cluster_members_total",
			Help: "Total number of voting members in the raft cluster",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Lease-grant metrics, collected from pkg/cluster
	EpochRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_epoch_rotations_total",
			Help: "Total number of local-lease epoch tokens issued",
		},
	)

	GrantLoopsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_grant_loops_active",
			Help: "Number of per-peer lease grant loops currently running on the acquirer",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ClusterMembersTotal,
		RaftLeader,
		RaftPeers,
		RaftLogIndex,
		RaftAppliedIndex,
		APIRequestsTotal,
		APIRequestDuration,
		EpochRotationsTotal,
		GrantLoopsActive,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// InstrumentHandler wraps next so every request counts against
// APIRequestsTotal and times into APIRequestDuration, labeled by method.
func InstrumentHandler(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		APIRequestsTotal.WithLabelValues(method, strconv.Itoa(rec.status)).Inc()
		APIRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}
