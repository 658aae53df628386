package activity

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirror the teacher's pkg/metrics style: package-level vectors
// registered once via MustRegister, with small per-instance helpers wrapped
// in a metricsRecorder so a Coordinator never touches prometheus types
// directly outside this file.
var (
	remoteLeaseGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity",
		Name:      "remote_leases_held",
		Help:      "Number of remote node leases currently held by this node's acquirer.",
	}, []string{"node"})

	localLeaseGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity",
		Name:      "local_lease_held",
		Help:      "1 if this node currently holds a local lease from a leader, else 0.",
	}, []string{"node"})

	activitiesActiveGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity",
		Name:      "active",
		Help:      "Number of activities currently admitted and running.",
	}, []string{"node"})

	activitiesTerminatedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity",
		Name:      "terminated_total",
		Help:      "Activities forcibly terminated by the coordinator, by reason.",
	}, []string{"node", "reason"})

	admissionWaitHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "activity",
		Name:      "admission_wait_seconds",
		Help:      "Time spent in wait_for_quorum before admission, timeout, or bypass.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"node", "outcome"})

	bypassedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity",
		Name:      "bypassed_total",
		Help:      "wait_for_quorum calls admitted via bypass mode, skipping quorum evaluation entirely.",
	}, []string{"node"})
)

func init() {
	prometheus.MustRegister(
		remoteLeaseGauge,
		localLeaseGauge,
		activitiesActiveGauge,
		activitiesTerminatedCounter,
		admissionWaitHistogram,
		bypassedCounter,
	)
}

// metricsRecorder binds the package-level vectors to one node label so a
// Coordinator's calls read as plain method calls.
type metricsRecorder struct {
	node string
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{}
}

func (m *metricsRecorder) bind(node NodeID) {
	m.node = string(node)
}

func (m *metricsRecorder) setRemoteLeases(n int) {
	remoteLeaseGauge.WithLabelValues(m.node).Set(float64(n))
}

func (m *metricsRecorder) setHasLocalLease(held bool) {
	v := 0.0
	if held {
		v = 1.0
	}
	localLeaseGauge.WithLabelValues(m.node).Set(v)
}

func (m *metricsRecorder) setActiveActivities(n int) {
	activitiesActiveGauge.WithLabelValues(m.node).Set(float64(n))
}

func (m *metricsRecorder) recordTermination(reason string) {
	activitiesTerminatedCounter.WithLabelValues(m.node, reason).Inc()
}

func (m *metricsRecorder) recordBypass() {
	bypassedCounter.WithLabelValues(m.node).Inc()
}

func (m *metricsRecorder) observeWait(outcome string, d time.Duration) {
	admissionWaitHistogram.WithLabelValues(m.node, outcome).Observe(d.Seconds())
}
