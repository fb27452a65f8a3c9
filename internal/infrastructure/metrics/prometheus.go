// Package metrics exposes engine and scheduler measurements to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "studygroups"

// PrometheusCollector implements grouping.Recorder backed by Prometheus.
// Metrics are created and registered lazily on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	groupsFormed    *prometheus.CounterVec
	formationMisses *prometheus.CounterVec
	reshuffles      *prometheus.CounterVec
	merges          *prometheus.CounterVec
	departures      *prometheus.CounterVec
	sweepRemoved    *prometheus.CounterVec
	sweepPairs      *prometheus.CounterVec
	sweepMerges     *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	waiting         *prometheus.GaugeVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
}

var _ grouping.Recorder = (*PrometheusCollector)(nil)

// NewPrometheus creates a collector. A nil registerer selects
// prometheus.DefaultRegisterer; an empty namespace selects DefaultNamespace.
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.groupsFormed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "groups",
			Name:      "formed_total",
			Help:      "Groups filled to quota, by whether a vacant group was reused.",
		}, []string{"directory", "reused"})

		p.formationMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "groups",
			Name:      "formation_misses_total",
			Help:      "Formation attempts that found too few waiting students.",
		}, []string{"directory"})

		p.reshuffles = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "groups",
			Name:      "reshuffles_total",
			Help:      "Pairwise reshuffles.",
		}, []string{"directory"})

		p.merges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "groups",
			Name:      "merges_total",
			Help:      "Merge attempts by result (merged, rejected).",
		}, []string{"directory", "result"})

		p.departures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "members",
			Name:      "departures_total",
			Help:      "Member departures by whether a waiting student took the seat.",
		}, []string{"directory", "backfilled"})

		p.sweepRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "sweep",
			Name:      "removed_groups_total",
			Help:      "Groups vacated by maintenance sweeps.",
		}, []string{"directory"})

		p.sweepPairs = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "sweep",
			Name:      "reshuffled_pairs_total",
			Help:      "Group pairs reshuffled by maintenance sweeps.",
		}, []string{"directory"})

		p.sweepMerges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "sweep",
			Name:      "merges_total",
			Help:      "Merges performed by maintenance sweeps.",
		}, []string{"directory"})

		p.sweepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of one directory sweep in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8), // 100µs .. ~1.6s
		}, []string{"directory"})

		p.waiting = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "queue",
			Name:      "waiting",
			Help:      "Students waiting for a group, by tier.",
		}, []string{"directory", "tier"})

		p.jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by result (success, failure).",
		}, []string{"job", "result"})

		p.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduled job duration in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"job"})

		p.reg.MustRegister(
			p.groupsFormed,
			p.formationMisses,
			p.reshuffles,
			p.merges,
			p.departures,
			p.sweepRemoved,
			p.sweepPairs,
			p.sweepMerges,
			p.sweepDuration,
			p.waiting,
			p.jobRuns,
			p.jobDuration,
		)
	})
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// GroupFormed counts a formed group.
func (p *PrometheusCollector) GroupFormed(key string, reused bool) {
	p.ensureRegistered()
	p.groupsFormed.WithLabelValues(key, boolLabel(reused)).Inc()
}

// FormationMissed counts a formation attempt that lacked students.
func (p *PrometheusCollector) FormationMissed(key string) {
	p.ensureRegistered()
	p.formationMisses.WithLabelValues(key).Inc()
}

// Reshuffled counts a pairwise reshuffle.
func (p *PrometheusCollector) Reshuffled(key string) {
	p.ensureRegistered()
	p.reshuffles.WithLabelValues(key).Inc()
}

// MergeAttempted counts a merge attempt.
func (p *PrometheusCollector) MergeAttempted(key string, ok bool) {
	p.ensureRegistered()
	result := "rejected"
	if ok {
		result = "merged"
	}
	p.merges.WithLabelValues(key, result).Inc()
}

// MemberDeparted counts a departure.
func (p *PrometheusCollector) MemberDeparted(key string, backfilled bool) {
	p.ensureRegistered()
	p.departures.WithLabelValues(key, boolLabel(backfilled)).Inc()
}

// SweepCompleted records the outcome of one directory sweep.
func (p *PrometheusCollector) SweepCompleted(key string, removed, pairs, merges int, d time.Duration) {
	p.ensureRegistered()
	p.sweepRemoved.WithLabelValues(key).Add(float64(removed))
	p.sweepPairs.WithLabelValues(key).Add(float64(pairs))
	p.sweepMerges.WithLabelValues(key).Add(float64(merges))
	p.sweepDuration.WithLabelValues(key).Observe(d.Seconds())
}

// WaitingChanged sets the queue length gauge of one tier.
func (p *PrometheusCollector) WaitingChanged(key string, tier student.Tier, n int) {
	p.ensureRegistered()
	p.waiting.WithLabelValues(key, tier.String()).Set(float64(n))
}

// JobCompleted records one scheduler run.
func (p *PrometheusCollector) JobCompleted(job string, d time.Duration, success bool) {
	p.ensureRegistered()
	result := "failure"
	if success {
		result = "success"
	}
	p.jobRuns.WithLabelValues(job, result).Inc()
	p.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
