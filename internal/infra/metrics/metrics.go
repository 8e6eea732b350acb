// Package metrics provides Prometheus metrics for the ADPF daemon: sessions,
// reports, votes, uclamp applies, the timeout queue and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Sessions ───────────────────────────────────────────────────────────────

// SessionsActive tracks open sessions that are not paused, by tag.
var SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "adpf",
	Name:      "sessions_active",
	Help:      "Number of open, unpaused hint sessions.",
}, []string{"tag"})

// SessionsCreated tracks created sessions by tag.
var SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "adpf",
	Name:      "sessions_created_total",
	Help:      "Total hint sessions created.",
}, []string{"tag"})

// SessionsClosed tracks closed sessions by tag.
var SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "adpf",
	Name:      "sessions_closed_total",
	Help:      "Total hint sessions closed.",
}, []string{"tag"})

// ─── Reports ────────────────────────────────────────────────────────────────

// WorkDurations tracks reported work durations in seconds.
var WorkDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "adpf",
	Name:      "work_duration_seconds",
	Help:      "Reported actual work durations.",
	Buckets:   []float64{0.002, 0.004, 0.008, 0.012, 0.016, 0.024, 0.033, 0.05, 0.1},
}, []string{"tag"})

// ControlVariable tracks the PID output written as the default vote.
var ControlVariable = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "adpf",
	Name:      "pid_control_variable",
	Help:      "uclamp.min chosen by the PID controller per report.",
	Buckets:   []float64{0, 64, 128, 192, 256, 384, 512, 768, 1024},
}, []string{"tag"})

// JankFrames tracks reported frames by heuristic janky level.
var JankFrames = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "adpf",
	Name:      "jank_frames_total",
	Help:      "Reported frames per heuristic janky level.",
}, []string{"level"})

// RejectedCalls tracks session API calls rejected by kind of error.
var RejectedCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "adpf",
	Name:      "rejected_calls_total",
	Help:      "Session calls rejected synchronously.",
}, []string{"op", "reason"})

// ─── Votes ──────────────────────────────────────────────────────────────────

// VotesCast tracks voteSet calls by vote kind.
var VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "adpf",
	Name:      "votes_cast_total",
	Help:      "Total votes cast per vote kind.",
}, []string{"kind"})

// VotesExpired tracks votes deactivated by their deadline.
var VotesExpired = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "adpf",
	Name:      "votes_expired_total",
	Help:      "Total votes that reached their deadline.",
}, []string{"kind"})

// TimeoutsRequeued tracks timer fires that found a later deadline.
var TimeoutsRequeued = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "adpf",
	Name:      "timeouts_requeued_total",
	Help:      "Timer fires that rescheduled for an extended deadline.",
})

// ─── Resources ──────────────────────────────────────────────────────────────

// UclampApplies tracks resource sink calls by result.
var UclampApplies = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "adpf",
	Name:      "uclamp_applies_total",
	Help:      "Thread uclamp applies by result (ok, gone, error).",
}, []string{"result"})

// DeadThreadsPruned tracks threads dropped after the kernel reported them gone.
var DeadThreadsPruned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "adpf",
	Name:      "dead_threads_pruned_total",
	Help:      "Threads removed from the thread map after ESRCH.",
})

// GpuCapacity tracks the last GPU capacity requested.
var GpuCapacity = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "adpf",
	Name:      "gpu_capacity_kcycles",
	Help:      "Last GPU capacity requested from the sink, in thousands of cycles.",
})

// UniversalBoostSuppressed is 1 while the generic boost is disabled.
var UniversalBoostSuppressed = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "adpf",
	Name:      "universal_boost_suppressed",
	Help:      "1 while an active app session suppresses the generic boost.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "adpf",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "adpf",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
