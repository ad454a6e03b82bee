package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReactorMetrics instruments the reactor's two event loops and its
// operator command surface.
type ReactorMetrics struct {
	loopEventsTotal     *prometheus.CounterVec
	commandsTotal       *prometheus.CounterVec
	commandDuration     *prometheus.HistogramVec
	activeLeases        prometheus.Gauge
	leaseRejectedTotal  *prometheus.CounterVec
	onchainSubmitTotal  *prometheus.CounterVec
	onchainSubmitLatency *prometheus.HistogramVec
}

// NewReactorMetrics returns nil when metrics are disabled, so callers can
// call its methods unconditionally through the nil-safe helpers below.
func NewReactorMetrics() *ReactorMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()
	return &ReactorMetrics{
		loopEventsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p2pim_reactor_loop_events_total",
				Help: "Total events processed by the reactor's chain and peer event loops.",
			},
			[]string{"loop"}, // "chain", "peer"
		),
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p2pim_reactor_commands_total",
				Help: "Total operator commands handled, by command and outcome.",
			},
			[]string{"command", "outcome"}, // outcome: "ok", "error"
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "p2pim_reactor_command_duration_seconds",
				Help:    "Duration of operator commands.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		activeLeases: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "p2pim_reactor_active_leases",
				Help: "Number of leases currently tracked in the ledger.",
			},
		),
		leaseRejectedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p2pim_reactor_lease_rejected_total",
				Help: "Total lease proposals rejected by the acceptance policy, by reason.",
			},
			[]string{"reason"},
		),
		onchainSubmitTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p2pim_onchain_submissions_total",
				Help: "Total transactions submitted to the adjudicator, by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		onchainSubmitLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "p2pim_onchain_submission_latency_seconds",
				Help:    "Time from submission to mined confirmation.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"method"},
		),
	}
}

// ObserveLoopEvent records one event processed by loop ("chain" or "peer").
func (m *ReactorMetrics) ObserveLoopEvent(loop string) {
	if m == nil {
		return
	}
	m.loopEventsTotal.WithLabelValues(loop).Inc()
}

// ObserveCommand records a completed operator command and its duration.
func (m *ReactorMetrics) ObserveCommand(command string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commandsTotal.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// SetActiveLeases sets the current lease-ledger size.
func (m *ReactorMetrics) SetActiveLeases(n int) {
	if m == nil {
		return
	}
	m.activeLeases.Set(float64(n))
}

// ObserveLeaseRejected records a policy rejection with its reason.
func (m *ReactorMetrics) ObserveLeaseRejected(reason string) {
	if m == nil {
		return
	}
	m.leaseRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveOnchainSubmission records a chain submission's outcome and, when
// the submission was confirmed, the latency until confirmation.
func (m *ReactorMetrics) ObserveOnchainSubmission(method string, err error, latency time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.onchainSubmitTotal.WithLabelValues(method, outcome).Inc()
	if err == nil {
		m.onchainSubmitLatency.WithLabelValues(method).Observe(latency.Seconds())
	}
}
