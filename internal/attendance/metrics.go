package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "attendance_decisions_total",
		Help:      "Attendance submissions by outcome and reason.",
	}, []string{"outcome", "reason"})

	upstreamFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "attendance_upstream_failures_total",
		Help:      "Failed calls to the fence store, mark store or audit queue.",
	}, []string{"dependency"})

	lowAccuracyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "attendance_low_accuracy_accepted_total",
		Help:      "Accepted marks whose GPS accuracy exceeded the configured threshold.",
	})
)

func observeAccepted(m Mark) {
	reason := "inside"
	if m.AdminOverride {
		reason = "override"
	}
	decisionsTotal.WithLabelValues("accepted", reason).Inc()
}

func observeRejected(r Reason) {
	decisionsTotal.WithLabelValues("rejected", string(r)).Inc()
}
