package logincapture

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFlows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logincapture",
		Name:      "flows_total",
		Help:      "Flows finished, by kind and terminal status.",
	}, []string{"kind", "status"})
	metricCheckpoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logincapture",
		Name:      "checkpoints_total",
		Help:      "Checkpoint records produced, by label and whether they are placeholders.",
	}, []string{"label", "placeholder"})
	metricTacticAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logincapture",
		Name:      "tactic_attempts_total",
		Help:      "Ordered-fallback attempts, by target and outcome.",
	}, []string{"target", "outcome"})
)

func recordFlow(kind FlowKind, status Status) {
	metricFlows.WithLabelValues(string(kind), status.String()).Inc()
}

func recordCheckpoint(label string, placeholder bool) {
	metricCheckpoints.WithLabelValues(label, strconv.FormatBool(placeholder)).Inc()
}

func recordAttempt(target string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metricTacticAttempts.WithLabelValues(target, outcome).Inc()
}
