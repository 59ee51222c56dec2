package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ruleMutations counts Modify calls by operation, dimension and outcome code.
	ruleMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_rule_mutations_total",
			Help: "Rule modifications by operation, dimension and outcome.",
		},
		[]string{"operation", "dimension", "outcome"},
	)

	// evaluatedEmails counts classified emails by resulting action.
	evaluatedEmails = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_evaluated_emails_total",
			Help: "Pending emails classified, by action.",
		},
		[]string{"action"},
	)

	evalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "triage_evaluation_duration_seconds",
			Help:    "Duration of one user's batch evaluation in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(ruleMutations, evaluatedEmails, evalDuration)
}

// observeMutation records the outcome of one Modify call. Unknown vocabulary
// is collapsed so label cardinality stays bounded.
func observeMutation(cmd *command, code Code) {
	op, dim := "invalid", "invalid"
	if cmd != nil {
		op, dim = string(cmd.op), string(cmd.dim)
	}
	ruleMutations.WithLabelValues(op, dim, string(code)).Inc()
}
