package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	divisionWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "division",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of division write conflicts broken down by kind.",
	}, []string{"kind"})

	divisionMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "division",
		Subsystem: "store",
		Name:      "mutations_total",
		Help:      "Total number of committed division mutations broken down by operation.",
	}, []string{"operation"})
)

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	divisionWriteConflicts.WithLabelValues(kind).Inc()
}

func recordMutation(operation string) {
	divisionMutations.WithLabelValues(operation).Inc()
}
