package roomview

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	paginationSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomview",
			Subsystem: "timeline",
			Name:      "pagination_steps_total",
			Help:      "Total number of window growth steps by kind",
		},
		[]string{"action"},
	)
	fetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roomview",
			Subsystem: "timeline",
			Name:      "fetch_failures_total",
			Help:      "Total number of failed history fetches",
		},
	)
	receiptsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomview",
			Subsystem: "read",
			Name:      "receipts_total",
			Help:      "Total number of read receipts by outcome",
		},
		[]string{"outcome"},
	)
	staleResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomview",
			Subsystem: "view",
			Name:      "stale_results_total",
			Help:      "Total number of async results dropped after the view moved on",
		},
		[]string{"kind"},
	)
)

var registerViewMetrics sync.Once

func init() {
	registerViewMetrics.Do(func() {
		prometheus.MustRegister(paginationSteps, fetchFailures, receiptsSent, staleResults)
	})
}
