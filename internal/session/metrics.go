package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/firstday-app/firstday/internal/prompt"
)

const metricsNamespace = "firstday"

var (
	// generationsTotal counts generation attempts by prompt intent and outcome.
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "generations_total",
			Help:      "Total number of generation attempts by intent and status",
		},
		[]string{"intent", "status"},
	)
)

const (
	statusOK           = "ok"
	statusGatewayError = "gateway_error"
	statusCancelled    = "cancelled"
)

func recordGeneration(intent prompt.Intent, status string) {
	generationsTotal.WithLabelValues(string(intent), status).Inc()
}
