// Package metrics holds the Prometheus collectors of the connector. They are
// registered on the controller-runtime registry, which the HTTP server exposes
// on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const namespace = "domain_connector"

var (
	// DNSVerifications counts DNS ownership checks by result (passed, failed).
	DNSVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_verifications_total",
			Help:      "Total number of DNS ownership verifications by result",
		},
		[]string{"result"},
	)

	// Operations counts provisioning and deletion attempts by outcome.
	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of hostname operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// Callbacks counts callback deliveries by outcome.
	Callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Total number of callback notifications by outcome",
		},
		[]string{"outcome"},
	)

	// ProviderCommandDuration observes provider command latency.
	ProviderCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_command_duration_seconds",
			Help:      "Provider command latency in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"command", "outcome"},
	)
)

func init() {
	crmetrics.Registry.MustRegister(
		DNSVerifications,
		Operations,
		Callbacks,
		ProviderCommandDuration,
	)
}

// Outcome maps an error to the outcome label value.
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
