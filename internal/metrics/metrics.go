/**
 * @description
 * Prometheus instruments for relay and release outcomes, served on GET /metrics.
 *
 * @dependencies
 * - github.com/prometheus/client_golang: collectors and the exposition handler.
 */
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escrow"

var (
	// RelayRequests counts relay attempts by kind (deposit|withdrawal) and outcome
	// (forwarded or the rejection kind).
	RelayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_requests_total",
		Help:      "Relay requests by kind and outcome.",
	}, []string{"kind", "outcome"})

	StorageRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_registrations_total",
		Help:      "Relayer-paid storage registrations by caller path.",
	}, []string{"path"})

	ReleaseRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "release_runs_total",
		Help:      "Escrow release runs started.",
	})

	ReleaseItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "release_items_total",
		Help:      "Consultations processed by release runs, by outcome.",
	}, []string{"outcome"})

	Payouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payouts_total",
		Help:      "Escrow transfers submitted, by leg.",
	}, []string{"leg"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
