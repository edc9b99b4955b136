package internal

import "github.com/prometheus/client_golang/prometheus"

var (
	// eventsTotal counts inbound webhook events by hub and request kind.
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookgw_events_total",
			Help: "Webhook events received",
		},
		[]string{"hub", "kind"},
	)

	// responsesTotal counts translated webhook responses by status.
	responsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookgw_responses_total",
			Help: "Webhook responses sent",
		},
		[]string{"hub", "status"},
	)

	// buildFailures counts handler outputs dropped by the fail-open path.
	// The client still gets the default empty response; this is the
	// diagnostic surface for the swallowed cause.
	buildFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookgw_response_build_failures_total",
			Help: "Handler outputs dropped during response building",
		},
		[]string{"hub"},
	)

	// connectionsActive tracks client websockets held by this instance.
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookgw_client_connections_active",
			Help: "Active client connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		eventsTotal,
		responsesTotal,
		buildFailures,
		connectionsActive,
	)
}
