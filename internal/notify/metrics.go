package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	routedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timelog",
		Subsystem: "notify",
		Name:      "signals_routed_total",
		Help:      "Number of Kafka signals routed to a coordinator.",
	}, []string{"event_type"})

	fetchErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timelog",
		Subsystem: "notify",
		Name:      "fetch_errors_total",
		Help:      "Number of Kafka fetch failures.",
	})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timelog",
		Subsystem: "notify",
		Name:      "decode_errors_total",
		Help:      "Number of malformed signal messages per topic.",
	}, []string{"topic"})

	routeDelay = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "timelog",
		Subsystem: "notify",
		Name:      "route_delay_seconds",
		Help:      "Delay between signal production and routing.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(routedCounter, fetchErrorCounter, decodeErrorCounter, routeDelay)
}

func recordRouted(eventType string, delay time.Duration) {
	routedCounter.WithLabelValues(eventType).Inc()
	if delay > 0 {
		routeDelay.Observe(delay.Seconds())
	}
}

func recordFetchError() {
	fetchErrorCounter.Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
