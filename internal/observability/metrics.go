package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	assembliesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timelog",
		Subsystem: "live",
		Name:      "assemblies_total",
		Help:      "Number of published projection assemblies, by trigger.",
	}, []string{"trigger"})

	assemblyErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timelog",
		Subsystem: "live",
		Name:      "assembly_errors_total",
		Help:      "Number of failed refetch-or-assemble passes, by trigger.",
	}, []string{"trigger"})

	staleAssemblyCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timelog",
		Subsystem: "live",
		Name:      "stale_assemblies_discarded_total",
		Help:      "Number of in-flight assembly results discarded because a newer one already published.",
	})

	signalCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timelog",
		Subsystem: "live",
		Name:      "signals_total",
		Help:      "Number of mutation signals received, by event type.",
	}, []string{"event_type"})

	lastSignalGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timelog",
		Subsystem: "live",
		Name:      "last_signal_timestamp_seconds",
		Help:      "Unix timestamp of the most recent mutation signal.",
	})

	intervalPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timelog",
		Subsystem: "persistence",
		Name:      "last_interval_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent interval write to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(
		assembliesCounter,
		assemblyErrorCounter,
		staleAssemblyCounter,
		signalCounter,
		lastSignalGauge,
		intervalPersistGauge,
	)
}

// RecordAssembly counts a published assembly.
func RecordAssembly(trigger string) {
	assembliesCounter.WithLabelValues(trigger).Inc()
}

// RecordAssemblyError counts a failed refetch/assemble pass.
func RecordAssemblyError(trigger string) {
	assemblyErrorCounter.WithLabelValues(trigger).Inc()
}

// RecordStaleAssembly counts a discarded stale in-flight result.
func RecordStaleAssembly() {
	staleAssemblyCounter.Inc()
}

// RecordSignal counts an inbound mutation signal.
func RecordSignal(eventType string) {
	signalCounter.WithLabelValues(eventType).Inc()
	lastSignalGauge.Set(float64(time.Now().Unix()))
}

// RecordIntervalPersisted updates the persistence watermark gauge.
func RecordIntervalPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	intervalPersistGauge.Set(float64(ts.Unix()))
}
