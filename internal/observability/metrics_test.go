package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(mf *dto.MetricFamily, labelValue string) float64 {
	if mf == nil {
		return 0
	}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetValue() == labelValue {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRecordAssemblyCountsByTrigger(t *testing.T) {
	before := counterValue(findFamily(t, "timelog_live_assemblies_total"), "signal")

	RecordAssembly("signal")
	RecordAssembly("signal")
	RecordAssembly("tick")

	after := counterValue(findFamily(t, "timelog_live_assemblies_total"), "signal")
	require.Equal(t, before+2, after)
}

func TestRecordSignalUpdatesWatermark(t *testing.T) {
	RecordSignal("interval.created")

	mf := findFamily(t, "timelog_live_last_signal_timestamp_seconds")
	require.NotNil(t, mf)
	require.Len(t, mf.GetMetric(), 1)
	ts := mf.GetMetric()[0].GetGauge().GetValue()
	require.InDelta(t, float64(time.Now().Unix()), ts, 5)
}

func TestRecordIntervalPersistedIgnoresZeroTime(t *testing.T) {
	persisted := time.Date(2025, 10, 27, 12, 0, 0, 0, time.UTC)
	RecordIntervalPersisted(persisted)

	mf := findFamily(t, "timelog_persistence_last_interval_persisted_timestamp_seconds")
	require.NotNil(t, mf)
	require.Equal(t, float64(persisted.Unix()), mf.GetMetric()[0].GetGauge().GetValue())

	RecordIntervalPersisted(time.Time{})
	mf = findFamily(t, "timelog_persistence_last_interval_persisted_timestamp_seconds")
	require.Equal(t, float64(persisted.Unix()), mf.GetMetric()[0].GetGauge().GetValue())
}
