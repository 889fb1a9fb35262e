package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the int64 sum data point carrying key=value.
func sumFor(t *testing.T, met *metricdata.Metrics, key, value string) (int64, bool) {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", met.Name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"errtable.extract.duration", m.ExtractDuration},
		{"errtable.run.duration", m.RunDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.00002)
		tc.h.Record(ctx, 0.4)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordUtterance(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, StatusOK)
	m.RecordUtterance(ctx, StatusOK)
	m.RecordUtterance(ctx, StatusDesync)

	met := findMetric(collect(t, reader), "errtable.utterances")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got, ok := sumFor(t, met, "status", StatusOK); !ok || got != 2 {
		t.Errorf("status=ok: got %d (found=%v), want 2", got, ok)
	}
	if got, ok := sumFor(t, met, "status", StatusDesync); !ok || got != 1 {
		t.Errorf("status=desync: got %d (found=%v), want 1", got, ok)
	}
}

func TestRecordRecords(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecords(ctx, "S", 3)
	m.RecordRecords(ctx, "S", 2)
	m.RecordRecords(ctx, "I", 0)

	met := findMetric(collect(t, reader), "errtable.records")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got, ok := sumFor(t, met, "annotation", "S"); !ok || got != 5 {
		t.Errorf("annotation=S: got %d (found=%v), want 5", got, ok)
	}
	if _, ok := sumFor(t, met, "annotation", "I"); ok {
		t.Error("zero-count annotation should not produce a data point")
	}
}

func TestRecordSinkWrite(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSinkWrite(ctx, "jsonl", StatusOK, 7)

	met := findMetric(collect(t, reader), "errtable.sink.writes")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got, ok := sumFor(t, met, "sink", "jsonl"); !ok || got != 7 {
		t.Errorf("sink=jsonl: got %d (found=%v), want 7", got, ok)
	}
}

func TestActiveWorkers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveWorkers.Add(ctx, 4)
	m.ActiveWorkers.Add(ctx, -1)

	met := findMetric(collect(t, reader), "errtable.active_workers")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 3 {
		t.Errorf("gauge value = %d, want 3", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
