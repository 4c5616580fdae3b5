package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveFitRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCalibrationCollector(reg)
	if err != nil {
		t.Fatalf("NewCalibrationCollector: %v", err)
	}

	collector.ObserveFit(1, true, 2.5e-4, 12*time.Millisecond)
	collector.ObserveFit(2, true, 1.1e-3, 40*time.Millisecond)
	collector.ObserveFit(2, false, 0, 55*time.Millisecond)

	if got := testutil.ToFloat64(collector.Fits.WithLabelValues("1", "converged")); got != 1 {
		t.Fatalf("cal_fits_total{order=1,outcome=converged} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Fits.WithLabelValues("2", "failed")); got != 1 {
		t.Fatalf("cal_fits_total{order=2,outcome=failed} = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "cal_fit_duration_seconds", map[string]string{"order": "2"}); count != 2 {
		t.Fatalf("cal_fit_duration_seconds{order=2} sample_count = %d, want 2", count)
	}
	// Only converged fits contribute a residual statistic.
	if count := histogramSampleCount(t, reg, "cal_fit_chi_squared", nil); count != 2 {
		t.Fatalf("cal_fit_chi_squared sample_count = %d, want 2", count)
	}
}

func TestObservePeelCountsDirections(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCalibrationCollector(reg)
	if err != nil {
		t.Fatalf("NewCalibrationCollector: %v", err)
	}

	collector.ObservePeel(false)
	collector.ObservePeel(false)
	collector.ObservePeel(true)

	if got := testutil.ToFloat64(collector.PeelOps.WithLabelValues("peel")); got != 2 {
		t.Fatalf("cal_peel_operations_total{direction=peel} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.PeelOps.WithLabelValues("unpeel")); got != 1 {
		t.Fatalf("cal_peel_operations_total{direction=unpeel} = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var collector *CalibrationCollector
	collector.ObserveFit(1, true, 0.1, time.Millisecond)
	collector.ObservePeel(false)
	collector.SetSourceCounts(4, 3)
}

func TestMetricsHandlerExposesSourceGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCalibrationCollector(reg)
	if err != nil {
		t.Fatalf("NewCalibrationCollector: %v", err)
	}
	collector.SetSourceCounts(7, 6)
	collector.ObserveFit(1, true, 1e-4, time.Millisecond)
	collector.ObservePeel(false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"cal_fits_total",
		"cal_fit_duration_seconds",
		"cal_fit_chi_squared",
		"cal_peel_operations_total",
		"cal_sources_total",
		"cal_sources_surviving",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
	if !strings.Contains(body, "cal_sources_total 7") || !strings.Contains(body, "cal_sources_surviving 6") {
		t.Fatalf("/metrics output missing source gauge values: %s", body)
	}
}

func TestRegisteringTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCalibrationCollector(reg)
	if err != nil {
		t.Fatalf("first NewCalibrationCollector: %v", err)
	}
	second, err := NewCalibrationCollector(reg)
	if err != nil {
		t.Fatalf("second NewCalibrationCollector: %v", err)
	}

	first.ObservePeel(false)
	second.ObservePeel(false)
	if got := testutil.ToFloat64(first.PeelOps.WithLabelValues("peel")); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
