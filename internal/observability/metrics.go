package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CalibrationCollector bundles Prometheus metrics for the peeling
// calibration pipeline and exposes a ready-made /metrics handler.
type CalibrationCollector struct {
	gatherer prometheus.Gatherer

	// Fits counts solver attempts by model order and outcome
	// ("converged" or "failed").
	Fits *prometheus.CounterVec

	// FitDurations is solver wall time in seconds, by model order.
	FitDurations *prometheus.HistogramVec

	// FitChiSq is the residual statistic of converged fits.
	FitChiSq prometheus.Histogram

	// PeelOps counts peel and unpeel mutations of the shared buffer,
	// labeled by direction ("peel" or "unpeel").
	PeelOps *prometheus.CounterVec

	// SourcesTotal and SourcesSurviving track the ranked input set and
	// how many solutions stay usable for the screen.
	SourcesTotal     prometheus.Gauge
	SourcesSurviving prometheus.Gauge
}

// NewCalibrationCollector registers the calibration metrics against the
// provided registerer, defaulting to the global Prometheus registry when
// nil.
func NewCalibrationCollector(reg prometheus.Registerer) (*CalibrationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	fits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cal_fits_total",
		Help: "Total number of per-source solver attempts, labeled by model order and outcome.",
	}, []string{"order", "outcome"})
	fits, err := registerCounterVec(reg, fits, "cal_fits_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cal_fit_duration_seconds",
		Help:    "Nonlinear solver wall time in seconds, labeled by model order.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"order"})
	durations, err = registerHistogramVec(reg, durations, "cal_fit_duration_seconds")
	if err != nil {
		return nil, err
	}

	chiSq := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cal_fit_chi_squared",
		Help:    "Residual statistic of converged fits.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 10, 12),
	})
	chiSqReg, err := registerHistogram(reg, chiSq, "cal_fit_chi_squared")
	if err != nil {
		return nil, err
	}

	peels := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cal_peel_operations_total",
		Help: "In-place mutations of the shared visibility buffer, labeled peel or unpeel.",
	}, []string{"direction"})
	peels, err = registerCounterVec(reg, peels, "cal_peel_operations_total")
	if err != nil {
		return nil, err
	}

	total, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cal_sources_total",
		Help: "Number of ranked sources entering the calibration loop.",
	}), "cal_sources_total")
	if err != nil {
		return nil, err
	}
	surviving, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cal_sources_surviving",
		Help: "Number of non-failed solutions after the final pass.",
	}), "cal_sources_surviving")
	if err != nil {
		return nil, err
	}

	return &CalibrationCollector{
		gatherer:         gatherer,
		Fits:             fits,
		FitDurations:     durations,
		FitChiSq:         chiSqReg,
		PeelOps:          peels,
		SourcesTotal:     total,
		SourcesSurviving: surviving,
	}, nil
}

// ObserveFit records one solver attempt. Safe on a nil collector so the
// calibration loop can run unmetered.
func (c *CalibrationCollector) ObserveFit(order int, converged bool, chiSq float64, elapsed time.Duration) {
	if c == nil {
		return
	}
	outcome := "converged"
	if !converged {
		outcome = "failed"
	}
	orderLabel := fmt.Sprintf("%d", order)
	c.Fits.WithLabelValues(orderLabel, outcome).Inc()
	c.FitDurations.WithLabelValues(orderLabel).Observe(elapsed.Seconds())
	if converged {
		c.FitChiSq.Observe(chiSq)
	}
}

// ObservePeel records a peel or unpeel buffer mutation.
func (c *CalibrationCollector) ObservePeel(unpeel bool) {
	if c == nil {
		return
	}
	direction := "peel"
	if unpeel {
		direction = "unpeel"
	}
	c.PeelOps.WithLabelValues(direction).Inc()
}

// SetSourceCounts updates the input/surviving source gauges.
func (c *CalibrationCollector) SetSourceCounts(total, surviving int) {
	if c == nil {
		return
	}
	c.SourcesTotal.Set(float64(total))
	c.SourcesSurviving.Set(float64(surviving))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *CalibrationCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
