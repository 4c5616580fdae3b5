package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/ionocal/internal/logging"
	"github.com/signalsfoundry/ionocal/internal/observability"
	"github.com/signalsfoundry/ionocal/model"
)

// Config holds the calibration loop's tunables.
type Config struct {
	// Orders is the pass sequence of model orders, e.g. [1, 2].
	Orders []int

	// FluxThresholdJy gates higher-order passes: sources fainter than
	// this keep their first-pass model.
	FluxThresholdJy float64

	// MaxIterations bounds each nonlinear solve. A non-converging fit
	// consumes the budget and fails definitively; it never hangs.
	MaxIterations int

	// RefFreqHz is the calibration reference frequency: baselines are
	// expressed in wavelengths at this frequency for fitting and for the
	// per-antenna reference (U, V).
	RefFreqHz float64

	// RefAntenna indexes the antenna all reference baselines are
	// measured against.
	RefAntenna int

	// AmplitudeTolerance is the advisory relative discrepancy between
	// fitted and catalog-predicted amplitude that triggers a warning.
	AmplitudeTolerance float64
}

func (c *Config) applyDefaults() {
	if len(c.Orders) == 0 {
		c.Orders = []int{OrderAmplitude, OrderGradient}
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 2000
	}
	if c.AmplitudeTolerance == 0 {
		c.AmplitudeTolerance = 0.5
	}
}

// Target is one ranked source entering the calibration loop, brightest
// first.
type Target struct {
	Source   *model.Source
	Apparent model.AmplitudePair
}

// Result is the finalized per-source calibration record.
type Result struct {
	Source   *model.Source
	Apparent model.AmplitudePair
	Solution *Solution

	// AntennaPhases is the solution phase evaluated at every antenna's
	// reference baseline; zero for order-1 and failed solutions.
	AntennaPhases []float64
}

// peelState remembers exactly what was last subtracted for a source, so
// unpeeling is the precise inverse even after the solution has moved on.
type peelState struct {
	phases []float64
	ax, ay float64
	peeled bool
}

// Calibrator drives the multi-pass, multi-source peel/unpeel loop. It is
// the single sequential owner of the visibility buffer during Run; peel
// and unpeel mutations are strictly ordered, which is a correctness
// requirement, not a performance choice.
type Calibrator struct {
	Log     logging.Logger
	Metrics *observability.CalibrationCollector
	Solver  SolverFunc

	cfg    Config
	tracer trace.Tracer
}

// NewCalibrator constructs a calibrator with the given configuration.
// A nil logger is replaced with a noop logger; a nil metrics collector
// disables metering.
func NewCalibrator(cfg Config, log logging.Logger, metrics *observability.CalibrationCollector) *Calibrator {
	cfg.applyDefaults()
	if log == nil {
		log = logging.Noop()
	}
	return &Calibrator{
		Log:     log,
		Metrics: metrics,
		Solver:  GonumSolve,
		cfg:     cfg,
		tracer:  otel.Tracer("ionocal/core"),
	}
}

// Run executes the configured pass sequence over the ranked targets,
// mutating vis in place (it ends as the fully peeled residual buffer) and
// returning one Result per target in ranking order.
//
// Per-source fit failures are isolated: they mark the solution failed and
// the loop continues. Geometry failures that invalidate the whole run
// (bad reference antenna, bad frequency) abort with an error.
func (cal *Calibrator) Run(ctx context.Context, vis *Visibilities, targets []Target) ([]*Result, error) {
	ctx, span := cal.tracer.Start(ctx, "calibration.run",
		trace.WithAttributes(
			attribute.Int("sources", len(targets)),
			attribute.IntSlice("orders", cal.cfg.Orders),
		))
	defer span.End()

	uRef, vRef, err := ReferenceBaselines(vis, cal.cfg.RefAntenna, cal.cfg.RefFreqHz)
	if err != nil {
		return nil, fmt.Errorf("reference baselines: %w", err)
	}

	// Solutions are created exactly once, in brightness order, before the
	// first pass. A direction outside the visible hemisphere fails that
	// source up front, equivalent to non-convergence.
	results := make([]*Result, len(targets))
	lmns := make([]LMN, len(targets))
	peels := make([]peelState, len(targets))
	for i, t := range targets {
		results[i] = &Result{
			Source:   t.Source,
			Apparent: t.Apparent,
			Solution: NewSolution(t.Apparent.X, t.Apparent.Y),
		}
		lmn, err := DirectionCosines(t.Source.Direction, vis.PhaseCenter)
		if err != nil {
			cal.Log.Warn(ctx, "source direction unusable, marking failed",
				logging.String("source", t.Source.ID), logging.Err(err))
			results[i].Solution.MarkFailed()
			continue
		}
		lmns[i] = lmn
	}

	for passIdx, order := range cal.cfg.Orders {
		passCtx, passSpan := cal.tracer.Start(ctx, "calibration.pass",
			trace.WithAttributes(attribute.Int("order", order), attribute.Int("pass", passIdx)))

		cal.Log.Info(passCtx, "starting calibration pass",
			logging.Int("pass", passIdx), logging.Int("order", order))

		for i := range targets {
			if err := cal.runSource(passCtx, vis, passIdx, order, results[i], lmns[i], &peels[i], uRef, vRef); err != nil {
				passSpan.End()
				return nil, err
			}
		}
		passSpan.End()
	}

	surviving := 0
	for _, res := range results {
		if !res.Solution.Failed() {
			surviving++
		}
		res.AntennaPhases = res.Solution.PhaseAt(uRef, vRef)
	}
	cal.Metrics.SetSourceCounts(len(targets), surviving)
	cal.Log.Info(ctx, "calibration complete",
		logging.Int("sources", len(targets)), logging.Int("surviving", surviving))

	return results, nil
}

// runSource processes one source within one pass: skip/unpeel/fit/peel.
// Only InvalidOrderTransition (a logic bug) propagates as an error; fit
// failures are absorbed into the solution state.
func (cal *Calibrator) runSource(ctx context.Context, vis *Visibilities, passIdx, order int, res *Result, lmn LMN, peel *peelState, uRef, vRef []float64) error {
	sol := res.Solution
	if sol.Failed() {
		return nil
	}

	ctx, span := cal.tracer.Start(ctx, "calibration.source",
		trace.WithAttributes(
			attribute.String("source", res.Source.ID),
			attribute.Int("order", order),
		))
	defer span.End()

	if passIdx > 0 && order > OrderAmplitude && res.Apparent.Mean() < cal.cfg.FluxThresholdJy {
		// Too faint to justify the richer model; the first-pass peel stands.
		cal.Log.Debug(ctx, "source below flux threshold, keeping lower-order model",
			logging.String("source", res.Source.ID),
			logging.Float64("apparent_jy", res.Apparent.Mean()))
		return nil
	}

	if order != sol.Order() {
		if err := sol.ExpandToOrder(order); err != nil {
			return fmt.Errorf("source %s: %w", res.Source.ID, err)
		}
	}

	// On re-fits, restore the data to the state "as if this source had
	// not been subtracted" before building the new fitting context.
	if peel.peeled {
		UnpeelSource(vis, lmn, peel.phases, peel.ax, peel.ay)
		peel.peeled = false
		cal.Metrics.ObservePeel(true)
	}

	// Fit context: rotate onto the source, collapse the channel axis.
	work := vis.Clone()
	work.RotatePhaseCenter(res.Source.Direction)
	avg := work.FrequencyAverage()
	data := newFitData(work, avg, cal.cfg.RefFreqHz)

	start := time.Now()
	params, chiSq, err := cal.Solver(order, sol.ActiveParams(), data, cal.cfg.MaxIterations)
	elapsed := time.Since(start)

	if err != nil {
		sol.MarkFailed()
		cal.Metrics.ObserveFit(order, false, 0, elapsed)
		cal.Log.Warn(ctx, "fit failed, source excluded from further passes",
			logging.String("source", res.Source.ID),
			logging.Int("order", order),
			logging.Err(err))
		// Keep the residual clean for the fainter sources still to come:
		// put the last converged model back in.
		cal.repeelLast(vis, lmn, peel)
		return nil
	}

	sol.setConverged(params, chiSq)
	cal.Metrics.ObserveFit(order, true, chiSq, elapsed)

	ax, ay := sol.Amplitudes()
	fitted := model.AmplitudePair{X: ax, Y: ay}
	if predicted := res.Apparent.Mean(); predicted > 0 {
		if rel := math.Abs(fitted.Mean()-predicted) / predicted; rel > cal.cfg.AmplitudeTolerance {
			cal.Log.Warn(ctx, "fitted amplitude far from catalog prediction",
				logging.String("source", res.Source.ID),
				logging.Float64("fitted_jy", fitted.Mean()),
				logging.Float64("predicted_jy", predicted),
				logging.Float64("relative_discrepancy", rel))
		}
	}
	cal.Log.Debug(ctx, "fit converged",
		logging.String("source", res.Source.ID),
		logging.Int("order", order),
		logging.Float64("chi_squared", chiSq))

	cal.peelCurrent(vis, lmn, sol, peel, uRef, vRef)
	return nil
}

// peelCurrent subtracts the solution's current model and records exactly
// what was subtracted.
func (cal *Calibrator) peelCurrent(vis *Visibilities, lmn LMN, sol *Solution, peel *peelState, uRef, vRef []float64) {
	ax, ay := sol.Amplitudes()
	phases := sol.PhaseAt(uRef, vRef)
	PeelSource(vis, lmn, phases, ax, ay)
	*peel = peelState{phases: phases, ax: ax, ay: ay, peeled: true}
	cal.Metrics.ObservePeel(false)
}

// repeelLast re-subtracts the last converged model after a failed re-fit,
// so fainter sources still see a clean residual. No-op when the source
// was never peeled (a first-pass failure leaves nothing to restore).
func (cal *Calibrator) repeelLast(vis *Visibilities, lmn LMN, peel *peelState) {
	if peel.peeled || peel.phases == nil {
		return
	}
	PeelSource(vis, lmn, peel.phases, peel.ax, peel.ay)
	peel.peeled = true
	cal.Metrics.ObservePeel(false)
}
