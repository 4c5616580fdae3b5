package core

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/optimize"
)

// fitData is the residual-fitting context for one source: the
// frequency-averaged, source-rotated parallel-hand visibilities with
// their baselines in wavelengths at the reference frequency. Rows with a
// flagged average in either polarization are excluded up front.
type fitData struct {
	xx, yy []complex128
	u, v   []float64
}

// newFitData extracts the fitting context from a rotated dataset and its
// frequency averages.
func newFitData(vis *Visibilities, avg [][]complex128, refFreqHz float64) *fitData {
	scale := refFreqHz / SpeedOfLight
	data := &fitData{}
	for row := range avg {
		xx, yy := avg[row][PolXX], avg[row][PolYY]
		if isFlagged(xx) || isFlagged(yy) {
			continue
		}
		data.xx = append(data.xx, xx)
		data.yy = append(data.yy, yy)
		data.u = append(data.u, vis.UVW[row][0]*scale)
		data.v = append(data.v, vis.UVW[row][1]*scale)
	}
	return data
}

// objective is the sum of squared real and imaginary residuals between
// the unit point-source model scaled by the parameters and the averaged
// data. Order 1 fits (Ax, Ay); order 2 additionally fits the
// position/gradient offset (dL, dM), which shows up as a per-baseline
// phase 2π(u·dL + v·dM).
func objective(order int, params []float64, data *fitData) float64 {
	ax, ay := params[ParamAx], params[ParamAy]
	var dl, dm float64
	if order >= OrderGradient {
		dl, dm = params[ParamDL], params[ParamDM]
	}

	sum := 0.0
	for i := range data.xx {
		model := complex(1, 0)
		if order >= OrderGradient {
			phase := 2 * math.Pi * (data.u[i]*dl + data.v[i]*dm)
			model = cmplx.Exp(complex(0, phase))
		}
		rx := data.xx[i] - complex(ax, 0)*model
		ry := data.yy[i] - complex(ay, 0)*model
		sum += real(rx)*real(rx) + imag(rx)*imag(rx)
		sum += real(ry)*real(ry) + imag(ry)*imag(ry)
	}
	return sum
}

// paramScales returns per-parameter scaling for the solver. Amplitudes
// are order-unity Jy; the gradient offsets are milliradian-scale, so an
// unscaled simplex would barely move them.
func paramScales(order int, init []float64) []float64 {
	scales := make([]float64, numParams(order))
	for i := range scales {
		scales[i] = 1
	}
	ampScale := math.Max(math.Abs(init[ParamAx]), math.Abs(init[ParamAy]))
	if ampScale > 0 {
		scales[ParamAx] = ampScale
		scales[ParamAy] = ampScale
	}
	if order >= OrderGradient {
		scales[ParamDL] = 1e-3
		scales[ParamDM] = 1e-3
	}
	return scales
}

// SolverFunc solves the nonlinear least-squares problem for one source at
// one order, returning the fitted parameters and the residual statistic.
// A non-nil error means the fit did not converge; the calibration loop
// never retries it.
type SolverFunc func(order int, init []float64, data *fitData, maxIterations int) (params []float64, chiSq float64, err error)

// GonumSolve minimises the residual objective with Nelder-Mead under a
// bounded iteration budget. The solver's own function-convergence
// criterion decides success; exhausting the budget is a failure.
func GonumSolve(order int, init []float64, data *fitData, maxIterations int) ([]float64, float64, error) {
	if len(data.xx) == 0 {
		return nil, 0, fmt.Errorf("no unflagged baselines to fit: %w", ErrFitDidNotConverge)
	}
	if maxIterations <= 0 {
		maxIterations = 1000
	}

	scales := paramScales(order, init)
	n := numParams(order)
	x0 := make([]float64, n)
	for i := 0; i < n; i++ {
		x0[i] = init[i] / scales[i]
	}

	unscale := func(x []float64) []float64 {
		params := make([]float64, n)
		for i := range x {
			params[i] = x[i] * scales[i]
		}
		return params
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return objective(order, unscale(x), data)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: maxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-10,
			Iterations: 30,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, 0, fmt.Errorf("solver error at order %d: %v: %w", order, err, ErrFitDidNotConverge)
	}
	switch result.Status {
	case optimize.FunctionConvergence, optimize.GradientThreshold, optimize.Success:
		// converged
	default:
		return nil, 0, fmt.Errorf("solver stopped with status %v at order %d: %w",
			result.Status, order, ErrFitDidNotConverge)
	}

	params := unscale(result.X)
	for _, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, 0, fmt.Errorf("solver produced non-finite parameters at order %d: %w",
				order, ErrFitDidNotConverge)
		}
	}
	return params, result.F, nil
}
