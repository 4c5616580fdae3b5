package core

import (
	"fmt"
	"math"
)

// Calibration model orders.
const (
	// OrderAmplitude fits per-polarization amplitudes only.
	OrderAmplitude = 1
	// OrderGradient additionally fits a position/ionospheric-gradient
	// offset (dL, dM).
	OrderGradient = 2

	maxOrder = OrderGradient
)

// Parameter slots in the fixed-size parameter array. The order-1 prefix
// (Ax, Ay) is preserved verbatim when the order grows.
const (
	ParamAx = 0
	ParamAy = 1
	ParamDL = 2
	ParamDM = 3

	numParamSlots = 4
)

// numParams returns the active parameter count for an order.
func numParams(order int) int {
	if order >= OrderGradient {
		return 4
	}
	return 2
}

// SolutionState is the lifecycle tag of a per-source solution.
type SolutionState int

const (
	// StatePending means no fit at the current order has succeeded yet.
	StatePending SolutionState = iota
	// StateConverged means the most recent fit at the current order
	// succeeded.
	StateConverged
	// StateFailed is sticky: the source is excluded from all further
	// fitting, keeping its last converged amplitudes.
	StateFailed
)

func (s SolutionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConverged:
		return "converged"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Solution is the mutable calibration state for one source: the current
// fit parameters, the model order, and convergence bookkeeping. Solutions
// are created once, in source-brightness order, before the first pass;
// only the calibration loop mutates them afterwards.
type Solution struct {
	order  int
	params [numParamSlots]float64
	state  SolutionState

	// ChiSq is the most recent fit's residual statistic.
	ChiSq float64
}

// NewSolution creates an order-1 solution initialised with the given
// amplitude pair.
func NewSolution(ax, ay float64) *Solution {
	s := &Solution{order: OrderAmplitude}
	s.params[ParamAx] = ax
	s.params[ParamAy] = ay
	return s
}

// Order returns the current parameter-count regime.
func (s *Solution) Order() int { return s.order }

// State returns the lifecycle tag.
func (s *Solution) State() SolutionState { return s.state }

// Failed reports whether the sticky failure flag is set.
func (s *Solution) Failed() bool { return s.state == StateFailed }

// Amplitudes returns the current (Ax, Ay) gains.
func (s *Solution) Amplitudes() (ax, ay float64) {
	return s.params[ParamAx], s.params[ParamAy]
}

// Gradient returns the fitted (dL, dM) offset; zero below order 2.
func (s *Solution) Gradient() (dl, dm float64) {
	return s.params[ParamDL], s.params[ParamDM]
}

// ActiveParams returns a copy of the parameter vector for the current
// order. Its length is a deterministic function of the order.
func (s *Solution) ActiveParams() []float64 {
	out := make([]float64, numParams(s.order))
	copy(out, s.params[:])
	return out
}

// ExpandToOrder raises the model order to k, appending zero-initialised
// parameters while preserving the previously fit prefix. Only the
// transition k = order+1 is legal, and never on a failed solution.
func (s *Solution) ExpandToOrder(k int) error {
	if s.state == StateFailed {
		return fmt.Errorf("solution is failed, cannot expand to order %d: %w", k, ErrInvalidOrderTransition)
	}
	if k != s.order+1 || k > maxOrder {
		return fmt.Errorf("order %d -> %d: %w", s.order, k, ErrInvalidOrderTransition)
	}
	s.order = k
	// New slots are already zero; the (Ax, Ay) prefix carries over.
	s.state = StatePending
	return nil
}

// setConverged installs solver output. Only the calibration loop calls
// this; nothing else may mutate the parameters.
func (s *Solution) setConverged(params []float64, chiSq float64) {
	copy(s.params[:], params)
	s.ChiSq = chiSq
	s.state = StateConverged
}

// MarkFailed sets the sticky failure flag. Idempotent; the amplitudes
// stay at the last converged values.
func (s *Solution) MarkFailed() {
	s.state = StateFailed
}

// PhaseAt evaluates, for every antenna, the scalar phase implied by the
// higher-order parameters against that antenna's reference baseline
// (U, V) in wavelengths. At order 1 the result is identically zero: pure
// amplitude calibration carries no phase.
func (s *Solution) PhaseAt(u, v []float64) []float64 {
	phases := make([]float64, len(u))
	if s.order < OrderGradient {
		return phases
	}
	dl, dm := s.Gradient()
	for a := range u {
		phases[a] = 2 * math.Pi * (u[a]*dl + v[a]*dm)
	}
	return phases
}
