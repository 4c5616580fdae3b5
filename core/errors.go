package core

import "errors"

// Calibration error taxonomy. Per-source fit failures are isolated by the
// calibration loop; geometry and screen failures are fatal to their step.
var (
	// ErrFitDidNotConverge indicates the nonlinear solver failed to meet
	// its tolerance within the iteration budget. Sticky per source, never
	// retried.
	ErrFitDidNotConverge = errors.New("fit did not converge")

	// ErrInvalidOrderTransition indicates a solution order change that is
	// not exactly one step up from the current order, or a change on a
	// failed solution. This is a logic bug in the caller, not a data
	// condition.
	ErrInvalidOrderTransition = errors.New("invalid order transition")

	// ErrInsufficientDirections indicates fewer surviving calibration
	// directions than the screen interpolation needs.
	ErrInsufficientDirections = errors.New("insufficient directions for screen")

	// ErrDegenerateGeometry indicates a direction outside the visible
	// hemisphere or another unusable geometric configuration.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)
