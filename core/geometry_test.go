package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/ionocal/model"
)

func TestDirectionCosines_Centre(t *testing.T) {
	lmn, err := DirectionCosines(testCentre, testCentre)
	if err != nil {
		t.Fatalf("DirectionCosines: %v", err)
	}
	if math.Abs(lmn.L) > 1e-12 || math.Abs(lmn.M) > 1e-12 {
		t.Errorf("centre direction cosines = (%g, %g), want (0, 0)", lmn.L, lmn.M)
	}
	if math.Abs(lmn.N-1) > 1e-12 {
		t.Errorf("centre N = %g, want 1", lmn.N)
	}
}

func TestDirectionCosines_SmallOffset(t *testing.T) {
	// 0.01 rad east at the equatorial plane: l ≈ dRA·cos(dec), m ≈ 0.
	centre := model.Direction{RA: 0, Dec: 0}
	dir := model.Direction{RA: 0.01, Dec: 0}
	lmn, err := DirectionCosines(dir, centre)
	if err != nil {
		t.Fatalf("DirectionCosines: %v", err)
	}
	if math.Abs(lmn.L-math.Sin(0.01)) > 1e-12 {
		t.Errorf("l = %g, want %g", lmn.L, math.Sin(0.01))
	}
	if math.Abs(lmn.M) > 1e-12 {
		t.Errorf("m = %g, want 0", lmn.M)
	}
}

func TestDirectionCosines_OppositeHemisphere(t *testing.T) {
	// A direction behind the tangent plane must be rejected, not produce
	// NaN phases downstream.
	dir := model.Direction{RA: testCentre.RA + math.Pi, Dec: -testCentre.Dec}
	_, err := DirectionCosines(dir, testCentre)
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("err = %v, want ErrDegenerateGeometry", err)
	}
}

func TestFringePhase_ZeroAtCentre(t *testing.T) {
	lmn := LMN{L: 0, M: 0, N: 1}
	if got := lmn.FringePhase(1234.5, -678.9, 42.0); got != 0 {
		t.Errorf("fringe phase at the phase centre = %g, want 0", got)
	}
}

func TestFringePhase_Value(t *testing.T) {
	lmn := LMN{L: 0.01, M: -0.02, N: math.Sqrt(1 - 0.01*0.01 - 0.02*0.02)}
	u, v, w := 100.0, 200.0, 50.0
	want := 2 * math.Pi * (u*lmn.L + v*lmn.M + w*(lmn.N-1))
	if got := lmn.FringePhase(u, v, w); math.Abs(got-want) > 1e-12 {
		t.Errorf("fringe phase = %g, want %g", got, want)
	}
}

func TestReferenceBaselines_RecoverAntennaCoordinates(t *testing.T) {
	vis := newTestVis([]float64{testRefFreqHz})
	u, v, err := ReferenceBaselines(vis, 0, testRefFreqHz)
	if err != nil {
		t.Fatalf("ReferenceBaselines: %v", err)
	}
	for a := range testAntU {
		if math.Abs(u[a]-testAntU[a]) > 1e-9 || math.Abs(v[a]-testAntV[a]) > 1e-9 {
			t.Errorf("antenna %d (U, V) = (%g, %g), want (%g, %g)",
				a, u[a], v[a], testAntU[a], testAntV[a])
		}
	}
}

func TestReferenceBaselines_BadReference(t *testing.T) {
	vis := newTestVis([]float64{testRefFreqHz})
	if _, _, err := ReferenceBaselines(vis, 99, testRefFreqHz); !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("out-of-range reference antenna: err = %v, want ErrDegenerateGeometry", err)
	}
	if _, _, err := ReferenceBaselines(vis, 0, 0); !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("zero reference frequency: err = %v, want ErrDegenerateGeometry", err)
	}
}
