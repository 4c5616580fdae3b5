package core

import (
	"math/rand"
	"testing"
)

func TestPeelThenUnpeelRestoresBuffer(t *testing.T) {
	vis := newTestVis([]float64{145e6, 150e6, 155e6})
	rng := rand.New(rand.NewSource(3))
	for r := range vis.Data {
		for c := range vis.Data[r] {
			for p := range vis.Data[r][c] {
				vis.Data[r][c][p] = complex(rng.NormFloat64(), rng.NormFloat64())
			}
		}
	}
	original := vis.Clone()

	dir := offsetDir(testCentre, -0.005, 0.012)
	lmn, err := DirectionCosines(dir, vis.PhaseCenter)
	if err != nil {
		t.Fatalf("DirectionCosines: %v", err)
	}
	antPhase := []float64{0, 0.3, -0.7, 1.1}

	PeelSource(vis, lmn, antPhase, 4.2, 3.8)
	UnpeelSource(vis, lmn, antPhase, 4.2, 3.8)

	for r := range vis.Data {
		for c := range vis.Data[r] {
			for p := range vis.Data[r][c] {
				if !cApproxEqual(vis.Data[r][c][p], original.Data[r][c][p], 1e-10) {
					t.Fatalf("row %d chan %d pol %d = %v, want %v",
						r, c, p, vis.Data[r][c][p], original.Data[r][c][p])
				}
			}
		}
	}
}

func TestPeelRemovesInjectedSourceExactly(t *testing.T) {
	vis := newTestVis([]float64{145e6, 155e6})
	dir := offsetDir(testCentre, 0.006, -0.009)
	antPhase := []float64{0, -0.2, 0.5, 0.9}
	injectSource(vis, dir, antPhase, 5.0, 4.0)

	lmn, err := DirectionCosines(dir, vis.PhaseCenter)
	if err != nil {
		t.Fatalf("DirectionCosines: %v", err)
	}
	PeelSource(vis, lmn, antPhase, 5.0, 4.0)

	for r := range vis.Data {
		for c := range vis.Data[r] {
			for p := range vis.Data[r][c] {
				if !cApproxEqual(vis.Data[r][c][p], 0, 1e-10) {
					t.Fatalf("residual row %d chan %d pol %d = %v, want 0",
						r, c, p, vis.Data[r][c][p])
				}
			}
		}
	}
}

func TestPeelLeavesCrossHandsUntouched(t *testing.T) {
	vis := newTestVis([]float64{150e6})
	vis.Data[0][0][PolXY] = complex(1, 2)
	vis.Data[0][0][PolYX] = complex(3, 4)

	lmn, _ := DirectionCosines(offsetDir(testCentre, 0.004, 0.004), vis.PhaseCenter)
	PeelSource(vis, lmn, nil, 2.0, 2.0)

	if vis.Data[0][0][PolXY] != complex(1, 2) || vis.Data[0][0][PolYX] != complex(3, 4) {
		t.Errorf("cross-hand polarizations modified by peel")
	}
}
