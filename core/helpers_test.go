package core

import (
	"math"

	"github.com/signalsfoundry/ionocal/model"
)

// Test fixtures: a small three-antenna dataset with internally consistent
// antenna (U, V) coordinates and per-row baselines, so reference-baseline
// extraction and gradient fits line up exactly.

const (
	testRefFreqHz = 150e6
	testLambda    = SpeedOfLight / testRefFreqHz
)

var (
	testCentre = model.Direction{RA: 1.0, Dec: 0.6}

	// Antenna coordinates relative to antenna 0, in wavelengths at the
	// reference frequency.
	testAntU = []float64{0, 120, -260, 340}
	testAntV = []float64{0, -45, 180, 75}
)

// newTestVis builds a single-integration dataset over all baselines of
// the test array, with the given channel frequencies and zeroed data.
func newTestVis(chanFreqs []float64) *Visibilities {
	numAnts := len(testAntU)
	var a1, a2 []int
	var uvw [][3]float64
	for i := 0; i < numAnts; i++ {
		for j := i + 1; j < numAnts; j++ {
			a1 = append(a1, i)
			a2 = append(a2, j)
			uvw = append(uvw, [3]float64{
				(testAntU[i] - testAntU[j]) * testLambda,
				(testAntV[i] - testAntV[j]) * testLambda,
				// A small w term keeps the geometry honest.
				(testAntU[i] - testAntU[j]) * testLambda * 0.05,
			})
		}
	}

	data := make([][][]complex128, len(a1))
	for r := range data {
		data[r] = make([][]complex128, len(chanFreqs))
		for c := range data[r] {
			data[r][c] = make([]complex128, NumPols)
		}
	}

	return &Visibilities{
		Data:        data,
		Antenna1:    a1,
		Antenna2:    a2,
		UVW:         uvw,
		ChanFreqsHz: append([]float64(nil), chanFreqs...),
		PhaseCenter: testCentre,
		NumAntennas: numAnts,
	}
}

// injectSource adds a point source at dir with the given amplitudes and
// optional per-antenna phases, using the same model the peel operator
// subtracts.
func injectSource(vis *Visibilities, dir model.Direction, antPhase []float64, ax, ay float64) {
	lmn, err := DirectionCosines(dir, vis.PhaseCenter)
	if err != nil {
		panic(err)
	}
	UnpeelSource(vis, lmn, antPhase, ax, ay)
}

func offsetDir(base model.Direction, dRA, dDec float64) model.Direction {
	return model.Direction{RA: base.RA + dRA, Dec: base.Dec + dDec}
}

func cApproxEqual(a, b complex128, tol float64) bool {
	return math.Abs(real(a)-real(b)) < tol && math.Abs(imag(a)-imag(b)) < tol
}
