package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/ionocal/model"
)

// SpeedOfLight in metres per second, used to convert baseline lengths to
// wavelengths.
const SpeedOfLight = 299792458.0

// LMN holds the direction cosines of a sky direction relative to a phase
// centre: L towards increasing RA, M towards increasing Dec, N towards the
// centre itself.
type LMN struct {
	L float64
	M float64
	N float64
}

// DirectionCosines projects dir onto the tangent plane at centre. It
// returns ErrDegenerateGeometry when the direction falls outside the
// visible hemisphere (N² ≤ 0), where the flat-sky phase model breaks down.
func DirectionCosines(dir, centre model.Direction) (LMN, error) {
	dRA := dir.RA - centre.RA
	l := math.Cos(dir.Dec) * math.Sin(dRA)
	m := math.Sin(dir.Dec)*math.Cos(centre.Dec) -
		math.Cos(dir.Dec)*math.Sin(centre.Dec)*math.Cos(dRA)

	n2 := 1 - l*l - m*m
	if n2 <= 0 {
		return LMN{}, fmt.Errorf("direction (%.6f, %.6f) relative to centre (%.6f, %.6f): %w",
			dir.RA, dir.Dec, centre.RA, centre.Dec, ErrDegenerateGeometry)
	}
	return LMN{L: l, M: m, N: math.Sqrt(n2)}, nil
}

// FringePhase returns the interferometric phase 2π(ul + vm + w(n−1)) for
// a baseline (u, v, w) in wavelengths. This is the same expression for
// peeling and for phase-centre rotation; the two must agree exactly for
// peel/unpeel to be reversible.
func (c LMN) FringePhase(u, v, w float64) float64 {
	return 2 * math.Pi * (u*c.L + v*c.M + w*(c.N-1))
}

// uvwBasis returns the orthonormal (u, v, w) axes for a phase centre:
// u east, v north, w towards the centre. Rows of the returned matrix are
// the axes expressed in the XYZ frame the dataset's baselines live in.
func uvwBasis(centre model.Direction) [3][3]float64 {
	sinRA, cosRA := math.Sin(centre.RA), math.Cos(centre.RA)
	sinDec, cosDec := math.Sin(centre.Dec), math.Cos(centre.Dec)
	return [3][3]float64{
		{-sinRA, cosRA, 0},
		{-sinDec * cosRA, -sinDec * sinRA, cosDec},
		{cosDec * cosRA, cosDec * sinRA, sinDec},
	}
}

// ReferenceBaselines derives per-antenna (U, V) coordinates, in
// wavelengths at refFreqHz, relative to the reference antenna, from the
// first row in which each antenna appears paired with the reference. One
// representative sample is enough: within a calibration interval the
// antenna-phase model treats (U, V) as fixed.
//
// Antennas that never share a row with the reference keep (0, 0); the
// reference antenna itself is (0, 0) by construction.
func ReferenceBaselines(vis *Visibilities, refAnt int, refFreqHz float64) (u, v []float64, err error) {
	if refAnt < 0 || refAnt >= vis.NumAntennas {
		return nil, nil, fmt.Errorf("reference antenna %d out of range [0, %d): %w",
			refAnt, vis.NumAntennas, ErrDegenerateGeometry)
	}
	if refFreqHz <= 0 {
		return nil, nil, fmt.Errorf("reference frequency %.3g Hz: %w", refFreqHz, ErrDegenerateGeometry)
	}

	scale := refFreqHz / SpeedOfLight
	u = make([]float64, vis.NumAntennas)
	v = make([]float64, vis.NumAntennas)
	seen := make([]bool, vis.NumAntennas)
	seen[refAnt] = true

	for row := range vis.Antenna1 {
		a1, a2 := vis.Antenna1[row], vis.Antenna2[row]
		switch {
		case a1 == refAnt && !seen[a2]:
			// Row baseline is ref − a2, so the antenna coordinate flips sign.
			u[a2] = -vis.UVW[row][0] * scale
			v[a2] = -vis.UVW[row][1] * scale
			seen[a2] = true
		case a2 == refAnt && !seen[a1]:
			u[a1] = vis.UVW[row][0] * scale
			v[a1] = vis.UVW[row][1] * scale
			seen[a1] = true
		}
	}
	return u, v, nil
}
