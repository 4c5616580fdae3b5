package core

import "math/cmplx"

// PeelSource subtracts a source's modelled visibility contribution from
// the dataset in place. The model per row and channel is the amplitude
// pair on the parallel hands, rotated by the fringe phase at that
// channel's wavelength plus the solution's per-antenna phase difference.
//
// antPhase is the per-antenna phase from Solution.PhaseAt; it is constant
// across the peeled band, matching the single-gain-per-band assumption of
// the fit. Flagged (NaN) samples stay NaN.
func PeelSource(vis *Visibilities, lmn LMN, antPhase []float64, ax, ay float64) {
	applySourceModel(vis, lmn, antPhase, ax, ay, -1)
}

// UnpeelSource adds the modelled contribution back, restoring the data to
// the state before the matching PeelSource call. Unpeel after peel with
// identical parameters is an exact inverse up to floating-point rounding.
func UnpeelSource(vis *Visibilities, lmn LMN, antPhase []float64, ax, ay float64) {
	applySourceModel(vis, lmn, antPhase, ax, ay, +1)
}

func applySourceModel(vis *Visibilities, lmn LMN, antPhase []float64, ax, ay, sign float64) {
	for row := range vis.Data {
		a1, a2 := vis.Antenna1[row], vis.Antenna2[row]
		basePhase := 0.0
		if len(antPhase) > 0 {
			basePhase = antPhase[a1] - antPhase[a2]
		}
		uvw := vis.UVW[row]
		for ch := range vis.Data[row] {
			lambdaScale := vis.ChanFreqsHz[ch] / SpeedOfLight
			phase := lmn.FringePhase(uvw[0]*lambdaScale, uvw[1]*lambdaScale, uvw[2]*lambdaScale) + basePhase
			rot := cmplx.Exp(complex(0, phase))

			vis.Data[row][ch][PolXX] += complex(sign*ax, 0) * rot
			vis.Data[row][ch][PolYY] += complex(sign*ay, 0) * rot
			// Cross-hands carry no point-source power in this model.
		}
	}
}
