package model

import "math"

// BeamModel describes the instrument's directional sensitivity. It is a
// pure function of sky position and frequency, returning per-polarization
// attenuation factors in [0, 1]. Implementations must be safe for
// concurrent use.
type BeamModel interface {
	Attenuation(dir Direction, freqHz float64) (ax, ay float64)
}

// UnityBeam applies no attenuation anywhere. Useful in tests and for
// already-apparent catalogs.
type UnityBeam struct{}

func (UnityBeam) Attenuation(Direction, float64) (float64, float64) { return 1, 1 }

// GaussianBeam is a circular Gaussian primary beam centred on the pointing
// direction. FWHMDeg is the full width at half maximum at RefFreqHz; the
// width scales inversely with frequency, as for a fixed-size aperture.
type GaussianBeam struct {
	Pointing  Direction
	FWHMDeg   float64
	RefFreqHz float64
}

func (b GaussianBeam) Attenuation(dir Direction, freqHz float64) (float64, float64) {
	fwhm := b.FWHMDeg * math.Pi / 180
	if b.RefFreqHz > 0 && freqHz > 0 {
		fwhm *= b.RefFreqHz / freqHz
	}
	if fwhm <= 0 {
		return 1, 1
	}
	sep := b.Pointing.SeparationRad(dir)
	att := math.Exp(-4 * math.Ln2 * sep * sep / (fwhm * fwhm))
	// The two feeds see the same circular beam in this model.
	return att, att
}
