package model

import "math"

// Direction is an equatorial sky position in radians.
type Direction struct {
	RA  float64 `json:"RA"`
	Dec float64 `json:"Dec"`
}

// SeparationRad returns the angular separation between two directions in
// radians, using the haversine form, which stays accurate for small angles.
func (d Direction) SeparationRad(other Direction) float64 {
	sdDec := math.Sin((other.Dec - d.Dec) / 2)
	sdRA := math.Sin((other.RA - d.RA) / 2)
	h := sdDec*sdDec + math.Cos(d.Dec)*math.Cos(other.Dec)*sdRA*sdRA
	if h > 1 {
		h = 1
	}
	return 2 * math.Asin(math.Sqrt(h))
}

// FluxLaw is a power-law spectral model: flux at the reference frequency
// scaled by (freq/ref)^alpha.
type FluxLaw struct {
	RefFluxJy     float64 `json:"RefFluxJy"`
	RefFreqHz     float64 `json:"RefFreqHz"`
	SpectralIndex float64 `json:"SpectralIndex"`
}

// FluxAt evaluates the intrinsic flux in Jy at the given frequency.
func (f FluxLaw) FluxAt(freqHz float64) float64 {
	if f.RefFreqHz <= 0 || freqHz <= 0 {
		return f.RefFluxJy
	}
	return f.RefFluxJy * math.Pow(freqHz/f.RefFreqHz, f.SpectralIndex)
}

// AmplitudePair holds per-polarization amplitudes (X and Y feeds), in Jy
// for fluxes and dimensionless for gains.
type AmplitudePair struct {
	X float64
	Y float64
}

// Mean returns the polarization-averaged amplitude, used wherever a single
// brightness number is needed (ranking, thresholds, sanity checks).
func (a AmplitudePair) Mean() float64 { return (a.X + a.Y) / 2 }

// Component is a single sky-model constituent with its own position and
// spectral model. Components are immutable once loaded.
type Component struct {
	Direction Direction `json:"Direction"`
	Flux      FluxLaw   `json:"Flux"`
}

// Apparent returns the component's beam-attenuated flux per polarization
// at the given frequency.
func (c Component) Apparent(beam BeamModel, freqHz float64) AmplitudePair {
	flux := c.Flux.FluxAt(freqHz)
	ax, ay := beam.Attenuation(c.Direction, freqHz)
	return AmplitudePair{X: flux * ax, Y: flux * ay}
}

// Source is a named sky-model entry with one or more components. The
// source-level direction is the reference position used for peeling and
// for the calibration solution attached to the source.
type Source struct {
	ID         string      `json:"ID"`
	Name       string      `json:"Name"`
	Direction  Direction   `json:"Direction"`
	Components []Component `json:"Components"`
}

// Apparent sums the apparent fluxes of all components at the given
// frequency.
func (s *Source) Apparent(beam BeamModel, freqHz float64) AmplitudePair {
	var total AmplitudePair
	for _, c := range s.Components {
		a := c.Apparent(beam, freqHz)
		total.X += a.X
		total.Y += a.Y
	}
	return total
}
