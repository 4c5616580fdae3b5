// Package synth generates synthetic interferometric observations. It
// stands in for the table-storage collaborator at the pipeline boundary:
// real deployments read the same dense arrays from measurement tables,
// the calibrator does not care which.
package synth

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/ionocal/core"
	"github.com/signalsfoundry/ionocal/model"
)

// ObservationConfig describes the synthetic observation to generate.
type ObservationConfig struct {
	Antennas    []*model.Antenna
	PhaseCenter model.Direction
	StartTime   time.Time

	// NumTimes integrations of IntegrationSec each; every integration
	// contributes one row per baseline.
	NumTimes       int
	IntegrationSec float64

	ChanFreqsHz []float64

	// NoiseJy is the per-sample Gaussian noise sigma; 0 = noiseless.
	NoiseJy float64

	// FlagFraction of row/channel samples is marked NaN.
	FlagFraction float64

	Seed int64
}

// GenerateObservation synthesises a visibility dataset for the given
// sources: UVW from antenna ECEF positions and Earth rotation (GMST),
// point-source model visibilities through the beam, optional noise and
// flags.
func GenerateObservation(cfg ObservationConfig, sources []*model.Source, beam model.BeamModel) (*core.Visibilities, error) {
	numAnts := len(cfg.Antennas)
	if numAnts < 2 {
		return nil, fmt.Errorf("need at least 2 antennas, got %d", numAnts)
	}
	if len(cfg.ChanFreqsHz) == 0 {
		return nil, fmt.Errorf("need at least one channel frequency")
	}
	if cfg.NumTimes <= 0 {
		cfg.NumTimes = 1
	}
	if cfg.IntegrationSec <= 0 {
		cfg.IntegrationSec = 10
	}

	numBaselines := numAnts * (numAnts - 1) / 2
	rows := numBaselines * cfg.NumTimes

	vis := &core.Visibilities{
		Data:        make([][][]complex128, rows),
		Antenna1:    make([]int, rows),
		Antenna2:    make([]int, rows),
		UVW:         make([][3]float64, rows),
		ChanFreqsHz: append([]float64(nil), cfg.ChanFreqsHz...),
		PhaseCenter: cfg.PhaseCenter,
		NumAntennas: numAnts,
	}

	row := 0
	for t := 0; t < cfg.NumTimes; t++ {
		at := cfg.StartTime.Add(time.Duration(float64(t) * cfg.IntegrationSec * float64(time.Second)))
		gst := gmstAt(at)
		for i := 0; i < numAnts; i++ {
			for j := i + 1; j < numAnts; j++ {
				b := cfg.Antennas[i].Position.Sub(cfg.Antennas[j].Position)
				vis.Antenna1[row] = i
				vis.Antenna2[row] = j
				vis.UVW[row] = baselineUVW(b, gst, cfg.PhaseCenter)
				vis.Data[row] = make([][]complex128, len(cfg.ChanFreqsHz))
				for ch := range cfg.ChanFreqsHz {
					vis.Data[row][ch] = make([]complex128, core.NumPols)
				}
				row++
			}
		}
	}

	// Predict every source component into the dataset.
	for _, src := range sources {
		for _, comp := range src.Components {
			lmn, err := core.DirectionCosines(comp.Direction, cfg.PhaseCenter)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.ID, err)
			}
			for r := 0; r < rows; r++ {
				uvw := vis.UVW[r]
				for ch, freq := range cfg.ChanFreqsHz {
					amp := comp.Apparent(beam, freq)
					scale := freq / core.SpeedOfLight
					phase := lmn.FringePhase(uvw[0]*scale, uvw[1]*scale, uvw[2]*scale)
					rot := cmplx.Exp(complex(0, phase))
					vis.Data[r][ch][core.PolXX] += complex(amp.X, 0) * rot
					vis.Data[r][ch][core.PolYY] += complex(amp.Y, 0) * rot
				}
			}
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.NoiseJy > 0 {
		sigma := cfg.NoiseJy / math.Sqrt2
		for r := 0; r < rows; r++ {
			for ch := range vis.Data[r] {
				for pol := range vis.Data[r][ch] {
					vis.Data[r][ch][pol] += complex(rng.NormFloat64()*sigma, rng.NormFloat64()*sigma)
				}
			}
		}
	}
	if cfg.FlagFraction > 0 {
		nan := complex(math.NaN(), math.NaN())
		for r := 0; r < rows; r++ {
			for ch := range vis.Data[r] {
				if rng.Float64() < cfg.FlagFraction {
					for pol := range vis.Data[r][ch] {
						vis.Data[r][ch][pol] = nan
					}
				}
			}
		}
	}

	return vis, nil
}

// gmstAt returns Greenwich mean sidereal time in radians.
func gmstAt(at time.Time) float64 {
	at = at.UTC()
	year, month, day := at.Date()
	hour, min, sec := at.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	return satellite.ThetaG_JD(jd)
}

// baselineUVW projects an ECEF baseline onto the (u, v, w) frame of the
// phase centre at the given sidereal time. Hour angle is measured from
// the Greenwich meridian since the baseline is in ECEF.
func baselineUVW(b model.ECEF, gst float64, centre model.Direction) [3]float64 {
	h := gst - centre.RA
	sinH, cosH := math.Sin(h), math.Cos(h)
	sinD, cosD := math.Sin(centre.Dec), math.Cos(centre.Dec)

	u := sinH*b.X + cosH*b.Y
	v := -sinD*cosH*b.X + sinD*sinH*b.Y + cosD*b.Z
	w := cosD*cosH*b.X - cosD*sinH*b.Y + sinD*b.Z
	return [3]float64{u, v, w}
}
