package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/ionocal/model"
)

// DispersionConstHz converts ionospheric phase to TEC units:
// phase = DispersionConstHz / freq × TEC, so TEC = phase × freq / const.
const DispersionConstHz = 8.4479745e9

// ScreenConfig describes the sky region and sampling of the TEC screen.
type ScreenConfig struct {
	Center        model.Direction
	RadiusDeg     float64
	PixelScaleDeg float64

	// Oversample is the interpolation grid refinement factor; the screen
	// is interpolated and blurred at Oversample× resolution, then box-
	// averaged back down.
	Oversample int

	// BlurSigmaPx is the Gaussian smoothing sigma in output pixels,
	// suppressing nearest-neighbour discontinuities.
	BlurSigmaPx float64

	// RefFreqHz is the calibration reference frequency used for the
	// phase-to-TEC conversion.
	RefFreqHz float64
}

func (c *ScreenConfig) applyDefaults() {
	if c.Oversample <= 0 {
		c.Oversample = 4
	}
	if c.BlurSigmaPx <= 0 {
		c.BlurSigmaPx = 1.5
	}
}

// Projection ties the screen grid to the sky so downstream writers can
// build a coordinate header. Pixel (0, 0) is the bottom-left corner;
// axis 1 runs with -RA offset, axis 2 with +Dec offset.
type Projection struct {
	CenterRA      float64  `json:"CenterRA"`
	CenterDec     float64  `json:"CenterDec"`
	PixelScaleDeg float64  `json:"PixelScaleDeg"`
	Npix          int      `json:"Npix"`
	RefFreqHz     float64  `json:"RefFreqHz"`
	AntennaIDs    []string `json:"AntennaIDs"`
}

// Screen is a gridded TEC map, one plane per antenna.
type Screen struct {
	Proj Projection

	// Planes[antenna] is a row-major Npix×Npix TEC grid.
	Planes [][]float64
}

// BuildTECScreen projects per-direction, per-antenna phase solutions onto
// a regular sky grid: nearest-neighbour interpolation on an oversampled
// grid, Gaussian smoothing, downsampling, and phase→TEC scaling.
//
// dirs and phases must be parallel; phases[i][a] is direction i's phase at
// antenna a. Fewer than 2 directions make the interpolation ill-posed and
// return ErrInsufficientDirections.
func BuildTECScreen(cfg ScreenConfig, dirs []model.Direction, phases [][]float64, antennaIDs []string) (*Screen, error) {
	cfg.applyDefaults()
	if len(dirs) < 2 {
		return nil, fmt.Errorf("%d surviving directions: %w", len(dirs), ErrInsufficientDirections)
	}
	if len(phases) != len(dirs) {
		return nil, fmt.Errorf("got %d phase rows for %d directions: %w", len(phases), len(dirs), ErrDegenerateGeometry)
	}
	if cfg.PixelScaleDeg <= 0 || cfg.RadiusDeg <= 0 {
		return nil, fmt.Errorf("pixel scale %.3g deg, radius %.3g deg: %w",
			cfg.PixelScaleDeg, cfg.RadiusDeg, ErrDegenerateGeometry)
	}
	if cfg.RefFreqHz <= 0 {
		return nil, fmt.Errorf("reference frequency %.3g Hz: %w", cfg.RefFreqHz, ErrDegenerateGeometry)
	}

	npix := int(math.Ceil(2*cfg.RadiusDeg/cfg.PixelScaleDeg)) + 1
	os := cfg.Oversample
	fine := npix * os

	// Scattered direction positions in fine-pixel coordinates.
	xs := make([]float64, len(dirs))
	ys := make([]float64, len(dirs))
	cosDec := math.Cos(cfg.Center.Dec)
	for i, d := range dirs {
		dxDeg := -(d.RA - cfg.Center.RA) * cosDec * 180 / math.Pi
		dyDeg := (d.Dec - cfg.Center.Dec) * 180 / math.Pi
		xs[i] = (dxDeg + cfg.RadiusDeg) / cfg.PixelScaleDeg * float64(os)
		ys[i] = (dyDeg + cfg.RadiusDeg) / cfg.PixelScaleDeg * float64(os)
	}

	numAnts := len(antennaIDs)
	tecPerRad := cfg.RefFreqHz / DispersionConstHz
	sigmaFine := cfg.BlurSigmaPx * float64(os)

	planes := make([][]float64, numAnts)
	for ant := 0; ant < numAnts; ant++ {
		grid := make([]float64, fine*fine)
		for py := 0; py < fine; py++ {
			for px := 0; px < fine; px++ {
				nearest := nearestDirection(float64(px), float64(py), xs, ys)
				grid[py*fine+px] = phases[nearest][ant]
			}
		}
		gaussianBlur(grid, fine, fine, sigmaFine)
		planes[ant] = downsample(grid, fine, os, tecPerRad)
	}

	return &Screen{
		Proj: Projection{
			CenterRA:      cfg.Center.RA,
			CenterDec:     cfg.Center.Dec,
			PixelScaleDeg: cfg.PixelScaleDeg,
			Npix:          npix,
			RefFreqHz:     cfg.RefFreqHz,
			AntennaIDs:    antennaIDs,
		},
		Planes: planes,
	}, nil
}

func nearestDirection(px, py float64, xs, ys []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i := range xs {
		dx := xs[i] - px
		dy := ys[i] - py
		if d := dx*dx + dy*dy; d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// gaussianBlur applies a separable Gaussian kernel in place. Edges are
// renormalised over the in-bounds kernel support, so the border is not
// darkened.
func gaussianBlur(grid []float64, width, height int, sigma float64) {
	if sigma <= 0 {
		return
	}
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	for i := -radius; i <= radius; i++ {
		kernel[i+radius] = math.Exp(-float64(i*i) / (2 * sigma * sigma))
	}

	tmp := make([]float64, len(grid))

	// Horizontal.
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum, weight := 0.0, 0.0
			for k := -radius; k <= radius; k++ {
				xx := x + k
				if xx < 0 || xx >= width {
					continue
				}
				w := kernel[k+radius]
				sum += w * grid[y*width+xx]
				weight += w
			}
			tmp[y*width+x] = sum / weight
		}
	}
	// Vertical.
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum, weight := 0.0, 0.0
			for k := -radius; k <= radius; k++ {
				yy := y + k
				if yy < 0 || yy >= height {
					continue
				}
				w := kernel[k+radius]
				sum += w * tmp[yy*width+x]
				weight += w
			}
			grid[y*width+x] = sum / weight
		}
	}
}

// downsample box-averages an os-oversampled square grid back to the
// target resolution, scaling each value by tecPerRad on the way out.
func downsample(fineGrid []float64, fine, os int, tecPerRad float64) []float64 {
	npix := fine / os
	out := make([]float64, npix*npix)
	for y := 0; y < npix; y++ {
		for x := 0; x < npix; x++ {
			sum := 0.0
			for sy := 0; sy < os; sy++ {
				for sx := 0; sx < os; sx++ {
					sum += fineGrid[(y*os+sy)*fine+(x*os+sx)]
				}
			}
			out[y*npix+x] = sum / float64(os*os) * tecPerRad
		}
	}
	return out
}
