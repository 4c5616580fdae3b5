package core

import (
	"math"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/signalsfoundry/ionocal/model"
)

// Polarization indices into the last visibility axis.
const (
	PolXX = 0
	PolXY = 1
	PolYX = 2
	PolYY = 3

	NumPols = 4
)

// Visibilities is a dense in-memory visibility dataset: complex
// correlations indexed by (row, channel, polarization), with per-row
// antenna pairs and baseline vectors. Flagged samples are NaN and stay
// NaN through every operation.
//
// The buffer has a single owner at a time. Peel, unpeel and rotation all
// mutate it in place; concurrent mutation from multiple sources is not
// supported and the calibration loop never attempts it.
type Visibilities struct {
	// Data[row][chan][pol].
	Data [][][]complex128

	// Antenna pair per row.
	Antenna1 []int
	Antenna2 []int

	// UVW per row in metres, in the frame of PhaseCenter.
	UVW [][3]float64

	ChanFreqsHz []float64
	PhaseCenter model.Direction
	NumAntennas int
}

// NumRows returns the number of baseline rows.
func (v *Visibilities) NumRows() int { return len(v.Data) }

// NumChans returns the number of frequency channels.
func (v *Visibilities) NumChans() int { return len(v.ChanFreqsHz) }

// Clone returns a deep copy sharing nothing with the receiver. The
// calibration loop clones the shared buffer to build per-source fitting
// contexts without disturbing the peeling state.
func (v *Visibilities) Clone() *Visibilities {
	out := &Visibilities{
		Data:        make([][][]complex128, len(v.Data)),
		Antenna1:    append([]int(nil), v.Antenna1...),
		Antenna2:    append([]int(nil), v.Antenna2...),
		UVW:         append([][3]float64(nil), v.UVW...),
		ChanFreqsHz: append([]float64(nil), v.ChanFreqsHz...),
		PhaseCenter: v.PhaseCenter,
		NumAntennas: v.NumAntennas,
	}
	for r, row := range v.Data {
		out.Data[r] = make([][]complex128, len(row))
		for c, ch := range row {
			out.Data[r][c] = append([]complex128(nil), ch...)
		}
	}
	return out
}

// RotatePhaseCenter re-points the dataset at newDir: every row's (u, v, w)
// is recomputed in the new frame and each visibility picks up the matching
// phase factor, leaving the physical measurement unchanged. Rotating to a
// direction and back reproduces the input to floating-point tolerance.
func (v *Visibilities) RotatePhaseCenter(newDir model.Direction) {
	oldBasis := uvwBasis(v.PhaseCenter)
	newBasis := uvwBasis(newDir)

	for row := range v.Data {
		uvw := v.UVW[row]

		// Back to the shared XYZ frame, then into the new (u, v, w) basis.
		var xyz [3]float64
		for i := 0; i < 3; i++ {
			xyz[i] = oldBasis[0][i]*uvw[0] + oldBasis[1][i]*uvw[1] + oldBasis[2][i]*uvw[2]
		}
		var rotated [3]float64
		for i := 0; i < 3; i++ {
			rotated[i] = newBasis[i][0]*xyz[0] + newBasis[i][1]*xyz[1] + newBasis[i][2]*xyz[2]
		}

		// The w change is the only phase-relevant quantity.
		dwMetres := rotated[2] - uvw[2]
		for ch := range v.Data[row] {
			phase := -2 * math.Pi * dwMetres * v.ChanFreqsHz[ch] / SpeedOfLight
			factor := cmplx.Exp(complex(0, phase))
			for pol := range v.Data[row][ch] {
				v.Data[row][ch][pol] *= factor
			}
		}
		v.UVW[row] = rotated
	}
	v.PhaseCenter = newDir
}

// FrequencyAverage collapses the channel axis to one mean per row and
// polarization, ignoring flagged (NaN) samples. A row/polarization with
// every channel flagged averages to NaN, never to zero.
//
// Rows are independent, so the reduction fans out over a bounded set of
// workers. This is the only parallel region in the pipeline.
func (v *Visibilities) FrequencyAverage() [][]complex128 {
	rows := v.NumRows()
	out := make([][]complex128, rows)

	workers := runtime.GOMAXPROCS(0)
	if workers > rows {
		workers = rows
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	chunk := (rows + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > rows {
			end = rows
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for row := start; row < end; row++ {
				out[row] = averageRow(v.Data[row])
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

func averageRow(row [][]complex128) []complex128 {
	avg := make([]complex128, NumPols)
	for pol := 0; pol < NumPols; pol++ {
		var sum complex128
		count := 0
		for ch := range row {
			s := row[ch][pol]
			if isFlagged(s) {
				continue
			}
			sum += s
			count++
		}
		if count == 0 {
			avg[pol] = complex(math.NaN(), math.NaN())
		} else {
			avg[pol] = sum / complex(float64(count), 0)
		}
	}
	return avg
}

// isFlagged reports whether a sample carries the NaN flag marker.
func isFlagged(s complex128) bool {
	return math.IsNaN(real(s)) || math.IsNaN(imag(s))
}
