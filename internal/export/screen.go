package export

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/signalsfoundry/ionocal/core"
)

// WriteScreen writes the projection header as JSON to headerW and the
// antenna planes as consecutive little-endian float64 grids to dataW.
// Downstream FITS-style writers reconstruct the cube from the two; FITS
// encoding itself lives outside this pipeline.
func WriteScreen(headerW, dataW io.Writer, screen *core.Screen) error {
	enc := json.NewEncoder(headerW)
	enc.SetIndent("", "  ")
	if err := enc.Encode(screen.Proj); err != nil {
		return fmt.Errorf("write screen header: %w", err)
	}

	for ant, plane := range screen.Planes {
		if err := binary.Write(dataW, binary.LittleEndian, plane); err != nil {
			return fmt.Errorf("write screen plane %d: %w", ant, err)
		}
	}
	return nil
}

// WriteResiduals dumps the peeled visibility buffer as little-endian
// complex64 pairs in (row, channel, polarization) order, for diagnostic
// re-inspection. NaN flags pass through unchanged.
func WriteResiduals(w io.Writer, vis *core.Visibilities) error {
	buf := make([]float32, 0, 2*core.NumPols)
	for row := range vis.Data {
		for ch := range vis.Data[row] {
			buf = buf[:0]
			for pol := range vis.Data[row][ch] {
				s := vis.Data[row][ch][pol]
				buf = append(buf, float32(real(s)), float32(imag(s)))
			}
			if err := binary.Write(w, binary.LittleEndian, buf); err != nil {
				return fmt.Errorf("write residual row %d: %w", row, err)
			}
		}
	}
	return nil
}

// ScreenStats summarises a plane for logging: min, max, mean TEC.
func ScreenStats(plane []float64) (min, max, mean float64) {
	if len(plane) == 0 {
		return 0, 0, 0
	}
	min, max = math.Inf(1), math.Inf(-1)
	sum := 0.0
	for _, v := range plane {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	return min, max, sum / float64(len(plane))
}
