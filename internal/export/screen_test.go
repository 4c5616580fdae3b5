package export

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/signalsfoundry/ionocal/core"
)

func TestWriteScreen(t *testing.T) {
	screen := &core.Screen{
		Proj: core.Projection{
			CenterRA:      1.2,
			CenterDec:     0.5,
			PixelScaleDeg: 0.25,
			Npix:          2,
			RefFreqHz:     150e6,
			AntennaIDs:    []string{"ant0", "ant1"},
		},
		Planes: [][]float64{
			{0.1, 0.2, 0.3, 0.4},
			{1.1, 1.2, 1.3, 1.4},
		},
	}

	var header, data bytes.Buffer
	if err := WriteScreen(&header, &data, screen); err != nil {
		t.Fatalf("WriteScreen: %v", err)
	}

	var proj core.Projection
	if err := json.Unmarshal(header.Bytes(), &proj); err != nil {
		t.Fatalf("header is not valid JSON: %v", err)
	}
	if proj.Npix != 2 || proj.CenterRA != 1.2 || len(proj.AntennaIDs) != 2 {
		t.Errorf("decoded projection = %+v", proj)
	}

	// Two 2x2 planes of 8-byte floats.
	if got, want := data.Len(), 2*4*8; got != want {
		t.Fatalf("data length = %d bytes, want %d", got, want)
	}
	vals := make([]float64, 8)
	if err := binary.Read(&data, binary.LittleEndian, vals); err != nil {
		t.Fatalf("decode planes: %v", err)
	}
	if vals[0] != 0.1 || vals[4] != 1.1 || vals[7] != 1.4 {
		t.Errorf("plane values = %v", vals)
	}
}

func TestWriteResiduals(t *testing.T) {
	vis := &core.Visibilities{
		Data: [][][]complex128{
			{
				{complex(1, 2), 0, 0, complex(3, 4)},
				{complex(math.NaN(), math.NaN()), 0, 0, 0},
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteResiduals(&buf, vis); err != nil {
		t.Fatalf("WriteResiduals: %v", err)
	}
	// 2 channels x 4 pols x 2 float32 components.
	if got, want := buf.Len(), 2*core.NumPols*2*4; got != want {
		t.Fatalf("residual dump = %d bytes, want %d", got, want)
	}

	vals := make([]float32, 2*core.NumPols*2)
	if err := binary.Read(&buf, binary.LittleEndian, vals); err != nil {
		t.Fatalf("decode residuals: %v", err)
	}
	if vals[0] != 1 || vals[1] != 2 || vals[6] != 3 || vals[7] != 4 {
		t.Errorf("first channel = %v", vals[:8])
	}
	// Flags survive the dump.
	if !math.IsNaN(float64(vals[8])) {
		t.Errorf("flagged sample = %v, want NaN", vals[8])
	}
}

func TestScreenStats(t *testing.T) {
	min, max, mean := ScreenStats([]float64{-1, 3, 2})
	if min != -1 || max != 3 {
		t.Errorf("min, max = %g, %g, want -1, 3", min, max)
	}
	if math.Abs(mean-4.0/3) > 1e-12 {
		t.Errorf("mean = %g, want %g", mean, 4.0/3)
	}

	if min, max, mean := ScreenStats(nil); min != 0 || max != 0 || mean != 0 {
		t.Error("empty plane stats not zero")
	}
}
