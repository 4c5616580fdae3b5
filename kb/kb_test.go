package kb

import (
	"math"
	"strings"
	"testing"

	"github.com/signalsfoundry/ionocal/model"
)

func pointSource(id string, raDeg, decDeg, fluxJy float64) *model.Source {
	dir := model.Direction{RA: raDeg * math.Pi / 180, Dec: decDeg * math.Pi / 180}
	return &model.Source{
		ID:        id,
		Name:      id,
		Direction: dir,
		Components: []model.Component{{
			Direction: dir,
			Flux:      model.FluxLaw{RefFluxJy: fluxJy, RefFreqHz: 150e6},
		}},
	}
}

func TestCatalog_AddSourceValidation(t *testing.T) {
	c := NewCatalog()

	if err := c.AddSource(pointSource("src1", 10, 45, 3.0)); err != nil {
		t.Fatalf("valid source rejected: %v", err)
	}
	if err := c.AddSource(pointSource("src1", 11, 46, 1.0)); err == nil {
		t.Error("duplicate ID accepted")
	}
	if err := c.AddSource(&model.Source{Name: "anon"}); err == nil {
		t.Error("empty ID accepted")
	}
	if err := c.AddSource(&model.Source{ID: "empty"}); err == nil {
		t.Error("source without components accepted")
	}
	if err := c.AddSource(pointSource("src2", 10, 45, 0)); err == nil {
		t.Error("non-positive flux accepted")
	}

	if got := c.NumSources(); got != 1 {
		t.Errorf("NumSources = %d, want 1", got)
	}
	if c.GetSource("src1") == nil {
		t.Error("GetSource lost the valid source")
	}
	if c.GetSource("missing") != nil {
		t.Error("GetSource returned something for a missing ID")
	}
}

func TestCatalog_AddAntenna(t *testing.T) {
	c := NewCatalog()
	if err := c.AddAntenna(&model.Antenna{ID: "ant0"}); err != nil {
		t.Fatalf("valid antenna rejected: %v", err)
	}
	if err := c.AddAntenna(&model.Antenna{ID: "ant0"}); err == nil {
		t.Error("duplicate antenna ID accepted")
	}
	if err := c.AddAntenna(&model.Antenna{}); err == nil {
		t.Error("empty antenna ID accepted")
	}
	if got := len(c.Antennas()); got != 1 {
		t.Errorf("Antennas() = %d entries, want 1", got)
	}
}

func TestCatalog_RankedOrderAndTruncation(t *testing.T) {
	c := NewCatalog()
	// Insertion order deliberately not brightness order.
	for _, s := range []*model.Source{
		pointSource("dim", 10, 45, 0.5),
		pointSource("bright", 12, 44, 8.0),
		pointSource("mid", 8, 46, 3.0),
	} {
		if err := c.AddSource(s); err != nil {
			t.Fatalf("AddSource: %v", err)
		}
	}

	full := c.Ranked(model.UnityBeam{}, 150e6, 0)
	wantOrder := []string{"bright", "mid", "dim"}
	if len(full) != len(wantOrder) {
		t.Fatalf("Ranked returned %d entries, want %d", len(full), len(wantOrder))
	}
	for i, want := range wantOrder {
		if full[i].Source.ID != want {
			t.Errorf("rank %d = %q, want %q", i, full[i].Source.ID, want)
		}
	}
	for i := 1; i < len(full); i++ {
		if full[i].Apparent.Mean() > full[i-1].Apparent.Mean() {
			t.Errorf("rank %d brighter than rank %d", i, i-1)
		}
	}

	// Truncation is a prefix of the full ranking.
	top := c.Ranked(model.UnityBeam{}, 150e6, 2)
	if len(top) != 2 {
		t.Fatalf("limit 2 returned %d entries", len(top))
	}
	for i := range top {
		if top[i].Source.ID != full[i].Source.ID {
			t.Errorf("truncated rank %d = %q, full rank has %q", i, top[i].Source.ID, full[i].Source.ID)
		}
	}
}

func TestCatalog_RankedTieBreaksOnID(t *testing.T) {
	c := NewCatalog()
	for _, id := range []string{"b", "a", "c"} {
		if err := c.AddSource(pointSource(id, 10, 45, 2.0)); err != nil {
			t.Fatalf("AddSource: %v", err)
		}
	}
	ranked := c.Ranked(model.UnityBeam{}, 150e6, 0)
	for i, want := range []string{"a", "b", "c"} {
		if ranked[i].Source.ID != want {
			t.Errorf("rank %d = %q, want %q", i, ranked[i].Source.ID, want)
		}
	}
}

func TestLoadSkyModel(t *testing.T) {
	const file = `{
		"Sources": [
			{
				"ID": "3C123", "Name": "3C 123", "RADeg": 69.27, "DecDeg": 29.67,
				"Components": [
					{"RADeg": 69.27, "DecDeg": 29.67, "RefFluxJy": 46.0, "RefFreqHz": 150e6, "SpectralIndex": -0.7}
				]
			}
		],
		"Antennas": [
			{"ID": "ant0", "Name": "station 0", "ECEFm": [3826896.2, 460979.9, 5064658.2]}
		]
	}`

	c := NewCatalog()
	loaded, err := LoadSkyModel(c, strings.NewReader(file))
	if err != nil {
		t.Fatalf("LoadSkyModel: %v", err)
	}
	if len(loaded.SourceIDs) != 1 || loaded.SourceIDs[0] != "3C123" {
		t.Errorf("SourceIDs = %v", loaded.SourceIDs)
	}
	if len(loaded.AntennaIDs) != 1 || loaded.AntennaIDs[0] != "ant0" {
		t.Errorf("AntennaIDs = %v", loaded.AntennaIDs)
	}

	src := c.GetSource("3C123")
	if src == nil {
		t.Fatal("loaded source not in catalog")
	}
	// Degrees in the file, radians in memory.
	if got, want := src.Direction.RA, 69.27*math.Pi/180; absDiff(got, want) > 1e-12 {
		t.Errorf("RA = %g rad, want %g", got, want)
	}
	if len(src.Components) != 1 || src.Components[0].Flux.RefFluxJy != 46.0 {
		t.Errorf("components not loaded faithfully: %+v", src.Components)
	}
}

func TestLoadSkyModel_StopsAtInvalidEntry(t *testing.T) {
	const file = `{
		"Sources": [
			{"ID": "ok", "RADeg": 10, "DecDeg": 45,
			 "Components": [{"RefFluxJy": 2.0, "RefFreqHz": 150e6}]},
			{"ID": "bad", "RADeg": 11, "DecDeg": 46, "Components": []}
		]
	}`
	c := NewCatalog()
	loaded, err := LoadSkyModel(c, strings.NewReader(file))
	if err == nil {
		t.Fatal("invalid source accepted")
	}
	if len(loaded.SourceIDs) != 1 {
		t.Errorf("loaded %v before the bad entry, want just the first", loaded.SourceIDs)
	}
	if c.GetSource("ok") == nil {
		t.Error("valid entry preceding the bad one was not kept")
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
