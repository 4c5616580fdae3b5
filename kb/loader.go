package kb

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/signalsfoundry/ionocal/model"
)

// Sky-model file schema. Angles are degrees in the file and radians in
// memory; the particular text grammar of survey catalogs is out of scope,
// JSON is the boundary format here.

type skyComponent struct {
	RADeg         float64 `json:"RADeg"`
	DecDeg        float64 `json:"DecDeg"`
	RefFluxJy     float64 `json:"RefFluxJy"`
	RefFreqHz     float64 `json:"RefFreqHz"`
	SpectralIndex float64 `json:"SpectralIndex"`
}

type skySource struct {
	ID         string         `json:"ID"`
	Name       string         `json:"Name"`
	RADeg      float64        `json:"RADeg"`
	DecDeg     float64        `json:"DecDeg"`
	Components []skyComponent `json:"Components"`
}

type skyAntenna struct {
	ID    string     `json:"ID"`
	Name  string     `json:"Name"`
	ECEFm [3]float64 `json:"ECEFm"`
}

type skyModelFile struct {
	Sources  []skySource  `json:"Sources"`
	Antennas []skyAntenna `json:"Antennas"`
}

// LoadedSkyModel summarises what a LoadSkyModel call added to the catalog.
type LoadedSkyModel struct {
	SourceIDs  []string
	AntennaIDs []string
}

// LoadSkyModel reads a JSON sky model and registers its sources and
// antennas in the catalog. Loading stops at the first invalid entry so a
// bad file never leaves a half-trusted catalog behind silently.
func LoadSkyModel(c *Catalog, r io.Reader) (*LoadedSkyModel, error) {
	var file skyModelFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode sky model: %w", err)
	}

	loaded := &LoadedSkyModel{}
	for i, src := range file.Sources {
		s := &model.Source{
			ID:   src.ID,
			Name: src.Name,
			Direction: model.Direction{
				RA:  src.RADeg * math.Pi / 180,
				Dec: src.DecDeg * math.Pi / 180,
			},
		}
		for _, comp := range src.Components {
			s.Components = append(s.Components, model.Component{
				Direction: model.Direction{
					RA:  comp.RADeg * math.Pi / 180,
					Dec: comp.DecDeg * math.Pi / 180,
				},
				Flux: model.FluxLaw{
					RefFluxJy:     comp.RefFluxJy,
					RefFreqHz:     comp.RefFreqHz,
					SpectralIndex: comp.SpectralIndex,
				},
			})
		}
		if err := c.AddSource(s); err != nil {
			return loaded, fmt.Errorf("sky model source %d: %w", i, err)
		}
		loaded.SourceIDs = append(loaded.SourceIDs, s.ID)
	}

	for i, ant := range file.Antennas {
		a := &model.Antenna{
			ID:   ant.ID,
			Name: ant.Name,
			Position: model.ECEF{
				X: ant.ECEFm[0],
				Y: ant.ECEFm[1],
				Z: ant.ECEFm[2],
			},
		}
		if err := c.AddAntenna(a); err != nil {
			return loaded, fmt.Errorf("sky model antenna %d: %w", i, err)
		}
		loaded.AntennaIDs = append(loaded.AntennaIDs, a.ID)
	}

	return loaded, nil
}
