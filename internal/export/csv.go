// Package export renders calibration output for external consumers:
// CSV solution listings, screen dumps with a projection header, and raw
// residual visibilities.
package export

import (
	"encoding/csv"
	"io"
	"math"

	"github.com/jszwec/csvutil"

	"github.com/signalsfoundry/ionocal/core"
)

// SolutionRecord is the tabular form of one finalized solution.
type SolutionRecord struct {
	SourceID   string  `csv:"source_id"`
	Name       string  `csv:"name"`
	RADeg      float64 `csv:"ra_deg"`
	DecDeg     float64 `csv:"dec_deg"`
	FitOrder   int     `csv:"fit_order"`
	Failed     bool    `csv:"failed"`
	ChiSquared float64 `csv:"chi_squared"`
	AmpX       float64 `csv:"amp_x_jy"`
	AmpY       float64 `csv:"amp_y_jy"`
	GradL      float64 `csv:"grad_l"`
	GradM      float64 `csv:"grad_m"`
	// PhaseRMS summarises the per-antenna phases in one column; the full
	// per-antenna vector lives in the screen output.
	PhaseRMS float64 `csv:"phase_rms_rad"`
}

// RecordsFromResults flattens calibration results into CSV records.
func RecordsFromResults(results []*core.Result) []SolutionRecord {
	records := make([]SolutionRecord, 0, len(results))
	for _, res := range results {
		sol := res.Solution
		ax, ay := sol.Amplitudes()
		dl, dm := sol.Gradient()
		records = append(records, SolutionRecord{
			SourceID:   res.Source.ID,
			Name:       res.Source.Name,
			RADeg:      res.Source.Direction.RA * 180 / math.Pi,
			DecDeg:     res.Source.Direction.Dec * 180 / math.Pi,
			FitOrder:   sol.Order(),
			Failed:     sol.Failed(),
			ChiSquared: sol.ChiSq,
			AmpX:       ax,
			AmpY:       ay,
			GradL:      dl,
			GradM:      dm,
			PhaseRMS:   phaseRMS(res.AntennaPhases),
		})
	}
	return records
}

// WriteSolutionsCSV writes the records with a header row.
func WriteSolutionsCSV(w io.Writer, records []SolutionRecord) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func phaseRMS(phases []float64) float64 {
	if len(phases) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range phases {
		sum += p * p
	}
	return math.Sqrt(sum / float64(len(phases)))
}
