package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/ionocal/core"
	"github.com/signalsfoundry/ionocal/internal/export"
	"github.com/signalsfoundry/ionocal/internal/logging"
	"github.com/signalsfoundry/ionocal/internal/observability"
	"github.com/signalsfoundry/ionocal/internal/store"
	"github.com/signalsfoundry/ionocal/internal/synth"
	"github.com/signalsfoundry/ionocal/kb"
	"github.com/signalsfoundry/ionocal/model"
)

// observationFile is the JSON boundary format describing the observation
// to synthesise. Real table storage plugs in at the same point.
type observationFile struct {
	CenterRADeg    float64   `json:"CenterRADeg"`
	CenterDecDeg   float64   `json:"CenterDecDeg"`
	StartTime      time.Time `json:"StartTime"`
	NumTimes       int       `json:"NumTimes"`
	IntegrationSec float64   `json:"IntegrationSec"`
	ChanFreqsHz    []float64 `json:"ChanFreqsHz"`
	NoiseJy        float64   `json:"NoiseJy"`
	FlagFraction   float64   `json:"FlagFraction"`
	Seed           int64     `json:"Seed"`
}

func main() {
	skyPath := flag.String("sky", "", "path to JSON sky model (required)")
	obsPath := flag.String("obs", "", "path to JSON observation description (required)")
	ordersStr := flag.String("orders", "1,2", "comma-separated calibration pass orders")
	fluxThreshold := flag.Float64("flux-threshold", 2.0, "minimum apparent flux (Jy) for higher-order fits")
	limit := flag.Int("limit", 0, "calibrate only the N brightest sources (0 = all)")
	refAnt := flag.Int("ref-ant", 0, "reference antenna index")
	refFreq := flag.Float64("ref-freq", 0, "reference frequency Hz (0 = band centre)")
	beamFWHM := flag.Float64("beam-fwhm-deg", 0, "Gaussian primary beam FWHM in degrees (0 = no beam)")
	maxIter := flag.Int("max-iterations", 2000, "nonlinear solver iteration budget")

	outCSV := flag.String("out-csv", "", "write solution listing CSV to this path")
	solutionsDB := flag.String("solutions-db", "", "write solutions to this SQLite gain table")
	screenBase := flag.String("screen-out", "", "write TEC screen <base>.json and <base>.f64")
	residualsOut := flag.String("residuals-out", "", "write peeled residual visibilities to this path")

	screenRadius := flag.Float64("screen-radius-deg", 5, "screen angular radius in degrees")
	screenPixel := flag.Float64("screen-pixel-deg", 0.25, "screen pixel scale in degrees")
	screenOversample := flag.Int("screen-oversample", 4, "screen interpolation oversampling factor")
	screenBlur := flag.Float64("screen-blur-px", 1.5, "screen Gaussian blur sigma in output pixels")

	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (empty = disabled)")

	flag.Parse()

	// .env is optional; environment always wins.
	_ = godotenv.Load()

	log := logging.NewFromEnv()
	ctx := context.Background()

	if *skyPath == "" || *obsPath == "" {
		fmt.Fprintln(os.Stderr, "error: -sky and -obs are required")
		flag.Usage()
		os.Exit(2)
	}

	orders, err := parseOrders(*ordersStr)
	if err != nil {
		fatal(ctx, log, "invalid -orders", err)
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		fatal(ctx, log, "init tracing", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdown, log)

	collector, err := observability.NewCalibrationCollector(nil)
	if err != nil {
		fatal(ctx, log, "init metrics", err)
	}
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", collector.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Warn(ctx, "metrics server stopped", logging.Err(err))
			}
		}()
		log.Info(ctx, "serving metrics", logging.String("addr", *metricsAddr))
	}

	// ==== Load sky model + observation ====

	catalog := kb.NewCatalog()
	skyFile, err := os.Open(*skyPath)
	if err != nil {
		fatal(ctx, log, "open sky model", err)
	}
	loaded, err := kb.LoadSkyModel(catalog, skyFile)
	skyFile.Close()
	if err != nil {
		fatal(ctx, log, "load sky model", err)
	}
	log.Info(ctx, "loaded sky model",
		logging.Int("sources", len(loaded.SourceIDs)),
		logging.Int("antennas", len(loaded.AntennaIDs)))

	obs, err := loadObservation(*obsPath)
	if err != nil {
		fatal(ctx, log, "load observation", err)
	}
	if len(obs.ChanFreqsHz) == 0 {
		fatal(ctx, log, "load observation", fmt.Errorf("no channel frequencies"))
	}

	refFreqHz := *refFreq
	if refFreqHz <= 0 {
		refFreqHz = bandCentre(obs.ChanFreqsHz)
	}

	var beam model.BeamModel = model.UnityBeam{}
	centre := model.Direction{
		RA:  obs.CenterRADeg * math.Pi / 180,
		Dec: obs.CenterDecDeg * math.Pi / 180,
	}
	if *beamFWHM > 0 {
		beam = model.GaussianBeam{Pointing: centre, FWHMDeg: *beamFWHM, RefFreqHz: refFreqHz}
	}

	vis, err := synth.GenerateObservation(synth.ObservationConfig{
		Antennas:       catalog.Antennas(),
		PhaseCenter:    centre,
		StartTime:      obs.StartTime,
		NumTimes:       obs.NumTimes,
		IntegrationSec: obs.IntegrationSec,
		ChanFreqsHz:    obs.ChanFreqsHz,
		NoiseJy:        obs.NoiseJy,
		FlagFraction:   obs.FlagFraction,
		Seed:           obs.Seed,
	}, catalog.Sources(), beam)
	if err != nil {
		fatal(ctx, log, "generate observation", err)
	}
	log.Info(ctx, "observation ready",
		logging.Int("rows", vis.NumRows()),
		logging.Int("channels", vis.NumChans()),
		logging.Float64("ref_freq_hz", refFreqHz))

	// ==== Calibrate ====

	ranked := catalog.Ranked(beam, refFreqHz, *limit)
	targets := make([]core.Target, len(ranked))
	for i, r := range ranked {
		targets[i] = core.Target{Source: r.Source, Apparent: r.Apparent}
	}

	cal := core.NewCalibrator(core.Config{
		Orders:          orders,
		FluxThresholdJy: *fluxThreshold,
		MaxIterations:   *maxIter,
		RefFreqHz:       refFreqHz,
		RefAntenna:      *refAnt,
	}, log, collector)

	results, err := cal.Run(ctx, vis, targets)
	if err != nil {
		fatal(ctx, log, "calibration", err)
	}

	// ==== Outputs ====

	records := export.RecordsFromResults(results)
	if *outCSV != "" {
		if err := writeCSV(*outCSV, records); err != nil {
			fatal(ctx, log, "write CSV", err)
		}
		log.Info(ctx, "wrote solution listing", logging.String("path", *outCSV))
	}

	if *solutionsDB != "" {
		if err := saveSolutions(ctx, *solutionsDB, refFreqHz, results); err != nil {
			fatal(ctx, log, "save gain table", err)
		}
		log.Info(ctx, "wrote gain table", logging.String("path", *solutionsDB))
	}

	if *residualsOut != "" {
		if err := writeResiduals(*residualsOut, vis); err != nil {
			fatal(ctx, log, "write residuals", err)
		}
		log.Info(ctx, "wrote residual visibilities", logging.String("path", *residualsOut))
	}

	// Screen from non-failed solutions only. Screen failures are fatal:
	// the run's headline output is undefined without it.
	if *screenBase != "" {
		var dirs []model.Direction
		var phases [][]float64
		for _, res := range results {
			if res.Solution.Failed() {
				continue
			}
			dirs = append(dirs, res.Source.Direction)
			phases = append(phases, res.AntennaPhases)
		}
		antIDs := make([]string, 0, len(catalog.Antennas()))
		for _, a := range catalog.Antennas() {
			antIDs = append(antIDs, a.ID)
		}

		screen, err := core.BuildTECScreen(core.ScreenConfig{
			Center:        centre,
			RadiusDeg:     *screenRadius,
			PixelScaleDeg: *screenPixel,
			Oversample:    *screenOversample,
			BlurSigmaPx:   *screenBlur,
			RefFreqHz:     refFreqHz,
		}, dirs, phases, antIDs)
		if err != nil {
			fatal(ctx, log, "build TEC screen", err)
		}
		if err := writeScreen(*screenBase, screen); err != nil {
			fatal(ctx, log, "write TEC screen", err)
		}
		min, max, mean := export.ScreenStats(screen.Planes[0])
		log.Info(ctx, "wrote TEC screen",
			logging.String("base", *screenBase),
			logging.Int("npix", screen.Proj.Npix),
			logging.Float64("tec_min", min),
			logging.Float64("tec_max", max),
			logging.Float64("tec_mean", mean))
	}

	log.Info(ctx, "done")
}

func parseOrders(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	orders := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("order %q: %w", p, err)
		}
		orders = append(orders, v)
	}
	return orders, nil
}

func bandCentre(freqs []float64) float64 {
	sum := 0.0
	for _, f := range freqs {
		sum += f
	}
	return sum / float64(len(freqs))
}

func loadObservation(path string) (*observationFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var obs observationFile
	if err := json.Unmarshal(data, &obs); err != nil {
		return nil, fmt.Errorf("parse observation JSON: %w", err)
	}
	return &obs, nil
}

func writeCSV(path string, records []export.SolutionRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return export.WriteSolutionsCSV(f, records)
}

func saveSolutions(ctx context.Context, path string, refFreqHz float64, results []*core.Result) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	runID := fmt.Sprintf("run-%d", time.Now().Unix())
	if err := db.SaveRun(ctx, store.RunRow{
		RunID:      runID,
		StartedAt:  time.Now().Unix(),
		RefFreqHz:  refFreqHz,
		NumSources: len(results),
	}); err != nil {
		return err
	}

	rows := make([]store.SolutionRow, 0, len(results))
	for _, res := range results {
		ax, ay := res.Solution.Amplitudes()
		dl, dm := res.Solution.Gradient()
		rows = append(rows, store.SolutionRow{
			RunID:      runID,
			SourceID:   res.Source.ID,
			RARad:      res.Source.Direction.RA,
			DecRad:     res.Source.Direction.Dec,
			FitOrder:   res.Solution.Order(),
			Failed:     res.Solution.Failed(),
			ChiSquared: res.Solution.ChiSq,
			AmpX:       ax,
			AmpY:       ay,
			GradL:      dl,
			GradM:      dm,
		})
	}
	return db.SaveSolutions(ctx, rows)
}

func writeResiduals(path string, vis *core.Visibilities) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return export.WriteResiduals(f, vis)
}

func writeScreen(base string, screen *core.Screen) error {
	headerF, err := os.Create(base + ".json")
	if err != nil {
		return err
	}
	defer headerF.Close()
	dataF, err := os.Create(base + ".f64")
	if err != nil {
		return err
	}
	defer dataF.Close()
	return export.WriteScreen(headerF, dataF, screen)
}

func fatal(ctx context.Context, log logging.Logger, msg string, err error) {
	log.Error(ctx, msg, logging.Err(err))
	os.Exit(1)
}
