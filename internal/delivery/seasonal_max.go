package delivery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/forest-guardian/vegetation-indices/internal/cache"
	"github.com/forest-guardian/vegetation-indices/internal/catalog"
	"github.com/forest-guardian/vegetation-indices/internal/geotiff"
	"github.com/forest-guardian/vegetation-indices/internal/log"
	"github.com/forest-guardian/vegetation-indices/internal/notification"
	"github.com/forest-guardian/vegetation-indices/internal/plots"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/forest-guardian/vegetation-indices/internal/seasonal"
	"github.com/forest-guardian/vegetation-indices/internal/sentinel"
	"github.com/forest-guardian/vegetation-indices/internal/zonal"
	"github.com/forest-guardian/vegetation-indices/output"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var (
	reprojectPlots = plots.ReprojectAll
	newProjector   = openProjector
)

// openProjector returns the transform between two CRSs, nil when they
// match, and the func releasing it.
func openProjector(from, to string) (raster.Projector, func(), error) {
	proj, err := geotiff.NewProjector(from, to)
	if err != nil {
		return nil, nil, err
	}
	if proj == nil {
		return nil, func() {}, nil
	}
	return proj, proj.Close, nil
}

type SeasonalMaxResult struct {
	RunID   string
	Images  int
	Zonal   []zonal.Record
	Maxima  []seasonal.MaxRecord
	CSVPath string
}

// SeasonalMax loads the plots, optionally stages missing tiles and runs the
// vegetation job over the tile directory.
func SeasonalMax(ctx context.Context, cfg SeasonalMaxConfig) (*SeasonalMaxResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ps, err := plots.Load(cfg.PlotsPath, plots.Options{UIDField: cfg.UIDField})
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, fmt.Errorf("no polygon plots found in %s", cfg.PlotsPath)
	}

	imagesDir := cfg.ImagesDir
	if cfg.Fetch {
		bound := plots.BufferBound(plots.Bound(ps), cfg.Buffer, plots.CRS)
		fetcher := sentinel.NewFetcher(cfg.ImagesDir, cfg.TilePrefix)
		staged, err := fetcher.Fetch(ctx, cfg.Start, cfg.End, bound)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch images: %w", err)
		}
		imagesDir = fetcher.AreaDir(bound)
		log.Infof("Staged %d new tiles into %s", staged, imagesDir)
	}

	cat := catalog.NewDirCatalog(imagesDir, cfg.TilePrefix, cfg.BandOrder)
	result, err := RunSeasonalMax(ctx, cfg, cat, ps)
	if err != nil {
		return nil, err
	}

	if result.Images == 0 {
		msg := fmt.Sprintf("No %s tiles in %s between %s and %s, %s only has a header",
			cfg.TilePrefix, imagesDir, cfg.Start.Format(raster.DateLayout), cfg.End.Format(raster.DateLayout), result.CSVPath)
		if err := notification.SendDiscordWarnNotification(msg); err != nil {
			log.Warnf("failed to send warning notification: %v", err)
		}
		return result, nil
	}

	msg := fmt.Sprintf("%s seasonal maximum for %d plots from %d images written to %s",
		cfg.Index, len(result.Maxima), result.Images, result.CSVPath)
	if err := notification.SendDiscordSuccessNotification(msg); err != nil {
		log.Warnf("failed to send success notification: %v", err)
	}
	return result, nil
}

// RunSeasonalMax computes the zonal mean of every plot on every image of cat
// in [cfg.Start, cfg.End) and keeps the seasonal maximum per plot. Images are
// processed on a worker pool; the first failure cancels the run.
func RunSeasonalMax(ctx context.Context, cfg SeasonalMaxConfig, cat catalog.Catalog, ps []plots.Plot) (*SeasonalMaxResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, fmt.Errorf("no plots to aggregate")
	}

	runID := uuid.NewString()
	logger := log.With("run_id", runID, "job", "seasonal-max", "index", string(cfg.Index))

	bound := plots.BufferBound(plots.Bound(ps), cfg.Buffer, plots.CRS)
	entries, err := cat.Query(ctx, cfg.Start, cfg.End, bound)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	logger.Infof("Found %d images between %s and %s for %d plots",
		len(entries), cfg.Start.Format(raster.DateLayout), cfg.End.Format(raster.DateLayout), len(ps))

	gridPlots, err := reprojectPlots(ps, cfg.CRS)
	if err != nil {
		return nil, err
	}
	records, err := aggregateEntries(ctx, cfg, cat, entries, gridPlots, logger)
	if err != nil {
		return nil, err
	}
	records = zonal.Merge(records)
	maxima := seasonal.Reduce(records)
	logger.Infow("Seasonal maximum computed", "records", len(records), "plots", len(maxima))

	result := &SeasonalMaxResult{
		RunID:   runID,
		Images:  len(entries),
		Zonal:   records,
		Maxima:  maxima,
		CSVPath: filepath.Join(cfg.OutputDir, cfg.OutputName()+".csv"),
	}
	if err := writeSeasonalOutputs(cfg, result, logger); err != nil {
		return nil, err
	}
	return result, nil
}

func writeSeasonalOutputs(cfg SeasonalMaxConfig, result *SeasonalMaxResult, logger *zap.SugaredLogger) error {
	if err := output.CreateSeasonalCSV(result.Maxima, result.CSVPath); err != nil {
		return err
	}
	logger.Infof("Seasonal maximum written to %s", result.CSVPath)

	if cfg.ZonalCSV {
		path := filepath.Join(cfg.OutputDir, cfg.OutputName()+"_zonal.csv")
		if err := output.CreateZonalCSV(result.Zonal, path); err != nil {
			return err
		}
		logger.Infof("Zonal means written to %s", path)
	}
	if cfg.Chart {
		path := filepath.Join(cfg.OutputDir, cfg.OutputName()+"_chart.png")
		err := output.CreateIndexChart(result.Zonal, string(cfg.Index), path)
		switch {
		case errors.Is(err, output.ErrNoChartData):
			logger.Warnf("Skipping chart: %v", err)
		case err != nil:
			return err
		default:
			logger.Infof("Chart written to %s", path)
		}
	}
	return nil
}

func aggregateEntries(ctx context.Context, cfg SeasonalMaxConfig, cat catalog.Catalog, entries []catalog.Entry, ps []plots.Plot, logger *zap.SugaredLogger) ([]zonal.Record, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var zonalCache cache.Service[[]zonal.Record]
	plotsKey := ""
	if cfg.UseCache {
		zonalCache = cache.NewFileCache[[]zonal.Record]("zonal")
		plotsKey = plotsFingerprint(ps)
	}

	var (
		mu          sync.Mutex
		perEntry    = make([][]zonal.Record, len(entries))
		progressBar = progressbar.Default(int64(len(entries)), "Aggregating images")
		firstErr    error
		stopOnce    sync.Once
	)

	wp := workerpool.New(cfg.Workers)
	for i, entry := range entries {
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}

			var key string
			if zonalCache != nil {
				key = zonalCache.GenerateKey(entry.ID, entry.Path, entry.Index, entry.Date.Unix(), cfg.Index, cfg.Scale, cfg.CRS, plotsKey)
				if cached, ok := zonalCache.Get(key); ok {
					mu.Lock()
					perEntry[i] = cached
					progressBar.Add(1)
					mu.Unlock()
					return
				}
			}

			records, err := processEntry(ctx, cfg, cat, entry, ps)
			if err != nil {
				stopOnce.Do(func() {
					firstErr = fmt.Errorf("failed to process image %s: %w", entry.ID, err)
					cancel()
				})
				return
			}
			if zonalCache != nil {
				if err := zonalCache.Set(key, records); err != nil {
					logger.Warnf("failed to cache zonal means of %s: %v", entry.ID, err)
				}
			}

			mu.Lock()
			perEntry[i] = records
			progressBar.Add(1)
			mu.Unlock()
		})
	}
	wp.StopWait()
	progressBar.Finish()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []zonal.Record
	for _, recs := range perEntry {
		records = append(records, recs...)
	}
	return records, nil
}

// processEntry runs load, cloud mask, index, range mask and zonal mean for
// one image.
func processEntry(ctx context.Context, cfg SeasonalMaxConfig, cat catalog.Catalog, entry catalog.Entry, ps []plots.Plot) ([]zonal.Record, error) {
	img, err := cat.Load(ctx, entry)
	if err != nil {
		return nil, err
	}
	clearSky, err := sentinel.MaskClouds(img, cfg.Bands.QA)
	if err != nil {
		return nil, err
	}
	index, err := sentinel.Calculate(clearSky, cfg.Index, cfg.Bands)
	if err != nil {
		return nil, err
	}
	index, err = sentinel.MaskRange(index, string(cfg.Index), -1, 1)
	if err != nil {
		return nil, err
	}

	proj, release, err := newProjector(cfg.CRS, index.CRS)
	if err != nil {
		return nil, err
	}
	defer release()
	return zonal.Aggregate(index, string(cfg.Index), ps, zonal.Options{
		Scale:     cfg.Scale,
		CRS:       cfg.CRS,
		Projector: proj,
	})
}

// plotsFingerprint identifies a plot set inside zonal cache keys.
func plotsFingerprint(ps []plots.Plot) string {
	var b strings.Builder
	for _, p := range ps {
		bound := p.Bound()
		fmt.Fprintf(&b, "%s:%v:%v;", p.UID, bound.Min, bound.Max)
	}
	return b.String()
}
