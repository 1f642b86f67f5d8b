package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/forest-guardian/vegetation-indices/internal/catalog"
	"github.com/forest-guardian/vegetation-indices/internal/climate"
	"github.com/forest-guardian/vegetation-indices/internal/geotiff"
	"github.com/forest-guardian/vegetation-indices/internal/log"
	"github.com/forest-guardian/vegetation-indices/internal/notification"
	"github.com/forest-guardian/vegetation-indices/internal/plots"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/forest-guardian/vegetation-indices/output"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
)

var writeGeoTIFF = geotiff.Write

type TemperatureResult struct {
	RunID       string
	Images      int
	Band        string
	Summary     climate.Summary
	TIFFPath    string
	PreviewPath string
}

// TemperaturePercentile builds the buffered boundary, opens the archive and
// runs the percentile job.
func TemperaturePercentile(ctx context.Context, cfg TemperatureConfig) (*TemperatureResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	region, err := loadBoundary(cfg)
	if err != nil {
		return nil, err
	}
	cat, closeArchive, err := openArchive(cfg)
	if err != nil {
		return nil, err
	}
	defer closeArchive()

	result, err := RunTemperaturePercentile(ctx, cfg, cat, region)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("%s from %d images written to %s (min %.2f, max %.2f)",
		result.Band, result.Images, result.TIFFPath, result.Summary.Min, result.Summary.Max)
	if err := notification.SendDiscordSuccessNotification(msg); err != nil {
		log.Warnf("failed to send success notification: %v", err)
	}
	return result, nil
}

func loadBoundary(cfg TemperatureConfig) (orb.Geometry, error) {
	features, err := plots.Load(cfg.BoundaryPath, plots.Options{
		UIDField:    cfg.FilterField,
		FilterField: cfg.FilterField,
		FilterValue: cfg.FilterValue,
	})
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no boundary features in %s match %s = %s", cfg.BoundaryPath, cfg.FilterField, cfg.FilterValue)
	}
	return plots.Region(features, cfg.Buffer)
}

// openArchive picks the catalog from the archive path: NetCDF files are read
// directly, anything else is a directory of GeoTIFF tiles.
func openArchive(cfg TemperatureConfig) (catalog.Catalog, func(), error) {
	switch strings.ToLower(filepath.Ext(cfg.Archive)) {
	case ".nc", ".nc4", ".netcdf":
		nc, err := catalog.OpenNetCDF(cfg.Archive, []string{cfg.Band})
		if err != nil {
			return nil, nil, err
		}
		return nc, nc.Close, nil
	}
	return catalog.NewDirCatalog(cfg.Archive, cfg.TilePrefix, []string{cfg.Band}), func() {}, nil
}

// RunTemperaturePercentile reduces the archive images of cfg.Band inside
// region to their per-pixel percentile, logs its range over the region and
// exports it as a GeoTIFF on a cfg.Scale grid.
func RunTemperaturePercentile(ctx context.Context, cfg TemperatureConfig, cat catalog.Catalog, region orb.Geometry) (*TemperatureResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger := log.With("run_id", runID, "job", "temp-percentile", "band", cfg.Band)

	entries, err := cat.Query(ctx, cfg.Start, cfg.End, region.Bound())
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no %s images between %s and %s", cfg.Band,
			cfg.Start.Format(raster.DateLayout), cfg.End.Format(raster.DateLayout))
	}
	logger.Infof("Reducing %d images", len(entries))

	images, err := loadRegionImages(ctx, cfg, cat, entries, region)
	if err != nil {
		return nil, err
	}
	percentile, err := climate.Percentile(ctx, images, cfg.Band, cfg.Percentile)
	if err != nil {
		return nil, err
	}
	band := climate.BandName(cfg.Band, cfg.Percentile)

	gridRegion, err := plots.Reproject(region, cfg.CRS)
	if err != nil {
		return nil, err
	}
	proj, release, err := newProjector(cfg.CRS, percentile.CRS)
	if err != nil {
		return nil, err
	}
	defer release()

	summary, err := climate.Summarize(percentile, band, gridRegion, cfg.Scale, cfg.CRS, proj)
	if err != nil {
		return nil, err
	}
	logger.Infow("Percentile range over region", "min", summary.Min, "max", summary.Max, "samples", summary.Count)

	exported, err := raster.Sample(percentile, band, gridRegion.Bound(), raster.Step(cfg.Scale, cfg.CRS), cfg.CRS, proj,
		func(pt orb.Point) bool { return plots.Contains(gridRegion, pt) })
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.OutputDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create result folder: %w", err)
	}
	result := &TemperatureResult{
		RunID:    runID,
		Images:   len(entries),
		Band:     band,
		Summary:  summary,
		TIFFPath: filepath.Join(cfg.OutputDir, cfg.Description+".tif"),
	}
	if err := writeGeoTIFF(result.TIFFPath, exported, band, DefaultTemperatureNoData); err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", result.TIFFPath, err)
	}
	logger.Infof("Percentile exported to %s (%dx%d)", result.TIFFPath, exported.Width, exported.Height)

	if cfg.Preview {
		palette, err := output.ParsePalette(cfg.Palette)
		if err != nil {
			return nil, err
		}
		result.PreviewPath = filepath.Join(cfg.OutputDir, cfg.Description+".png")
		if err := output.CreatePercentilePreview(percentile, band, cfg.VisMin, cfg.VisMax, palette, result.PreviewPath); err != nil {
			return nil, err
		}
		logger.Infof("Preview written to %s", result.PreviewPath)
	}
	return result, nil
}

// loadRegionImages loads every entry restricted to band, cropped to the
// region bound and clipped to the region.
func loadRegionImages(ctx context.Context, cfg TemperatureConfig, cat catalog.Catalog, entries []catalog.Entry, region orb.Geometry) (raster.Series, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu          sync.Mutex
		images      = make(raster.Series, len(entries))
		progressBar = progressbar.Default(int64(len(entries)), "Loading images")
		firstErr    error
		stopOnce    sync.Once
	)

	wp := workerpool.New(cfg.Workers)
	for i, entry := range entries {
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			img, err := loadClipped(ctx, cat, entry, cfg.Band, region)
			if err != nil {
				stopOnce.Do(func() {
					firstErr = fmt.Errorf("failed to load image %s: %w", entry.ID, err)
					cancel()
				})
				return
			}
			mu.Lock()
			images[i] = img
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
	return images.SortByDate(), nil
}

func loadClipped(ctx context.Context, cat catalog.Catalog, entry catalog.Entry, band string, region orb.Geometry) (*raster.Image, error) {
	img, err := cat.Load(ctx, entry)
	if err != nil {
		return nil, err
	}
	img, err = img.Select(band)
	if err != nil {
		return nil, err
	}
	local, err := plots.Reproject(region, img.CRS)
	if err != nil {
		return nil, err
	}
	img, err = img.Crop(local.Bound())
	if err != nil {
		return nil, err
	}
	return climate.Clip(img, local), nil
}
