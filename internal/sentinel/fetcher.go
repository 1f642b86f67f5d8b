package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/forest-guardian/vegetation-indices/internal/cache"
	"github.com/forest-guardian/vegetation-indices/internal/catalog"
	"github.com/forest-guardian/vegetation-indices/internal/geotiff"
	"github.com/forest-guardian/vegetation-indices/internal/log"
	"github.com/forest-guardian/vegetation-indices/internal/properties"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
)

const invalidImagesFile = "invalid_images.json"

// Fetcher stages daily Sentinel-2 tiles into a folder per requested area
// under Dir so a catalog.DirCatalog can serve them. Days without a usable
// acquisition are remembered in the area's invalid_images.json and never
// requested again for that area.
type Fetcher struct {
	Dir         string
	Prefix      string
	ProcessURL  string
	Credentials Credentials
	// Resolution of the requested tiles in metres.
	Resolution float64
	Retries    int
	Backoff    time.Duration

	// hasClearPixels reports whether a staged tile holds any usable pixel.
	hasClearPixels func(path string) (bool, error)
}

// NewFetcher configures a fetcher from the environment.
func NewFetcher(dir, prefix string) *Fetcher {
	return &Fetcher{
		Dir:        dir,
		Prefix:     prefix,
		ProcessURL: properties.CopernicusProcessURL(),
		Credentials: Credentials{
			ClientIDs:     properties.CopernicusClientIDs(),
			ClientSecrets: properties.CopernicusClientSecrets(),
			TokenURL:      properties.CopernicusTokenURL(),
		},
		Resolution:     10,
		Retries:        10,
		Backoff:        5 * time.Second,
		hasClearPixels: tileHasClearPixels,
	}
}

func tileHasClearPixels(path string) (bool, error) {
	img, err := geotiff.Read(path, catalog.DefaultBandOrder)
	if err != nil {
		return false, err
	}
	clearSky, err := MaskClouds(img, DefaultBands.QA)
	if err != nil {
		return false, err
	}
	return clearSky.ValidCount() > 0, nil
}

// AreaDir is the folder holding the tiles staged for bound.
func (f *Fetcher) AreaDir(bound orb.Bound) string {
	key := cache.Key(fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]))
	return filepath.Join(f.Dir, "area_"+key[:12])
}

// Fetch downloads every missing day in [start, end) over bound into
// AreaDir(bound) and returns the number of newly staged tiles.
func (f *Fetcher) Fetch(ctx context.Context, start, end time.Time, bound orb.Bound) (int, error) {
	dir := f.AreaDir(bound)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return 0, fmt.Errorf("failed to create images directory %s: %w", dir, err)
	}
	invalidPath := filepath.Join(dir, invalidImagesFile)
	invalid, err := loadInvalidImages(invalidPath)
	if err != nil {
		return 0, err
	}

	days := int(end.Sub(start).Hours() / 24)
	bar := progressbar.Default(int64(max(days, 0)), "Fetching images")
	defer bar.Finish()

	staged := 0
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		bar.Add(1)
		if err := ctx.Err(); err != nil {
			return staged, err
		}
		name := catalog.TileName(f.Prefix, day)
		if invalid[name] {
			continue
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}

		content, err := f.requestImage(ctx, day, bound)
		if err != nil {
			return staged, fmt.Errorf("error requesting image for %s: %w", day.Format(raster.DateLayout), err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return staged, fmt.Errorf("failed to write image file: %w", err)
		}

		ok, err := f.hasClearPixels(path)
		if err != nil {
			return staged, err
		}
		if !ok {
			log.Debugf("No clear pixels on %s, skipping it from now on", day.Format(raster.DateLayout))
			invalid[name] = true
			if err := saveInvalidImages(invalidPath, invalid); err != nil {
				return staged, err
			}
			if err := os.Remove(path); err != nil {
				log.Warnf("failed to delete image file %s: %v", path, err)
			}
			continue
		}
		staged++
	}
	return staged, nil
}

func loadInvalidImages(path string) (map[string]bool, error) {
	invalid := map[string]bool{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return invalid, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	for _, name := range names {
		invalid[name] = true
	}
	return invalid, nil
}

func saveInvalidImages(path string, invalid map[string]bool) error {
	names := make([]string, 0, len(invalid))
	for name := range invalid {
		names = append(names, name)
	}
	sort.Strings(names)
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
