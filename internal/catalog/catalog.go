// Package catalog queries raster archives by date range and footprint and
// materializes their entries as raster images.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest-guardian/vegetation-indices/internal/geotiff"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/forest-guardian/vegetation-indices/internal/utils"
	"github.com/paulmach/orb"
)

// DefaultBandOrder names GeoTIFF bands that carry no description.
var DefaultBandOrder = []string{"B2", "B4", "B8", "QA60"}

// Entry is one acquisition of an archive. Index addresses the time step
// inside multi-temporal files.
type Entry struct {
	ID    string
	Path  string
	Date  time.Time
	Bound orb.Bound
	Index int
}

type Catalog interface {
	// Query returns the entries dated in [start, end) whose footprint
	// intersects bound, ordered by date. An empty bound disables the
	// spatial filter.
	Query(ctx context.Context, start, end time.Time, bound orb.Bound) ([]Entry, error)
	Load(ctx context.Context, entry Entry) (*raster.Image, error)
}

// InRange reports whether date lies in [start, end).
func InRange(date, start, end time.Time) bool {
	return !date.Before(start) && date.Before(end)
}

func matchesBound(footprint, bound orb.Bound) bool {
	if bound == (orb.Bound{}) {
		return true
	}
	return footprint.Intersects(bound)
}

func sortEntries(entries []Entry) []Entry {
	return utils.SortByDate(entries, func(e Entry) time.Time { return e.Date }, true)
}

// TileName builds the archive file name of a daily tile.
func TileName(prefix string, date time.Time) string {
	return fmt.Sprintf("%s_%s.tif", prefix, date.Format(raster.DateLayout))
}

// ParseTileName splits "<prefix>_<yyyy-mm-dd>.tif" into its parts.
func ParseTileName(name string) (string, time.Time, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".tif" && ext != ".tiff" {
		return "", time.Time{}, false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndex(stem, "_")
	if i < 0 {
		return "", time.Time{}, false
	}
	date, err := time.Parse(raster.DateLayout, stem[i+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return stem[:i], date, true
}

// DirCatalog is a directory of daily GeoTIFF tiles.
type DirCatalog struct {
	Dir string
	// Prefix limits the catalog to tiles named "<Prefix>_<date>.tif".
	Prefix    string
	BandOrder []string
	// CRS of the bounds handed to Query.
	CRS string

	footprint func(path, crs string) (orb.Bound, error)
	read      func(path string, bandOrder []string) (*raster.Image, error)
}

func NewDirCatalog(dir, prefix string, bandOrder []string) *DirCatalog {
	if len(bandOrder) == 0 {
		bandOrder = DefaultBandOrder
	}
	return &DirCatalog{
		Dir:       dir,
		Prefix:    prefix,
		BandOrder: bandOrder,
		CRS:       "EPSG:4326",
		footprint: geotiff.Footprint,
		read:      geotiff.Read,
	}
}

func (c *DirCatalog) Query(ctx context.Context, start, end time.Time, bound orb.Bound) ([]Entry, error) {
	files, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read image folder %s: %w", c.Dir, err)
	}

	var entries []Entry
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if file.IsDir() {
			continue
		}
		prefix, date, ok := ParseTileName(file.Name())
		if !ok || (c.Prefix != "" && prefix != c.Prefix) || !InRange(date, start, end) {
			continue
		}

		path := filepath.Join(c.Dir, file.Name())
		footprint, err := c.footprint(path, c.CRS)
		if err != nil {
			return nil, err
		}
		if !matchesBound(footprint, bound) {
			continue
		}
		entries = append(entries, Entry{
			ID:    strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())),
			Path:  path,
			Date:  date,
			Bound: footprint,
		})
	}
	return sortEntries(entries), nil
}

func (c *DirCatalog) Load(ctx context.Context, entry Entry) (*raster.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := c.read(entry.Path, c.BandOrder)
	if err != nil {
		return nil, err
	}
	img.ID = entry.ID
	img.Date = entry.Date
	img.Properties["date"] = entry.Date.Format(raster.DateLayout)
	return img, nil
}
