// Package zonal reduces an index image to one mean per plot.
package zonal

import (
	"fmt"
	"math"
	"time"

	"github.com/forest-guardian/vegetation-indices/internal/plots"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultScale = 10.0
	DefaultCRS   = "EPSG:4326"
)

// Record is the mean of one plot on one date. Mean is nil when the plot had
// no valid pixel.
type Record struct {
	UID   string   `json:"uid" csv:"uid"`
	Date  string   `json:"date" csv:"date"`
	Mean  *float64 `json:"mean" csv:"mean"`
	Count int      `json:"count" csv:"count"`
	Sum   float64  `json:"sum" csv:"-"`
}

func (r Record) Time() time.Time {
	t, _ := time.Parse(raster.DateLayout, r.Date)
	return t
}

type Options struct {
	// Scale is the reduction cell size in metres.
	Scale float64
	// CRS of the reduction grid. Plot coordinates must already be in it.
	CRS string
	// Projector maps CRS coordinates into the image CRS. Nil when they match.
	Projector raster.Projector
}

func (o Options) withDefaults() Options {
	if o.Scale <= 0 {
		o.Scale = DefaultScale
	}
	if o.CRS == "" {
		o.CRS = DefaultCRS
	}
	return o
}

// Aggregate computes one record per uid for band of img. Every plot is
// sampled on a grid of Scale cells aligned to the CRS origin; a cell counts
// for a plot when its centre lies inside the polygon and takes the value of
// the image pixel under that centre. Plots sharing a uid form one zone in
// which every cell counts once. All cell centres are projected in a single
// batch.
func Aggregate(img *raster.Image, band string, ps []plots.Plot, opts Options) ([]Record, error) {
	opts = opts.withDefaults()
	values, err := img.Band(band)
	if err != nil {
		return nil, err
	}

	grid := raster.Grid{Step: raster.Step(opts.Scale, opts.CRS)}
	var (
		xs, ys  []float64
		owner   []int
		uids    []string
		slots   = map[string]int{}
		claimed []map[[2]int64]bool
	)
	for _, p := range ps {
		slot, ok := slots[p.UID]
		if !ok {
			slot = len(uids)
			slots[p.UID] = slot
			uids = append(uids, p.UID)
			claimed = append(claimed, map[[2]int64]bool{})
		}
		for _, c := range grid.Centers(p.Bound()) {
			if !p.Contains(c) {
				continue
			}
			cell := [2]int64{int64(math.Floor(c[0] / grid.Step)), int64(math.Floor(c[1] / grid.Step))}
			if claimed[slot][cell] {
				continue
			}
			claimed[slot][cell] = true
			xs = append(xs, c[0])
			ys = append(ys, c[1])
			owner = append(owner, slot)
		}
	}
	if opts.Projector != nil && len(xs) > 0 {
		if err := opts.Projector.Project(xs, ys); err != nil {
			return nil, fmt.Errorf("failed to project cell centres for image %s: %w", img.ID, err)
		}
	}

	samples := make([][]float64, len(uids))
	for k := range xs {
		x, y, ok := img.PixelAt(xs[k], ys[k])
		if !ok || !img.Valid(x, y) {
			continue
		}
		v := values[img.Index(x, y)]
		if math.IsNaN(v) {
			continue
		}
		samples[owner[k]] = append(samples[owner[k]], v)
	}

	records := make([]Record, len(uids))
	for i, uid := range uids {
		records[i] = Record{UID: uid, Date: img.DateString(), Count: len(samples[i])}
		if len(samples[i]) > 0 {
			mean := stat.Mean(samples[i], nil)
			records[i].Mean = &mean
			records[i].Sum = floats.Sum(samples[i])
		}
	}
	return records, nil
}

// Merge combines records sharing uid and date, weighting each by its pixel
// count, so overlapping tiles of one day yield a single record.
func Merge(records []Record) []Record {
	type key struct{ uid, date string }
	index := map[key]int{}
	var merged []Record
	for _, r := range records {
		k := key{r.UID, r.Date}
		i, ok := index[k]
		if !ok {
			index[k] = len(merged)
			merged = append(merged, r)
			continue
		}
		merged[i].Sum += r.Sum
		merged[i].Count += r.Count
		if merged[i].Count > 0 {
			mean := merged[i].Sum / float64(merged[i].Count)
			merged[i].Mean = &mean
		}
	}
	return merged
}
