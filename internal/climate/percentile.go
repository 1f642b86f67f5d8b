// Package climate reduces a temperature time series to per-pixel
// percentiles and summarizes the result over a region.
package climate

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"

	"github.com/forest-guardian/vegetation-indices/internal/plots"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// BandName names the percentile band, e.g. maximum_temperature_p95.
func BandName(band string, p float64) string {
	return band + "_p" + strconv.FormatFloat(p, 'f', -1, 64)
}

// Percentile computes, for every pixel, the p-th percentile (0-100) of the
// valid values of band across images, using the empirical (nearest-rank)
// definition. Pixels without any valid value stay invalid. All images must
// share one grid.
func Percentile(ctx context.Context, images []*raster.Image, band string, p float64) (*raster.Image, error) {
	if p < 0 || p > 100 {
		return nil, fmt.Errorf("percentile %v out of range [0, 100]", p)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no images to reduce")
	}
	first := images[0]
	series := make([][]float64, len(images))
	for i, img := range images {
		if !img.SameGrid(first) {
			return nil, fmt.Errorf("image %s is not on the grid of image %s", img.ID, first.ID)
		}
		values, err := img.Band(band)
		if err != nil {
			return nil, err
		}
		series[i] = values
	}

	width, height := first.Width, first.Height
	out := make([]float64, width*height)
	valid := make([]bool, width*height)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for y := 0; y < height; y++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			column := make([]float64, 0, len(images))
			for x := 0; x < width; x++ {
				i := y*width + x
				column = column[:0]
				for k, img := range images {
					if v := series[k][i]; img.ValidAt(i) && !math.IsNaN(v) {
						column = append(column, v)
					}
				}
				if len(column) == 0 {
					out[i] = math.NaN()
					continue
				}
				sort.Float64s(column)
				out[i] = stat.Quantile(p/100, stat.Empirical, column, nil)
				valid[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := raster.New(BandName(band, p), first.Date, width, height, first.GeoTransform, first.CRS)
	if err := result.SetBand(BandName(band, p), out); err != nil {
		return nil, err
	}
	return result.UpdateMask(func(i int) bool { return valid[i] }), nil
}

// Clip masks every pixel whose centre lies outside region. The image must be
// in the region's CRS.
func Clip(img *raster.Image, region orb.Geometry) *raster.Image {
	bound := region.Bound()
	return img.UpdateMask(func(i int) bool {
		cx, cy := img.PixelCenter(i%img.Width, i/img.Width)
		pt := orb.Point{cx, cy}
		return bound.Contains(pt) && plots.Contains(region, pt)
	})
}

type Summary struct {
	Min   float64
	Max   float64
	Count int
}

// Summarize samples band over region on a grid of scale metres and returns
// the extremes of the valid samples. Count is zero and the extremes NaN
// when nothing valid was sampled.
func Summarize(img *raster.Image, band string, region orb.Geometry, scale float64, crs string, proj raster.Projector) (Summary, error) {
	sampled, err := raster.Sample(img, band, region.Bound(), raster.Step(scale, crs), crs, proj, func(pt orb.Point) bool {
		return plots.Contains(region, pt)
	})
	if err != nil {
		return Summary{}, err
	}
	values, err := sampled.Band(band)
	if err != nil {
		return Summary{}, err
	}
	var kept []float64
	for i, v := range values {
		if sampled.ValidAt(i) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return Summary{Min: math.NaN(), Max: math.NaN()}, nil
	}
	return Summary{Min: floats.Min(kept), Max: floats.Max(kept), Count: len(kept)}, nil
}
