package raster

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// MetersPerDegree converts metre distances to degrees on geographic CRSs.
const MetersPerDegree = 111_000.0

// Projector converts coordinates in place from one CRS to another.
type Projector interface {
	Project(xs, ys []float64) error
}

var geographicCRS = map[string]bool{
	"EPSG:4326": true,
	"EPSG:4258": true,
	"EPSG:4269": true,
	"OGC:CRS84": true,
	"CRS:84":    true,
	"WGS84":     true,
}

// IsGeographic reports whether crs is one of the well-known lon/lat systems.
func IsGeographic(crs string) bool {
	return geographicCRS[strings.ToUpper(strings.TrimSpace(crs))]
}

// Step converts a resolution in metres into CRS units.
func Step(resolution float64, crs string) float64 {
	if IsGeographic(crs) {
		return resolution / MetersPerDegree
	}
	return resolution
}

// Grid is a lattice of square cells of size Step aligned to the CRS origin.
type Grid struct {
	Step float64
}

// Centers returns the centres of every cell whose centre lies in bound.
func (g Grid) Centers(bound orb.Bound) []orb.Point {
	if g.Step <= 0 {
		return nil
	}
	x0 := math.Floor(bound.Min[0]/g.Step)*g.Step + g.Step/2
	y0 := math.Floor(bound.Min[1]/g.Step)*g.Step + g.Step/2
	var centers []orb.Point
	for j := 0; ; j++ {
		cy := y0 + float64(j)*g.Step
		if cy > bound.Max[1] {
			break
		}
		if cy < bound.Min[1] {
			continue
		}
		for i := 0; ; i++ {
			cx := x0 + float64(i)*g.Step
			if cx > bound.Max[0] {
				break
			}
			if cx < bound.Min[0] {
				continue
			}
			centers = append(centers, orb.Point{cx, cy})
		}
	}
	return centers
}

// Dims returns the column and row count of the grid covering bound.
func (g Grid) Dims(bound orb.Bound) (int, int) {
	cols := int(math.Ceil((bound.Max[0] - bound.Min[0]) / g.Step))
	rows := int(math.Ceil((bound.Max[1] - bound.Min[1]) / g.Step))
	return max(cols, 1), max(rows, 1)
}

// Sample resamples the band of img onto a north-up grid of cell size step
// covering bound, using the pixel containing each cell centre. Cells outside
// the image, on invalid pixels or rejected by inside stay invalid. proj maps
// grid coordinates into the image CRS and may be nil when they share a CRS.
func Sample(img *Image, band string, bound orb.Bound, step float64, crs string, proj Projector, inside func(orb.Point) bool) (*Image, error) {
	values, err := img.Band(band)
	if err != nil {
		return nil, err
	}
	cols, rows := Grid{Step: step}.Dims(bound)
	gt := [6]float64{bound.Min[0], step, 0, bound.Max[1], 0, -step}
	out := New(img.ID, img.Date, cols, rows, gt, crs)
	for k, v := range img.Properties {
		out.Properties[k] = v
	}

	xs := make([]float64, cols*rows)
	ys := make([]float64, cols*rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			xs[out.Index(x, y)], ys[out.Index(x, y)] = out.PixelCenter(x, y)
		}
	}
	keep := make([]bool, cols*rows)
	for i := range keep {
		keep[i] = inside == nil || inside(orb.Point{xs[i], ys[i]})
	}
	if proj != nil {
		if err := proj.Project(xs, ys); err != nil {
			return nil, err
		}
	}

	sampled := make([]float64, cols*rows)
	for i := range sampled {
		sampled[i] = math.NaN()
		if !keep[i] {
			continue
		}
		px, py, ok := img.PixelAt(xs[i], ys[i])
		if !ok || !img.Valid(px, py) {
			keep[i] = false
			continue
		}
		sampled[i] = values[img.Index(px, py)]
	}
	if err := out.SetBand(band, sampled); err != nil {
		return nil, err
	}
	return out.UpdateMask(func(i int) bool { return keep[i] }), nil
}
