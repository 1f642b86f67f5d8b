package geotiff

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/forest-guardian/vegetation-indices/internal/utils"
	"github.com/paulmach/orb"
)

// Projector wraps a GDAL coordinate transform.
type Projector struct {
	src, dst *godal.SpatialRef
	tr       *godal.Transform
}

// NewProjector returns a raster.Projector from one CRS to another, or nil
// when both name the same system. Call Close on the returned projector when
// it is non-nil.
func NewProjector(from, to string) (*Projector, error) {
	if strings.EqualFold(strings.TrimSpace(from), strings.TrimSpace(to)) {
		return nil, nil
	}
	Register()
	src, err := godal.NewSpatialRef(from)
	if err != nil {
		return nil, fmt.Errorf("invalid source CRS %q: %w", from, err)
	}
	dst, err := godal.NewSpatialRef(to)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("invalid target CRS %q: %w", to, err)
	}
	if src.IsSame(dst) {
		src.Close()
		dst.Close()
		return nil, nil
	}
	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		src.Close()
		dst.Close()
		return nil, fmt.Errorf("failed to create transform %s -> %s: %w", from, to, err)
	}
	return &Projector{src: src, dst: dst, tr: tr}, nil
}

func (p *Projector) Project(xs, ys []float64) error {
	var err error
	utils.ExecuteWithMutex(func() {
		err = p.tr.TransformEx(xs, ys, nil, nil)
	})
	if err != nil {
		return fmt.Errorf("transform error: %w", err)
	}
	return nil
}

func (p *Projector) Close() {
	p.tr.Close()
	p.src.Close()
	p.dst.Close()
}

// AsRaster converts a possibly-nil *Projector into a raster.Projector so a
// nil pointer never hides inside a non-nil interface.
func (p *Projector) AsRaster() raster.Projector {
	if p == nil {
		return nil
	}
	return p
}

// Footprint returns the extent of the GeoTIFF at path in the crs system.
func Footprint(path, crs string) (orb.Bound, error) {
	Register()
	var (
		geoTransform [6]float64
		width        int
		height       int
		srcCRS       string
		err          error
	)
	utils.ExecuteWithMutex(func() {
		var ds *godal.Dataset
		ds, err = godal.Open(path, godal.ErrLogger(errLogger()))
		if err != nil {
			return
		}
		defer ds.Close()
		width, height = ds.Structure().SizeX, ds.Structure().SizeY
		geoTransform, err = ds.GeoTransform()
		srcCRS = crsName(ds.SpatialRef())
	})
	if err != nil {
		return orb.Bound{}, fmt.Errorf("failed to read footprint of %s: %w", path, err)
	}

	bound := raster.BoundOf(geoTransform, width, height)
	proj, err := NewProjector(srcCRS, crs)
	if err != nil {
		return orb.Bound{}, err
	}
	if proj == nil {
		return bound, nil
	}
	defer proj.Close()

	xs := []float64{bound.Min[0], bound.Max[0], bound.Min[0], bound.Max[0]}
	ys := []float64{bound.Min[1], bound.Min[1], bound.Max[1], bound.Max[1]}
	if err := proj.Project(xs, ys); err != nil {
		return orb.Bound{}, err
	}
	projected := orb.MultiPoint{{xs[0], ys[0]}, {xs[1], ys[1]}, {xs[2], ys[2]}, {xs[3], ys[3]}}
	return projected.Bound(), nil
}
