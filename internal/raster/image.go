// Package raster holds the in-memory image model shared by the pipeline stages.
//
// An Image is a north-up (or rotated) grid of named float bands with a
// validity mask. Stages never mutate an image: masking and band math return
// derived images that share the read-only band storage of their source.
package raster

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/forest-guardian/vegetation-indices/internal/utils"
	"github.com/paulmach/orb"
)

const DateLayout = "2006-01-02"

type Image struct {
	ID           string
	Date         time.Time
	Width        int
	Height       int
	GeoTransform [6]float64
	CRS          string
	Properties   map[string]string

	bands map[string][]float64
	mask  []bool
}

// New returns an image with no bands and every pixel valid.
func New(id string, date time.Time, width, height int, geoTransform [6]float64, crs string) *Image {
	mask := make([]bool, width*height)
	for i := range mask {
		mask[i] = true
	}
	return &Image{
		ID:           id,
		Date:         date,
		Width:        width,
		Height:       height,
		GeoTransform: geoTransform,
		CRS:          crs,
		Properties:   map[string]string{},
		bands:        map[string][]float64{},
		mask:         mask,
	}
}

// SetBand attaches band values while the image is being built. Images handed
// to pipeline stages must be treated as read-only.
func (img *Image) SetBand(name string, values []float64) error {
	if len(values) != img.Width*img.Height {
		return fmt.Errorf("band %s has %d values, expected %d", name, len(values), img.Width*img.Height)
	}
	img.bands[name] = values
	return nil
}

func (img *Image) Band(name string) ([]float64, error) {
	values, ok := img.bands[name]
	if !ok {
		return nil, fmt.Errorf("image %s has no band %s (bands: %v)", img.ID, name, img.BandNames())
	}
	return values, nil
}

func (img *Image) BandNames() []string {
	names := make([]string, 0, len(img.bands))
	for name := range img.bands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (img *Image) Index(x, y int) int {
	return y*img.Width + x
}

func (img *Image) Valid(x, y int) bool {
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		return false
	}
	return img.mask[img.Index(x, y)]
}

func (img *Image) ValidAt(i int) bool {
	return img.mask[i]
}

func (img *Image) ValidCount() int {
	count := 0
	for _, ok := range img.mask {
		if ok {
			count++
		}
	}
	return count
}

// UpdateMask returns a derived image whose mask is the current mask AND keep.
// Pixels already invalid stay invalid.
func (img *Image) UpdateMask(keep func(i int) bool) *Image {
	derived := img.shallowCopy()
	derived.mask = make([]bool, len(img.mask))
	for i, ok := range img.mask {
		derived.mask[i] = ok && keep(i)
	}
	return derived
}

// Derive returns a single-band image named name carrying this image's
// georeference, date, properties and mask.
func (img *Image) Derive(name string, values []float64) (*Image, error) {
	derived := img.shallowCopy()
	derived.bands = map[string][]float64{}
	derived.mask = append([]bool(nil), img.mask...)
	if err := derived.SetBand(name, values); err != nil {
		return nil, err
	}
	return derived, nil
}

// Select returns a derived image restricted to the named band.
func (img *Image) Select(name string) (*Image, error) {
	values, err := img.Band(name)
	if err != nil {
		return nil, err
	}
	return img.Derive(name, values)
}

func (img *Image) shallowCopy() *Image {
	props := make(map[string]string, len(img.Properties))
	for k, v := range img.Properties {
		props[k] = v
	}
	bands := make(map[string][]float64, len(img.bands))
	for k, v := range img.bands {
		bands[k] = v
	}
	return &Image{
		ID:           img.ID,
		Date:         img.Date,
		Width:        img.Width,
		Height:       img.Height,
		GeoTransform: img.GeoTransform,
		CRS:          img.CRS,
		Properties:   props,
		bands:        bands,
		mask:         img.mask,
	}
}

func (img *Image) DateString() string {
	return img.Date.Format(DateLayout)
}

// PixelCenter returns the CRS coordinates of the centre of pixel (x, y).
func (img *Image) PixelCenter(x, y int) (float64, float64) {
	gt := img.GeoTransform
	px, py := float64(x)+0.5, float64(y)+0.5
	return gt[0] + gt[1]*px + gt[2]*py, gt[3] + gt[4]*px + gt[5]*py
}

// PixelAt returns the pixel containing the CRS coordinate (cx, cy).
func (img *Image) PixelAt(cx, cy float64) (int, int, bool) {
	gt := img.GeoTransform
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return 0, 0, false
	}
	dx, dy := cx-gt[0], cy-gt[3]
	col := (gt[5]*dx - gt[2]*dy) / det
	row := (gt[1]*dy - gt[4]*dx) / det
	x, y := int(math.Floor(col)), int(math.Floor(row))
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		return 0, 0, false
	}
	return x, y, true
}

// Bound is the extent of the image in its own CRS.
func (img *Image) Bound() orb.Bound {
	return BoundOf(img.GeoTransform, img.Width, img.Height)
}

// BoundOf is the extent of a width x height grid placed by gt.
func BoundOf(gt [6]float64, width, height int) orb.Bound {
	corners := [][2]float64{{0, 0}, {float64(width), 0}, {0, float64(height)}, {float64(width), float64(height)}}
	bound := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, c := range corners {
		x := gt[0] + gt[1]*c[0] + gt[2]*c[1]
		y := gt[3] + gt[4]*c[0] + gt[5]*c[1]
		bound = bound.Extend(orb.Point{x, y})
	}
	return bound
}

// Crop returns the pixel window of an axis-aligned image that covers bound.
// Bands and mask are copied so the source can be released.
func (img *Image) Crop(bound orb.Bound) (*Image, error) {
	gt := img.GeoTransform
	if gt[2] != 0 || gt[4] != 0 || gt[1] == 0 || gt[5] == 0 {
		return nil, fmt.Errorf("image %s is not axis aligned", img.ID)
	}
	xa, xb := (bound.Min[0]-gt[0])/gt[1], (bound.Max[0]-gt[0])/gt[1]
	ya, yb := (bound.Max[1]-gt[3])/gt[5], (bound.Min[1]-gt[3])/gt[5]
	x0 := max(int(math.Floor(math.Min(xa, xb))), 0)
	x1 := min(int(math.Ceil(math.Max(xa, xb))), img.Width)
	y0 := max(int(math.Floor(math.Min(ya, yb))), 0)
	y1 := min(int(math.Ceil(math.Max(ya, yb))), img.Height)
	if x1 <= x0 || y1 <= y0 {
		return nil, fmt.Errorf("image %s does not overlap %v", img.ID, bound)
	}

	width, height := x1-x0, y1-y0
	out := New(img.ID, img.Date, width, height,
		[6]float64{gt[0] + float64(x0)*gt[1], gt[1], 0, gt[3] + float64(y0)*gt[5], 0, gt[5]}, img.CRS)
	for k, v := range img.Properties {
		out.Properties[k] = v
	}
	for name, values := range img.bands {
		cropped := make([]float64, width*height)
		for y := 0; y < height; y++ {
			copy(cropped[y*width:(y+1)*width], values[img.Index(x0, y0+y):img.Index(x1, y0+y)])
		}
		out.bands[name] = cropped
	}
	for y := 0; y < height; y++ {
		copy(out.mask[y*width:(y+1)*width], img.mask[img.Index(x0, y0+y):img.Index(x1, y0+y)])
	}
	return out, nil
}

// SameGrid reports whether both images share size and georeference.
func (img *Image) SameGrid(other *Image) bool {
	return img.Width == other.Width && img.Height == other.Height && img.GeoTransform == other.GeoTransform
}

// Series is a time series of images.
type Series []*Image

func (s Series) SortByDate() Series {
	return utils.SortByDate(s, func(img *Image) time.Time { return img.Date }, true)
}
