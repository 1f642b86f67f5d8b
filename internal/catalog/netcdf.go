package catalog

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/paulmach/orb"
)

var (
	latitudeNames  = []string{"latitude", "lat", "y"}
	longitudeNames = []string{"longitude", "lon", "x"}
)

// NetCDFCatalog serves every time step of a (time, lat, lon) NetCDF file as
// one entry. Each requested variable becomes a band.
type NetCDFCatalog struct {
	path      string
	variables []string

	mu        sync.Mutex
	nc        api.Group
	times     []time.Time
	gt        [6]float64
	width     int
	height    int
	ascending bool
	getters   map[string]api.VarGetter
	transform map[string]packing
}

// packing holds the CF decoding attributes of a variable.
type packing struct {
	scale, offset float64
	fill          float64
	hasFill       bool
}

func (p packing) decode(v float64) float64 {
	if math.IsNaN(v) || (p.hasFill && v == p.fill) {
		return math.NaN()
	}
	return v*p.scale + p.offset
}

// OpenNetCDF opens path and indexes its time, latitude and longitude axes.
func OpenNetCDF(path string, variables []string) (*NetCDFCatalog, error) {
	if len(variables) == 0 {
		return nil, fmt.Errorf("no variables requested from %s", path)
	}
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	c := &NetCDFCatalog{
		path:      path,
		variables: variables,
		nc:        nc,
		getters:   map[string]api.VarGetter{},
		transform: map[string]packing{},
	}
	if err := c.index(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to index %s: %w", path, err)
	}
	return c, nil
}

func (c *NetCDFCatalog) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nc.Close()
}

func (c *NetCDFCatalog) index() error {
	timeVar, err := c.nc.GetVarGetter("time")
	if err != nil {
		return err
	}
	steps, err := valuesOf(timeVar)
	if err != nil {
		return fmt.Errorf("time: %w", err)
	}
	units, _ := attrString(timeVar.Attributes(), "units")
	c.times, err = DecodeTimes(steps, units)
	if err != nil {
		return err
	}

	lats, err := c.axis(latitudeNames)
	if err != nil {
		return err
	}
	lons, err := c.axis(longitudeNames)
	if err != nil {
		return err
	}
	c.gt, c.ascending, err = AxisGeoTransform(lons, lats)
	if err != nil {
		return err
	}
	c.width, c.height = len(lons), len(lats)

	for _, name := range c.variables {
		vg, err := c.nc.GetVarGetter(name)
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
		if shape := vg.Shape(); len(shape) != 3 || shape[1] != int64(c.height) || shape[2] != int64(c.width) {
			return fmt.Errorf("variable %s has shape %v, expected (time, %d, %d)", name, shape, c.height, c.width)
		}
		c.getters[name] = vg
		c.transform[name] = packingOf(vg.Attributes())
	}
	return nil
}

func (c *NetCDFCatalog) axis(names []string) ([]float64, error) {
	for _, name := range names {
		vg, err := c.nc.GetVarGetter(name)
		if err != nil {
			continue
		}
		return valuesOf(vg)
	}
	return nil, fmt.Errorf("none of the coordinate variables %v found", names)
}

func (c *NetCDFCatalog) Bound() orb.Bound {
	return raster.BoundOf(c.gt, c.width, c.height)
}

func (c *NetCDFCatalog) Query(ctx context.Context, start, end time.Time, bound orb.Bound) ([]Entry, error) {
	footprint := c.Bound()
	if !matchesBound(footprint, bound) {
		return nil, nil
	}
	stem := strings.TrimSuffix(filepath.Base(c.path), filepath.Ext(c.path))
	var entries []Entry
	for i, date := range c.times {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !InRange(date, start, end) {
			continue
		}
		entries = append(entries, Entry{
			ID:    fmt.Sprintf("%s_%s", stem, date.Format(raster.DateLayout)),
			Path:  c.path,
			Date:  date,
			Bound: footprint,
			Index: i,
		})
	}
	return sortEntries(entries), nil
}

func (c *NetCDFCatalog) Load(ctx context.Context, entry Entry) (*raster.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entry.Index < 0 || entry.Index >= len(c.times) {
		return nil, fmt.Errorf("time step %d out of range for %s", entry.Index, c.path)
	}

	img := raster.New(entry.ID, entry.Date, c.width, c.height, c.gt, "EPSG:4326")
	img.Properties["path"] = c.path
	img.Properties["date"] = entry.Date.Format(raster.DateLayout)
	missing := make([]bool, c.width*c.height)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range c.variables {
		slice, err := c.getters[name].GetSlice(int64(entry.Index), int64(entry.Index)+1)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s at step %d: %w", name, entry.Index, err)
		}
		values, err := gridOf(slice, c.width, c.height)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		p := c.transform[name]
		for i, v := range values {
			values[i] = p.decode(v)
		}
		if c.ascending {
			flipRows(values, c.width, c.height)
		}
		for i, v := range values {
			if math.IsNaN(v) {
				missing[i] = true
			}
		}
		if err := img.SetBand(name, values); err != nil {
			return nil, err
		}
	}
	return img.UpdateMask(func(i int) bool { return !missing[i] }), nil
}

// AxisGeoTransform derives a north-up geotransform from cell-centre
// coordinate axes. flip reports whether latitudes ascend, in which case rows
// must be reversed to be north-up.
func AxisGeoTransform(lons, lats []float64) ([6]float64, bool, error) {
	if len(lons) < 2 || len(lats) < 2 {
		return [6]float64{}, false, fmt.Errorf("coordinate axes need at least two values, got %d x %d", len(lons), len(lats))
	}
	dx := (lons[len(lons)-1] - lons[0]) / float64(len(lons)-1)
	dy := (lats[len(lats)-1] - lats[0]) / float64(len(lats)-1)
	if dx == 0 || dy == 0 {
		return [6]float64{}, false, fmt.Errorf("degenerate coordinate axes")
	}
	flip := dy > 0
	dy = math.Abs(dy)
	north := math.Max(lats[0], lats[len(lats)-1])
	return [6]float64{lons[0] - dx/2, dx, 0, north + dy/2, 0, -dy}, flip, nil
}

func flipRows(values []float64, width, height int) {
	for top, bottom := 0, height-1; top < bottom; top, bottom = top+1, bottom-1 {
		for x := 0; x < width; x++ {
			values[top*width+x], values[bottom*width+x] = values[bottom*width+x], values[top*width+x]
		}
	}
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DecodeTimes converts CF time offsets ("<unit> since <reference>") to UTC
// instants.
func DecodeTimes(steps []float64, units string) ([]time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("unsupported time units %q", units)
	}
	var unit time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "days", "day", "d":
		unit = 24 * time.Hour
	case "hours", "hour", "h":
		unit = time.Hour
	case "minutes", "minute":
		unit = time.Minute
	case "seconds", "second", "s":
		unit = time.Second
	default:
		return nil, fmt.Errorf("unsupported time unit %q", parts[0])
	}

	refText := strings.TrimSuffix(strings.TrimSpace(parts[1]), " UTC")
	var ref time.Time
	var err error
	for _, layout := range timeLayouts {
		if ref, err = time.Parse(layout, refText); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("unsupported time reference %q", parts[1])
	}

	times := make([]time.Time, len(steps))
	for i, step := range steps {
		times[i] = ref.Add(time.Duration(step * float64(unit))).UTC()
	}
	return times, nil
}

func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if attrs == nil {
		return p
	}
	if v, ok := attrFloat(attrs, "scale_factor"); ok {
		p.scale = v
	}
	if v, ok := attrFloat(attrs, "add_offset"); ok {
		p.offset = v
	}
	if v, ok := attrFloat(attrs, "_FillValue"); ok {
		p.fill, p.hasFill = v, true
	} else if v, ok := attrFloat(attrs, "missing_value"); ok {
		p.fill, p.hasFill = v, true
	}
	return p
}

func attrString(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	values, err := toFloat64s(v)
	if err != nil || len(values) == 0 {
		return 0, false
	}
	return values[0], true
}

func valuesOf(vg api.VarGetter) ([]float64, error) {
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	return toFloat64s(v)
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func convert[T number](values []T) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// toFloat64s accepts a numeric scalar or one-dimensional slice.
func toFloat64s(v interface{}) ([]float64, error) {
	switch values := v.(type) {
	case []float64:
		return values, nil
	case []float32:
		return convert(values), nil
	case []int8:
		return convert(values), nil
	case []int16:
		return convert(values), nil
	case []int32:
		return convert(values), nil
	case []int64:
		return convert(values), nil
	case []uint8:
		return convert(values), nil
	case []uint16:
		return convert(values), nil
	case []uint32:
		return convert(values), nil
	case []uint64:
		return convert(values), nil
	case float64:
		return []float64{values}, nil
	case float32:
		return []float64{float64(values)}, nil
	case int8:
		return []float64{float64(values)}, nil
	case int16:
		return []float64{float64(values)}, nil
	case int32:
		return []float64{float64(values)}, nil
	case int64:
		return []float64{float64(values)}, nil
	case uint8:
		return []float64{float64(values)}, nil
	case uint16:
		return []float64{float64(values)}, nil
	case uint32:
		return []float64{float64(values)}, nil
	case uint64:
		return []float64{float64(values)}, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func flatten[T number](slab [][][]T, width, height int) ([]float64, error) {
	if len(slab) != 1 || len(slab[0]) != height {
		return nil, fmt.Errorf("unexpected slab shape")
	}
	out := make([]float64, 0, width*height)
	for _, row := range slab[0] {
		if len(row) != width {
			return nil, fmt.Errorf("row has %d values, expected %d", len(row), width)
		}
		out = append(out, convert(row)...)
	}
	return out, nil
}

// gridOf flattens a single (1, lat, lon) slab into row-major values.
func gridOf(v interface{}, width, height int) ([]float64, error) {
	switch slab := v.(type) {
	case [][][]float64:
		return flatten(slab, width, height)
	case [][][]float32:
		return flatten(slab, width, height)
	case [][][]int8:
		return flatten(slab, width, height)
	case [][][]int16:
		return flatten(slab, width, height)
	case [][][]int32:
		return flatten(slab, width, height)
	case [][][]int64:
		return flatten(slab, width, height)
	case [][][]uint8:
		return flatten(slab, width, height)
	case [][][]uint16:
		return flatten(slab, width, height)
	case [][][]uint32:
		return flatten(slab, width, height)
	case [][][]uint64:
		return flatten(slab, width, height)
	}
	return nil, fmt.Errorf("unsupported slab type %T", v)
}
