// Package plots loads plot polygons from vector files and answers the
// geometric questions the pipeline asks of them.
package plots

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

const DefaultUIDField = "uid"

type Plot struct {
	UID        string
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

func (p Plot) Bound() orb.Bound {
	return p.Geometry.Bound()
}

// Contains reports whether pt lies inside the plot polygon. Points on holes
// are outside.
func (p Plot) Contains(pt orb.Point) bool {
	return Contains(p.Geometry, pt)
}

func Contains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	case orb.Collection:
		for _, child := range geom {
			if Contains(child, pt) {
				return true
			}
		}
	}
	return false
}

type Options struct {
	UIDField string
	// FilterField and FilterValue keep only features whose property matches.
	FilterField string
	FilterValue string
}

func (o Options) uidField() string {
	if o.UIDField == "" {
		return DefaultUIDField
	}
	return o.UIDField
}

// FromFeatureCollection converts polygon features into plots. Features
// without the uid property are an error; non-polygonal geometries are
// skipped.
func FromFeatureCollection(fc *geojson.FeatureCollection, opts Options) ([]Plot, error) {
	var plots []Plot
	for i, feature := range fc.Features {
		if opts.FilterField != "" && PropertyString(feature.Properties[opts.FilterField]) != opts.FilterValue {
			continue
		}
		switch feature.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}

		uid := PropertyString(feature.Properties[opts.uidField()])
		if uid == "" {
			return nil, fmt.Errorf("feature %d has no %s property", i, opts.uidField())
		}
		plots = append(plots, Plot{
			UID:        uid,
			Geometry:   feature.Geometry,
			Properties: feature.Properties,
		})
	}
	return plots, nil
}

// PropertyString renders a GeoJSON property value as text. Integral numbers
// lose their decimal part so numeric uids read naturally.
func PropertyString(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	default:
		return fmt.Sprint(value)
	}
}

// Bound returns the bound of every plot, or an empty bound when there are
// none.
func Bound(plots []Plot) orb.Bound {
	if len(plots) == 0 {
		return orb.Bound{}
	}
	bound := plots[0].Bound()
	for _, p := range plots[1:] {
		bound = bound.Union(p.Bound())
	}
	return bound
}

// BufferBound grows bound by meters, converted to CRS units.
func BufferBound(bound orb.Bound, meters float64, crs string) orb.Bound {
	return bound.Pad(raster.Step(meters, crs))
}

// UIDs lists plot uids in display order.
func UIDs(plots []Plot) []string {
	uids := make([]string, 0, len(plots))
	for _, p := range plots {
		uids = append(uids, p.UID)
	}
	SortUIDs(uids)
	return uids
}

// SortUIDs orders uids numerically when both are numbers, otherwise
// lexically, so "2" comes before "10".
func SortUIDs(uids []string) {
	sort.SliceStable(uids, func(i, j int) bool {
		return LessUID(uids[i], uids[j])
	})
}

func LessUID(a, b string) bool {
	na, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	nb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}
