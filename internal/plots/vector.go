package plots

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/vegetation-indices/internal/geotiff"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/forest-guardian/vegetation-indices/internal/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CRS is the coordinate system plots are held in after loading.
const CRS = "EPSG:4326"

// Load reads every polygon feature of the first layer of an OGR-readable
// vector file (GeoJSON, Shapefile, GeoPackage) and reprojects it to CRS.
func Load(path string, opts Options) ([]Plot, error) {
	geotiff.Register()
	var fc *geojson.FeatureCollection
	var err error
	utils.ExecuteWithMutex(func() {
		fc, err = readFeatures(path)
	})
	if err != nil {
		return nil, err
	}

	plots, err := FromFeatureCollection(fc, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load plots from %s: %w", path, err)
	}
	return plots, nil
}

func readFeatures(path string) (*geojson.FeatureCollection, error) {
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to open vector file %s: %w", path, err)
	}
	defer ds.Close()

	layers := ds.Layers()
	if len(layers) == 0 {
		return nil, fmt.Errorf("vector file %s has no layers", path)
	}
	layer := layers[0]

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("failed to create EPSG:4326 reference: %w", err)
	}
	defer wgs84.Close()

	reproject := false
	if sr := layer.SpatialRef(); sr != nil {
		reproject = !sr.IsSame(wgs84)
		sr.Close()
	}

	fc := geojson.NewFeatureCollection()
	for {
		feat := layer.NextFeature()
		if feat == nil {
			break
		}
		feature, err := toFeature(feat, wgs84, reproject)
		feat.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read feature of %s: %w", path, err)
		}
		if feature != nil {
			fc.Append(feature)
		}
	}
	return fc, nil
}

func toFeature(feat *godal.Feature, wgs84 *godal.SpatialRef, reproject bool) (*geojson.Feature, error) {
	geom := feat.Geometry()
	if geom == nil || geom.Empty() {
		return nil, nil
	}
	defer geom.Close()

	if reproject {
		if err := geom.Reproject(wgs84); err != nil {
			return nil, fmt.Errorf("failed to reproject geometry: %w", err)
		}
	}
	geometry, err := fromGodal(geom)
	if err != nil {
		return nil, err
	}

	feature := geojson.NewFeature(geometry)
	for name, field := range feat.Fields() {
		switch field.Type() {
		case godal.FTInt, godal.FTInt64:
			feature.Properties[name] = field.Int()
		case godal.FTReal:
			feature.Properties[name] = field.Float()
		default:
			feature.Properties[name] = field.String()
		}
	}
	return feature, nil
}

func fromGodal(geom *godal.Geometry) (orb.Geometry, error) {
	data, err := geom.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export geometry to GeoJSON: %w", err)
	}
	g, err := geojson.UnmarshalGeometry([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON geometry: %w", err)
	}
	return g.Geometry(), nil
}

func toGodal(g orb.Geometry) (*godal.Geometry, error) {
	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geometry: %w", err)
	}
	geom, err := godal.NewGeometryFromGeoJSON(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build geometry from GeoJSON: %w", err)
	}
	return geom, nil
}

// Region unions every plot geometry and buffers the result by meters. On
// geographic CRSs meters are converted to degrees.
func Region(plots []Plot, meters float64) (orb.Geometry, error) {
	if len(plots) == 0 {
		return nil, fmt.Errorf("no plots to build a region from")
	}
	geotiff.Register()
	var region orb.Geometry
	var err error
	utils.ExecuteWithMutex(func() {
		region, err = unionBuffer(plots, raster.Step(meters, CRS))
	})
	return region, err
}

func unionBuffer(plots []Plot, distance float64) (orb.Geometry, error) {
	union, err := toGodal(plots[0].Geometry)
	if err != nil {
		return nil, err
	}
	defer func() { union.Close() }()

	for _, p := range plots[1:] {
		geom, err := toGodal(p.Geometry)
		if err != nil {
			return nil, err
		}
		merged, err := union.Union(geom)
		geom.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to union plot %s: %w", p.UID, err)
		}
		union.Close()
		union = merged
	}

	if distance <= 0 {
		return fromGodal(union)
	}
	buffered, err := union.Buffer(distance, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer region: %w", err)
	}
	defer buffered.Close()
	return fromGodal(buffered)
}

// Reproject converts a geometry held in CRS into crs.
func Reproject(g orb.Geometry, crs string) (orb.Geometry, error) {
	if strings.EqualFold(strings.TrimSpace(crs), CRS) {
		return g, nil
	}
	geotiff.Register()
	var out orb.Geometry
	var err error
	utils.ExecuteWithMutex(func() {
		out, err = reproject(g, crs)
	})
	return out, err
}

// ReprojectAll returns copies of plots whose geometries are in crs.
func ReprojectAll(plots []Plot, crs string) ([]Plot, error) {
	out := make([]Plot, len(plots))
	for i, p := range plots {
		g, err := Reproject(p.Geometry, crs)
		if err != nil {
			return nil, fmt.Errorf("failed to reproject plot %s: %w", p.UID, err)
		}
		p.Geometry = g
		out[i] = p
	}
	return out, nil
}

func reproject(g orb.Geometry, crs string) (orb.Geometry, error) {
	geom, err := toGodal(g)
	if err != nil {
		return nil, err
	}
	defer geom.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("failed to create EPSG:4326 reference: %w", err)
	}
	defer wgs84.Close()
	target, err := godal.NewSpatialRef(crs)
	if err != nil {
		return nil, fmt.Errorf("invalid target CRS %q: %w", crs, err)
	}
	defer target.Close()

	geom.SetSpatialRef(wgs84)
	if err := geom.Reproject(target); err != nil {
		return nil, fmt.Errorf("failed to reproject geometry to %s: %w", crs, err)
	}
	return fromGodal(geom)
}
