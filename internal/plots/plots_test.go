package plots

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(minX, minY, size float64) orb.Polygon {
	return orb.Polygon{{
		{minX, minY}, {minX + size, minY}, {minX + size, minY + size}, {minX, minY + size}, {minX, minY},
	}}
}

func collection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	a := geojson.NewFeature(square(0, 0, 1))
	a.Properties["uid"] = 10.0
	a.Properties["farm"] = "north"
	fc.Append(a)

	b := geojson.NewFeature(orb.MultiPolygon{square(2, 2, 1), square(4, 4, 1)})
	b.Properties["uid"] = "2"
	b.Properties["farm"] = "south"
	fc.Append(b)

	p := geojson.NewFeature(orb.Point{0.5, 0.5})
	p.Properties["uid"] = "well"
	fc.Append(p)

	return fc
}

func TestFromFeatureCollection(t *testing.T) {
	plots, err := FromFeatureCollection(collection(), Options{})
	require.NoError(t, err)

	require.Len(t, plots, 2, "points are not plots")
	assert.Equal(t, "10", plots[0].UID)
	assert.Equal(t, "2", plots[1].UID)
	assert.Equal(t, "north", plots[0].Properties["farm"])
}

func TestFromFeatureCollectionFilter(t *testing.T) {
	plots, err := FromFeatureCollection(collection(), Options{FilterField: "farm", FilterValue: "south"})
	require.NoError(t, err)
	require.Len(t, plots, 1)
	assert.Equal(t, "2", plots[0].UID)
}

func TestFromFeatureCollectionMissingUID(t *testing.T) {
	_, err := FromFeatureCollection(collection(), Options{UIDField: "plot_id"})
	assert.ErrorContains(t, err, "no plot_id property")
}

func TestContains(t *testing.T) {
	withHole := orb.Polygon{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {3, 1}, {3, 3}, {1, 3}, {1, 1}},
	}
	tests := []struct {
		name string
		geom orb.Geometry
		pt   orb.Point
		want bool
	}{
		{"inside polygon", square(0, 0, 1), orb.Point{0.5, 0.5}, true},
		{"outside polygon", square(0, 0, 1), orb.Point{1.5, 0.5}, false},
		{"inside hole", withHole, orb.Point{2, 2}, false},
		{"inside ring", withHole, orb.Point{0.5, 2}, true},
		{"second part of multipolygon", orb.MultiPolygon{square(0, 0, 1), square(5, 5, 1)}, orb.Point{5.5, 5.5}, true},
		{"point geometry", orb.Point{1, 1}, orb.Point{1, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Contains(tt.geom, tt.pt))
		})
	}
}

func TestBoundAndBuffer(t *testing.T) {
	plots, err := FromFeatureCollection(collection(), Options{})
	require.NoError(t, err)

	bound := Bound(plots)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{5, 5}}, bound)

	buffered := BufferBound(bound, 111_000, CRS)
	assert.InDelta(t, -1, buffered.Min[0], 1e-9)
	assert.InDelta(t, 6, buffered.Max[1], 1e-9)

	assert.Equal(t, orb.Bound{}, Bound(nil))
}

func TestSortUIDs(t *testing.T) {
	uids := []string{"10", "b", "2", "a", "1"}
	SortUIDs(uids)
	if diff := cmp.Diff([]string{"1", "2", "10", "a", "b"}, uids); diff != "" {
		t.Errorf("SortUIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestPropertyString(t *testing.T) {
	assert.Equal(t, "1", PropertyString(1.0))
	assert.Equal(t, "1.5", PropertyString(1.5))
	assert.Equal(t, "7", PropertyString(int64(7)))
	assert.Equal(t, "", PropertyString(nil))
	assert.Equal(t, "Ghana", PropertyString("Ghana"))
}

func TestReprojectToWGS84KeepsGeometry(t *testing.T) {
	g := square(1, 2, 0.5)
	got, err := Reproject(g, " epsg:4326 ")
	require.NoError(t, err)
	assert.Equal(t, orb.Geometry(g), got)
}

func TestReprojectAllToWGS84CopiesPlots(t *testing.T) {
	ps := []Plot{{UID: "7", Geometry: square(0, 0, 1)}}
	got, err := ReprojectAll(ps, CRS)
	require.NoError(t, err)
	if diff := cmp.Diff(ps, got); diff != "" {
		t.Errorf("ReprojectAll() mismatch (-want +got):\n%s", diff)
	}
	got[0].UID = "8"
	assert.Equal(t, "7", ps[0].UID)
}
