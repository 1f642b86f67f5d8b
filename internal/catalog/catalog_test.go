package catalog

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse(raster.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParseTileName(t *testing.T) {
	tests := []struct {
		name       string
		wantPrefix string
		wantDate   string
		wantOK     bool
	}{
		{"farm_plot_2020-08-15.tif", "farm_plot", "2020-08-15", true},
		{"s2_2020-07-01.TIFF", "s2", "2020-07-01", true},
		{"s2_2020-07-01.png", "", "", false},
		{"s2_july.tif", "", "", false},
		{"2020-07-01.tif", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, d, ok := ParseTileName(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantPrefix, prefix)
				assert.Equal(t, tt.wantDate, d.Format(raster.DateLayout))
			}
		})
	}
	assert.Equal(t, "farm_2020-08-15.tif", TileName("farm", date("2020-08-15")))
}

func TestInRangeEndExclusive(t *testing.T) {
	start, end := date("2020-06-01"), date("2020-10-01")
	assert.True(t, InRange(start, start, end))
	assert.True(t, InRange(date("2020-09-30"), start, end))
	assert.False(t, InRange(end, start, end))
	assert.False(t, InRange(date("2020-05-31"), start, end))
}

func newTestDirCatalog(t *testing.T, names ...string) *DirCatalog {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("tif"), 0o644))
	}
	c := NewDirCatalog(dir, "s2", nil)
	c.footprint = func(path, crs string) (orb.Bound, error) {
		if filepath.Base(path) == "s2_2020-07-10.tif" {
			return orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{51, 51}}, nil
		}
		return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, nil
	}
	c.read = func(path string, bandOrder []string) (*raster.Image, error) {
		img := raster.New("", time.Time{}, 1, 1, [6]float64{0, 1, 0, 1, 0, -1}, "EPSG:4326")
		for _, band := range bandOrder {
			if err := img.SetBand(band, []float64{1}); err != nil {
				return nil, err
			}
		}
		return img, nil
	}
	return c
}

func TestDirCatalogQuery(t *testing.T) {
	c := newTestDirCatalog(t,
		"s2_2020-08-15.tif",
		"s2_2020-07-01.tif",
		"s2_2020-07-10.tif",
		"s2_2020-10-01.tif",
		"other_2020-07-05.tif",
		"notes.txt",
	)

	entries, err := c.Query(context.Background(), date("2020-06-01"), date("2020-10-01"), orb.Bound{Min: orb.Point{0.5, 0.5}, Max: orb.Point{2, 2}})
	require.NoError(t, err)

	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	if diff := cmp.Diff([]string{"s2_2020-07-01", "s2_2020-08-15"}, ids); diff != "" {
		t.Errorf("Query mismatch (-want +got):\n%s", diff)
	}
}

func TestDirCatalogQueryMissingDir(t *testing.T) {
	c := NewDirCatalog(filepath.Join(t.TempDir(), "missing"), "", nil)
	entries, err := c.Query(context.Background(), date("2020-06-01"), date("2020-10-01"), orb.Bound{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDirCatalogLoad(t *testing.T) {
	c := newTestDirCatalog(t, "s2_2020-07-01.tif")
	entries, err := c.Query(context.Background(), date("2020-06-01"), date("2020-10-01"), orb.Bound{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	img, err := c.Load(context.Background(), entries[0])
	require.NoError(t, err)
	assert.Equal(t, "2020-07-01", img.DateString())
	assert.Equal(t, "s2_2020-07-01", img.ID)
	assert.ElementsMatch(t, DefaultBandOrder, img.BandNames())
}

func TestDirCatalogQueryCancelled(t *testing.T) {
	c := newTestDirCatalog(t, "s2_2020-07-01.tif")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Query(ctx, date("2020-06-01"), date("2020-10-01"), orb.Bound{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeTimes(t *testing.T) {
	times, err := DecodeTimes([]float64{0, 1.5}, "days since 2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, date("2000-01-01"), times[0])
	assert.Equal(t, date("2000-01-02").Add(12*time.Hour), times[1])

	times, err = DecodeTimes([]float64{876576}, "hours since 1900-01-01 00:00:00.0")
	require.NoError(t, err)
	assert.Equal(t, date("2000-01-01"), times[0])

	_, err = DecodeTimes([]float64{1}, "fortnights since 2000-01-01")
	assert.Error(t, err)
	_, err = DecodeTimes([]float64{1}, "")
	assert.Error(t, err)
}

func TestAxisGeoTransform(t *testing.T) {
	gt, flip, err := AxisGeoTransform([]float64{-3, -2, -1}, []float64{5, 6})
	require.NoError(t, err)
	assert.True(t, flip)
	assert.Equal(t, [6]float64{-3.5, 1, 0, 6.5, 0, -1}, gt)

	gt, flip, err = AxisGeoTransform([]float64{-3, -2, -1}, []float64{6, 5})
	require.NoError(t, err)
	assert.False(t, flip)
	assert.Equal(t, [6]float64{-3.5, 1, 0, 6.5, 0, -1}, gt)

	_, _, err = AxisGeoTransform([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestGridOfAndFlip(t *testing.T) {
	values, err := gridOf([][][]int16{{{1, 2}, {3, 4}}}, 2, 2)
	require.NoError(t, err)
	flipRows(values, 2, 2)
	assert.Equal(t, []float64{3, 4, 1, 2}, values)

	_, err = gridOf([][][]int16{{{1, 2}}}, 2, 2)
	assert.Error(t, err)
	_, err = gridOf("nope", 2, 2)
	assert.Error(t, err)
}

func TestPackingDecode(t *testing.T) {
	p := packing{scale: 0.5, offset: 10, fill: -32767, hasFill: true}
	assert.Equal(t, 11.0, p.decode(2))
	assert.True(t, math.IsNaN(p.decode(-32767)))
	assert.True(t, math.IsNaN(p.decode(math.NaN())))
}
