package raster

import (
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 4x3 image at 1 degree resolution with its top-left corner at (10, 50).
func newTestImage(t *testing.T) *Image {
	t.Helper()
	img := New("tile", time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC), 4, 3, [6]float64{10, 1, 0, 50, 0, -1}, "EPSG:4326")
	values := make([]float64, 12)
	for i := range values {
		values[i] = float64(i)
	}
	require.NoError(t, img.SetBand("B4", values))
	return img
}

func TestSetBandRejectsWrongLength(t *testing.T) {
	img := newTestImage(t)
	assert.Error(t, img.SetBand("B8", []float64{1, 2}))
}

func TestBandMissing(t *testing.T) {
	img := newTestImage(t)
	_, err := img.Band("QA60")
	assert.ErrorContains(t, err, "no band QA60")
}

func TestUpdateMaskDoesNotMutateSource(t *testing.T) {
	img := newTestImage(t)
	masked := img.UpdateMask(func(i int) bool { return i%2 == 0 })

	assert.Equal(t, 12, img.ValidCount())
	assert.Equal(t, 6, masked.ValidCount())

	again := masked.UpdateMask(func(i int) bool { return i != 0 })
	assert.Equal(t, 5, again.ValidCount())
	assert.False(t, again.ValidAt(1), "previously invalid pixels stay invalid")
}

func TestDeriveCarriesMetadata(t *testing.T) {
	img := newTestImage(t)
	img.Properties["PRODUCT_ID"] = "S2A_TEST"
	masked := img.UpdateMask(func(i int) bool { return i != 3 })

	derived, err := masked.Derive("EVI", make([]float64, 12))
	require.NoError(t, err)

	assert.Equal(t, []string{"EVI"}, derived.BandNames())
	assert.Equal(t, "2020-07-01", derived.DateString())
	assert.Equal(t, "S2A_TEST", derived.Properties["PRODUCT_ID"])
	assert.False(t, derived.ValidAt(3))
}

func TestPixelCenterAndPixelAtRoundTrip(t *testing.T) {
	img := newTestImage(t)
	cx, cy := img.PixelCenter(2, 1)
	assert.Equal(t, 12.5, cx)
	assert.Equal(t, 48.5, cy)

	x, y, ok := img.PixelAt(cx, cy)
	require.True(t, ok)
	assert.Equal(t, 2, x)
	assert.Equal(t, 1, y)

	_, _, ok = img.PixelAt(9.9, 49)
	assert.False(t, ok)
}

func TestBound(t *testing.T) {
	img := newTestImage(t)
	assert.Equal(t, orb.Bound{Min: orb.Point{10, 47}, Max: orb.Point{14, 50}}, img.Bound())
}

func TestSeriesSortByDate(t *testing.T) {
	a := New("a", time.Date(2020, 8, 15, 0, 0, 0, 0, time.UTC), 1, 1, [6]float64{}, "EPSG:4326")
	b := New("b", time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC), 1, 1, [6]float64{}, "EPSG:4326")
	s := Series{a, b}.SortByDate()
	assert.Equal(t, "b", s[0].ID)
}

func TestGridCentersAligned(t *testing.T) {
	centers := Grid{Step: 1}.Centers(orb.Bound{Min: orb.Point{0.2, 0.2}, Max: orb.Point{2.7, 1.4}})
	assert.Equal(t, []orb.Point{{0.5, 0.5}, {1.5, 0.5}, {2.5, 0.5}}, centers)
}

func TestStep(t *testing.T) {
	assert.InDelta(t, 10/MetersPerDegree, Step(10, "EPSG:4326"), 1e-12)
	assert.Equal(t, 10.0, Step(10, "EPSG:32630"))
}

func TestSampleNearestWithinRegion(t *testing.T) {
	img := newTestImage(t)
	bound := orb.Bound{Min: orb.Point{10, 48}, Max: orb.Point{12, 50}}

	out, err := Sample(img, "B4", bound, 1, "EPSG:4326", nil, func(p orb.Point) bool { return p[0] < 11 })
	require.NoError(t, err)

	values, err := out.Band("B4")
	require.NoError(t, err)
	require.Equal(t, 2, out.Width)
	require.Equal(t, 2, out.Height)

	assert.Equal(t, 0.0, values[0])
	assert.True(t, out.ValidAt(0))
	assert.False(t, out.ValidAt(1), "outside region")
	assert.True(t, math.IsNaN(values[1]))
	assert.Equal(t, 4.0, values[2])
}

func TestCrop(t *testing.T) {
	img := newTestImage(t).UpdateMask(func(i int) bool { return i != 5 })

	cropped, err := img.Crop(orb.Bound{Min: orb.Point{11.2, 48.5}, Max: orb.Point{12.5, 49.5}})
	require.NoError(t, err)
	assert.Equal(t, 2, cropped.Width)
	assert.Equal(t, 2, cropped.Height)
	assert.Equal(t, [6]float64{11, 1, 0, 50, 0, -1}, cropped.GeoTransform)

	values, err := cropped.Band("B4")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 5, 6}, values)
	assert.False(t, cropped.ValidAt(2))
	assert.Equal(t, 3, cropped.ValidCount())

	_, err = img.Crop(orb.Bound{Min: orb.Point{100, 0}, Max: orb.Point{101, 1}})
	assert.ErrorContains(t, err, "does not overlap")
}
