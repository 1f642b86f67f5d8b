package delivery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forest-guardian/vegetation-indices/internal/catalog"
	"github.com/forest-guardian/vegetation-indices/internal/log"
	"github.com/forest-guardian/vegetation-indices/internal/plots"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/forest-guardian/vegetation-indices/internal/sentinel"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	log.UseLogger(zap.NewNop())
	os.Exit(m.Run())
}

// memCatalog serves prebuilt images.
type memCatalog struct {
	images []*raster.Image
	failID string
	loads  atomic.Int32
}

func (m *memCatalog) Query(ctx context.Context, start, end time.Time, bound orb.Bound) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	for i, img := range m.images {
		if catalog.InRange(img.Date, start, end) {
			entries = append(entries, catalog.Entry{ID: img.ID, Date: img.Date, Bound: img.Bound(), Index: i})
		}
	}
	return entries, nil
}

func (m *memCatalog) Load(ctx context.Context, entry catalog.Entry) (*raster.Image, error) {
	m.loads.Add(1)
	if entry.ID == m.failID {
		return nil, errors.New("corrupt tile")
	}
	return m.images[entry.Index], nil
}

func date(s string) time.Time {
	t, err := time.Parse(raster.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// tile builds a 4x4 Sentinel-2 image at 0.001 degree pixels. The left two
// columns get NDVI leftNDVI, the right two are cloudy.
func tile(t *testing.T, day string, leftNDVI float64) *raster.Image {
	t.Helper()
	img := raster.New("s2_"+day, date(day), 4, 4, [6]float64{0, 0.001, 0, 0.004, 0, -0.001}, "EPSG:4326")
	red := 1000.0
	nir := red * (1 + leftNDVI) / (1 - leftNDVI)
	var b2, b4, b8, qa []float64
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			b2 = append(b2, 500)
			b4 = append(b4, red)
			b8 = append(b8, nir)
			if x < 2 {
				qa = append(qa, 0)
			} else {
				qa = append(qa, 1024)
			}
		}
	}
	require.NoError(t, img.SetBand("B2", b2))
	require.NoError(t, img.SetBand("B4", b4))
	require.NoError(t, img.SetBand("B8", b8))
	require.NoError(t, img.SetBand("QA60", qa))
	return img
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func testPlots() []plots.Plot {
	return []plots.Plot{
		{UID: "1", Geometry: square(0, 0, 0.002, 0.004)},
		{UID: "2", Geometry: square(0.002, 0, 0.004, 0.004)},
	}
}

func seasonalConfig(t *testing.T) SeasonalMaxConfig {
	t.Helper()
	t.Setenv("ROOT_PATH", t.TempDir())
	cfg := DefaultSeasonalMaxConfig()
	cfg.PlotsPath = "plots.geojson"
	cfg.Index = sentinel.NDVI
	cfg.Scale = 111
	cfg.Workers = 2
	cfg.OutputDir = t.TempDir()
	return cfg
}

func TestRunSeasonalMaxKeepsLatestPeak(t *testing.T) {
	cfg := seasonalConfig(t)
	cat := &memCatalog{images: []*raster.Image{
		tile(t, "2020-07-01", 0.42),
		tile(t, "2020-08-15", 0.51),
		tile(t, "2021-01-05", 0.9),
	}}

	result, err := RunSeasonalMax(context.Background(), cfg, cat, testPlots())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Images)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Maxima, 1, "cloudy plot 2 has no row")
	assert.Equal(t, "1", result.Maxima[0].UID)
	assert.InDelta(t, 0.51, result.Maxima[0].MaxMean, 1e-9)
	assert.Equal(t, "2020-08-15", result.Maxima[0].MaxDate)

	require.Len(t, result.Zonal, 4)
	for _, rec := range result.Zonal {
		if rec.UID == "2" {
			assert.Nil(t, rec.Mean)
			continue
		}
		assert.Equal(t, 8, rec.Count)
	}

	data, err := os.ReadFile(result.CSVPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "uid,max_mean,max_date", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,0.5"))
	assert.True(t, strings.HasSuffix(lines[1], ",2020-08-15"))
	assert.Equal(t, "NDVI_seasonal_max.csv", filepath.Base(result.CSVPath))
}

// metreCRS stands in for a projected CRS measured in metres, at
// MetersPerDegree metres per degree of the lon/lat test tiles.
func metreCRS(t *testing.T) *string {
	t.Helper()
	var reprojectedTo string
	reprojectPlots = func(ps []plots.Plot, crs string) ([]plots.Plot, error) {
		reprojectedTo = crs
		out := make([]plots.Plot, len(ps))
		for i, p := range ps {
			p.Geometry = project.Geometry(orb.Clone(p.Geometry), func(pt orb.Point) orb.Point {
				return orb.Point{pt[0] * raster.MetersPerDegree, pt[1] * raster.MetersPerDegree}
			})
			out[i] = p
		}
		return out, nil
	}
	newProjector = func(from, to string) (raster.Projector, func(), error) {
		return metresToDegrees{}, func() {}, nil
	}
	t.Cleanup(func() {
		reprojectPlots = defaultReprojectPlots
		newProjector = defaultNewProjector
	})
	return &reprojectedTo
}

var (
	defaultReprojectPlots = reprojectPlots
	defaultNewProjector   = newProjector
)

type metresToDegrees struct{}

func (metresToDegrees) Project(xs, ys []float64) error {
	for i := range xs {
		xs[i] /= raster.MetersPerDegree
		ys[i] /= raster.MetersPerDegree
	}
	return nil
}

func TestRunSeasonalMaxProjectedCRS(t *testing.T) {
	cfg := seasonalConfig(t)
	cfg.CRS = "EPSG:32630"
	reprojectedTo := metreCRS(t)
	cat := &memCatalog{images: []*raster.Image{
		tile(t, "2020-07-01", 0.42),
		tile(t, "2020-08-15", 0.51),
	}}

	result, err := RunSeasonalMax(context.Background(), cfg, cat, testPlots())
	require.NoError(t, err)

	assert.Equal(t, "EPSG:32630", *reprojectedTo)
	require.Len(t, result.Maxima, 1)
	assert.Equal(t, "1", result.Maxima[0].UID)
	assert.InDelta(t, 0.51, result.Maxima[0].MaxMean, 1e-9)
	assert.Equal(t, "2020-08-15", result.Maxima[0].MaxDate)
	for _, rec := range result.Zonal {
		if rec.UID == "1" {
			assert.Equal(t, 8, rec.Count)
		}
	}
}

func TestRunSeasonalMaxWithoutImagesWritesHeader(t *testing.T) {
	cfg := seasonalConfig(t)
	cfg.Description = "empty_run"

	result, err := RunSeasonalMax(context.Background(), cfg, &memCatalog{}, testPlots())
	require.NoError(t, err)
	assert.Empty(t, result.Maxima)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "empty_run.csv"))
	require.NoError(t, err)
	assert.Equal(t, "uid,max_mean,max_date", strings.TrimSpace(string(data)))
}

func TestRunSeasonalMaxAbortsOnFirstError(t *testing.T) {
	cfg := seasonalConfig(t)
	cat := &memCatalog{
		images: []*raster.Image{tile(t, "2020-07-01", 0.42), tile(t, "2020-08-15", 0.51)},
		failID: "s2_2020-08-15",
	}

	_, err := RunSeasonalMax(context.Background(), cfg, cat, testPlots())
	assert.ErrorContains(t, err, "corrupt tile")
	assert.ErrorContains(t, err, "s2_2020-08-15")
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, cfg.OutputName()+".csv"))
}

func TestRunSeasonalMaxMissingBand(t *testing.T) {
	cfg := seasonalConfig(t)
	img := raster.New("bare", date("2020-07-01"), 1, 1, [6]float64{0, 1, 0, 1, 0, -1}, "EPSG:4326")
	require.NoError(t, img.SetBand("B4", []float64{1}))

	_, err := RunSeasonalMax(context.Background(), cfg, &memCatalog{images: []*raster.Image{img}}, testPlots())
	assert.ErrorContains(t, err, "no band")
}

func TestRunSeasonalMaxUsesZonalCache(t *testing.T) {
	cfg := seasonalConfig(t)
	cfg.UseCache = true
	cat := &memCatalog{images: []*raster.Image{tile(t, "2020-07-01", 0.42), tile(t, "2020-08-15", 0.51)}}

	first, err := RunSeasonalMax(context.Background(), cfg, cat, testPlots())
	require.NoError(t, err)
	assert.Equal(t, int32(2), cat.loads.Load())

	second, err := RunSeasonalMax(context.Background(), cfg, cat, testPlots())
	require.NoError(t, err)
	assert.Equal(t, int32(2), cat.loads.Load(), "second run is served from the cache")
	assert.Equal(t, first.Maxima, second.Maxima)
}

func TestRunSeasonalMaxOptionalOutputs(t *testing.T) {
	cfg := seasonalConfig(t)
	cfg.ZonalCSV = true
	cfg.Chart = true
	cat := &memCatalog{images: []*raster.Image{tile(t, "2020-07-01", 0.42), tile(t, "2020-08-15", 0.51)}}

	_, err := RunSeasonalMax(context.Background(), cfg, cat, testPlots())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "NDVI_seasonal_max_zonal.csv"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "NDVI_seasonal_max_chart.png"))
}

func TestRunSeasonalMaxEVI(t *testing.T) {
	cfg := seasonalConfig(t)
	cfg.Index = sentinel.EVI
	img := tile(t, "2020-07-01", 0.6)

	result, err := RunSeasonalMax(context.Background(), cfg, &memCatalog{images: []*raster.Image{img}}, testPlots())
	require.NoError(t, err)
	require.Len(t, result.Maxima, 1)

	nir, _ := img.Band("B8")
	want := sentinel.EVIValue(nir[0]/10000, 0.1, 0.05)
	assert.InDelta(t, want, result.Maxima[0].MaxMean, 1e-9)
}

func TestRunSeasonalMaxCancelled(t *testing.T) {
	cfg := seasonalConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cat := &memCatalog{images: []*raster.Image{tile(t, "2020-07-01", 0.42)}}
	_, err := RunSeasonalMax(ctx, cfg, cat, testPlots())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeasonalMaxConfigValidate(t *testing.T) {
	cfg := DefaultSeasonalMaxConfig()
	cfg.PlotsPath = "plots.gpkg"
	require.NoError(t, cfg.Validate())

	cfg.Index = "SAVI"
	cfg.End = cfg.Start
	cfg.Scale = 0
	err := cfg.Validate()
	assert.ErrorContains(t, err, "unknown vegetation index")
	assert.ErrorContains(t, err, "must be after start date")
	assert.ErrorContains(t, err, "scale must be positive")

	_, err = RunSeasonalMax(context.Background(), cfg, &memCatalog{}, testPlots())
	assert.Error(t, err)
}

func TestOutputName(t *testing.T) {
	cfg := DefaultSeasonalMaxConfig()
	assert.Equal(t, "EVI_seasonal_max", cfg.OutputName())
	cfg.Description = "file description here"
	assert.Equal(t, "file description here", cfg.OutputName())
}
