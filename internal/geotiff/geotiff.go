// Package geotiff reads and writes raster.Image values through GDAL.
package geotiff

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/forest-guardian/vegetation-indices/internal/utils"
)

const DefaultNoData = -9999.0

var registerOnce sync.Once

// Register loads the GDAL drivers once per process.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

func errLogger() godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}
}

// Read loads every band of the GeoTIFF at path. Bands are named from their
// descriptions, falling back to bandOrder by position. Nodata or NaN in any
// band marks the pixel invalid.
func Read(path string, bandOrder []string) (*raster.Image, error) {
	Register()
	var img *raster.Image
	var err error
	utils.ExecuteWithMutex(func() {
		img, err = read(path, bandOrder)
	})
	return img, err
}

func read(path string, bandOrder []string) (*raster.Image, error) {
	ds, err := godal.Open(path, godal.ErrLogger(errLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	structure := ds.Structure()
	width, height := structure.SizeX, structure.SizeY
	geoTransform, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to get GeoTransform of %s: %w", path, err)
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	img := raster.New(id, time.Time{}, width, height, geoTransform, crsName(ds.SpatialRef()))
	img.Properties["path"] = path

	missing := make([]bool, width*height)
	for i, band := range ds.Bands() {
		name := band.Description()
		if name == "" {
			if i < len(bandOrder) {
				name = bandOrder[i]
			} else {
				name = fmt.Sprintf("band_%d", i+1)
			}
		}

		data := make([]float64, width*height)
		if err := band.Read(0, 0, data, width, height); err != nil {
			return nil, fmt.Errorf("failed to read band %s of %s: %w", name, path, err)
		}
		noData, hasNoData := band.NoData()
		for j, v := range data {
			if math.IsNaN(v) || (hasNoData && v == noData) {
				data[j] = math.NaN()
				missing[j] = true
			}
		}
		if err := img.SetBand(name, data); err != nil {
			return nil, err
		}
	}

	return img.UpdateMask(func(i int) bool { return !missing[i] }), nil
}

// Write stores one band of img as a Float32 GeoTIFF. Invalid pixels are
// written as noData.
func Write(path string, img *raster.Image, band string, noData float64) error {
	Register()
	values, err := img.Band(band)
	if err != nil {
		return err
	}
	buffer := make([]float32, len(values))
	for i, v := range values {
		if !img.ValidAt(i) || math.IsNaN(v) {
			buffer[i] = float32(noData)
			continue
		}
		buffer[i] = float32(v)
	}

	utils.ExecuteWithMutex(func() {
		err = write(path, img, band, buffer, noData)
	})
	return err
}

func write(path string, img *raster.Image, band string, buffer []float32, noData float64) error {
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, img.Width, img.Height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"), godal.ErrLogger(errLogger()))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := ds.SetGeoTransform(img.GeoTransform); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set GeoTransform: %w", err)
	}
	sr, err := godal.NewSpatialRef(img.CRS)
	if err != nil {
		ds.Close()
		return fmt.Errorf("invalid CRS %q: %w", img.CRS, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}

	out := ds.Bands()[0]
	if err := out.SetNoData(noData); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set nodata: %w", err)
	}
	if err := out.SetDescription(band); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set band description: %w", err)
	}
	if err := out.Write(0, 0, buffer, img.Width, img.Height); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write band %s: %w", band, err)
	}
	return ds.Close()
}

// crsName returns "AUTH:CODE" when the reference carries an authority,
// otherwise its WKT.
func crsName(sr *godal.SpatialRef) string {
	if sr == nil {
		return ""
	}
	defer sr.Close()
	if name, code := sr.AuthorityName(""), sr.AuthorityCode(""); name != "" && code != 0 {
		return fmt.Sprintf("%s:%d", name, code)
	}
	if sr.Geographic() {
		return "EPSG:4326"
	}
	wkt, err := sr.WKT()
	if err != nil {
		return ""
	}
	return wkt
}
