package sentinel

import (
	"fmt"
	"math"
	"strings"

	"github.com/forest-guardian/vegetation-indices/internal/raster"
)

// ReflectanceScale converts Sentinel-2 L2A digital numbers to reflectance.
const ReflectanceScale = 10000.0

type IndexType string

const (
	EVI  IndexType = "EVI"
	NDVI IndexType = "NDVI"
)

func ParseIndexType(s string) (IndexType, error) {
	switch IndexType(strings.ToUpper(strings.TrimSpace(s))) {
	case EVI:
		return EVI, nil
	case NDVI:
		return NDVI, nil
	}
	return "", fmt.Errorf("unknown vegetation index %q (expected EVI or NDVI)", s)
}

// BandSet names the image bands each formula reads.
type BandSet struct {
	NIR  string
	Red  string
	Blue string
	QA   string
}

var DefaultBands = BandSet{NIR: "B8", Red: "B4", Blue: "B2", QA: "QA60"}

// EVIValue takes reflectances in [0, 1].
func EVIValue(nir, red, blue float64) float64 {
	return 2.5 * (nir - red) / (nir + 6*red - 7.5*blue + 1)
}

func NDVIValue(nir, red float64) float64 {
	return (nir - red) / (nir + red)
}

// Calculate returns a single-band image named after idx. Bands are divided
// by ReflectanceScale first. Invalid pixels are left as NaN; a zero
// denominator yields NaN or Inf, which MaskRange removes.
func Calculate(img *raster.Image, idx IndexType, bands BandSet) (*raster.Image, error) {
	nir, err := img.Band(bands.NIR)
	if err != nil {
		return nil, err
	}
	red, err := img.Band(bands.Red)
	if err != nil {
		return nil, err
	}
	var blue []float64
	if idx == EVI {
		if blue, err = img.Band(bands.Blue); err != nil {
			return nil, err
		}
	}

	values := make([]float64, len(nir))
	for i := range values {
		if !img.ValidAt(i) {
			values[i] = math.NaN()
			continue
		}
		n, r := nir[i]/ReflectanceScale, red[i]/ReflectanceScale
		switch idx {
		case EVI:
			values[i] = EVIValue(n, r, blue[i]/ReflectanceScale)
		case NDVI:
			values[i] = NDVIValue(n, r)
		default:
			return nil, fmt.Errorf("unknown vegetation index %q", idx)
		}
	}
	return img.Derive(string(idx), values)
}

// MaskRange masks every pixel of band outside [min, max], as well as NaN and
// infinities.
func MaskRange(img *raster.Image, band string, min, max float64) (*raster.Image, error) {
	values, err := img.Band(band)
	if err != nil {
		return nil, err
	}
	return img.UpdateMask(func(i int) bool {
		v := values[i]
		return !math.IsNaN(v) && v >= min && v <= max
	}), nil
}
