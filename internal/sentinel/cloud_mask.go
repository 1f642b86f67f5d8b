package sentinel

import (
	"math"

	"github.com/forest-guardian/vegetation-indices/internal/raster"
)

// MaskClouds keeps only pixels whose QA value is exactly zero. A NaN QA
// value counts as cloudy.
func MaskClouds(img *raster.Image, qaBand string) (*raster.Image, error) {
	qa, err := img.Band(qaBand)
	if err != nil {
		return nil, err
	}
	return img.UpdateMask(func(i int) bool {
		return !math.IsNaN(qa[i]) && qa[i] == 0
	}), nil
}
