package delivery

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/forest-guardian/vegetation-indices/internal/catalog"
	"github.com/forest-guardian/vegetation-indices/internal/plots"
	"github.com/forest-guardian/vegetation-indices/internal/properties"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/forest-guardian/vegetation-indices/internal/sentinel"
	"github.com/forest-guardian/vegetation-indices/internal/zonal"
	"github.com/forest-guardian/vegetation-indices/output"
)

const (
	DefaultTilePrefix         = "s2"
	DefaultPlotBuffer         = 20.0
	DefaultBoundaryField      = "ADM0_NAME"
	DefaultBoundaryValue      = "Ghana"
	DefaultBoundaryBuffer     = 1000.0
	DefaultTemperatureBand    = "maximum_temperature"
	DefaultPercentile         = 95.0
	DefaultTemperatureScale   = 5000.0
	DefaultTemperatureName    = "Ghana_95th_Percentile_Temperature"
	DefaultVisMin             = 30.0
	DefaultVisMax             = 41.0
	DefaultTemperatureNoData  = -9999.0
	defaultSeasonalMaxPattern = "%s_seasonal_max"
)

func mustDate(s string) time.Time {
	t, err := time.Parse(raster.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// SeasonalMaxConfig drives the vegetation index job.
type SeasonalMaxConfig struct {
	PlotsPath string
	UIDField  string

	ImagesDir  string
	TilePrefix string
	BandOrder  []string
	Bands      sentinel.BandSet

	// Start is inclusive, End exclusive.
	Start time.Time
	End   time.Time

	Index   sentinel.IndexType
	Buffer  float64
	Scale   float64
	CRS     string
	Workers int

	Description string
	OutputDir   string

	Fetch    bool
	ZonalCSV bool
	Chart    bool
	UseCache bool
}

func DefaultSeasonalMaxConfig() SeasonalMaxConfig {
	return SeasonalMaxConfig{
		UIDField:   plots.DefaultUIDField,
		ImagesDir:  properties.DataPath("images"),
		TilePrefix: DefaultTilePrefix,
		BandOrder:  catalog.DefaultBandOrder,
		Bands:      sentinel.DefaultBands,
		Start:      mustDate("2020-06-01"),
		End:        mustDate("2020-12-31"),
		Index:      sentinel.EVI,
		Buffer:     DefaultPlotBuffer,
		Scale:      zonal.DefaultScale,
		CRS:        zonal.DefaultCRS,
		Workers:    runtime.NumCPU(),
		OutputDir:  properties.DataPath("result"),
	}
}

func (c SeasonalMaxConfig) Validate() error {
	var problems []string
	if c.PlotsPath == "" {
		problems = append(problems, "plots file is required")
	}
	if c.ImagesDir == "" {
		problems = append(problems, "images directory is required")
	}
	if _, err := sentinel.ParseIndexType(string(c.Index)); err != nil {
		problems = append(problems, err.Error())
	}
	if !c.End.After(c.Start) {
		problems = append(problems, fmt.Sprintf("end date %s must be after start date %s",
			c.End.Format(raster.DateLayout), c.Start.Format(raster.DateLayout)))
	}
	if c.Buffer < 0 {
		problems = append(problems, "buffer must not be negative")
	}
	if c.Scale <= 0 {
		problems = append(problems, "scale must be positive")
	}
	if c.CRS == "" {
		problems = append(problems, "crs is required")
	}
	if c.Workers <= 0 {
		problems = append(problems, "workers must be positive")
	}
	if c.Bands.NIR == "" || c.Bands.Red == "" || c.Bands.QA == "" || (c.Index == sentinel.EVI && c.Bands.Blue == "") {
		problems = append(problems, "band names are incomplete")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid seasonal-max configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// OutputName is the base name of the exported files.
func (c SeasonalMaxConfig) OutputName() string {
	if c.Description != "" {
		return c.Description
	}
	return fmt.Sprintf(defaultSeasonalMaxPattern, c.Index)
}

// TemperatureConfig drives the temperature percentile job.
type TemperatureConfig struct {
	BoundaryPath string
	FilterField  string
	FilterValue  string
	Buffer       float64

	// Archive is a NetCDF file or a directory of GeoTIFF tiles.
	Archive    string
	TilePrefix string
	Band       string

	Start time.Time
	End   time.Time

	Percentile float64
	Scale      float64
	CRS        string
	Workers    int

	Description string
	OutputDir   string

	Preview bool
	VisMin  float64
	VisMax  float64
	Palette string
}

func DefaultTemperatureConfig() TemperatureConfig {
	return TemperatureConfig{
		FilterField: DefaultBoundaryField,
		FilterValue: DefaultBoundaryValue,
		Buffer:      DefaultBoundaryBuffer,
		Band:        DefaultTemperatureBand,
		Start:       mustDate("2000-01-01"),
		End:         mustDate("2010-12-31"),
		Percentile:  DefaultPercentile,
		Scale:       DefaultTemperatureScale,
		CRS:         zonal.DefaultCRS,
		Workers:     runtime.NumCPU(),
		Description: DefaultTemperatureName,
		OutputDir:   properties.DataPath("result"),
		VisMin:      DefaultVisMin,
		VisMax:      DefaultVisMax,
		Palette:     output.DefaultPalette,
	}
}

func (c TemperatureConfig) Validate() error {
	var problems []string
	if c.BoundaryPath == "" {
		problems = append(problems, "boundary file is required")
	}
	if c.FilterField == "" {
		problems = append(problems, "boundary filter field is required")
	}
	if c.Archive == "" {
		problems = append(problems, "temperature archive is required")
	}
	if c.Band == "" {
		problems = append(problems, "band is required")
	}
	if !c.End.After(c.Start) {
		problems = append(problems, fmt.Sprintf("end date %s must be after start date %s",
			c.End.Format(raster.DateLayout), c.Start.Format(raster.DateLayout)))
	}
	if c.Percentile < 0 || c.Percentile > 100 {
		problems = append(problems, "percentile must be within [0, 100]")
	}
	if c.Buffer < 0 {
		problems = append(problems, "buffer must not be negative")
	}
	if c.Scale <= 0 {
		problems = append(problems, "scale must be positive")
	}
	if c.CRS == "" {
		problems = append(problems, "crs is required")
	}
	if c.Workers <= 0 {
		problems = append(problems, "workers must be positive")
	}
	if c.Preview && c.VisMax <= c.VisMin {
		problems = append(problems, "vis-max must be greater than vis-min")
	}
	if c.Description == "" {
		problems = append(problems, "description is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid temp-percentile configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
