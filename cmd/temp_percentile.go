package main

import (
	"runtime"

	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/vegetation-indices/internal/delivery"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var tempPercentileCmd = &cobra.Command{
	Use:   "temp-percentile",
	Short: "Per-pixel temperature percentile over a boundary",
	Long: `Select the boundary features whose field matches the value, buffer them,
compute the percentile of the daily temperature band for every pixel and
export it as <output>/<description>.tif.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := temperatureConfig(cmd.Name())
		if err != nil {
			return err
		}
		result, err := delivery.TemperaturePercentile(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		bannercolor.Green("Min %s: %.2f", result.Band, result.Summary.Min)
		bannercolor.Green("Max %s: %.2f", result.Band, result.Summary.Max)
		bannercolor.Green("GeoTIFF written to %s", result.TIFFPath)
		if result.PreviewPath != "" {
			bannercolor.Green("Preview written to %s", result.PreviewPath)
		}
		return nil
	},
}

func init() {
	def := delivery.DefaultTemperatureConfig()
	f := tempPercentileCmd.Flags()
	f.String("boundary", "", "administrative boundary collection")
	f.String("field", def.FilterField, "boundary attribute to filter on")
	f.String("value", def.FilterValue, "boundary attribute value to keep")
	f.Float64("buffer", def.Buffer, "boundary buffer in metres")
	f.String("archive", "", "NetCDF file or folder of daily GeoTIFF tiles")
	f.String("prefix", "", "tile file name prefix inside a folder archive")
	f.String("band", def.Band, "temperature band")
	f.String("start", def.Start.Format(raster.DateLayout), "first date (inclusive)")
	f.String("end", def.End.Format(raster.DateLayout), "last date (exclusive)")
	f.Float64("percentile", def.Percentile, "percentile in [0, 100]")
	f.Float64("scale", def.Scale, "export scale in metres")
	f.String("crs", def.CRS, "export CRS")
	f.Int("workers", runtime.NumCPU(), "images loaded in parallel")
	f.String("description", def.Description, "output file name")
	f.String("output", "", "output folder (default <ROOT_PATH>/data/result)")
	f.Bool("preview", false, "render a PNG preview")
	f.Float64("vis-min", def.VisMin, "preview colour scale minimum")
	f.Float64("vis-max", def.VisMax, "preview colour scale maximum")
	f.String("palette", def.Palette, "preview palette (colour names or hex)")
	bindFlags(tempPercentileCmd,
		"boundary", "field", "value", "buffer", "archive", "prefix", "band", "start", "end",
		"percentile", "scale", "crs", "workers", "description", "output", "preview",
		"vis-min", "vis-max", "palette")
	rootCmd.AddCommand(tempPercentileCmd)
}

func temperatureConfig(name string) (delivery.TemperatureConfig, error) {
	key := func(flag string) string { return name + "." + flag }

	cfg := delivery.DefaultTemperatureConfig()
	cfg.BoundaryPath = viper.GetString(key("boundary"))
	cfg.FilterField = viper.GetString(key("field"))
	cfg.FilterValue = viper.GetString(key("value"))
	cfg.Buffer = viper.GetFloat64(key("buffer"))
	cfg.Archive = viper.GetString(key("archive"))
	cfg.TilePrefix = viper.GetString(key("prefix"))
	cfg.Band = viper.GetString(key("band"))

	var err error
	if cfg.Start, cfg.End, err = parseDateRange(viper.GetString(key("start")), viper.GetString(key("end"))); err != nil {
		return cfg, err
	}

	cfg.Percentile = viper.GetFloat64(key("percentile"))
	cfg.Scale = viper.GetFloat64(key("scale"))
	cfg.CRS = viper.GetString(key("crs"))
	cfg.Workers = viper.GetInt(key("workers"))
	cfg.Description = viper.GetString(key("description"))
	setIfNotEmpty(&cfg.OutputDir, viper.GetString(key("output")))
	cfg.Preview = viper.GetBool(key("preview"))
	cfg.VisMin = viper.GetFloat64(key("vis-min"))
	cfg.VisMax = viper.GetFloat64(key("vis-max"))
	cfg.Palette = viper.GetString(key("palette"))
	return cfg, nil
}
