package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/vegetation-indices/internal/delivery"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/forest-guardian/vegetation-indices/internal/sentinel"
	"github.com/forest-guardian/vegetation-indices/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var seasonalMaxCmd = &cobra.Command{
	Use:   "seasonal-max",
	Short: "Seasonal maximum of EVI or NDVI per plot",
	Long: `Reduce every cloud-masked Sentinel-2 image of the date range to the mean
index value of each plot, then keep the highest mean per plot and write it
to <output>/<description>.csv.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := seasonalMaxConfig(cmd.Name())
		if err != nil {
			return err
		}
		result, err := delivery.SeasonalMax(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if err := output.PrintSeasonalTable(os.Stdout, result.Maxima); err != nil {
			return err
		}
		bannercolor.Green("Seasonal maximum written to %s", result.CSVPath)
		return nil
	},
}

func init() {
	def := delivery.DefaultSeasonalMaxConfig()
	f := seasonalMaxCmd.Flags()
	f.String("plots", "", "plot collection (GeoJSON, Shapefile, GeoPackage)")
	f.String("uid-field", def.UIDField, "attribute holding the plot identifier")
	f.String("images", "", "folder of Sentinel-2 tiles named <prefix>_<YYYY-MM-DD>.tif (default <ROOT_PATH>/data/images)")
	f.String("prefix", def.TilePrefix, "tile file name prefix")
	f.StringSlice("band-order", def.BandOrder, "band names of the tile files in order")
	f.String("nir", def.Bands.NIR, "near infrared band")
	f.String("red", def.Bands.Red, "red band")
	f.String("blue", def.Bands.Blue, "blue band")
	f.String("qa", def.Bands.QA, "cloud mask band")
	f.String("start", def.Start.Format(raster.DateLayout), "first date (inclusive)")
	f.String("end", def.End.Format(raster.DateLayout), "last date (exclusive)")
	f.String("index", string(def.Index), "vegetation index (EVI or NDVI)")
	f.Float64("buffer", def.Buffer, "plot buffer in metres")
	f.Float64("scale", def.Scale, "reduction scale in metres")
	f.String("crs", def.CRS, "reduction CRS")
	f.Int("workers", runtime.NumCPU(), "images processed in parallel")
	f.String("description", "", "output file name (default <index>_seasonal_max)")
	f.String("output", "", "output folder (default <ROOT_PATH>/data/result)")
	f.Bool("fetch", false, "download missing tiles from Copernicus into a folder of --images per plot area")
	f.Bool("zonal-csv", false, "also write every per-image zonal mean")
	f.Bool("chart", false, "draw the per-plot zonal means chart")
	f.Bool("cache", false, "reuse per-image zonal means between runs")
	bindFlags(seasonalMaxCmd,
		"plots", "uid-field", "images", "prefix", "band-order", "nir", "red", "blue", "qa",
		"start", "end", "index", "buffer", "scale", "crs", "workers", "description", "output",
		"fetch", "zonal-csv", "chart", "cache")
	rootCmd.AddCommand(seasonalMaxCmd)
}

func seasonalMaxConfig(name string) (delivery.SeasonalMaxConfig, error) {
	key := func(flag string) string { return name + "." + flag }

	cfg := delivery.DefaultSeasonalMaxConfig()
	cfg.PlotsPath = viper.GetString(key("plots"))
	cfg.UIDField = viper.GetString(key("uid-field"))
	cfg.TilePrefix = viper.GetString(key("prefix"))
	cfg.BandOrder = viper.GetStringSlice(key("band-order"))
	cfg.Bands = sentinel.BandSet{
		NIR:  viper.GetString(key("nir")),
		Red:  viper.GetString(key("red")),
		Blue: viper.GetString(key("blue")),
		QA:   viper.GetString(key("qa")),
	}

	index, err := sentinel.ParseIndexType(viper.GetString(key("index")))
	if err != nil {
		return cfg, err
	}
	cfg.Index = index
	if cfg.Start, cfg.End, err = parseDateRange(viper.GetString(key("start")), viper.GetString(key("end"))); err != nil {
		return cfg, err
	}

	cfg.Buffer = viper.GetFloat64(key("buffer"))
	cfg.Scale = viper.GetFloat64(key("scale"))
	cfg.CRS = viper.GetString(key("crs"))
	cfg.Workers = viper.GetInt(key("workers"))
	cfg.Description = viper.GetString(key("description"))
	setIfNotEmpty(&cfg.ImagesDir, viper.GetString(key("images")))
	setIfNotEmpty(&cfg.OutputDir, viper.GetString(key("output")))
	cfg.Fetch = viper.GetBool(key("fetch"))
	cfg.ZonalCSV = viper.GetBool(key("zonal-csv"))
	cfg.Chart = viper.GetBool(key("chart"))
	cfg.UseCache = viper.GetBool(key("cache"))
	return cfg, nil
}

// setIfNotEmpty keeps the ROOT_PATH based default, resolved after .env is
// loaded, unless a value was given.
func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func parseDateRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(raster.DateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(raster.DateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return s, e, nil
}
