package ui

import (
	"context"
	"fmt"

	"github.com/forest-guardian/vegetation-indices/internal/delivery"
	"github.com/forest-guardian/vegetation-indices/internal/notification"
	"github.com/forest-guardian/vegetation-indices/internal/properties"
)

// TemperaturePercentile prompts for the temperature job options and runs it.
func TemperaturePercentile(ctx context.Context) {
	boundaries := properties.DataPath("boundaries")
	climate := properties.DataPath("climate")
	PrintWarning(fmt.Sprintf("- Boundary files are read from '%s'.\n- Temperature archives (NetCDF files or tile folders) are read from '%s'.", boundaries, climate))

	cfg := delivery.DefaultTemperatureConfig()
	var err error
	if cfg.BoundaryPath, err = SelectFile("Available boundary files", boundaries, false, vectorExtensions...); err != nil {
		PrintError(err.Error())
		return
	}
	cfg.FilterField = ReadStringDefault("Enter the boundary field", cfg.FilterField)
	cfg.FilterValue = ReadStringDefault("Enter the boundary value", cfg.FilterValue)
	if cfg.Archive, err = SelectFile("Available temperature archives", climate, true, ".nc", ".nc4"); err != nil {
		PrintError(err.Error())
		return
	}
	cfg.Band = ReadStringDefault("Enter the temperature band", cfg.Band)

	cfg.Start, cfg.End, err = ReadDateRange(cfg.Start, cfg.End)
	if err != nil {
		PrintError(err.Error())
		return
	}
	if cfg.Percentile, err = ReadFloat("Enter the percentile", cfg.Percentile); err != nil {
		PrintError(err.Error())
		return
	}
	if cfg.Scale, err = ReadFloat("Enter the export scale in metres", cfg.Scale); err != nil {
		PrintError(err.Error())
		return
	}
	cfg.Description = ReadStringDefault("Enter the output description", cfg.Description)
	cfg.Preview = ReadYesNo("Render a preview image?")

	result, err := delivery.TemperaturePercentile(ctx, cfg)
	if err != nil {
		PrintError(fmt.Sprintf("Error computing temperature percentile: %s", err.Error()))
		if err := notification.SendDiscordErrorNotification(fmt.Sprintf("Vegetation indices CLI\n\nError computing temperature percentile: %s", err.Error())); err != nil {
			PrintError(fmt.Sprintf("Failed to send notification: %s", err.Error()))
		}
		return
	}

	PrintSuccess(fmt.Sprintf("Min %s: %.2f\nMax %s: %.2f\nGeoTIFF written to %s",
		result.Band, result.Summary.Min, result.Band, result.Summary.Max, result.TIFFPath))
	if result.PreviewPath != "" {
		PrintSuccess(fmt.Sprintf("Preview written to %s", result.PreviewPath))
	}
}
