package ui

import (
	"context"
	"fmt"
	"os"

	"github.com/forest-guardian/vegetation-indices/internal/delivery"
	"github.com/forest-guardian/vegetation-indices/internal/notification"
	"github.com/forest-guardian/vegetation-indices/internal/sentinel"
	"github.com/forest-guardian/vegetation-indices/output"
)

// SeasonalMax prompts for the vegetation job options and runs it.
func SeasonalMax(ctx context.Context) {
	PrintWarning(fmt.Sprintf("- Plot collections are read from '%s'.\n- Sentinel-2 tiles named '<prefix>_<YYYY-MM-DD>.tif' are read from the images folder.", plotsDir()))

	cfg := delivery.DefaultSeasonalMaxConfig()
	path, err := SelectFile("Available plot collections", plotsDir(), false, vectorExtensions...)
	if err != nil {
		PrintError(err.Error())
		return
	}
	cfg.PlotsPath = path
	cfg.UIDField = ReadStringDefault("Enter the uid field", cfg.UIDField)

	index, err := sentinel.ParseIndexType(ReadStringDefault("Enter the vegetation index (EVI or NDVI)", string(cfg.Index)))
	if err != nil {
		PrintError(err.Error())
		return
	}
	cfg.Index = index

	cfg.Start, cfg.End, err = ReadDateRange(cfg.Start, cfg.End)
	if err != nil {
		PrintError(err.Error())
		return
	}
	if cfg.Buffer, err = ReadFloat("Enter the plot buffer in metres", cfg.Buffer); err != nil {
		PrintError(err.Error())
		return
	}
	if cfg.Scale, err = ReadFloat("Enter the reduction scale in metres", cfg.Scale); err != nil {
		PrintError(err.Error())
		return
	}
	cfg.Description = ReadStringDefault("Enter the output description", cfg.OutputName())
	cfg.Fetch = ReadYesNo("Download missing tiles from Copernicus?")
	cfg.ZonalCSV = ReadYesNo("Also export every zonal mean?")
	cfg.Chart = ReadYesNo("Draw the zonal means chart?")

	result, err := delivery.SeasonalMax(ctx, cfg)
	if err != nil {
		PrintError(fmt.Sprintf("Error computing seasonal maximum: %s", err.Error()))
		if err := notification.SendDiscordErrorNotification(fmt.Sprintf("Vegetation indices CLI\n\nError computing seasonal maximum: %s", err.Error())); err != nil {
			PrintError(fmt.Sprintf("Failed to send notification: %s", err.Error()))
		}
		return
	}

	fmt.Println()
	if err := output.PrintSeasonalTable(os.Stdout, result.Maxima); err != nil {
		PrintError(err.Error())
	}
	PrintSuccess(fmt.Sprintf("Seasonal maximum written to %s", result.CSVPath))
}
