package ui

import (
	"fmt"

	"github.com/forest-guardian/vegetation-indices/internal/plots"
	"github.com/forest-guardian/vegetation-indices/internal/properties"
)

var vectorExtensions = []string{".geojson", ".json", ".shp", ".gpkg", ".kml"}

func plotsDir() string {
	return properties.DataPath("plots")
}

// ListPlotFiles handles the UI for viewing the available plot collections
func ListPlotFiles() {
	names, err := ListFiles(plotsDir(), false, vectorExtensions...)
	if err != nil {
		PrintError(err.Error())
		return
	}

	PrintWarning(fmt.Sprintf("To add a plot collection, add a vector file (GeoJSON, Shapefile, GeoPackage) at '%s'.", plotsDir()))

	fmt.Printf("\n%sAvailable plot collections:%s\n", ColorGreen, ColorReset)
	for _, name := range names {
		fmt.Printf("%s- %s%s\n", ColorGreen, name, ColorReset)
	}
}

// ListPlots handles the UI for viewing the uids of a plot collection. An
// empty path prompts for the collection.
func ListPlots(path, uidField string) {
	PrintWarning("Every plot feature needs a unique identifier property ('uid' by default).")

	if path == "" {
		selected, err := SelectFile("Available plot collections", plotsDir(), false, vectorExtensions...)
		if err != nil {
			PrintError(err.Error())
			return
		}
		path = selected
	}

	ps, err := plots.Load(path, plots.Options{UIDField: uidField})
	if err != nil {
		PrintError(err.Error())
		return
	}
	uids := plots.UIDs(ps)

	fmt.Printf("\n%sAvailable plots (%d):%s\n", ColorGreen, len(uids), ColorReset)
	for _, uid := range uids {
		fmt.Printf("%s- %s%s\n", ColorGreen, uid, ColorReset)
	}
}
