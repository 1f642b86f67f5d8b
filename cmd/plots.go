package main

import (
	"github.com/forest-guardian/vegetation-indices/internal/plots"
	"github.com/forest-guardian/vegetation-indices/internal/ui"
	"github.com/spf13/cobra"
)

var uidField string

var plotsCmd = &cobra.Command{
	Use:   "plots [file]",
	Short: "List plot collections, or the plots of one collection",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			ui.ListPlotFiles()
			return
		}
		ui.ListPlots(args[0], uidField)
	},
}

func init() {
	plotsCmd.Flags().StringVar(&uidField, "uid-field", plots.DefaultUIDField, "attribute holding the plot identifier")
	rootCmd.AddCommand(plotsCmd)
}
