package ui

import (
	"context"
	"fmt"

	"github.com/forest-guardian/vegetation-indices/internal/plots"
)

type menuOption struct {
	title   string
	handler func(ctx context.Context) bool
}

// ShowMenu displays the main menu and handles user input until the user
// exits or ctx is cancelled.
func ShowMenu(ctx context.Context) {
	menuOptions := []menuOption{
		{"Compute the seasonal vegetation index maximum per plot", func(ctx context.Context) bool { SeasonalMax(ctx); return true }},
		{"Compute a temperature percentile over a boundary", func(ctx context.Context) bool { TemperaturePercentile(ctx); return true }},
		{"View the list of available plot collections", func(context.Context) bool { ListPlotFiles(); return true }},
		{"View the plots of a collection", func(context.Context) bool { ListPlots("", plots.DefaultUIDField); return true }},
		{"Exit the application", func(context.Context) bool { fmt.Println("Exiting..."); return false }},
	}

	for ctx.Err() == nil {
		fmt.Printf("%s===================%s\n", ColorBlue, ColorReset)
		for i, opt := range menuOptions {
			fmt.Printf("%s%d. %s%s\n", ColorBlue, i+1, opt.title, ColorReset)
		}

		choice, err := ReadInt("Please enter your choice: ", 1, len(menuOptions))
		if err != nil {
			if inputClosed {
				return
			}
			fmt.Printf("\n%sInvalid choice. Please enter a number between 1 and %d.%s\n", ColorRed, len(menuOptions), ColorReset)
			continue
		}
		if !menuOptions[choice-1].handler(ctx) {
			return
		}
	}
}
