package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/vegetation-indices/internal/log"
	"github.com/forest-guardian/vegetation-indices/internal/notification"
	"github.com/forest-guardian/vegetation-indices/internal/properties"
	"github.com/joho/godotenv"
)

// loadEnv reads the first .env found next to the binary or in its parents.
// Missing files are fine when the environment is already set.
func loadEnv() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			bannercolor.Yellow("Failed to load %s: %v", path, err)
		}
		return
	}
}

func main() {
	loadEnv()
	if err := log.Init(properties.LogDebug()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		bannercolor.Red("\nError: %s", err.Error())
		if notifyErr := notification.SendDiscordErrorNotification(fmt.Sprintf("Vegetation indices CLI\n\n%s", err.Error())); notifyErr != nil {
			bannercolor.Red("Failed to send notification: %s", notifyErr.Error())
		}
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}
