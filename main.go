// Package main provides the entry point for the CNIC overlay viewer.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cnic-overlay/internal/app"
	"cnic-overlay/internal/config"
	"cnic-overlay/internal/extraction"
	cnicimage "cnic-overlay/internal/image"
	"cnic-overlay/internal/overlay"
	"cnic-overlay/internal/raster"
	"cnic-overlay/internal/version"
	"cnic-overlay/ui/mainwindow"
	"cnic-overlay/ui/prefs"

	fyneapp "fyne.io/fyne/v2/app"
)

const appID = "io.github.cnic-overlay"

func main() {
	configPath := flag.String("config", "", "Path to config.yaml")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config <config.yaml>] [image] [result.json]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	logger.Info("starting viewer", "version", version.Version)

	renderer := overlay.NewRenderer(raster.Factory(cfg.FontSize), cfg.Render)
	renderer.Logger = logger

	state := app.NewState(cnicimage.FileDecoder{AutoOrient: cfg.AutoOrient}, renderer, logger)

	client := extraction.NewClient(cfg.ExtractionURL, cfg.ExtractionTimeout)
	client.Logger = logger

	fyneApp := fyneapp.NewWithID(appID)

	win := mainwindow.New(fyneApp, state, prefs.Load(), client, logger)

	// Handle command line arguments
	if flag.NArg() > 0 {
		win.OpenImage(flag.Arg(0))
	}
	if flag.NArg() > 1 {
		resultPath := flag.Arg(1)
		if err := win.OpenResult(resultPath); err != nil {
			logger.Error("failed to open result", "path", resultPath, "error", err)
		}

		// Pick up edits to the result file while the viewer is open
		watcher := app.NewFileWatcher(time.Second, resultPath)
		watcher.OnChange(func(path string) {
			if err := win.OpenResult(path); err != nil {
				logger.Warn("failed to reload result", "path", path, "error", err)
			}
		})
		watcher.Start()
		defer watcher.Stop()
	}

	win.ShowAndRun()
}
