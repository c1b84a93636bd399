// Command overlayd serves the overlay renderer over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cnic-overlay/internal/config"
	"cnic-overlay/internal/extraction"
	cnicimage "cnic-overlay/internal/image"
	"cnic-overlay/internal/overlay"
	"cnic-overlay/internal/raster"
	"cnic-overlay/internal/server"
	"cnic-overlay/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml")
	address := flag.String("addr", "", "Listen address (overrides the config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Address = *address
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	renderer := overlay.NewRenderer(raster.Factory(cfg.FontSize), cfg.Render)
	renderer.Logger = logger

	var extractor server.Extractor
	if cfg.ExtractionURL != "" {
		client := extraction.NewClient(cfg.ExtractionURL, cfg.ExtractionTimeout)
		client.Logger = logger
		extractor = client
	}

	s := server.New(cfg, cnicimage.FileDecoder{AutoOrient: cfg.AutoOrient}, renderer, extractor, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "version", version.Version, "extraction", cfg.ExtractionURL)

	if err := s.ListenAndServe(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
