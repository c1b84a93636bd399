// Command overlayrender draws the confidence overlay for an ID card image and
// prints the legend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cnic-overlay/internal/app"
	"cnic-overlay/internal/config"
	"cnic-overlay/internal/extraction"
	cnicimage "cnic-overlay/internal/image"
	"cnic-overlay/internal/overlay"
	"cnic-overlay/internal/raster"
	"cnic-overlay/internal/version"
)

func main() {
	imagePath := flag.String("image", "", "Path to the card image")
	resultPath := flag.String("result", "", "Path to the extraction result JSON (omit to call the extraction backend)")
	outPath := flag.String("out", "", "Path for the rendered overlay (format follows the extension)")
	legendPath := flag.String("legend", "", "Optional path for the legend JSON")
	configPath := flag.String("config", "", "Path to config.yaml")
	watch := flag.Bool("watch", false, "Re-render whenever the image or result file changes")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	if *imagePath == "" || *outPath == "" {
		fmt.Println("Usage: overlayrender -image <card> -out <overlay.png> [-result <result.json>] [-legend <legend.json>] [-config <config.yaml>] [-watch]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	r := &runner{
		cfg:        cfg,
		logger:     logger,
		imagePath:  *imagePath,
		resultPath: *resultPath,
		outPath:    *outPath,
		legendPath: *legendPath,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		if !*watch {
			os.Exit(1)
		}
	}

	if !*watch {
		return
	}

	paths := []string{*imagePath}
	if *resultPath != "" {
		paths = append(paths, *resultPath)
	}

	watcher := app.NewFileWatcher(500*time.Millisecond, paths...)
	watcher.OnChange(func(path string) {
		logger.Info("input changed", "path", path)
		if err := r.run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		}
	})
	watcher.Start()

	fmt.Printf("Watching %s for changes (Ctrl-C to stop)\n", strings.Join(paths, ", "))
	<-ctx.Done()
	watcher.Stop()
}

type runner struct {
	cfg    *config.Config
	logger *slog.Logger

	imagePath  string
	resultPath string
	outPath    string
	legendPath string

	mu sync.Mutex
}

// run performs one load-render-save cycle with a fresh State.
func (r *runner) run(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.loadResult(ctx)
	if err != nil {
		return err
	}

	renderer := overlay.NewRenderer(raster.Factory(r.cfg.FontSize), r.cfg.Render)
	renderer.Logger = r.logger

	state := app.NewState(cnicimage.FileDecoder{AutoOrient: r.cfg.AutoOrient}, renderer, r.logger)
	defer state.Dispose()

	var decodeErr error
	state.On(app.EventDecodeFailed, func(data interface{}) {
		decodeErr, _ = data.(error)
	})

	if err := state.SetResult(result); err != nil {
		return err
	}
	if err := state.SetSource(cnicimage.FileSource(r.imagePath)); err != nil {
		return err
	}
	state.Wait()

	if decodeErr != nil {
		return decodeErr
	}

	out := state.Output()
	if out == nil {
		return fmt.Errorf("nothing rendered for %s", r.imagePath)
	}

	if err := out.Composite.Save(r.outPath); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}

	if r.legendPath != "" {
		if err := writeLegend(r.legendPath, out.Legend); err != nil {
			return err
		}
	}

	printLegend(os.Stdout, out)
	fmt.Printf("Saved %s (%dx%d, %d fields drawn)\n", r.outPath, out.Composite.Width, out.Composite.Height, len(out.Composite.Drawn))
	return nil
}

// loadResult reads the result file, or asks the extraction backend when no
// file was given.
func (r *runner) loadResult(ctx context.Context) (*extraction.Result, error) {
	if r.resultPath != "" {
		data, err := os.ReadFile(r.resultPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read result: %w", err)
		}
		return extraction.Parse(data)
	}

	f, err := os.Open(r.imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	client := extraction.NewClient(r.cfg.ExtractionURL, r.cfg.ExtractionTimeout)
	client.Logger = r.logger
	return client.Extract(ctx, r.imagePath, f)
}

func writeLegend(path string, legend overlay.Legend) error {
	data, err := json.MarshalIndent(legend, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write legend: %w", err)
	}
	return nil
}

func printLegend(w io.Writer, out *app.Output) {
	fmt.Fprintln(w, "=== Confidence levels ===")
	for _, b := range out.Legend.Bands {
		fmt.Fprintf(w, "  %-10s %-8s %s\n", b.Label, b.Range, b.Hex)
	}

	fmt.Fprintln(w, "\n=== Fields ===")
	for _, s := range out.Legend.Stats {
		fmt.Fprintf(w, "  %s\n", s)
	}
	for _, warn := range out.Warnings {
		fmt.Fprintf(w, "  skipped: %v\n", warn)
	}

	sum := out.Legend.Summary
	if sum.Count > 0 {
		fmt.Fprintf(w, "\n%d fields, mean %s, min %s, max %s\n",
			sum.Count, overlay.Percent(sum.Mean), overlay.Percent(sum.Min), overlay.Percent(sum.Max))
	}
	fmt.Fprintln(w, "Fields that were not detected are not highlighted.")
}
