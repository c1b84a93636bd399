// Package config loads the YAML configuration shared by the CLI, the HTTP
// server and the viewer.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cnic-overlay/internal/overlay"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Render     overlay.Options
	FontSize   float64
	AutoOrient bool

	Address        string
	MaxUploadBytes int64
	AllowedOrigins []string

	ExtractionURL     string
	ExtractionTimeout time.Duration

	LogLevel  slog.Level
	LogFormat string
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Render:   overlay.DefaultOptions(),
		FontSize: 14,

		Address:        ":8080",
		MaxUploadBytes: 16 << 20,
		AllowedOrigins: []string{"*"},

		ExtractionURL:     "http://localhost:5000",
		ExtractionTimeout: 60 * time.Second,

		LogLevel:  slog.LevelInfo,
		LogFormat: "text",
	}
}

// Load returns Default when path is empty and Parse otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Parse(path)
}

// Parse reads a YAML configuration file. Environment variables in the file
// are expanded and unknown keys are rejected.
func Parse(path string) (*Config, error) {
	file, err := parseFile(path)

	if err != nil {
		return nil, err
	}

	c := Default()

	if err := c.apply(file); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return c, nil
}

type configFile struct {
	Render     renderConfig     `yaml:"render"`
	Decode     decodeConfig     `yaml:"decode"`
	Server     serverConfig     `yaml:"server"`
	Extraction extractionConfig `yaml:"extraction"`
	Log        logConfig        `yaml:"log"`
}

type renderConfig struct {
	LineWidth    *float64 `yaml:"line_width"`
	FillAlpha    *float64 `yaml:"fill_alpha"`
	FontSize     *float64 `yaml:"font_size"`
	LabelOffset  *float64 `yaml:"label_offset"`
	PlatePadding *float64 `yaml:"plate_padding"`
	PlateAlpha   *float64 `yaml:"plate_alpha"`
}

type decodeConfig struct {
	AutoOrient bool `yaml:"auto_orient"`
}

type serverConfig struct {
	Address        string   `yaml:"address"`
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type extractionConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func parseFile(path string) (*configFile, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		return nil, err
	}

	data = []byte(os.ExpandEnv(string(data)))

	var config configFile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	// an empty file is a valid, all-default configuration
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return &config, nil
}

func (c *Config) apply(f *configFile) error {
	r := f.Render

	if err := setPositive(&c.Render.LineWidth, r.LineWidth, "render.line_width"); err != nil {
		return err
	}

	if err := setPositive(&c.FontSize, r.FontSize, "render.font_size"); err != nil {
		return err
	}

	if err := setUnit(&c.Render.FillAlpha, r.FillAlpha, "render.fill_alpha"); err != nil {
		return err
	}

	if err := setUnit(&c.Render.PlateAlpha, r.PlateAlpha, "render.plate_alpha"); err != nil {
		return err
	}

	if r.LabelOffset != nil {
		c.Render.LabelOffset = *r.LabelOffset
	}

	if r.PlatePadding != nil {
		c.Render.PlatePadding = *r.PlatePadding
	}

	c.AutoOrient = f.Decode.AutoOrient

	if f.Server.Address != "" {
		c.Address = f.Server.Address
	}

	if f.Server.MaxUploadMB < 0 {
		return fmt.Errorf("server.max_upload_mb must not be negative")
	}

	if f.Server.MaxUploadMB > 0 {
		c.MaxUploadBytes = f.Server.MaxUploadMB << 20
	}

	if f.Server.AllowedOrigins != nil {
		c.AllowedOrigins = f.Server.AllowedOrigins
	}

	if f.Extraction.URL != "" {
		c.ExtractionURL = strings.TrimRight(f.Extraction.URL, "/")
	}

	if f.Extraction.Timeout != "" {
		timeout, err := time.ParseDuration(f.Extraction.Timeout)

		if err != nil {
			return fmt.Errorf("extraction.timeout: %w", err)
		}

		c.ExtractionTimeout = timeout
	}

	if f.Log.Level != "" {
		if err := c.LogLevel.UnmarshalText([]byte(f.Log.Level)); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}

	switch f.Log.Format {
	case "":
	case "text", "json":
		c.LogFormat = f.Log.Format
	default:
		return fmt.Errorf("log.format: unsupported format %q", f.Log.Format)
	}

	return nil
}

func setPositive(dst *float64, v *float64, key string) error {
	if v == nil {
		return nil
	}

	if *v <= 0 {
		return fmt.Errorf("%s must be positive", key)
	}

	*dst = *v
	return nil
}

func setUnit(dst *float64, v *float64, key string) error {
	if v == nil {
		return nil
	}

	if *v < 0 || *v > 1 {
		return fmt.Errorf("%s must be between 0 and 1", key)
	}

	*dst = *v
	return nil
}

// NewLogger returns a slog logger writing to w with the configured level
// and format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}

	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}
