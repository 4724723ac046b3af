package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/headshot"
	"github.com/menta2k/headshot/pkg/compositor"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/export"
	"github.com/menta2k/headshot/pkg/source"
)

// Detector backends
const (
	BackendNone     = headshot.BackendNone
	BackendSaliency = headshot.BackendSaliency
	BackendOllama   = headshot.BackendOllama
	BackendLlamaCpp = headshot.BackendLlamaCpp
)

// Config holds the application configuration
type Config struct {
	Source     SourceConfig     `json:"source" yaml:"source"`
	Compositor CompositorConfig `json:"compositor" yaml:"compositor"`
	Cropper    CropperConfig    `json:"cropper" yaml:"cropper"`
	Detector   DetectorConfig   `json:"detector" yaml:"detector"`
	Export     ExportConfig     `json:"export" yaml:"export"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// SourceConfig holds configuration for photo decoding
type SourceConfig struct {
	MaxBytes         int64    `json:"max_bytes" yaml:"max_bytes"`
	SupportedFormats []string `json:"supported_formats" yaml:"supported_formats"`
	MinImageSize     int      `json:"min_image_size" yaml:"min_image_size"`
	AutoOrient       bool     `json:"auto_orient" yaml:"auto_orient"`
}

// CompositorConfig holds the canvas settings
type CompositorConfig struct {
	CanvasWidth  int    `json:"canvas_width" yaml:"canvas_width"`
	CanvasHeight int    `json:"canvas_height" yaml:"canvas_height"`
	Interpolator string `json:"interpolator" yaml:"interpolator"`
}

// CropperConfig holds configuration for crop suggestion
type CropperConfig struct {
	PaddingRatio  float64  `json:"padding_ratio" yaml:"padding_ratio"`
	DetectTimeout Duration `json:"detect_timeout" yaml:"detect_timeout"`
}

// DetectorConfig selects and configures the face detector
type DetectorConfig struct {
	Backend       string   `json:"backend" yaml:"backend"`
	URL           string   `json:"url" yaml:"url"` // empty uses the backend's default
	Model         string   `json:"model" yaml:"model"`
	Timeout       Duration `json:"timeout" yaml:"timeout"`
	MaxDim        uint     `json:"max_dim" yaml:"max_dim"`
	MinConfidence float64  `json:"min_confidence" yaml:"min_confidence"`
}

// ExportConfig holds encoder settings and render defaults
type ExportConfig struct {
	DefaultPreset string  `json:"default_preset" yaml:"default_preset"`
	JPEGQuality   int     `json:"jpeg_quality" yaml:"jpeg_quality"`
	WebPQuality   float32 `json:"webp_quality" yaml:"webp_quality"`
	WebPLossless  bool    `json:"webp_lossless" yaml:"webp_lossless"`
	OutputDir     string  `json:"output_dir" yaml:"output_dir"`
}

// ServerConfig holds configuration for the HTTP API
type ServerConfig struct {
	Addr         string   `json:"addr" yaml:"addr"`
	ReadTimeout  Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout" yaml:"write_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // console or json
}

// Duration is a time.Duration written as a string such as "30s"
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns a configuration with default values
func Default() *Config {
	src := source.DefaultConfig()
	comp := compositor.DefaultConfig()
	exp := export.DefaultConfig()

	return &Config{
		Source: SourceConfig{
			MaxBytes:         src.MaxBytes,
			SupportedFormats: src.SupportedFormats,
			MinImageSize:     src.MinImageSize,
			AutoOrient:       src.AutoOrient,
		},
		Compositor: CompositorConfig{
			CanvasWidth:  comp.CanvasWidth,
			CanvasHeight: comp.CanvasHeight,
			Interpolator: comp.Interpolator,
		},
		Cropper: CropperConfig{
			PaddingRatio:  cropper.DefaultPaddingRatio,
			DetectTimeout: Duration(cropper.DefaultDetectTimeout),
		},
		Detector: DetectorConfig{
			Backend:       BackendSaliency,
			Model:         "llava",
			Timeout:       Duration(2 * time.Minute),
			MaxDim:        768,
			MinConfidence: 0.3,
		},
		Export: ExportConfig{
			DefaultPreset: headshot.DefaultPreset,
			JPEGQuality:   exp.JPEGQuality,
			WebPQuality:   exp.WebPQuality,
			WebPLossless:  exp.WebPLossless,
			OutputDir:     "./output",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by
// extension. Settings missing from the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveToFile saves configuration as JSON or YAML, chosen by extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	var data []byte
	var err error
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Source.MaxBytes < 1 {
		return errors.New("source.max_bytes must be positive")
	}

	if len(c.Source.SupportedFormats) == 0 {
		return errors.New("source.supported_formats cannot be empty")
	}

	if c.Source.MinImageSize < 0 {
		return errors.New("source.min_image_size cannot be negative")
	}

	if c.Compositor.CanvasWidth < 1 || c.Compositor.CanvasHeight < 1 {
		return errors.New("compositor canvas dimensions must be positive")
	}

	if _, ok := compositor.Interpolator(c.Compositor.Interpolator); !ok {
		return errors.Errorf("compositor.interpolator %q is not supported", c.Compositor.Interpolator)
	}

	if c.Cropper.PaddingRatio < 0 || c.Cropper.PaddingRatio > 1 {
		return errors.New("cropper.padding_ratio must be between 0 and 1")
	}

	if c.Cropper.DetectTimeout < 0 {
		return errors.New("cropper.detect_timeout cannot be negative")
	}

	switch c.Detector.Backend {
	case BackendNone, BackendSaliency, BackendLlamaCpp:
	case BackendOllama:
		if c.Detector.Model == "" {
			return errors.New("detector.model is required for the ollama backend")
		}
	default:
		return errors.Errorf("detector.backend %q is not one of none, saliency, ollama, llamacpp", c.Detector.Backend)
	}

	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return errors.New("detector.min_confidence must be between 0 and 1")
	}

	if _, ok := export.LookupPreset(c.Export.DefaultPreset); !ok {
		return errors.Errorf("export.default_preset %q is unknown", c.Export.DefaultPreset)
	}

	if c.Export.JPEGQuality < 1 || c.Export.JPEGQuality > 100 {
		return errors.New("export.jpeg_quality must be between 1 and 100")
	}

	if c.Export.WebPQuality <= 0 || c.Export.WebPQuality > 100 {
		return errors.New("export.webp_quality must be between 0 and 100")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Errorf("log.format %q must be console or json", c.Log.Format)
	}

	return nil
}

// ToSource converts the section for source.NewWithConfig
func (c SourceConfig) ToSource() source.Config {
	return source.Config{
		MaxBytes:         c.MaxBytes,
		SupportedFormats: c.SupportedFormats,
		MinImageSize:     c.MinImageSize,
		AutoOrient:       c.AutoOrient,
	}
}

// ToCompositor converts the section for compositor.NewWithConfig
func (c CompositorConfig) ToCompositor() compositor.Config {
	return compositor.Config{
		CanvasWidth:  c.CanvasWidth,
		CanvasHeight: c.CanvasHeight,
		Interpolator: c.Interpolator,
	}
}

// ToCropper converts the section for cropper.NewWithConfig
func (c CropperConfig) ToCropper() cropper.CropConfig {
	return cropper.CropConfig{
		PaddingRatio:  c.PaddingRatio,
		DetectTimeout: c.DetectTimeout.Std(),
	}
}

// ToExport converts the section for export.NewWithConfig
func (c ExportConfig) ToExport() export.Config {
	return export.Config{
		JPEGQuality:  c.JPEGQuality,
		WebPQuality:  c.WebPQuality,
		WebPLossless: c.WebPLossless,
	}
}

// ToStudio converts the whole configuration for headshot.NewWithConfig
func (c *Config) ToStudio() headshot.Config {
	return headshot.Config{
		Source:     c.Source.ToSource(),
		Compositor: c.Compositor.ToCompositor(),
		Cropper:    c.Cropper.ToCropper(),
		Detector: headshot.DetectorConfig{
			Backend:       c.Detector.Backend,
			URL:           c.Detector.URL,
			Model:         c.Detector.Model,
			Timeout:       c.Detector.Timeout.Std(),
			MaxDim:        c.Detector.MaxDim,
			MinConfidence: c.Detector.MinConfidence,
		},
		Export:        c.Export.ToExport(),
		DefaultPreset: c.Export.DefaultPreset,
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "headshot", "config.json")
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}
