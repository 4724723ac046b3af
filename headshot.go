// Package headshot turns a portrait photo into a styled square headshot.
//
// A render runs four stages, each in its own package:
//
//  1. Source (pkg/source): decode the upload with EXIF auto-orientation
//  2. Compositor (pkg/compositor): draw the photo, optionally cropped, over a
//     solid or gradient background on a fixed canvas, then apply tonal
//     adjustments and a stylistic filter
//  3. Cropper (pkg/cropper): suggest a square crop around the detected faces,
//     falling back to the center square when detection fails
//  4. Export (pkg/export): resample the canvas to a named preset and encode it
//
// Basic usage:
//
//	studio := headshot.New()
//
//	data, _ := os.ReadFile("me.jpg")
//	opts := headshot.DefaultRenderOptions()
//	opts.Background, _ = background.Parse("Blue Gradient")
//	opts.Filter = types.FilterProfessional
//	opts.Preset = "passport"
//	opts.AutoCrop = true
//
//	result, err := studio.Render(ctx, data, opts)
//	if err != nil {
//		log.Fatal(err)
//	}
//	os.WriteFile(result.Filename(), result.Data, 0o644)
//
// Face detection is pluggable. The default backend is an offline saliency
// heuristic (pkg/vision); Ollama and llama.cpp vision models are supported
// through pkg/detection.
package headshot

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/headshot/pkg/background"
	"github.com/menta2k/headshot/pkg/compositor"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/export"
	"github.com/menta2k/headshot/pkg/filter"
	"github.com/menta2k/headshot/pkg/llamacpp"
	"github.com/menta2k/headshot/pkg/ollama"
	"github.com/menta2k/headshot/pkg/source"
	"github.com/menta2k/headshot/pkg/types"
	"github.com/menta2k/headshot/pkg/vision"
)

// Version of the headshot library
const Version = "1.0.0"

// Detector backends
const (
	BackendNone     = "none"
	BackendSaliency = "saliency"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// DefaultPreset is used when a render names no preset
const DefaultPreset = "linkedin"

// DetectorConfig selects the face detector backend
type DetectorConfig struct {
	Backend       string
	URL           string // empty uses the backend's default address
	Model         string
	Timeout       time.Duration
	MaxDim        uint
	MinConfidence float64
}

// Config holds the configuration of every stage
type Config struct {
	Source        source.Config
	Compositor    compositor.Config
	Cropper       cropper.CropConfig
	Detector      DetectorConfig
	Export        export.Config
	DefaultPreset string
}

// DefaultConfig returns the defaults of every stage with the saliency
// detector
func DefaultConfig() Config {
	return Config{
		Source:        source.DefaultConfig(),
		Compositor:    compositor.DefaultConfig(),
		Cropper:       cropper.DefaultConfig(),
		Detector:      DetectorConfig{Backend: BackendSaliency},
		Export:        export.DefaultConfig(),
		DefaultPreset: DefaultPreset,
	}
}

// NewDetector builds the face detector for a backend. BackendNone returns a
// nil detector, which makes every crop suggestion the center square.
func NewDetector(cfg DetectorConfig) (detection.FaceDetector, error) {
	var detector detection.FaceDetector

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendNone:
		return nil, nil
	case "", BackendSaliency:
		return vision.New(), nil
	case BackendOllama:
		c, err := ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Ollama client")
		}
		detector = detection.NewVisionDetector(c, visionConfig(cfg))
	case BackendLlamaCpp:
		detector = detection.NewVisionDetector(llamacpp.NewClient(cfg.URL, cfg.Timeout), visionConfig(cfg))
	default:
		return nil, errors.Errorf("unknown detector backend %q (use none, saliency, ollama or llamacpp)", cfg.Backend)
	}

	if cfg.Timeout <= 0 {
		return detector, nil
	}
	return withTimeout(detector, cfg.Timeout), nil
}

func visionConfig(cfg DetectorConfig) detection.Config {
	vc := detection.DefaultConfig()
	vc.Model = cfg.Model
	if cfg.MaxDim > 0 {
		vc.MaxDim = cfg.MaxDim
	}
	if cfg.MinConfidence > 0 {
		vc.MinConfidence = cfg.MinConfidence
	}
	return vc
}

func withTimeout(d detection.FaceDetector, timeout time.Duration) detection.FaceDetector {
	return detection.Func(func(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return d.DetectFaces(ctx, img)
	})
}

// Studio provides a high-level interface over the render pipeline
type Studio struct {
	loader        *source.Loader
	compositor    *compositor.Compositor
	rasterizer    *export.Rasterizer
	cropper       *cropper.SmartCropper
	defaultPreset string
}

// New creates a Studio with default configuration and the saliency detector
func New() *Studio {
	s, _ := NewWithConfig(DefaultConfig())
	return s
}

// NewWithConfig creates a Studio with custom configuration. It fails only
// when the detector backend cannot be built.
func NewWithConfig(cfg Config) (*Studio, error) {
	detector, err := NewDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}

	preset := cfg.DefaultPreset
	if _, ok := export.LookupPreset(preset); !ok {
		preset = DefaultPreset
	}

	return &Studio{
		loader:        source.NewWithConfig(cfg.Source),
		compositor:    compositor.NewWithConfig(cfg.Compositor),
		rasterizer:    export.NewWithConfig(cfg.Export),
		cropper:       cropper.NewWithConfig(detector, cfg.Cropper),
		defaultPreset: preset,
	}, nil
}

// SetDetector replaces the face detector used for crop suggestions
func (s *Studio) SetDetector(detector detection.FaceDetector) {
	s.cropper.SetDetector(detector)
}

// MaxBytes returns the largest accepted upload
func (s *Studio) MaxBytes() int64 {
	return s.loader.Config().MaxBytes
}

// DefaultPresetName returns the preset used when a render names none
func (s *Studio) DefaultPresetName() string {
	return s.defaultPreset
}

// RenderOptions describes one render. Crop is relative to the decoded
// photo's top-left corner; when it is nil and AutoCrop is set the suggested
// crop is used.
//
// Adjustments are always applied as given. Their zero value is not neutral:
// brightness, contrast and saturation of 0 give a flat gray canvas.
// Start from DefaultRenderOptions, whose sliders sit at the neutral 50.
type RenderOptions struct {
	Background  background.Spec
	Crop        *types.Rect
	Adjustments types.AdjustmentSettings
	Filter      types.FilterKind
	Preset      string
	Encoding    types.Encoding
	AutoCrop    bool
}

// DefaultRenderOptions returns a white background with neutral adjustments,
// no filter and no crop
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Adjustments: types.DefaultAdjustments()}
}

// Load decodes an encoded photo
func (s *Studio) Load(data []byte) (image.Image, error) {
	img, _, err := s.loader.Decode(data)
	return img, err
}

// LoadURL downloads and decodes a photo over http or https
func (s *Studio) LoadURL(ctx context.Context, url string) (image.Image, error) {
	img, _, err := s.loader.LoadURL(ctx, url)
	return img, err
}

// Info returns dimension information about a decoded photo
func (s *Studio) Info(img image.Image) source.ImageInfo {
	return s.loader.Info(img)
}

// Render decodes data, composes it and exports the preset
func (s *Studio) Render(ctx context.Context, data []byte, opts RenderOptions) (*export.Result, error) {
	img, format, err := s.loader.Decode(data)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().Str("format", format).
		Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).
		Msg("Photo decoded")

	return s.RenderImage(ctx, img, opts)
}

// RenderImage composes a decoded photo and exports the preset
func (s *Studio) RenderImage(ctx context.Context, img image.Image, opts RenderOptions) (*export.Result, error) {
	start := time.Now()

	canvas, err := s.Compose(ctx, img, opts)
	if err != nil {
		return nil, err
	}

	preset := opts.Preset
	if preset == "" {
		preset = s.defaultPreset
	}
	result, err := s.rasterizer.ExportAs(canvas, preset, opts.Encoding)
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Debug().
		Str("preset", result.Preset).
		Str("encoding", string(result.Encoding)).
		Int("bytes", len(result.Data)).
		Dur("took", time.Since(start)).
		Msg("Headshot rendered")
	return result, nil
}

// Compose draws img onto a new canvas buffer
func (s *Studio) Compose(ctx context.Context, img image.Image, opts RenderOptions) (*image.NRGBA, error) {
	crop := opts.Crop
	if crop == nil && opts.AutoCrop {
		suggestion, err := s.cropper.Suggest(ctx, img)
		if err != nil {
			return nil, err
		}
		crop = &suggestion.Rect
	}

	return s.compositor.Compose(img, compositor.Request{
		Background:  opts.Background,
		Crop:        crop,
		Adjustments: opts.Adjustments,
		Filter:      opts.Filter,
	})
}

// SuggestCrop decodes data and suggests a square crop around its faces
func (s *Studio) SuggestCrop(ctx context.Context, data []byte) (cropper.Suggestion, error) {
	img, _, err := s.loader.Decode(data)
	if err != nil {
		return cropper.Suggestion{}, err
	}
	return s.cropper.Suggest(ctx, img)
}

// SuggestCropImage suggests a square crop for a decoded photo
func (s *Studio) SuggestCropImage(ctx context.Context, img image.Image) (cropper.Suggestion, error) {
	return s.cropper.Suggest(ctx, img)
}

// Presets returns the export preset catalog
func (s *Studio) Presets() []types.ExportPreset {
	return export.Presets()
}

// Backgrounds returns the background catalog
func (s *Studio) Backgrounds() []background.Option {
	return background.Catalog()
}

// Filters returns the filter catalog
func (s *Studio) Filters() []filter.Option {
	return filter.Catalog()
}
