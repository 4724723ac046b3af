// Package export resamples a finished canvas to a named preset and encodes
// it.
package export

import (
	"bytes"
	"image"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/menta2k/headshot/pkg/types"
)

var presets = []types.ExportPreset{
	{Name: "linkedin", Label: "LinkedIn", TargetWidth: 400, TargetHeight: 400, Encoding: types.EncodingPNG},
	{Name: "resume", Label: "Resume", TargetWidth: 300, TargetHeight: 400, Encoding: types.EncodingPNG},
	{Name: "passport", Label: "Passport", TargetWidth: 300, TargetHeight: 300, Encoding: types.EncodingPNG},
	{Name: "email", Label: "Email Signature", TargetWidth: 200, TargetHeight: 200, Encoding: types.EncodingJPEG},
}

// Presets returns the preset catalog
func Presets() []types.ExportPreset {
	out := make([]types.ExportPreset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a preset by name, ignoring case
func LookupPreset(name string) (types.ExportPreset, bool) {
	for _, p := range presets {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return types.ExportPreset{}, false
}

// Config holds the encoder settings
type Config struct {
	JPEGQuality  int     `json:"jpeg_quality" yaml:"jpeg_quality"`
	WebPQuality  float32 `json:"webp_quality" yaml:"webp_quality"`
	WebPLossless bool    `json:"webp_lossless" yaml:"webp_lossless"`
}

// DefaultConfig returns JPEG quality 95 and WebP quality 90
func DefaultConfig() Config {
	return Config{
		JPEGQuality: 95,
		WebPQuality: 90,
	}
}

// Result is an encoded export
type Result struct {
	Preset   string         `json:"preset"`
	Encoding types.Encoding `json:"encoding"`
	MimeType string         `json:"mime_type"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Data     []byte         `json:"-"`
}

// Filename returns the download name, e.g. headshot-linkedin.png
func (r *Result) Filename() string {
	return "headshot-" + r.Preset + "." + r.Encoding.Extension()
}

// Rasterizer produces preset exports
type Rasterizer struct {
	config Config
}

// New creates a Rasterizer with the default configuration
func New() *Rasterizer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Rasterizer. Out-of-range qualities fall back to
// the defaults.
func NewWithConfig(config Config) *Rasterizer {
	defaults := DefaultConfig()
	if config.JPEGQuality < 1 || config.JPEGQuality > 100 {
		config.JPEGQuality = defaults.JPEGQuality
	}
	if config.WebPQuality <= 0 || config.WebPQuality > 100 {
		config.WebPQuality = defaults.WebPQuality
	}
	return &Rasterizer{config: config}
}

// Export encodes buf at the preset's size in the preset's encoding
func (r *Rasterizer) Export(buf *image.NRGBA, presetName string) (*Result, error) {
	return r.ExportAs(buf, presetName, "")
}

// ExportAs is Export with the encoding overridden. An empty encoding uses
// the preset's own.
func (r *Rasterizer) ExportAs(buf *image.NRGBA, presetName string, enc types.Encoding) (*Result, error) {
	if buf == nil || buf.Bounds().Empty() {
		return nil, errors.Wrap(types.ErrEncoding, "nothing to export")
	}
	preset, ok := LookupPreset(presetName)
	if !ok {
		return nil, errors.Wrapf(types.ErrEncoding, "unknown preset %q", presetName)
	}
	if enc == "" {
		enc = preset.Encoding
	}

	out := image.Image(buf)
	if buf.Bounds().Dx() != preset.TargetWidth || buf.Bounds().Dy() != preset.TargetHeight {
		out = imaging.Resize(buf, preset.TargetWidth, preset.TargetHeight, imaging.Linear)
	}

	data, err := r.encode(out, enc)
	if err != nil {
		return nil, err
	}

	return &Result{
		Preset:   preset.Name,
		Encoding: enc,
		MimeType: enc.MimeType(),
		Width:    preset.TargetWidth,
		Height:   preset.TargetHeight,
		Data:     data,
	}, nil
}

func (r *Rasterizer) encode(img image.Image, enc types.Encoding) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch enc {
	case types.EncodingPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case types.EncodingJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(r.config.JPEGQuality))
	case types.EncodingWebP:
		err = webp.Encode(&buf, img, &webp.Options{
			Lossless: r.config.WebPLossless,
			Quality:  r.config.WebPQuality,
		})
	default:
		return nil, errors.Wrapf(types.ErrEncoding, "unknown encoding %q", enc)
	}
	if err != nil {
		return nil, errors.Wrapf(types.ErrEncoding, "encode %s: %v", enc, err)
	}
	return buf.Bytes(), nil
}
