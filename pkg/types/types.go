package types

import (
	"image"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Rect is an axis-aligned rectangle in pixel space. Coordinates are kept as
// floats so fit and crop math stays exact until the final rasterization.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge
func (r Rect) Right() float64 {
	return r.X + r.Width
}

// Bottom returns the y coordinate of the bottom edge
func (r Rect) Bottom() float64 {
	return r.Y + r.Height
}

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool {
	return !(r.Width > 0) || !(r.Height > 0)
}

// Contains reports whether o lies entirely inside r
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y && o.Right() <= r.Right() && o.Bottom() <= r.Bottom()
}

// Valid reports whether every field is a finite number
func (r Rect) Valid() bool {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ImageRect rounds the rectangle to integer pixel bounds
func (r Rect) ImageRect() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.Right())),
		int(math.Round(r.Bottom())),
	)
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// FaceBox is a detected face in source-image pixel coordinates
type FaceBox struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Rect returns the face bounds as a Rect
func (f FaceBox) Rect() Rect {
	return Rect{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
}

// DetectedFace is a single face reported by a vision model
type DetectedFace struct {
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// FaceAnalysis contains the parsed reply of a vision model asked for faces
type FaceAnalysis struct {
	Faces       []DetectedFace `json:"faces"`
	Description string         `json:"description"`
}

// AdjustmentSettings holds the three tonal sliders. Every value is in
// [0,100] and 50 is the neutral point.
type AdjustmentSettings struct {
	Brightness int `json:"brightness"`
	Contrast   int `json:"contrast"`
	Saturation int `json:"saturation"`
}

// DefaultAdjustments returns the neutral settings
func DefaultAdjustments() AdjustmentSettings {
	return AdjustmentSettings{Brightness: 50, Contrast: 50, Saturation: 50}
}

// IsNeutral reports whether the settings leave pixels unchanged
func (s AdjustmentSettings) IsNeutral() bool {
	return s == DefaultAdjustments()
}

// Validate checks that every slider is within [0,100]
func (s AdjustmentSettings) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"brightness", s.Brightness},
		{"contrast", s.Contrast},
		{"saturation", s.Saturation},
	}
	for _, f := range fields {
		if f.value < 0 || f.value > 100 {
			return errors.Wrapf(ErrInvalidInput, "%s must be between 0 and 100, got %d", f.name, f.value)
		}
	}
	return nil
}

// FilterKind names one of the stylistic filters. The set is closed: the only
// values are the package-level Filter* variables, and the zero value acts as
// FilterNone.
type FilterKind struct {
	name string
}

var (
	FilterNone         = FilterKind{"none"}
	FilterGrayscale    = FilterKind{"grayscale"}
	FilterWarm         = FilterKind{"warm"}
	FilterCool         = FilterKind{"cool"}
	FilterProfessional = FilterKind{"professional"}
)

// FilterKinds lists every filter in catalog order
func FilterKinds() []FilterKind {
	return []FilterKind{FilterNone, FilterProfessional, FilterWarm, FilterCool, FilterGrayscale}
}

// String returns the canonical filter name
func (k FilterKind) String() string {
	if k.name == "" {
		return FilterNone.name
	}
	return k.name
}

// IsNone reports whether the filter is the identity
func (k FilterKind) IsNone() bool {
	return k.name == "" || k == FilterNone
}

// MarshalText implements encoding.TextMarshaler
func (k FilterKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *FilterKind) UnmarshalText(text []byte) error {
	parsed, err := ParseFilterKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseFilterKind maps a user-facing filter value to a FilterKind. "bw" is
// accepted as an alias of grayscale and an empty string means none.
func ParseFilterKind(value string) (FilterKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return FilterNone, nil
	case "grayscale", "greyscale", "bw", "b&w":
		return FilterGrayscale, nil
	case "warm":
		return FilterWarm, nil
	case "cool":
		return FilterCool, nil
	case "professional":
		return FilterProfessional, nil
	}
	return FilterNone, errors.Wrapf(ErrInvalidInput, "unknown filter %q", value)
}

// Encoding is an export file format
type Encoding string

const (
	EncodingPNG  Encoding = "png"
	EncodingJPEG Encoding = "jpeg"
	EncodingWebP Encoding = "webp"
)

// ParseEncoding maps a format name or file extension to an Encoding
func ParseEncoding(value string) (Encoding, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), ".")) {
	case "png":
		return EncodingPNG, nil
	case "jpg", "jpeg":
		return EncodingJPEG, nil
	case "webp":
		return EncodingWebP, nil
	}
	return "", errors.Wrapf(ErrEncoding, "unknown encoding %q", value)
}

// MimeType returns the media type of the encoding
func (e Encoding) MimeType() string {
	switch e {
	case EncodingPNG:
		return "image/png"
	case EncodingJPEG:
		return "image/jpeg"
	case EncodingWebP:
		return "image/webp"
	}
	return "application/octet-stream"
}

// Extension returns the file extension without the dot
func (e Encoding) Extension() string {
	if e == EncodingJPEG {
		return "jpg"
	}
	return string(e)
}

// ExportPreset is a named output size and default encoding
type ExportPreset struct {
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	TargetWidth  int      `json:"width"`
	TargetHeight int      `json:"height"`
	Encoding     Encoding `json:"encoding"`
}
