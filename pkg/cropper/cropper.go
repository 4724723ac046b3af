package cropper

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/types"
)

const (
	// DefaultPaddingRatio pads the face union by 20% of its larger side
	DefaultPaddingRatio = 0.2
	DefaultDetectTimeout = 30 * time.Second
)

// SmartCropper suggests square headshot crops around detected faces
type SmartCropper struct {
	detector detection.FaceDetector
	config   CropConfig
}

// CropConfig holds configuration for crop suggestion
type CropConfig struct {
	PaddingRatio  float64
	DetectTimeout time.Duration
}

// DefaultConfig returns the padding and timeout used by New
func DefaultConfig() CropConfig {
	return CropConfig{
		PaddingRatio:  DefaultPaddingRatio,
		DetectTimeout: DefaultDetectTimeout,
	}
}

// New creates a new SmartCropper with default configuration. detector may
// be nil, in which case every suggestion is the center crop.
func New(detector detection.FaceDetector) *SmartCropper {
	return NewWithConfig(detector, DefaultConfig())
}

// NewWithConfig creates a new SmartCropper with custom configuration
func NewWithConfig(detector detection.FaceDetector, config CropConfig) *SmartCropper {
	if config.PaddingRatio < 0 || math.IsNaN(config.PaddingRatio) {
		config.PaddingRatio = DefaultPaddingRatio
	}
	return &SmartCropper{detector: detector, config: config}
}

// SetDetector replaces the face detector
func (c *SmartCropper) SetDetector(detector detection.FaceDetector) {
	c.detector = detector
}

// Suggestion is the outcome of a crop suggestion
type Suggestion struct {
	Rect     types.Rect      `json:"rect"`
	Faces    []types.FaceBox `json:"faces"`
	Fallback bool            `json:"fallback"`
	Reason   string          `json:"reason,omitempty"`
}

// CropResult contains a suggestion and the cropped image
type CropResult struct {
	Image      *image.NRGBA
	Suggestion Suggestion
}

// SuggestCrop returns one square crop containing every face, padded by
// DefaultPaddingRatio and clamped to the image. Without usable faces it
// returns the centered square of side min(w,h).
func SuggestCrop(faces []types.FaceBox, imageWidth, imageHeight int) types.Rect {
	return suggest(faces, imageWidth, imageHeight, DefaultPaddingRatio)
}

func suggest(faces []types.FaceBox, imageWidth, imageHeight int, paddingRatio float64) types.Rect {
	w, h := float64(imageWidth), float64(imageHeight)

	union, ok := geometry.Union(usableRects(faces))
	if !ok {
		return geometry.CenterSquare(w, h)
	}

	sq := geometry.SquareFromBounds(union.X, union.Y, union.Right(), union.Bottom(), paddingRatio)
	if !sq.Valid() {
		return geometry.CenterSquare(w, h)
	}

	// Shifting alone keeps a square that fits; only an oversized one shrinks
	if limit := math.Min(w, h); sq.Width > limit {
		cx, cy := geometry.Center(sq)
		sq = types.Rect{X: cx - limit/2, Y: cy - limit/2, Width: limit, Height: limit}
	}
	return geometry.ClampRect(sq, w, h)
}

// usableRects drops boxes with a non-finite or non-positive geometry,
// including finite boxes whose edges overflow
func usableRects(faces []types.FaceBox) []types.Rect {
	rects := make([]types.Rect, 0, len(faces))
	for _, f := range faces {
		r := f.Rect()
		if !r.Valid() || r.Empty() || math.IsInf(r.Right(), 0) || math.IsInf(r.Bottom(), 0) {
			continue
		}
		rects = append(rects, r)
	}
	return rects
}

// Suggest runs the detector once and derives the crop from its faces. A
// missing, failing or slow detector is not an error: the suggestion falls
// back to the center crop and says why.
func (c *SmartCropper) Suggest(ctx context.Context, img image.Image) (Suggestion, error) {
	if img == nil || img.Bounds().Empty() {
		return Suggestion{}, errors.Wrap(types.ErrInvalidInput, "no image to crop")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if c.detector == nil {
		return c.fallback(w, h, nil, "no face detector configured"), nil
	}

	faces, err := c.detect(ctx, img)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Int("width", w).Int("height", h).
			Msg("Face detection failed, using center crop")
		return c.fallback(w, h, nil, err.Error()), nil
	}

	if len(usableRects(faces)) == 0 {
		log.Ctx(ctx).Debug().Int("reported", len(faces)).Msg("No faces found, using center crop")
		return c.fallback(w, h, faces, "no faces detected"), nil
	}

	rect := suggest(faces, w, h, c.config.PaddingRatio)
	log.Ctx(ctx).Debug().Int("faces", len(faces)).Interface("rect", rect).Msg("Crop suggested")
	return Suggestion{Rect: rect, Faces: faces}, nil
}

// detect invokes the detector exactly once under the configured timeout
func (c *SmartCropper) detect(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
	if c.config.DetectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.DetectTimeout)
		defer cancel()
	}

	faces, err := c.detector.DetectFaces(ctx, img)
	if err != nil {
		if !errors.Is(err, types.ErrDetectionUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrDetectionUnavailable, err)
		}
		return nil, err
	}
	return faces, nil
}

func (c *SmartCropper) fallback(w, h int, faces []types.FaceBox, reason string) Suggestion {
	if faces == nil {
		faces = []types.FaceBox{}
	}
	return Suggestion{
		Rect:     geometry.CenterSquare(float64(w), float64(h)),
		Faces:    faces,
		Fallback: true,
		Reason:   reason,
	}
}

// Crop suggests a crop and applies it
func (c *SmartCropper) Crop(ctx context.Context, img image.Image) (CropResult, error) {
	s, err := c.Suggest(ctx, img)
	if err != nil {
		return CropResult{}, err
	}
	cropped, err := CropToRect(img, s.Rect)
	if err != nil {
		return CropResult{}, err
	}
	return CropResult{Image: cropped, Suggestion: s}, nil
}

// CropToRect cuts rect, given relative to the image origin, out of img
func CropToRect(img image.Image, rect types.Rect) (*image.NRGBA, error) {
	if img == nil {
		return nil, errors.Wrap(types.ErrInvalidInput, "no image to crop")
	}
	if !rect.Valid() || rect.Empty() {
		return nil, errors.Wrapf(types.ErrInvalidInput, "malformed crop %+v", rect)
	}

	b := img.Bounds()
	r := rect.ImageRect().Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, errors.Wrapf(types.ErrInvalidInput, "crop %+v outside image", rect)
	}
	return imaging.Crop(img, r), nil
}
