// Package compositor renders a source photo onto the fixed-size headshot
// canvas: background, placement, tonal adjustments and filter, in that order.
package compositor

import (
	"image"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/menta2k/headshot/pkg/adjust"
	"github.com/menta2k/headshot/pkg/background"
	"github.com/menta2k/headshot/pkg/filter"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/types"
)

const (
	DefaultCanvasWidth  = 400
	DefaultCanvasHeight = 400
	DefaultInterpolator = "bilinear"
)

// Config holds the canvas settings
type Config struct {
	CanvasWidth  int    `json:"canvas_width" yaml:"canvas_width"`
	CanvasHeight int    `json:"canvas_height" yaml:"canvas_height"`
	Interpolator string `json:"interpolator" yaml:"interpolator"`
}

// DefaultConfig returns a 400x400 canvas with bilinear scaling
func DefaultConfig() Config {
	return Config{
		CanvasWidth:  DefaultCanvasWidth,
		CanvasHeight: DefaultCanvasHeight,
		Interpolator: DefaultInterpolator,
	}
}

// Request describes one render. The zero value of every field is usable
// except Adjustments, whose neutral point is DefaultAdjustments.
type Request struct {
	Background  background.Spec
	Crop        *types.Rect
	Adjustments types.AdjustmentSettings
	Filter      types.FilterKind
}

// DefaultRequest returns a white background, no crop, neutral adjustments
// and no filter
func DefaultRequest() Request {
	return Request{Adjustments: types.DefaultAdjustments()}
}

// Compositor draws source photos onto a canvas
type Compositor struct {
	config Config
	scaler draw.Interpolator
}

// New creates a Compositor with the default configuration
func New() *Compositor {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Compositor. Zero canvas dimensions fall back to
// the defaults and an unknown interpolator name falls back to bilinear.
func NewWithConfig(config Config) *Compositor {
	if config.CanvasWidth <= 0 {
		config.CanvasWidth = DefaultCanvasWidth
	}
	if config.CanvasHeight <= 0 {
		config.CanvasHeight = DefaultCanvasHeight
	}
	scaler, ok := Interpolator(config.Interpolator)
	if !ok {
		config.Interpolator = DefaultInterpolator
	}
	return &Compositor{config: config, scaler: scaler}
}

// Config returns the effective configuration
func (c *Compositor) Config() Config {
	return c.config
}

// Interpolator maps a configuration name to a scaler. Unknown names return
// bilinear and false.
func Interpolator(name string) (draw.Interpolator, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest", "nearestneighbor":
		return draw.NearestNeighbor, true
	case "approxbilinear":
		return draw.ApproxBiLinear, true
	case "", "bilinear":
		return draw.BiLinear, true
	case "catmullrom", "bicubic":
		return draw.CatmullRom, true
	default:
		return draw.BiLinear, false
	}
}

// Compose renders src into a new canvas buffer. Invalid input is rejected
// before anything is allocated.
func (c *Compositor) Compose(src image.Image, req Request) (*image.NRGBA, error) {
	srcRect, err := c.sourceRect(src, req.Crop)
	if err != nil {
		return nil, err
	}
	if err := req.Adjustments.Validate(); err != nil {
		return nil, err
	}

	cw, ch := c.config.CanvasWidth, c.config.CanvasHeight
	canvas := image.NewNRGBA(image.Rect(0, 0, cw, ch))
	req.Background.Fill(canvas)

	placement := geometry.FitRect(float64(srcRect.Dx()), float64(srcRect.Dy()), float64(cw), float64(ch))
	c.scaler.Scale(canvas, placement.ImageRect(), src, srcRect, draw.Over, nil)

	canvas = adjust.Apply(canvas, req.Adjustments)
	return filter.Apply(canvas, req.Filter), nil
}

// sourceRect resolves the region of src to draw, in src coordinates
func (c *Compositor) sourceRect(src image.Image, crop *types.Rect) (image.Rectangle, error) {
	if src == nil {
		return image.Rectangle{}, errors.Wrap(types.ErrInvalidInput, "source image is nil")
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return image.Rectangle{}, errors.Wrap(types.ErrInvalidInput, "source image is empty")
	}
	if crop == nil {
		return bounds, nil
	}

	r := *crop
	if !r.Valid() || r.Empty() || r.X < 0 || r.Y < 0 {
		return image.Rectangle{}, errors.Wrapf(types.ErrInvalidInput,
			"malformed crop %+v", r)
	}

	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	if r.X >= w || r.Y >= h {
		return image.Rectangle{}, errors.Wrapf(types.ErrInvalidInput,
			"crop %+v lies outside the %dx%d source", r, bounds.Dx(), bounds.Dy())
	}

	// a crop running past the edge is shifted back inside
	r = geometry.ClampRect(r, w, h)
	sr := r.ImageRect().Add(bounds.Min)
	if sr.Empty() {
		return image.Rectangle{}, errors.Wrapf(types.ErrInvalidInput,
			"crop %+v is smaller than a pixel", *crop)
	}
	return sr, nil
}
