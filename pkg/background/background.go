// Package background describes the canvas fill behind the portrait: a solid
// color or a two-stop linear gradient running from the top-left corner to
// the bottom-right corner.
package background

import (
	"image"
	"image/color"
	"regexp"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"github.com/menta2k/headshot/pkg/types"
)

type kind int

const (
	kindSolid kind = iota
	kindGradient
)

// Spec is a background fill. The zero value is solid white.
type Spec struct {
	kind     kind
	from, to colorful.Color
	set      bool
}

// Option is one entry of the built-in background catalog
type Option struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var catalog = []Option{
	{Name: "White", Value: "#ffffff"},
	{Name: "Light Gray", Value: "#f8fafc"},
	{Name: "Blue Gradient", Value: "linear-gradient(135deg, #3b82f6, #1e40af)"},
	{Name: "Purple Gradient", Value: "linear-gradient(135deg, #8b5cf6, #7c3aed)"},
	{Name: "Gray Gradient", Value: "linear-gradient(135deg, #6b7280, #374151)"},
	{Name: "Navy", Value: "#1e3a8a"},
}

// Catalog returns a copy of the built-in backgrounds
func Catalog() []Option {
	out := make([]Option, len(catalog))
	copy(out, catalog)
	return out
}

var gradientPattern = regexp.MustCompile(`^linear-gradient\(\s*(?:[^,#]+,\s*)?(#[0-9a-fA-F]{3,6})\s*,\s*(#[0-9a-fA-F]{3,6})\s*\)$`)

// Solid returns a flat fill of the given hex color
func Solid(hex string) (Spec, error) {
	c, err := parseHex(hex)
	if err != nil {
		return Spec{}, err
	}
	return Spec{kind: kindSolid, from: c, to: c, set: true}, nil
}

// Gradient returns a diagonal gradient between two hex colors
func Gradient(fromHex, toHex string) (Spec, error) {
	from, err := parseHex(fromHex)
	if err != nil {
		return Spec{}, err
	}
	to, err := parseHex(toHex)
	if err != nil {
		return Spec{}, err
	}
	return Spec{kind: kindGradient, from: from, to: to, set: true}, nil
}

// Parse accepts a hex color, a CSS linear-gradient with two hex stops, or
// the name of a catalog entry. An empty value yields the white default.
// The gradient angle is ignored: stops always run corner to corner.
func Parse(value string) (Spec, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Spec{}, nil
	}

	for _, opt := range catalog {
		if strings.EqualFold(opt.Name, value) {
			return Parse(opt.Value)
		}
	}

	if strings.HasPrefix(value, "#") {
		return Solid(value)
	}

	if m := gradientPattern.FindStringSubmatch(value); m != nil {
		return Gradient(m[1], m[2])
	}

	return Spec{}, errors.Wrapf(types.ErrInvalidInput, "unsupported background %q", value)
}

// IsGradient reports whether the fill is a two-stop gradient
func (s Spec) IsGradient() bool {
	return s.set && s.kind == kindGradient
}

// Stops returns the start and end colors. A solid fill returns the same
// color twice.
func (s Spec) Stops() (color.NRGBA, color.NRGBA) {
	from, to := s.colors()
	return toNRGBA(from), toNRGBA(to)
}

// Fill paints the whole buffer
func (s Spec) Fill(img *image.NRGBA) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return
	}

	from, to := s.colors()
	if !s.IsGradient() {
		fillSolid(img, toNRGBA(from))
		return
	}

	// Gradient line from (0,0) to (w,h): the stop position of a pixel is its
	// projection onto the diagonal.
	dx, dy := float64(w), float64(h)
	lenSq := dx*dx + dy*dy
	for y := 0; y < h; y++ {
		i := y * img.Stride
		for x := 0; x < w; x++ {
			t := ((float64(x)+0.5)*dx + (float64(y)+0.5)*dy) / lenSq
			if t > 1 {
				t = 1
			}
			c := toNRGBA(from.BlendRgb(to, t))
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = 0xff
			i += 4
		}
	}
}

// String renders the fill back to its CSS form
func (s Spec) String() string {
	from, to := s.colors()
	if s.IsGradient() {
		return "linear-gradient(135deg, " + from.Hex() + ", " + to.Hex() + ")"
	}
	return from.Hex()
}

func (s Spec) colors() (colorful.Color, colorful.Color) {
	if !s.set {
		white := colorful.Color{R: 1, G: 1, B: 1}
		return white, white
	}
	return s.from, s.to
}

func fillSolid(img *image.NRGBA, c color.NRGBA) {
	bounds := img.Bounds()
	row := img.Pix[:bounds.Dx()*4]
	for i := 0; i < len(row); i += 4 {
		row[i+0] = c.R
		row[i+1] = c.G
		row[i+2] = c.B
		row[i+3] = 0xff
	}
	for y := 1; y < bounds.Dy(); y++ {
		copy(img.Pix[y*img.Stride:], row)
	}
}

func parseHex(hex string) (colorful.Color, error) {
	c, err := colorful.Hex(strings.ToLower(strings.TrimSpace(hex)))
	if err != nil {
		return colorful.Color{}, errors.Wrapf(types.ErrInvalidInput, "invalid color %q: %v", hex, err)
	}
	return c, nil
}

func toNRGBA(c colorful.Color) color.NRGBA {
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}
