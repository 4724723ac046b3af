// Package filter implements the stylistic filters applied to the finished
// canvas after tonal adjustments.
package filter

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"

	"github.com/menta2k/headshot/pkg/types"
)

// Option is one entry of the filter catalog
type Option struct {
	Name  string           `json:"name"`
	Value types.FilterKind `json:"value"`
}

// Catalog returns the filters in display order
func Catalog() []Option {
	return []Option{
		{Name: "None", Value: types.FilterNone},
		{Name: "Professional", Value: types.FilterProfessional},
		{Name: "Warm", Value: types.FilterWarm},
		{Name: "Cool", Value: types.FilterCool},
		{Name: "B&W", Value: types.FilterGrayscale},
	}
}

// Apply runs the filter over the whole buffer. FilterNone returns img
// itself; every other filter returns a new buffer of the same size.
func Apply(img *image.NRGBA, kind types.FilterKind) *image.NRGBA {
	if img == nil {
		return nil
	}

	switch kind {
	case types.FilterGrayscale:
		return imaging.Grayscale(img)
	case types.FilterWarm:
		return warm(img)
	case types.FilterCool:
		return cool(img)
	case types.FilterProfessional:
		return professional(img)
	default:
		return img
	}
}

// warm: sepia(30%) saturate(1.2) hue-rotate(10deg)
func warm(img *image.NRGBA) *image.NRGBA {
	out := imaging.AdjustFunc(img, sepia(0.3))
	out = imaging.AdjustSaturation(out, 20)
	return hueRotate(out, 10)
}

// cool: saturate(1.1) hue-rotate(-10deg) brightness(1.1)
func cool(img *image.NRGBA) *image.NRGBA {
	out := imaging.AdjustSaturation(img, 10)
	out = hueRotate(out, -10)
	return imaging.AdjustFunc(out, brightness(1.1))
}

// professional: contrast(1.1) saturate(0.9) brightness(1.05)
func professional(img *image.NRGBA) *image.NRGBA {
	out := imaging.AdjustContrast(img, 10)
	out = imaging.AdjustSaturation(out, -10)
	return imaging.AdjustFunc(out, brightness(1.05))
}

func hueRotate(img *image.NRGBA, degrees int) *image.NRGBA {
	return imaging.Clone(adjust.Hue(img, degrees))
}

// sepia mixes channels with the CSS sepia matrix interpolated by amount
func sepia(amount float64) func(color.NRGBA) color.NRGBA {
	k := 1 - amount
	m := [3][3]float64{
		{0.393 + 0.607*k, 0.769 - 0.769*k, 0.189 - 0.189*k},
		{0.349 - 0.349*k, 0.686 + 0.314*k, 0.168 - 0.168*k},
		{0.272 - 0.272*k, 0.534 - 0.534*k, 0.131 + 0.869*k},
	}
	return func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		return color.NRGBA{
			R: clamp8(m[0][0]*r + m[0][1]*g + m[0][2]*b),
			G: clamp8(m[1][0]*r + m[1][1]*g + m[1][2]*b),
			B: clamp8(m[2][0]*r + m[2][1]*g + m[2][2]*b),
			A: c.A,
		}
	}
}

// brightness scales every channel, like the CSS brightness() function
func brightness(factor float64) func(color.NRGBA) color.NRGBA {
	return func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(float64(c.R) * factor),
			G: clamp8(float64(c.G) * factor),
			B: clamp8(float64(c.B) * factor),
			A: c.A,
		}
	}
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
