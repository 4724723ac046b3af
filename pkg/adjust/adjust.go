// Package adjust applies the brightness, contrast and saturation sliders to
// an RGBA buffer.
package adjust

import (
	"image"
	"math"

	"github.com/menta2k/headshot/pkg/types"
)

// Luma weights (ITU-R BT.601)
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// factors holds the per-call constants derived from the sliders
type factors struct {
	brightness float64
	contrast   float64
	saturation float64
}

func newFactors(s types.AdjustmentSettings) factors {
	return factors{
		brightness: float64(s.Brightness-50) * 2,
		contrast:   float64(s.Contrast) / 50,
		saturation: float64(s.Saturation) / 50,
	}
}

// Apply adjusts every pixel of img in place and returns it. Alpha is left
// untouched. Brightness, contrast and saturation run in that order on
// unclamped values and the result is clamped once per channel at the end.
func Apply(img *image.NRGBA, s types.AdjustmentSettings) *image.NRGBA {
	if img == nil || s.IsNeutral() {
		return img
	}

	f := newFactors(s)
	bounds := img.Bounds()
	width := bounds.Dx()

	for y := 0; y < bounds.Dy(); y++ {
		i := y * img.Stride
		for x := 0; x < width; x++ {
			px := img.Pix[i : i+3 : i+3]
			px[0], px[1], px[2] = f.apply(px[0], px[1], px[2])
			i += 4
		}
	}

	return img
}

// Pixel returns the adjusted value of a single RGB triple
func Pixel(r, g, b uint8, s types.AdjustmentSettings) (uint8, uint8, uint8) {
	return newFactors(s).apply(r, g, b)
}

func (f factors) apply(r8, g8, b8 uint8) (uint8, uint8, uint8) {
	r := float64(r8) + f.brightness
	g := float64(g8) + f.brightness
	b := float64(b8) + f.brightness

	r = (r-128)*f.contrast + 128
	g = (g-128)*f.contrast + 128
	b = (b-128)*f.contrast + 128

	gray := lumaR*r + lumaG*g + lumaB*b
	r = gray + f.saturation*(r-gray)
	g = gray + f.saturation*(g-gray)
	b = gray + f.saturation*(b-gray)

	return clampChannel(r), clampChannel(g), clampChannel(b)
}

func clampChannel(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
