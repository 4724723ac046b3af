package cropper

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

var (
	overlayFace   = color.NRGBA{0, 255, 0, 255}
	overlayCrop   = color.NRGBA{255, 204, 0, 255}
	overlayCenter = color.NRGBA{255, 0, 0, 255}
	overlayImage  = color.NRGBA{0, 170, 255, 255}
)

// Overlay returns a copy of img with the suggestion drawn on it: faces in
// green, the crop in gold, a red cross at the crop center and a blue cross
// at the image center.
func Overlay(img image.Image, s Suggestion) *image.NRGBA {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()

	short := math.Min(float64(w), float64(h))
	stroke := int(math.Max(2, 0.004*short))
	arm := int(math.Max(4, 0.01*short))

	for _, f := range s.Faces {
		if r := f.Rect(); r.Valid() && !r.Empty() {
			strokeRect(out, r.ImageRect(), stroke, overlayFace)
		}
	}
	if s.Rect.Valid() && !s.Rect.Empty() {
		strokeRect(out, s.Rect.ImageRect(), stroke, overlayCrop)
		cx, cy := s.Rect.X+s.Rect.Width/2, s.Rect.Y+s.Rect.Height/2
		cross(out, image.Pt(int(math.Round(cx)), int(math.Round(cy))), arm, overlayCenter)
	}
	cross(out, image.Pt(w/2, h/2), 6, overlayImage)
	return out
}

func strokeRect(img *image.NRGBA, r image.Rectangle, stroke int, c color.NRGBA) {
	if r.Dx() <= 2*stroke || r.Dy() <= 2*stroke {
		fillRect(img, r, c)
		return
	}
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+stroke), c)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-stroke, r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+stroke, r.Max.Y), c)
	fillRect(img, image.Rect(r.Max.X-stroke, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func cross(img *image.NRGBA, p image.Point, arm int, c color.NRGBA) {
	fillRect(img, image.Rect(p.X-arm, p.Y, p.X+arm+1, p.Y+1), c)
	fillRect(img, image.Rect(p.X, p.Y-arm, p.X+1, p.Y+arm+1), c)
}

// fillRect paints r, clipped to the image
func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)
}
