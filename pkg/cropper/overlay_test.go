package cropper

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menta2k/headshot/pkg/types"
)

func TestOverlay(t *testing.T) {
	src := createTestImage(200, 100)
	s := Suggestion{
		Rect:  types.Rect{X: 50, Y: 0, Width: 100, Height: 100},
		Faces: []types.FaceBox{{X: 80, Y: 20, Width: 40, Height: 40}},
	}

	out := Overlay(src, s)

	assert.Equal(t, image.Rect(0, 0, 200, 100), out.Bounds())
	assert.Equal(t, overlayFace, out.NRGBAAt(80, 30))
	assert.Equal(t, overlayCrop, out.NRGBAAt(50, 50))
	assert.Equal(t, overlayCrop, out.NRGBAAt(149, 80))
	assert.Equal(t, overlayImage, out.NRGBAAt(100, 50))

	// the source is untouched
	assert.Equal(t, src.(*image.NRGBA).NRGBAAt(50, 50), out.NRGBAAt(10, 10))
	assert.NotEqual(t, overlayCrop, src.(*image.NRGBA).NRGBAAt(50, 50))
}

func TestOverlaySkipsDegenerateBoxes(t *testing.T) {
	src := createTestImage(40, 40)
	out := Overlay(src, Suggestion{Faces: []types.FaceBox{{X: 5, Y: 5, Width: 0, Height: 10}}})
	assert.Equal(t, src.(*image.NRGBA).NRGBAAt(5, 5), out.NRGBAAt(5, 5))
}
