package headshot

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/headshot/pkg/background"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/types"
	"github.com/menta2k/headshot/pkg/vision"
)

var (
	red  = color.NRGBA{255, 0, 0, 255}
	blue = color.NRGBA{0, 0, 255, 255}
)

// encodeTestImage encodes a PNG whose left half is left and right half is right
func encodeTestImage(t *testing.T, width, height int, left, right color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := left
			if x >= width/2 {
				c = right
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeResult(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func pixelAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestNew(t *testing.T) {
	s := New()
	require.NotNil(t, s)
	assert.Equal(t, DefaultPreset, s.DefaultPresetName())
	assert.Equal(t, int64(10<<20), s.MaxBytes())
	assert.Len(t, s.Presets(), 4)
	assert.Len(t, s.Backgrounds(), 6)
	assert.Len(t, s.Filters(), 5)
}

func TestNewWithConfigUnknownPreset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultPreset = "billboard"
	cfg.Detector.Backend = BackendNone

	s, err := NewWithConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultPreset, s.DefaultPresetName())

	cfg.Detector.Backend = "opencv"
	_, err = NewWithConfig(cfg)
	assert.Error(t, err)
}

func TestRenderRedSource(t *testing.T) {
	data := encodeTestImage(t, 100, 80, red, red)

	result, err := New().Render(context.Background(), data, DefaultRenderOptions())
	require.NoError(t, err)

	assert.Equal(t, "linkedin", result.Preset)
	assert.Equal(t, types.EncodingPNG, result.Encoding)
	assert.Equal(t, "image/png", result.MimeType)
	assert.Equal(t, "headshot-linkedin.png", result.Filename())

	img := decodeResult(t, result.Data)
	assert.Equal(t, image.Rect(0, 0, 400, 400), img.Bounds())
	assert.Equal(t, red, pixelAt(img, 200, 200))
}

func TestRenderZeroAdjustmentsAreApplied(t *testing.T) {
	assert.True(t, DefaultRenderOptions().Adjustments.IsNeutral())

	data := encodeTestImage(t, 100, 80, red, red)
	opts := DefaultRenderOptions()
	opts.Adjustments = types.AdjustmentSettings{}

	result, err := New().Render(context.Background(), data, opts)
	require.NoError(t, err)

	px := pixelAt(decodeResult(t, result.Data), 200, 200)
	assert.NotEqual(t, red, px)
	assert.InDelta(t, px.R, px.G, 1)
	assert.InDelta(t, px.G, px.B, 1)
}

func TestRenderPassportSize(t *testing.T) {
	opts := DefaultRenderOptions()
	opts.Preset = "passport"
	opts.Background, _ = background.Parse("Navy")
	opts.Filter = types.FilterProfessional

	result, err := New().Render(context.Background(), encodeTestImage(t, 640, 480, red, blue), opts)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(result.Data))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 300, cfg.Height)
}

func TestRenderEncodingOverride(t *testing.T) {
	opts := DefaultRenderOptions()
	opts.Preset = "resume"
	opts.Encoding = types.EncodingJPEG

	result, err := New().Render(context.Background(), encodeTestImage(t, 50, 50, red, red), opts)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", result.MimeType)
	assert.Equal(t, 300, result.Width)
	assert.Equal(t, 400, result.Height)
	assert.Equal(t, []byte{0xFF, 0xD8}, result.Data[:2])
}

func TestRenderAutoCropUsesFaces(t *testing.T) {
	s := New()
	calls := 0
	s.SetDetector(detection.Func(func(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
		calls++
		return []types.FaceBox{{X: 120, Y: 20, Width: 60, Height: 60, Confidence: 0.9}}, nil
	}))

	opts := DefaultRenderOptions()
	opts.AutoCrop = true

	result, err := s.Render(context.Background(), encodeTestImage(t, 200, 100, blue, red), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	img := decodeResult(t, result.Data)
	for _, p := range []image.Point{{10, 10}, {200, 200}, {390, 390}} {
		assert.Equal(t, red, pixelAt(img, p.X, p.Y), "pixel %v", p)
	}
}

func TestRenderExplicitCropWins(t *testing.T) {
	s := New()
	s.SetDetector(detection.Func(func(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
		t.Fatal("detector must not run when a crop is given")
		return nil, nil
	}))

	opts := DefaultRenderOptions()
	opts.AutoCrop = true
	opts.Crop = &types.Rect{X: 0, Y: 0, Width: 100, Height: 100}

	result, err := s.Render(context.Background(), encodeTestImage(t, 200, 100, blue, red), opts)
	require.NoError(t, err)
	assert.Equal(t, blue, pixelAt(decodeResult(t, result.Data), 200, 200))
}

func TestRenderErrors(t *testing.T) {
	s := New()
	ctx := context.Background()
	data := encodeTestImage(t, 20, 20, red, red)

	_, err := s.Render(ctx, nil, DefaultRenderOptions())
	assert.True(t, errors.Is(err, types.ErrInvalidInput))

	_, err = s.Render(ctx, []byte("not an image"), DefaultRenderOptions())
	assert.True(t, errors.Is(err, types.ErrInvalidInput))

	opts := DefaultRenderOptions()
	opts.Adjustments.Brightness = 101
	_, err = s.Render(ctx, data, opts)
	assert.True(t, errors.Is(err, types.ErrInvalidInput))

	opts = DefaultRenderOptions()
	opts.Preset = "billboard"
	_, err = s.Render(ctx, data, opts)
	assert.True(t, errors.Is(err, types.ErrEncoding))
}

func TestSuggestCrop(t *testing.T) {
	s := New()
	s.SetDetector(nil)

	suggestion, err := s.SuggestCrop(context.Background(), encodeTestImage(t, 300, 200, red, blue))
	require.NoError(t, err)
	assert.True(t, suggestion.Fallback)
	assert.Equal(t, types.Rect{X: 50, Y: 0, Width: 200, Height: 200}, suggestion.Rect)

	_, err = s.SuggestCrop(context.Background(), []byte{1, 2, 3})
	assert.True(t, errors.Is(err, types.ErrInvalidInput))
}

func TestNewDetector(t *testing.T) {
	d, err := NewDetector(DetectorConfig{Backend: BackendNone})
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = NewDetector(DetectorConfig{})
	require.NoError(t, err)
	assert.IsType(t, &vision.SubjectDetector{}, d)

	d, err = NewDetector(DetectorConfig{Backend: BackendOllama, URL: "http://localhost:11434", Model: "llava"})
	require.NoError(t, err)
	assert.IsType(t, &detection.VisionDetector{}, d)

	d, err = NewDetector(DetectorConfig{Backend: "LlamaCpp", Timeout: 1})
	require.NoError(t, err)
	assert.NotNil(t, d)

	_, err = NewDetector(DetectorConfig{Backend: BackendOllama, URL: "localhost"})
	assert.Error(t, err)

	_, err = NewDetector(DetectorConfig{Backend: "opencv"})
	assert.Error(t, err)
}
