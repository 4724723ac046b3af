package types

import (
	"encoding/json"
	"image"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectEdges(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 30, Height: 40}

	assert.Equal(t, 40.0, r.Right())
	assert.Equal(t, 60.0, r.Bottom())
	assert.False(t, r.Empty())
	assert.True(t, Rect{Width: 0, Height: 10}.Empty())
	assert.True(t, Rect{Width: math.NaN(), Height: 10}.Empty())
}

func TestRectContains(t *testing.T) {
	outer := Rect{X: 0, Y: 0, Width: 100, Height: 100}

	assert.True(t, outer.Contains(Rect{X: 10, Y: 10, Width: 20, Height: 20}))
	assert.True(t, outer.Contains(outer))
	assert.False(t, outer.Contains(Rect{X: 90, Y: 10, Width: 20, Height: 20}))
}

func TestRectImageRect(t *testing.T) {
	r := Rect{X: -66.6, Y: 0, Width: 533.3, Height: 400}
	assert.Equal(t, image.Rect(-67, 0, 467, 400), r.ImageRect())
}

func TestRectValid(t *testing.T) {
	assert.True(t, Rect{X: 1, Y: 2, Width: 3, Height: 4}.Valid())
	assert.False(t, Rect{X: math.Inf(1)}.Valid())
}

func TestAdjustmentSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultAdjustments().Validate())
	assert.True(t, DefaultAdjustments().IsNeutral())

	err := AdjustmentSettings{Brightness: 101, Contrast: 50, Saturation: 50}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	err = AdjustmentSettings{Brightness: 50, Contrast: -1, Saturation: 50}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestParseFilterKind(t *testing.T) {
	tests := []struct {
		in   string
		want FilterKind
	}{
		{"", FilterNone},
		{"none", FilterNone},
		{"bw", FilterGrayscale},
		{"Grayscale", FilterGrayscale},
		{"warm", FilterWarm},
		{"cool", FilterCool},
		{" professional ", FilterProfessional},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFilterKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFilterKind("vintage")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestFilterKindZeroValue(t *testing.T) {
	var k FilterKind
	assert.True(t, k.IsNone())
	assert.Equal(t, "none", k.String())
	assert.False(t, FilterWarm.IsNone())
}

func TestFilterKindJSON(t *testing.T) {
	var payload struct {
		Filter FilterKind `json:"filter"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"filter":"cool"}`), &payload))
	assert.Equal(t, FilterCool, payload.Filter)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"filter":"cool"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"filter":"sepia"}`), &payload))
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]Encoding{"png": EncodingPNG, "jpg": EncodingJPEG, ".JPEG": EncodingJPEG, "webp": EncodingWebP} {
		got, err := ParseEncoding(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseEncoding("gif")
	assert.True(t, errors.Is(err, ErrEncoding))
}

func TestEncodingMimeAndExtension(t *testing.T) {
	assert.Equal(t, "image/png", EncodingPNG.MimeType())
	assert.Equal(t, "image/jpeg", EncodingJPEG.MimeType())
	assert.Equal(t, "image/webp", EncodingWebP.MimeType())
	assert.Equal(t, "jpg", EncodingJPEG.Extension())
	assert.Equal(t, "png", EncodingPNG.Extension())
}
