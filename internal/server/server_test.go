package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/headshot"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/detection"
	"github.com/menta2k/headshot/pkg/types"
)

func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 0, 0, 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	studio := headshot.New()
	studio.SetDetector(nil)
	return New(studio, Config{})
}

// multipartRequest builds a POST with an optional "image" file and form fields
func multipartRequest(t *testing.T, path string, photo []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if photo != nil {
		part, err := w.CreateFormFile("image", "me.png")
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func TestCatalogEndpoints(t *testing.T) {
	app := newTestServer(t).App()

	tests := []struct {
		path  string
		count int
	}{
		{"/api/presets", 4},
		{"/api/backgrounds", 6},
		{"/api/filters", 5},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			var items []map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
			assert.Len(t, items, tt.count)
		})
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/presets", nil), -1)
	require.NoError(t, err)
	var presets []types.ExportPreset
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&presets))
	assert.Equal(t, "passport", presets[2].Name)
	assert.Equal(t, 300, presets[2].TargetWidth)
}

func TestHealth(t *testing.T) {
	resp, err := newTestServer(t).App().Test(httptest.NewRequest(http.MethodGet, "/api/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRender(t *testing.T) {
	app := newTestServer(t).App()

	req := multipartRequest(t, "/api/render", createTestPNG(t, 120, 90), map[string]string{
		"background": "Blue Gradient",
		"filter":     "warm",
		"brightness": "60",
		"preset":     "passport",
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "headshot-passport.png")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 300, cfg.Height)
}

func TestRenderJPEGWithCrop(t *testing.T) {
	app := newTestServer(t).App()

	req := multipartRequest(t, "/api/render", createTestPNG(t, 200, 100), map[string]string{
		"crop_x":      "10",
		"crop_y":      "10",
		"crop_width":  "80",
		"crop_height": "80",
		"format":      "jpg",
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "headshot-linkedin.jpg")
}

func TestRenderErrors(t *testing.T) {
	app := newTestServer(t).App()
	photo := createTestPNG(t, 40, 40)

	tests := []struct {
		name   string
		photo  []byte
		fields map[string]string
		status int
	}{
		{"missing image", nil, nil, http.StatusBadRequest},
		{"not an image", []byte("hello"), nil, http.StatusBadRequest},
		{"bad background", photo, map[string]string{"background": "plaid"}, http.StatusBadRequest},
		{"bad filter", photo, map[string]string{"filter": "vintage"}, http.StatusBadRequest},
		{"bad slider", photo, map[string]string{"contrast": "high"}, http.StatusBadRequest},
		{"slider out of range", photo, map[string]string{"saturation": "150"}, http.StatusBadRequest},
		{"partial crop", photo, map[string]string{"crop_x": "1"}, http.StatusBadRequest},
		{"crop outside", photo, map[string]string{"crop_x": "500", "crop_y": "500", "crop_width": "10", "crop_height": "10"}, http.StatusBadRequest},
		{"bad auto crop", photo, map[string]string{"auto_crop": "maybe"}, http.StatusBadRequest},
		{"unknown preset", photo, map[string]string{"preset": "billboard"}, http.StatusUnprocessableEntity},
		{"unknown format", photo, map[string]string{"format": "gif"}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(multipartRequest(t, "/api/render", tt.photo, tt.fields), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decodeError(t, resp))
		})
	}
}

func TestSuggestCrop(t *testing.T) {
	app := newTestServer(t).App()

	resp, err := app.Test(multipartRequest(t, "/api/suggest-crop", createTestPNG(t, 300, 200), nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var s cropper.Suggestion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	assert.True(t, s.Fallback)
	assert.Equal(t, types.Rect{X: 50, Y: 0, Width: 200, Height: 200}, s.Rect)
}

func TestSuggestCropWithDetector(t *testing.T) {
	studio := headshot.New()
	studio.SetDetector(detection.Func(func(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
		return []types.FaceBox{{X: 100, Y: 50, Width: 50, Height: 50}}, nil
	}))
	app := New(studio, Config{}).App()

	resp, err := app.Test(multipartRequest(t, "/api/suggest-crop", createTestPNG(t, 300, 200), nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var s cropper.Suggestion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	assert.False(t, s.Fallback)
	assert.Len(t, s.Faces, 1)
	assert.True(t, s.Rect.Contains(types.Rect{X: 100, Y: 50, Width: 50, Height: 50}))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fiber.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(types.ErrInvalidInput))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(types.ErrEncoding))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
