package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/menta2k/headshot/pkg/client"
	"github.com/menta2k/headshot/pkg/types"
)

// FacePrompt asks a vision model for every face as a normalized box
const FacePrompt = `You are a face locator for portrait photos.

Return JSON only:
{
  "faces": [
    {"confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] of the full image (NOT pixels). x,y is the top-left corner.
- One entry per visible human face. The box spans hairline to chin and ear to ear.
- If no face is visible, return "faces": [].
- Do not guess real identities.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// FaceDetector locates faces in an image. Boxes are in pixels relative to
// the image bounds origin.
type FaceDetector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]types.FaceBox, error)
}

// Func adapts a plain function to FaceDetector
type Func func(ctx context.Context, img image.Image) ([]types.FaceBox, error)

// DetectFaces calls f
func (f Func) DetectFaces(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
	return f(ctx, img)
}

// Config holds the settings of a VisionDetector
type Config struct {
	Model         string
	Prompt        string
	MaxDim        uint
	JPEGQuality   int
	MinConfidence float64
}

// DefaultConfig returns settings suited to small local vision models
func DefaultConfig() Config {
	return Config{
		Prompt:        FacePrompt,
		MaxDim:        768,
		JPEGQuality:   85,
		MinConfidence: 0.3,
	}
}

// VisionDetector finds faces by asking a multimodal model
type VisionDetector struct {
	client client.VisionClient
	config Config
}

// NewVisionDetector creates a detector backed by c
func NewVisionDetector(c client.VisionClient, config Config) *VisionDetector {
	defaults := DefaultConfig()
	if config.Prompt == "" {
		config.Prompt = defaults.Prompt
	}
	if config.MaxDim == 0 {
		config.MaxDim = defaults.MaxDim
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = defaults.JPEGQuality
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = defaults.MinConfidence
	}
	return &VisionDetector{client: c, config: config}
}

// DetectFaces implements FaceDetector. Every failure is reported as
// ErrDetectionUnavailable.
func (d *VisionDetector) DetectFaces(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
	if d.client == nil {
		return nil, errors.Wrap(types.ErrDetectionUnavailable, "no vision client")
	}
	if img == nil || img.Bounds().Empty() {
		return nil, errors.Wrap(types.ErrDetectionUnavailable, "empty image")
	}

	imgB64, sent, err := PrepareImage(img, d.config.MaxDim, d.config.JPEGQuality)
	if err != nil {
		return nil, errors.Wrapf(types.ErrDetectionUnavailable, "prepare image: %v", err)
	}

	analysis, err := d.client.DetectFaces(ctx, d.config.Model, d.config.Prompt, imgB64)
	if err != nil {
		return nil, errors.Wrapf(types.ErrDetectionUnavailable, "model %q: %v", d.config.Model, err)
	}
	if analysis == nil {
		return nil, errors.Wrapf(types.ErrDetectionUnavailable, "model %q returned nothing", d.config.Model)
	}

	b := img.Bounds()
	return toFaceBoxes(analysis.Faces, sent, b.Size(), d.config.MinConfidence), nil
}

// PrepareImage downscales img to fit maxDim and returns it as base64 JPEG
// along with the size of the encoded image
func PrepareImage(img image.Image, maxDim uint, quality int) (string, image.Point, error) {
	if maxDim > 0 {
		img = resize.Thumbnail(maxDim, maxDim, img, resize.Bilinear)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", image.Point{}, errors.Wrap(err, "encode jpeg")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), img.Bounds().Size(), nil
}

// ToFaceBoxes converts normalized model boxes to pixel boxes of a w x h
// image. Faces that report a confidence below minConfidence are dropped; a
// confidence of zero means the model did not report one and is kept.
func ToFaceBoxes(faces []types.DetectedFace, w, h int, minConfidence float64) []types.FaceBox {
	size := image.Pt(w, h)
	return toFaceBoxes(faces, size, size, minConfidence)
}

// toFaceBoxes reads pixel answers against sent, the image the model saw
func toFaceBoxes(faces []types.DetectedFace, sent, size image.Point, minConfidence float64) []types.FaceBox {
	fw, fh := float64(size.X), float64(size.Y)
	out := make([]types.FaceBox, 0, len(faces))
	for _, f := range faces {
		if f.Confidence > 0 && f.Confidence < minConfidence {
			continue
		}
		b := normalizeBox(f.Box, sent.X, sent.Y)
		if !(b.W > 0) || !(b.H > 0) || math.IsNaN(b.X) || math.IsNaN(b.Y) {
			continue
		}
		out = append(out, types.FaceBox{
			X:          b.X * fw,
			Y:          b.Y * fh,
			Width:      b.W * fw,
			Height:     b.H * fh,
			Confidence: f.Confidence,
		})
	}
	return out
}

// normalizeBox keeps the box inside [0,1]. Models sometimes answer in
// pixels despite the prompt; any coordinate above 1 is treated that way.
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	if (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) && imgW > 0 && imgH > 0 {
		b = types.Box{
			X: b.X / float64(imgW),
			Y: b.Y / float64(imgH),
			W: b.W / float64(imgW),
			H: b.H / float64(imgH),
		}
	}

	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.X+b.W, 0, 1) - x,
		H: clamp(b.Y+b.H, 0, 1) - y,
	}
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
