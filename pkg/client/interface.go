package client

import (
	"context"

	"github.com/menta2k/headshot/pkg/types"
)

// VisionClient asks a multimodal model to locate faces in a base64 image
type VisionClient interface {
	DetectFaces(ctx context.Context, model, prompt, imgB64 string) (*types.FaceAnalysis, error)
}
