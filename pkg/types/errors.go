package types

import "github.com/pkg/errors"

var (
	// ErrInvalidInput marks an absent or undecodable source image, a
	// malformed crop rectangle or out-of-range settings.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEncoding marks an export that cannot be produced: empty buffer,
	// unknown preset or unknown encoding.
	ErrEncoding = errors.New("encoding error")

	// ErrDetectionUnavailable marks a face detector that is not loaded or
	// failed. Crop suggestion recovers from it with a center crop.
	ErrDetectionUnavailable = errors.New("face detection unavailable")
)
