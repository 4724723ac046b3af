// Package source decodes user-supplied photos into images the compositor
// can draw.
package source

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/headshot/pkg/types"
)

// DefaultMaxBytes is the largest accepted upload
const DefaultMaxBytes = 10 << 20

// Loader decodes and validates source photos
type Loader struct {
	config Config
}

// Config holds configuration for the loader
type Config struct {
	MaxBytes         int64    `json:"max_bytes" yaml:"max_bytes"`
	SupportedFormats []string `json:"supported_formats" yaml:"supported_formats"`
	MinImageSize     int      `json:"min_image_size" yaml:"min_image_size"` // 0 disables the check
	AutoOrient       bool     `json:"auto_orient" yaml:"auto_orient"`
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Format      string  `json:"format,omitempty"`
}

// DefaultConfig returns a 10 MiB limit over the common photo formats
func DefaultConfig() Config {
	return Config{
		MaxBytes:         DefaultMaxBytes,
		SupportedFormats: []string{"jpeg", "png", "webp", "gif", "bmp", "tiff"},
		MinImageSize:     0,
		AutoOrient:       true,
	}
}

// New creates a new Loader with default configuration
func New() *Loader {
	return &Loader{config: DefaultConfig()}
}

// NewWithConfig creates a new Loader with custom configuration
func NewWithConfig(config Config) *Loader {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if len(config.SupportedFormats) == 0 {
		config.SupportedFormats = DefaultConfig().SupportedFormats
	}
	return &Loader{config: config}
}

// Config returns the effective configuration
func (l *Loader) Config() Config {
	return l.config
}

// Decode decodes an encoded photo and returns it with its format name
func (l *Loader) Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", errors.Wrap(types.ErrInvalidInput, "empty image data")
	}
	if int64(len(data)) > l.config.MaxBytes {
		return nil, "", errors.Wrapf(types.ErrInvalidInput,
			"image is %d bytes, limit is %d", len(data), l.config.MaxBytes)
	}

	format := sniffFormat(data)
	if format == "" {
		return nil, "", errors.Wrap(types.ErrInvalidInput, "unknown image format")
	}
	if !l.isFormatSupported(format) {
		return nil, format, errors.Wrapf(types.ErrInvalidInput, "unsupported image format: %s", format)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(l.config.AutoOrient))
	if err != nil && format == "webp" {
		// x/image/webp lacks some extended-format features libwebp handles
		img, err = webp.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, format, errors.Wrapf(types.ErrInvalidInput, "decode %s: %v", format, err)
	}

	if err := l.Validate(img); err != nil {
		return nil, format, err
	}
	return img, format, nil
}

// DecodeReader reads at most MaxBytes+1 bytes from r and decodes them
func (l *Loader) DecodeReader(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.config.MaxBytes+1))
	if err != nil {
		return nil, "", errors.Wrap(err, "read image")
	}
	return l.Decode(data)
}

// LoadFile decodes the photo at path
func (l *Loader) LoadFile(path string) (image.Image, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "open image file")
	}
	defer file.Close()

	return l.DecodeReader(file)
}

// LoadURL downloads and decodes a photo over http or https
func (l *Loader) LoadURL(ctx context.Context, imageURL string) (image.Image, string, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, "", errors.Wrapf(types.ErrInvalidInput, "invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, "", errors.Wrapf(types.ErrInvalidInput,
			"unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", "headshot/1.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "download image")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Errorf("download image: HTTP %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, "", errors.Wrapf(types.ErrInvalidInput, "URL does not point to an image (Content-Type: %s)", ct)
	}

	return l.DecodeReader(resp.Body)
}

// Info returns basic information about an image
func (l *Loader) Info(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	info := ImageInfo{Width: width, Height: height}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// Validate checks that an image is present and large enough
func (l *Loader) Validate(img image.Image) error {
	if img == nil {
		return errors.Wrap(types.ErrInvalidInput, "no image")
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return errors.Wrap(types.ErrInvalidInput, "image has no pixels")
	}
	if minSize := l.config.MinImageSize; bounds.Dx() < minSize || bounds.Dy() < minSize {
		return errors.Wrapf(types.ErrInvalidInput, "image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), minSize)
	}
	return nil
}

func (l *Loader) isFormatSupported(format string) bool {
	for _, supported := range l.config.SupportedFormats {
		if strings.EqualFold(format, supported) || (format == "jpeg" && strings.EqualFold(supported, "jpg")) {
			return true
		}
	}
	return false
}

// sniffFormat names the format of data from its registered magic bytes
func sniffFormat(data []byte) string {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return format
	}
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "webp"
	}
	return ""
}
