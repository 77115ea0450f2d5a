// Package imaging turns uploaded reference pictures into the JPEG every face
// provider accepts.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

const (
	// DefaultMaxSize bounds the longest side of a normalised image
	DefaultMaxSize = 1280
	jpegQuality    = 90
)

// Normalize decodes png, jpeg, bmp or webp data and returns a JPEG whose
// longest side is at most maxSize. Undecodable data fails with
// domain.ErrInvalidImage.
func Normalize(data []byte, maxSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, domain.ErrInvalidImage
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, domain.ErrInvalidImage
	}

	out := img
	if w, h := fit(bounds.Dx(), bounds.Dy(), maxSize); w != bounds.Dx() || h != bounds.Dy() {
		resized := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fit keeps the aspect ratio and never upscales
func fit(width, height, maxSize int) (int, int) {
	if width <= maxSize && height <= maxSize {
		return width, height
	}
	if width >= height {
		h := int(float64(height) * float64(maxSize) / float64(width))
		return maxSize, max(h, 1)
	}
	w := int(float64(width) * float64(maxSize) / float64(height))
	return max(w, 1), maxSize
}
