package provider

import (
	"context"
	"errors"
	"image"
	"math"
)

// ErrNoFaceDetected is returned by callers that need at least one face.
// Providers themselves return an empty slice when an image has no faces.
var ErrNoFaceDetected = errors.New("no face detected in image")

// FaceProvider define a interface para provedores de reconhecimento facial
type FaceProvider interface {
	// Name identifies the provider in logs, audit events and cache keys
	Name() string

	// DetectFaces detecta faces na imagem e retorna informações sobre cada uma.
	// Embedding is nil when the provider does not expose embeddings.
	DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error)
}

// DetectedFace represents a detected face in the image
type DetectedFace struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
	Embedding   []float64   `json:"embedding,omitempty"`
}

// BoundingBox represents the face area in pixels of the submitted image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect rounds the box to integer pixel coordinates.
func (b BoundingBox) Rect() image.Rectangle {
	x0 := int(math.Round(b.X))
	y0 := int(math.Round(b.Y))
	return image.Rect(x0, y0, x0+int(math.Round(b.Width)), y0+int(math.Round(b.Height)))
}

// FromRelative converts a box expressed as ratios of the image size into pixels.
func FromRelative(left, top, width, height float64, size image.Point) BoundingBox {
	return BoundingBox{
		X:      left * float64(size.X),
		Y:      top * float64(size.Y),
		Width:  width * float64(size.X),
		Height: height * float64(size.Y),
	}
}

// FromCorners builds a box from [x1, y1, x2, y2] corner coordinates.
func FromCorners(x1, y1, x2, y2 float64) BoundingBox {
	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}
