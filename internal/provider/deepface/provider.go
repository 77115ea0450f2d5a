package deepface

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels
)

// Provider implements provider.FaceProvider using DeepFace API
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// Name implements provider.FaceProvider
func (p *Provider) Name() string {
	return "deepface"
}

// DetectFaces detects faces in the image together with their embeddings
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	imageBase64 := base64.StdEncoding.EncodeToString(image)

	resp, err := p.client.Represent(ctx, imageBase64)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	dim := 0
	for i, result := range resp.Results {
		if len(result.Embedding) == 0 {
			return nil, fmt.Errorf("%w: face %d has no embedding", ErrInvalidResponse, i)
		}
		if dim != 0 && len(result.Embedding) != dim {
			return nil, fmt.Errorf("%w: face %d has %d dimensions, expected %d", ErrInvalidResponse, i, len(result.Embedding), dim)
		}
		dim = len(result.Embedding)

		confidence := calculateConfidence(float64(result.FacialArea.W * result.FacialArea.H))
		if result.FaceConfidence != nil {
			confidence = *result.FaceConfidence
		}

		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(result.FacialArea.X),
				Y:      float64(result.FacialArea.Y),
				Width:  float64(result.FacialArea.W),
				Height: float64(result.FacialArea.H),
			},
			Confidence: confidence,
			Embedding:  result.Embedding,
		})
	}

	return faces, nil
}

// calculateConfidence estimates confidence based on face area.
// Older DeepFace releases don't return face_confidence, so larger faces
// are treated as more reliable detections.
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5 // Low confidence for very small faces
	}
	// Scale from 0.7 to 0.99 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

// Ensure Provider implements provider.FaceProvider
var _ provider.FaceProvider = (*Provider)(nil)
