package insightface

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
)

// Provider implements provider.FaceProvider on top of an InsightFace embedding server
type Provider struct {
	client *Client
}

// NewProvider creates a new InsightFace provider
func NewProvider(config Config) *Provider {
	return &Provider{client: NewClient(config)}
}

// Name implements provider.FaceProvider
func (p *Provider) Name() string {
	return "insightface"
}

// DetectFaces returns every face the server found, with float64 embeddings
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	resp, err := p.client.ComputeFaceEmbeddings(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Faces))
	for i, f := range resp.Faces {
		if len(f.BBox) != 4 {
			return nil, fmt.Errorf("%w: face %d has %d bbox values", ErrInvalidResponse, i, len(f.BBox))
		}

		embedding := make([]float64, len(f.Embedding))
		for j, v := range f.Embedding {
			embedding[j] = float64(v)
		}

		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.FromCorners(f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3]),
			Confidence:  f.DetScore,
			Embedding:   embedding,
		})
	}

	return faces, nil
}

var _ provider.FaceProvider = (*Provider)(nil)
