package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
)

const (
	embeddingDimension = 512
	minImageSize       = 1000
)

// Provider implementa provider.FaceProvider para testes e desenvolvimento.
// Every image holds exactly one face whose embedding is derived from the
// image hash, so identical images match with similarity 1.
type Provider struct{}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

// Name implements provider.FaceProvider
func (p *Provider) Name() string {
	return "mock"
}

// DetectFaces simula detecção de uma face no centro da imagem
func (p *Provider) DetectFaces(ctx context.Context, img []byte) ([]provider.DetectedFace, error) {
	if len(img) < minImageSize {
		return nil, domain.ErrInvalidImage
	}

	box := provider.BoundingBox{X: 0, Y: 0, Width: 100, Height: 100}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(img)); err == nil {
		box = provider.FromRelative(0.2, 0.2, 0.6, 0.6, image.Pt(cfg.Width, cfg.Height))
	}

	return []provider.DetectedFace{
		{
			BoundingBox: box,
			Confidence:  0.99,
			Embedding:   generateEmbedding(img),
		},
	}, nil
}

// generateEmbedding gera embedding determinístico baseado no hash da imagem
func generateEmbedding(image []byte) []float64 {
	hash := sha256.Sum256(image)
	embedding := make([]float64, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		idx := i % hashLen
		//nolint:gosec // idx is always < hashLen due to modulo operation
		embedding[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

var _ provider.FaceProvider = (*Provider)(nil)
