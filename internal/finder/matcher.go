package finder

import (
	"context"
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
)

var (
	ErrNoReferences = errors.New("no reference embeddings")
	ErrNoEmbedding  = errors.New("provider returned a face without embedding")
)

// EmbeddingMatcher scores every face a provider finds by its best cosine
// similarity to a set of reference embeddings.
type EmbeddingMatcher struct {
	provider   provider.FaceProvider
	references [][]float64
}

// NewEmbeddingMatcher copies the reference set. Every reference must be non-empty.
func NewEmbeddingMatcher(p provider.FaceProvider, references [][]float64) (*EmbeddingMatcher, error) {
	if len(references) == 0 {
		return nil, ErrNoReferences
	}

	refs := make([][]float64, 0, len(references))
	for i, r := range references {
		if len(r) == 0 {
			return nil, fmt.Errorf("reference %d: %w", i, ErrNoReferences)
		}
		refs = append(refs, append([]float64(nil), r...))
	}

	return &EmbeddingMatcher{provider: p, references: refs}, nil
}

// Match implements Matcher
func (m *EmbeddingMatcher) Match(ctx context.Context, frame Frame) ([]Candidate, error) {
	data, err := frame.JPEG()
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	faces, err := m.provider.DetectFaces(ctx, data)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(faces))
	for _, face := range faces {
		if len(face.Embedding) == 0 {
			return nil, fmt.Errorf("%s: %w", m.provider.Name(), ErrNoEmbedding)
		}
		candidates = append(candidates, Candidate{
			Box:   face.BoundingBox.Rect(),
			Score: BestSimilarity(face.Embedding, m.references),
		})
	}

	return candidates, nil
}

var _ Matcher = (*EmbeddingMatcher)(nil)
