package face

import (
	"context"
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider/rekognition"
)

// ErrNoReferenceImage is returned when an image-comparing provider gets a
// reference stored without its image
var ErrNoReferenceImage = errors.New("reference has no image to compare against")

// ImageComparer is a provider that scores faces by comparing images instead
// of exposing embeddings
type ImageComparer interface {
	provider.FaceProvider
	Compare(ctx context.Context, source, target []byte) ([]rekognition.Comparison, error)
}

// ComparesImages reports whether p needs the reference image rather than embeddings
func ComparesImages(p provider.FaceProvider) bool {
	_, ok := p.(ImageComparer)
	return ok
}

// NewMatcher builds the finder.Matcher for a reference on the given provider
func NewMatcher(p provider.FaceProvider, ref *domain.Reference) (finder.Matcher, error) {
	if cmp, ok := p.(ImageComparer); ok {
		if len(ref.Image) == 0 {
			return nil, ErrNoReferenceImage
		}
		return compareMatcher(cmp, ref.Image), nil
	}

	m, err := finder.NewEmbeddingMatcher(p, ref.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("reference %s: %w", ref.ID, err)
	}
	return m, nil
}

func compareMatcher(cmp ImageComparer, reference []byte) finder.Matcher {
	source := append([]byte(nil), reference...)

	return finder.MatcherFunc(func(ctx context.Context, frame finder.Frame) ([]finder.Candidate, error) {
		data, err := frame.JPEG()
		if err != nil {
			return nil, fmt.Errorf("encode frame: %w", err)
		}

		comparisons, err := cmp.Compare(ctx, source, data)
		if err != nil {
			return nil, err
		}

		candidates := make([]finder.Candidate, 0, len(comparisons))
		for _, c := range comparisons {
			candidates = append(candidates, finder.Candidate{
				Box:   c.BoundingBox.Rect(),
				Score: c.Similarity,
			})
		}
		return candidates, nil
	})
}
