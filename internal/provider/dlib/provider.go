//go:build dlib

package dlib

import (
	"context"
	"fmt"
	"sync"

	face "github.com/Kagami/go-face"

	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
)

// Provider implements provider.FaceProvider with go-face
type Provider struct {
	mu         sync.Mutex
	recognizer *face.Recognizer
	cnn        bool
}

// NewProvider loads the dlib models from cfg.ModelsDir
func NewProvider(cfg Config) (*Provider, error) {
	rec, err := face.NewRecognizer(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", cfg.ModelsDir, err)
	}
	return &Provider{recognizer: rec, cnn: cfg.CNN}, nil
}

// Name implements provider.FaceProvider
func (p *Provider) Name() string {
	return providerName
}

// DetectFaces runs detection and description on a JPEG image.
// The recognizer is not safe for concurrent use, calls are serialised.
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	var (
		faces []face.Face
		err   error
	)
	if p.cnn {
		faces, err = p.recognizer.RecognizeCNN(image)
	} else {
		faces, err = p.recognizer.Recognize(image)
	}
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	detected := make([]provider.DetectedFace, 0, len(faces))
	for _, f := range faces {
		embedding := make([]float64, len(f.Descriptor))
		for i, v := range f.Descriptor {
			embedding[i] = float64(v)
		}
		r := f.Rectangle
		detected = append(detected, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(r.Min.X),
				Y:      float64(r.Min.Y),
				Width:  float64(r.Dx()),
				Height: float64(r.Dy()),
			},
			Confidence: 1,
			Embedding:  embedding,
		})
	}

	return detected, nil
}

// Close frees the dlib models
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recognizer.Close()
	return nil
}

var _ provider.FaceProvider = (*Provider)(nil)
