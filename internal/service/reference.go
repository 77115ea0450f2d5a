package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/findperson/internal/audit"
	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/face"
	"github.com/saturnino-fabrica-de-software/findperson/internal/imaging"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
	"github.com/saturnino-fabrica-de-software/findperson/internal/repository"
)

// MaxReferenceImages bounds the images accepted for one reference
const MaxReferenceImages = 10

// EmbeddingCache is the cache consulted before asking the provider for an
// embedding, *cache.EmbeddingCache implements it
type EmbeddingCache interface {
	Get(ctx context.Context, provider string, image []byte) ([]float64, bool, error)
	Set(ctx context.Context, provider string, image []byte, embedding []float64) error
}

type ReferenceService struct {
	repo     repository.ReferenceRepositoryInterface
	provider provider.FaceProvider
	cache    EmbeddingCache
	audit    audit.Logger
	logger   *slog.Logger
	maxSize  int
}

type ReferenceOption func(*ReferenceService)

func WithEmbeddingCache(c EmbeddingCache) ReferenceOption {
	return func(s *ReferenceService) {
		s.cache = c
	}
}

func WithReferenceAudit(l audit.Logger) ReferenceOption {
	return func(s *ReferenceService) {
		s.audit = l
	}
}

func WithReferenceLogger(l *slog.Logger) ReferenceOption {
	return func(s *ReferenceService) {
		s.logger = l
	}
}

// NewReferenceService creates the reference encoder. repo may be nil when
// only Encode is used.
func NewReferenceService(repo repository.ReferenceRepositoryInterface, p provider.FaceProvider, opts ...ReferenceOption) *ReferenceService {
	s := &ReferenceService{
		repo:     repo,
		provider: p,
		audit:    &audit.NoOpLogger{},
		logger:   slog.Default(),
		maxSize:  imaging.DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Encode turns reference images into a Reference ready to be stored. Each
// image contributes the embedding of its first detected face. Providers that
// compare images keep the first normalised image instead.
func (s *ReferenceService) Encode(ctx context.Context, name string, images [][]byte) (*domain.Reference, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 255 {
		return nil, domain.ErrValidationFailed.WithError(errors.New("name must have 1 to 255 characters"))
	}
	if len(images) == 0 {
		return nil, domain.ErrValidationFailed.WithError(errors.New("at least one image is required"))
	}
	if len(images) > MaxReferenceImages {
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("at most %d images are accepted", MaxReferenceImages))
	}

	ref := &domain.Reference{
		ID:       uuid.New(),
		Name:     name,
		Provider: s.provider.Name(),
	}
	comparer := face.ComparesImages(s.provider)

	for i, img := range images {
		if !comparer && s.cache != nil {
			if embedding, ok, err := s.cache.Get(ctx, ref.Provider, img); err != nil {
				s.logger.WarnContext(ctx, "embedding cache lookup failed", slog.String("error", err.Error()))
			} else if ok {
				if i == 0 {
					normalized, err := imaging.Normalize(img, s.maxSize)
					if err != nil {
						return nil, err
					}
					ref.Image = normalized
				}
				ref.Embeddings = append(ref.Embeddings, embedding)
				continue
			}
		}

		normalized, embedding, err := s.encodeImage(ctx, img)
		if err != nil {
			s.auditEncode(ctx, ref, err)
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		// the stored image is always the first one
		if i == 0 {
			ref.Image = normalized
		}
		if comparer {
			continue
		}

		ref.Embeddings = append(ref.Embeddings, embedding)
		if s.cache != nil {
			if err := s.cache.Set(ctx, ref.Provider, img, embedding); err != nil {
				s.logger.WarnContext(ctx, "embedding cache store failed", slog.String("error", err.Error()))
			}
		}
	}

	s.auditEncode(ctx, ref, nil)
	return ref, nil
}

func (s *ReferenceService) encodeImage(ctx context.Context, img []byte) ([]byte, []float64, error) {
	normalized, err := imaging.Normalize(img, s.maxSize)
	if err != nil {
		return nil, nil, err
	}

	faces, err := s.provider.DetectFaces(ctx, normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("detect faces: %w", err)
	}
	if len(faces) == 0 {
		return nil, nil, domain.ErrNoFaceDetected
	}
	if face.ComparesImages(s.provider) {
		return normalized, nil, nil
	}
	if len(faces[0].Embedding) == 0 {
		return nil, nil, fmt.Errorf("provider %s returned a face without embedding", s.provider.Name())
	}
	return normalized, faces[0].Embedding, nil
}

func (s *ReferenceService) auditEncode(ctx context.Context, ref *domain.Reference, err error) {
	event := audit.Event{
		EventType:   audit.EventReferenceEncoded,
		ReferenceID: ref.ID,
		Provider:    ref.Provider,
		Success:     err == nil,
		Metadata:    map[string]string{"embeddings": fmt.Sprint(len(ref.Embeddings))},
	}
	if err != nil {
		event.Error = err.Error()
	}
	_ = s.audit.Log(ctx, event)
}

// Create encodes and stores a reference
func (s *ReferenceService) Create(ctx context.Context, name string, images [][]byte) (*domain.Reference, error) {
	ref, err := s.Encode(ctx, name, images)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, ref); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "reference created",
		slog.String("reference_id", ref.ID.String()),
		slog.String("name", ref.Name),
		slog.Int("embeddings", ref.EmbeddingCount()),
	)
	return ref, nil
}

func (s *ReferenceService) Get(ctx context.Context, id uuid.UUID) (*domain.Reference, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ReferenceService) List(ctx context.Context) ([]domain.ReferenceView, error) {
	return s.repo.List(ctx)
}

func (s *ReferenceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	_ = s.audit.Log(ctx, audit.Event{
		EventType:   audit.EventReferenceDeleted,
		ReferenceID: id,
		Provider:    s.provider.Name(),
		Success:     true,
	})
	return nil
}
