package rekognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/findperson/internal/audit"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

// Comparison is one face found in a target image and its similarity to the source face
type Comparison struct {
	BoundingBox provider.BoundingBox
	Similarity  float64 // 0-1
}

// Provider implements provider.FaceProvider using AWS Rekognition.
// Rekognition does not expose embeddings, so matching goes through Compare.
type Provider struct {
	api           RekognitionAPI
	auditLogger   audit.Logger
	qualityFilter types.QualityFilter
}

// ProviderOption defines optional configuration for Provider
type ProviderOption func(*Provider)

// WithAuditLogger sets the audit logger for the provider
func WithAuditLogger(logger audit.Logger) ProviderOption {
	return func(p *Provider) {
		p.auditLogger = logger
	}
}

// WithQualityFilter sets the CompareFaces quality filter
func WithQualityFilter(q types.QualityFilter) ProviderOption {
	return func(p *Provider) {
		p.qualityFilter = q
	}
}

// Ensure Provider implements provider.FaceProvider interface at compile time
var _ provider.FaceProvider = (*Provider)(nil)

// NewProvider creates a new Rekognition provider using the default credential chain
func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	opts = append([]ProviderOption{WithQualityFilter(cfg.QualityFilter)}, opts...)
	return NewProviderWithAPI(client, opts...), nil
}

// NewProviderWithAPI creates a provider around an existing Rekognition API implementation
func NewProviderWithAPI(api RekognitionAPI, opts ...ProviderOption) *Provider {
	p := &Provider{api: api}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements provider.FaceProvider
func (p *Provider) Name() string {
	return "rekognition"
}

// logAudit logs an audit event if an audit logger is configured
// Audit failure does not affect the operation (fire-and-forget)
func (p *Provider) logAudit(ctx context.Context, eventType audit.EventType, success bool, err error, metadata map[string]string) {
	if p.auditLogger == nil {
		return
	}

	event := audit.Event{
		EventType: eventType,
		Provider:  p.Name(),
		Success:   success,
		Metadata:  metadata,
	}

	if err != nil {
		event.Error = err.Error()
	}

	_ = p.auditLogger.Log(ctx, event)
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) == 0 {
		return ErrInvalidImage
	}
	if len(image) < minImageSize {
		return fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(image), minImageSize)
	}
	if len(image) > maxImageSize {
		return fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(image), maxImageSize)
	}
	return nil
}

// imageSize decodes only the image header, Rekognition boxes are ratios of it
func imageSize(data []byte) (image.Point, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return image.Pt(cfg.Width, cfg.Height), nil
}

func toBoundingBox(box *types.BoundingBox, size image.Point) provider.BoundingBox {
	if box == nil {
		return provider.BoundingBox{}
	}
	return provider.FromRelative(
		float64(aws.ToFloat32(box.Left)),
		float64(aws.ToFloat32(box.Top)),
		float64(aws.ToFloat32(box.Width)),
		float64(aws.ToFloat32(box.Height)),
		size,
	)
}

// DetectFaces detects faces in an image using AWS Rekognition DetectFaces API
// Returns an empty slice if no faces are detected (not an error)
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	meta := map[string]string{"image_size": strconv.Itoa(len(image))}

	if err := validateImage(image); err != nil {
		p.logAudit(ctx, audit.EventFacesDetected, false, err, meta)
		return nil, err
	}
	size, err := imageSize(image)
	if err != nil {
		p.logAudit(ctx, audit.EventFacesDetected, false, err, meta)
		return nil, err
	}

	output, err := p.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: image},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		err = parseAPIError(err)
		p.logAudit(ctx, audit.EventFacesDetected, false, err, meta)
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		faces = append(faces, provider.DetectedFace{
			BoundingBox: toBoundingBox(detail.BoundingBox, size),
			Confidence:  float64(aws.ToFloat32(detail.Confidence)) / 100.0,
		})
	}

	meta["faces_count"] = strconv.Itoa(len(faces))
	p.logAudit(ctx, audit.EventFacesDetected, true, nil, meta)

	return faces, nil
}

// Compare runs CompareFaces of the largest face in source against every face in target.
// A target without faces yields no comparisons.
func (p *Provider) Compare(ctx context.Context, source, target []byte) ([]Comparison, error) {
	meta := map[string]string{
		"source_image_size": strconv.Itoa(len(source)),
		"target_image_size": strconv.Itoa(len(target)),
	}

	if err := validateImage(source); err != nil {
		p.logAudit(ctx, audit.EventFacesCompared, false, err, meta)
		return nil, fmt.Errorf("source image: %w", err)
	}
	if err := validateImage(target); err != nil {
		p.logAudit(ctx, audit.EventFacesCompared, false, err, meta)
		return nil, fmt.Errorf("target image: %w", err)
	}
	size, err := imageSize(target)
	if err != nil {
		p.logAudit(ctx, audit.EventFacesCompared, false, err, meta)
		return nil, fmt.Errorf("target image: %w", err)
	}

	output, err := p.api.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage: &types.Image{Bytes: source},
		TargetImage: &types.Image{Bytes: target},
		// every target face is reported as a match, the caller applies its own threshold
		SimilarityThreshold: aws.Float32(0),
		QualityFilter:       p.qualityFilter,
	})
	if err != nil {
		err = parseAPIError(err)
		if errors.Is(err, ErrNoFaceDetected) {
			meta["matches_found"] = "0"
			p.logAudit(ctx, audit.EventFacesCompared, true, nil, meta)
			return []Comparison{}, nil
		}
		p.logAudit(ctx, audit.EventFacesCompared, false, err, meta)
		return nil, fmt.Errorf("compare faces: %w", err)
	}

	comparisons := make([]Comparison, 0, len(output.FaceMatches)+len(output.UnmatchedFaces))
	for _, match := range output.FaceMatches {
		if match.Face == nil {
			continue
		}
		comparisons = append(comparisons, Comparison{
			BoundingBox: toBoundingBox(match.Face.BoundingBox, size),
			Similarity:  float64(aws.ToFloat32(match.Similarity)) / 100.0,
		})
	}
	for _, face := range output.UnmatchedFaces {
		comparisons = append(comparisons, Comparison{
			BoundingBox: toBoundingBox(face.BoundingBox, size),
		})
	}

	meta["matches_found"] = strconv.Itoa(len(output.FaceMatches))
	p.logAudit(ctx, audit.EventFacesCompared, true, nil, meta)

	return comparisons, nil
}
