package face

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/findperson/internal/audit"
	"github.com/saturnino-fabrica-de-software/findperson/internal/config"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider/dlib"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider/insightface"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider/rekognition"
)

// ProviderType defines supported face provider types
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace HTTP server (local)
	ProviderTypeDeepFace ProviderType = config.ProviderDeepFace
	// ProviderTypeInsightFace is an InsightFace buffalo_l embedding server (local)
	ProviderTypeInsightFace ProviderType = config.ProviderInsightFace
	// ProviderTypeDlib runs dlib in process (needs -tags=dlib)
	ProviderTypeDlib ProviderType = config.ProviderDlib
	// ProviderTypeRekognition is AWS Rekognition (cloud, compares images)
	ProviderTypeRekognition ProviderType = config.ProviderRekognition
	// ProviderTypeMock returns deterministic faces, for tests and demos
	ProviderTypeMock ProviderType = config.ProviderMock
)

// FactoryOption configures NewFaceProvider
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	auditLogger audit.Logger
}

// WithAuditLogger is forwarded to providers that emit audit events
func WithAuditLogger(logger audit.Logger) FactoryOption {
	return func(o *factoryOptions) {
		o.auditLogger = logger
	}
}

// NewFaceProvider creates a FaceProvider instance based on configuration.
// Providers holding native resources implement io.Closer.
//
// Environment variables:
//   - FACE_PROVIDER: deepface, insightface, dlib, rekognition or mock (default: deepface)
//   - DEEPFACE_URL, DEEPFACE_MODEL, DEEPFACE_DETECTOR: DeepFace server settings
//   - INSIGHTFACE_URL: InsightFace embedding server
//   - DLIB_MODELS_DIR: directory with the dlib model files
//   - AWS_REGION: AWS region for Rekognition, credentials come from the SDK chain
//   - REKOGNITION_QUALITY_FILTER: CompareFaces quality filter
func NewFaceProvider(ctx context.Context, cfg *config.Engine, opts ...FactoryOption) (provider.FaceProvider, error) {
	var o factoryOptions
	for _, opt := range opts {
		opt(&o)
	}

	switch ProviderType(cfg.FaceProvider) {
	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeInsightFace:
		icfg := insightface.DefaultConfig()
		if cfg.InsightFaceURL != "" {
			icfg.BaseURL = cfg.InsightFaceURL
		}
		return insightface.NewProvider(icfg), nil

	case ProviderTypeDlib:
		prov, err := dlib.NewProvider(dlib.Config{ModelsDir: cfg.DlibModelsDir})
		if err != nil {
			return nil, fmt.Errorf("create dlib provider: %w", err)
		}
		return prov, nil

	case ProviderTypeRekognition:
		return createRekognitionProvider(ctx, cfg, o)

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s, %s, %s, %s)",
			cfg.FaceProvider, ProviderTypeDeepFace, ProviderTypeInsightFace, ProviderTypeDlib,
			ProviderTypeRekognition, ProviderTypeMock)
	}
}

// createRekognitionProvider creates an AWS Rekognition provider instance
func createRekognitionProvider(ctx context.Context, cfg *config.Engine, o factoryOptions) (provider.FaceProvider, error) {
	rcfg := rekognition.DefaultConfig()
	if cfg.AWSRegion != "" {
		rcfg.Region = cfg.AWSRegion
	}
	if cfg.RekognitionQuality != "" {
		rcfg.QualityFilter = types.QualityFilter(strings.ToUpper(cfg.RekognitionQuality))
	}

	var popts []rekognition.ProviderOption
	if o.auditLogger != nil {
		popts = append(popts, rekognition.WithAuditLogger(o.auditLogger))
	}

	prov, err := rekognition.NewProvider(ctx, rcfg, popts...)
	if err != nil {
		return nil, fmt.Errorf("create rekognition provider: %w", err)
	}
	return prov, nil
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Engine) provider.FaceProvider {
	dcfg := deepface.DefaultConfig()
	if cfg.DeepFaceURL != "" {
		dcfg.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		dcfg.Model = cfg.DeepFaceModel
	}
	if cfg.DeepFaceDetector != "" {
		dcfg.Detector = cfg.DeepFaceDetector
	}
	return deepface.NewProvider(dcfg)
}
