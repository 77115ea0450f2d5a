package config

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/kelseyhightower/envconfig"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

// Supported FACE_PROVIDER values
const (
	ProviderDeepFace    = "deepface"
	ProviderInsightFace = "insightface"
	ProviderDlib        = "dlib"
	ProviderRekognition = "rekognition"
	ProviderMock        = "mock"
)

var trackerKinds = map[string]bool{"mil": true, "kcf": true, "csrt": true}

// Logging is read by every command
type Logging struct {
	Environment string `envconfig:"ENV" default:"development"`
	// LogLevel overrides the level implied by Environment
	LogLevel string `envconfig:"LOG_LEVEL"`
}

// Logger builds the logger these settings describe, writing to out
// (stdout when nil).
func (l Logging) Logger(out io.Writer) *slog.Logger {
	return NewLoggerWith(LoggerOptions{Env: l.Environment, Level: l.LogLevel, Output: out})
}

// Engine is the part of the configuration shared by the CLI and the API:
// face provider, finder defaults and capture options.
type Engine struct {
	Logging

	// Provider
	FaceProvider     string `envconfig:"FACE_PROVIDER" default:"deepface"`
	DeepFaceURL      string `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DeepFaceModel    string `envconfig:"DEEPFACE_MODEL" default:"Facenet512"`
	DeepFaceDetector string `envconfig:"DEEPFACE_DETECTOR" default:"retinaface"`
	InsightFaceURL   string `envconfig:"INSIGHTFACE_URL" default:"http://localhost:8000"`
	DlibModelsDir    string `envconfig:"DLIB_MODELS_DIR" default:"models"`
	AWSRegion        string `envconfig:"AWS_REGION" default:"us-east-1"`
	// RekognitionQuality is the CompareFaces quality filter: NONE, AUTO, LOW, MEDIUM or HIGH
	RekognitionQuality string `envconfig:"REKOGNITION_QUALITY_FILTER" default:"AUTO"`

	// Finder
	MatchThreshold float64 `envconfig:"MATCH_THRESHOLD" default:"0.5"`
	DetectInterval int     `envconfig:"DETECT_INTERVAL" default:"5"`
	Tracker        string  `envconfig:"TRACKER" default:"csrt"`
	FrameMaxWidth  int     `envconfig:"FRAME_MAX_WIDTH" default:"960"`
}

// Database holds the connection settings
type Database struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
}

// Config is the HTTP service configuration
type Config struct {
	Engine

	// Server
	Port int `envconfig:"PORT" default:"3000"`

	Database

	// Sessions
	MaxSessions            int `envconfig:"MAX_SESSIONS" default:"4"`
	SessionStartsPerMinute int `envconfig:"SESSION_STARTS_PER_MINUTE" default:"10"`

	// Security
	APIKeyHashes  []string `envconfig:"API_KEY_HASHES" required:"true"`
	WebhookSecret string   `envconfig:"WEBHOOK_SECRET"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.MaxSessions < 1 {
		return nil, fmt.Errorf("load config: MAX_SESSIONS must be at least 1")
	}
	return &cfg, nil
}

// Migrate is all cmd/migrate needs
type Migrate struct {
	Logging
	Database
}

// LoadMigrate reads the database and logging settings
func LoadMigrate() (*Migrate, error) {
	var cfg Migrate
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEngine reads only the engine settings, for tools that run without a database
func LoadEngine() (*Engine, error) {
	var cfg Engine
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (e *Engine) Validate() error {
	switch e.FaceProvider {
	case ProviderDeepFace, ProviderInsightFace, ProviderDlib, ProviderRekognition, ProviderMock:
	default:
		return fmt.Errorf("unknown FACE_PROVIDER %q", e.FaceProvider)
	}
	if e.MatchThreshold <= 0 || e.MatchThreshold > 1 {
		return domain.ErrInvalidThreshold
	}
	if e.DetectInterval < 1 {
		return domain.ErrInvalidDetectInterval
	}
	if !trackerKinds[e.Tracker] {
		return domain.ErrInvalidTracker
	}
	if e.FrameMaxWidth < 0 {
		return fmt.Errorf("FRAME_MAX_WIDTH must not be negative")
	}
	if _, err := ParseLevel(e.LogLevel); err != nil {
		return err
	}
	return nil
}

func (e *Engine) IsDevelopment() bool {
	return e.Environment == "development"
}

func (e *Engine) IsProduction() bool {
	return e.Environment == "production"
}
