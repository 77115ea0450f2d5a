package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/findperson/internal/config"
	"github.com/saturnino-fabrica-de-software/findperson/internal/face"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
)

var rootCmd = &cobra.Command{
	Use:   "findperson",
	Short: "Find a known person in a camera or video feed",
	Long: `findperson encodes reference photos of a person and watches a webcam,
stream or video file for them. Faces are embedded every N frames and compared
against the reference by cosine similarity; once found, an OpenCV tracker
follows the face until it is lost and detection resumes.

The face provider and the defaults come from the same environment variables
as the API (FACE_PROVIDER, MATCH_THRESHOLD, DETECT_INTERVAL, TRACKER, ...).`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(encodeCmd, watchCmd)
}

func initConfig() {
	// .env file is optional
	_ = godotenv.Load()
}

// engine loads the provider configuration and its logger
func engine() (*config.Engine, *slog.Logger, error) {
	cfg, err := config.LoadEngine()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, cfg.Logger(os.Stderr), nil
}

// openProvider builds the configured face provider. The returned func
// releases native resources held by it.
func openProvider(ctx context.Context, cfg *config.Engine) (provider.FaceProvider, func(), error) {
	p, err := face.NewFaceProvider(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create face provider: %w", err)
	}
	release := func() {}
	if closer, ok := p.(io.Closer); ok {
		release = func() { _ = closer.Close() }
	}
	return p, release, nil
}
