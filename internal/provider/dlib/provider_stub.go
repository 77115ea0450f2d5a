//go:build !dlib

package dlib

import (
	"context"

	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
)

// Provider is a stub when dlib support is disabled
type Provider struct{}

// NewProvider always fails without the dlib build tag
func NewProvider(cfg Config) (*Provider, error) {
	return nil, ErrNotEnabled
}

// Name implements provider.FaceProvider
func (p *Provider) Name() string {
	return providerName
}

// DetectFaces implements provider.FaceProvider
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	return nil, ErrNotEnabled
}

// Close implements io.Closer
func (p *Provider) Close() error {
	return nil
}

var _ provider.FaceProvider = (*Provider)(nil)
