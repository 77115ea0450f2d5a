package mock

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
)

func TestProvider_DetectFaces(t *testing.T) {
	p := New()
	ctx := context.Background()

	tests := []struct {
		name      string
		image     []byte
		wantFaces int
		wantErr   bool
	}{
		{name: "valid image", image: make([]byte, 5000), wantFaces: 1},
		{name: "image too small", image: make([]byte, 100), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			faces, err := p.DetectFaces(ctx, tt.image)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidImage)
				return
			}
			require.NoError(t, err)
			require.Len(t, faces, tt.wantFaces)
			assert.Len(t, faces[0].Embedding, embeddingDimension)
		})
	}
}

func TestProvider_DetectFaces_BoxFollowsImageSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 500, 300))
	_, _ = rand.New(rand.NewSource(1)).Read(img.Pix)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.Greater(t, buf.Len(), minImageSize)

	faces, err := New().DetectFaces(context.Background(), buf.Bytes())
	require.NoError(t, err)
	require.Len(t, faces, 1)

	assert.Equal(t, image.Rect(100, 60, 400, 240), faces[0].BoundingBox.Rect())
}

func TestProvider_DeterministicEmbedding(t *testing.T) {
	p := New()
	ctx := context.Background()

	a := bytes.Repeat([]byte{1}, 2000)
	b := bytes.Repeat([]byte{2}, 2000)

	fa1, err := p.DetectFaces(ctx, a)
	require.NoError(t, err)
	fa2, err := p.DetectFaces(ctx, a)
	require.NoError(t, err)
	fb, err := p.DetectFaces(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, fa1[0].Embedding, fa2[0].Embedding)
	assert.NotEqual(t, fa1[0].Embedding, fb[0].Embedding)
}

func TestGenerateEmbedding_UnitLength(t *testing.T) {
	embedding := generateEmbedding([]byte("some image bytes"))

	var norm float64
	for _, v := range embedding {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestProviderImplementsInterface(t *testing.T) {
	var _ provider.FaceProvider = New()
	assert.Equal(t, "mock", New().Name())
}
