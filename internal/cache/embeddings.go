package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EmbeddingTTL is how long an encoded reference image stays cached
const EmbeddingTTL = 24 * time.Hour

// Store is the byte cache the embedding cache sits on, *PGCache implements it
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// EmbeddingCache remembers the embedding a provider produced for an image
type EmbeddingCache struct {
	store Store
	ttl   time.Duration
}

func NewEmbeddingCache(store Store) *EmbeddingCache {
	return &EmbeddingCache{store: store, ttl: EmbeddingTTL}
}

// EmbeddingKey scopes the image hash by provider, embeddings from different
// models are not comparable
func EmbeddingKey(provider string, image []byte) string {
	sum := sha256.Sum256(image)
	return "embedding:" + provider + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached embedding and whether it was found. Expired or
// corrupt entries count as misses.
func (c *EmbeddingCache) Get(ctx context.Context, provider string, image []byte) ([]float64, bool, error) {
	data, err := c.store.Get(ctx, EmbeddingKey(provider, image))
	if errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrCacheExpired) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var embedding []float64
	if err := json.Unmarshal(data, &embedding); err != nil || len(embedding) == 0 {
		return nil, false, nil
	}
	return embedding, true, nil
}

func (c *EmbeddingCache) Set(ctx context.Context, provider string, image []byte, embedding []float64) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	return c.store.Set(ctx, EmbeddingKey(provider, image), data, c.ttl)
}
