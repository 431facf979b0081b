// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package topicmap

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/antflydb/topicmap/lib/embeddings"
	"github.com/antflydb/topicmap/lib/ner"
	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache holds recent tagger and embedder results so that re-running an
// extraction over the same text (as Session does) skips model inference.
type Cache struct {
	embeddings *ttlcache.Cache[string, []float32]
	tags       *ttlcache.Cache[string, []ner.RawMention]
	logger     *zap.Logger
	cancel     context.CancelFunc
}

// NewCache creates a cache whose entries expire after ttl
// (DefaultCacheTTL when ttl <= 0). Close stops its janitor goroutines.
func NewCache(ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	embeddingCache := ttlcache.New(
		ttlcache.WithTTL[string, []float32](ttl),
	)
	tagCache := ttlcache.New(
		ttlcache.WithTTL[string, []ner.RawMention](ttl),
	)
	go embeddingCache.Start()
	go tagCache.Start()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		embeddings: embeddingCache,
		tags:       tagCache,
		logger:     logger.Named("cache"),
		cancel:     cancel,
	}
	go c.logStats(ctx)
	return c
}

// WrapEmbedder returns embedder with its results cached under name.
func (c *Cache) WrapEmbedder(embedder embeddings.Embedder, name string) *CachedEmbedder {
	return &CachedEmbedder{
		embedder: embedder,
		name:     name,
		cache:    c.embeddings,
		sfGroup:  &singleflight.Group{},
		logger:   c.logger.Named(name),
	}
}

// WrapTagger returns tagger with its results cached under name.
func (c *Cache) WrapTagger(tagger ner.Tagger, name string) *CachedTagger {
	return &CachedTagger{
		tagger:  tagger,
		name:    name,
		cache:   c.tags,
		sfGroup: &singleflight.Group{},
		logger:  c.logger.Named(name),
	}
}

// Close stops the cache.
func (c *Cache) Close() {
	c.cancel()
	c.embeddings.Stop()
	c.tags.Stop()
}

func (c *Cache) logStats(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e, t := c.embeddings.Metrics(), c.tags.Metrics()
			c.logger.Debug("Cache stats",
				zap.Int("embedding_items", c.embeddings.Len()),
				zap.Uint64("embedding_hits", e.Hits),
				zap.Uint64("embedding_misses", e.Misses),
				zap.Int("tag_items", c.tags.Len()),
				zap.Uint64("tag_hits", t.Hits),
				zap.Uint64("tag_misses", t.Misses))
		}
	}
}

// CacheStats holds hit counters for one wrapped collaborator.
type CacheStats struct {
	Name             string `json:"name"`
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
	SingleflightHits uint64 `json:"singleflight_hits"`
}

type counters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	sfHits atomic.Uint64
}

func (c *counters) stats(name string) CacheStats {
	return CacheStats{
		Name:             name,
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		SingleflightHits: c.sfHits.Load(),
	}
}

// cacheKey hashes the collaborator name and text.
func cacheKey(name, text string) string {
	h := xxhash.New()
	_, _ = h.WriteString(name)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(text)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return string(buf[:])
}

// CachedEmbedder wraps an Embedder with caching. Returned slices are shared
// between callers and must not be modified.
type CachedEmbedder struct {
	embedder embeddings.Embedder
	name     string
	cache    *ttlcache.Cache[string, []float32]
	sfGroup  *singleflight.Group
	logger   *zap.Logger
	counters
}

// Embed returns the cached embedding of text or computes it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.name, text)

	if item := c.cache.Get(key); item != nil {
		c.hits.Add(1)
		RecordCacheHit("embedding")
		return item.Value(), nil
	}

	// Use singleflight to deduplicate concurrent identical requests
	result, err, shared := c.sfGroup.Do(key, func() (any, error) {
		c.misses.Add(1)
		RecordCacheMiss("embedding")

		start := time.Now()
		vec, err := c.embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, vec, ttlcache.DefaultTTL)

		c.logger.Debug("Embedding computed and cached",
			zap.Int("dim", len(vec)),
			zap.Duration("duration", time.Since(start)))
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.sfHits.Add(1)
	}
	return result.([]float32), nil
}

// Ready reports whether the wrapped embedder is ready.
func (c *CachedEmbedder) Ready() bool {
	return embeddings.IsReady(c.embedder)
}

// Stats returns cache statistics for this embedder.
func (c *CachedEmbedder) Stats() CacheStats {
	return c.stats(c.name)
}

// CachedTagger wraps a Tagger with caching. Token counting is not cached.
type CachedTagger struct {
	tagger  ner.Tagger
	name    string
	cache   *ttlcache.Cache[string, []ner.RawMention]
	sfGroup *singleflight.Group
	logger  *zap.Logger
	counters
}

// Tag returns the cached predictions for text or computes them.
func (c *CachedTagger) Tag(ctx context.Context, text string) ([]ner.RawMention, error) {
	key := cacheKey(c.name, text)

	if item := c.cache.Get(key); item != nil {
		c.hits.Add(1)
		RecordCacheHit("tagging")
		return item.Value(), nil
	}

	result, err, shared := c.sfGroup.Do(key, func() (any, error) {
		c.misses.Add(1)
		RecordCacheMiss("tagging")

		start := time.Now()
		raw, err := c.tagger.Tag(ctx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, raw, ttlcache.DefaultTTL)

		c.logger.Debug("Tags computed and cached",
			zap.Int("num_tokens", len(raw)),
			zap.Duration("duration", time.Since(start)))
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.sfHits.Add(1)
	}
	return result.([]ner.RawMention), nil
}

// CountTokens delegates to the wrapped tagger.
func (c *CachedTagger) CountTokens(text string) int {
	return c.tagger.CountTokens(text)
}

// Ready reports whether the wrapped tagger is ready.
func (c *CachedTagger) Ready() bool {
	return embeddings.IsReady(c.tagger)
}

// Stats returns cache statistics for this tagger.
func (c *CachedTagger) Stats() CacheStats {
	return c.stats(c.name)
}
