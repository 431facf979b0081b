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
	"fmt"
	"time"

	"github.com/antflydb/topicmap/lib/aggregate"
	"github.com/antflydb/topicmap/lib/chunking"
	"github.com/antflydb/topicmap/lib/scoring"
)

// DefaultCacheTTL is how long cached tagger and embedder results live.
const DefaultCacheTTL = 2 * time.Minute

// Config tunes the extraction pipeline.
type Config struct {
	// MaxTokens is the chunk size limit in tagger tokens.
	MaxTokens int `mapstructure:"max_tokens" json:"max_tokens"`
	// OverlapTokens is the approximate overlap between consecutive chunks.
	// Negative values are treated as 0.
	OverlapTokens int `mapstructure:"overlap_tokens" json:"overlap_tokens"`
	// Concurrency bounds how many chunks are processed at once (0 = GOMAXPROCS).
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`
	// GroupSimilarity is the cosine threshold above which two entities are
	// merged on embedding similarity alone.
	GroupSimilarity float64 `mapstructure:"group_similarity" json:"group_similarity"`
	// EmbeddingDim sizes the zero document embedding when no chunk has one.
	EmbeddingDim int `mapstructure:"embedding_dim" json:"embedding_dim"`
	// CacheTTL is used by NewCache; 0 disables caching in the CLI.
	CacheTTL time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		MaxTokens:       chunking.DefaultMaxTokens,
		OverlapTokens:   chunking.DefaultOverlapTokens,
		GroupSimilarity: aggregate.DefaultSimilarityThreshold,
		EmbeddingDim:    scoring.DefaultEmbeddingDim,
		CacheTTL:        DefaultCacheTTL,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.MaxTokens <= 0:
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidInput, c.MaxTokens)
	case c.Concurrency < 0:
		return fmt.Errorf("%w: concurrency must not be negative, got %d", ErrInvalidInput, c.Concurrency)
	case c.GroupSimilarity <= 0 || c.GroupSimilarity > 1:
		return fmt.Errorf("%w: group_similarity must be within (0, 1], got %g", ErrInvalidInput, c.GroupSimilarity)
	case c.EmbeddingDim < 0:
		return fmt.Errorf("%w: embedding_dim must not be negative, got %d", ErrInvalidInput, c.EmbeddingDim)
	case c.CacheTTL < 0:
		return fmt.Errorf("%w: cache_ttl must not be negative, got %s", ErrInvalidInput, c.CacheTTL)
	}
	return nil
}
