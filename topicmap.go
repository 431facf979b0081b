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

// Package topicmap extracts the salient topics of a document.
//
// A document is split into overlapping token-bounded chunks. Each chunk is run
// through a named-entity tagger and, when it mentions anything, an embedding
// model. Mentions are folded into document-level entities, near duplicates
// are merged, and the survivors are ranked by how close their embeddings are
// to the document as a whole.
//
// Usage:
//
//	x, err := topicmap.New(embedder, tagger, topicmap.WithLogger(logger))
//	topics, err := x.ExtractTopics(ctx, text, 5, topicmap.DefaultOptions())
package topicmap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antflydb/topicmap/lib/aggregate"
	"github.com/antflydb/topicmap/lib/chunking"
	"github.com/antflydb/topicmap/lib/embeddings"
	"github.com/antflydb/topicmap/lib/ner"
	"github.com/antflydb/topicmap/lib/processing"
	"github.com/antflydb/topicmap/lib/scoring"
	"github.com/antflydb/topicmap/lib/tokenizer"
	"github.com/antflydb/topicmap/lib/vector"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topic is one ranked result.
type Topic = scoring.Topic

// EntityDetail lists the mentions of a topic for one entity type.
type EntityDetail = scoring.EntityDetail

// Options controls scoring for a single extraction.
type Options = scoring.Options

// DefaultOptions scores with the raw dot product.
func DefaultOptions() Options {
	return Options{UseL2Norm: true}
}

// Stats describes one extraction run.
type Stats struct {
	RunID        string        `json:"run_id"`
	Chunks       int           `json:"chunks"`
	FailedChunks int           `json:"failed_chunks"`
	Mentions     int           `json:"mentions"`
	Entities     int           `json:"entities"`
	Groups       int           `json:"groups"`
	Topics       int           `json:"topics"`
	Vectors      vector.Stats  `json:"vectors"`
	Duration     time.Duration `json:"duration"`
}

// Result is the outcome of Extract.
type Result struct {
	Topics []Topic `json:"topics"`
	Stats  Stats   `json:"stats"`
}

// Extractor runs the topic extraction pipeline. It holds no per-call state
// and is safe for concurrent use.
type Extractor struct {
	embedder  embeddings.Embedder
	tagger    ner.Tagger
	tokenizer tokenizer.Tokenizer
	config    Config
	metrics   bool
	logger    *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConfig replaces the default pipeline settings.
func WithConfig(cfg Config) Option {
	return func(e *Extractor) { e.config = cfg }
}

// WithTokenizer sets the token counter used for chunking. By default the
// tagger's own CountTokens is used.
func WithTokenizer(tk tokenizer.Tokenizer) Option {
	return func(e *Extractor) { e.tokenizer = tk }
}

// WithMetrics toggles Prometheus metric recording (on by default).
func WithMetrics(enabled bool) Option {
	return func(e *Extractor) { e.metrics = enabled }
}

// New creates an Extractor over the given collaborators.
func New(embedder embeddings.Embedder, tagger ner.Tagger, opts ...Option) (*Extractor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is nil", ErrCollaboratorUnavailable)
	}
	if tagger == nil {
		return nil, fmt.Errorf("%w: tagger is nil", ErrCollaboratorUnavailable)
	}

	e := &Extractor{
		embedder: embedder,
		tagger:   tagger,
		config:   DefaultConfig(),
		metrics:  true,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tokenizer == nil {
		e.tokenizer = tagger
	}
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	e.logger = e.logger.Named("topicmap")

	e.logger.Info("Created topic extractor",
		zap.Int("maxTokens", e.config.MaxTokens),
		zap.Int("overlapTokens", e.config.OverlapTokens),
		zap.Int("concurrency", e.config.Concurrency),
		zap.Float64("groupSimilarity", e.config.GroupSimilarity))
	return e, nil
}

// Config returns the extractor's pipeline settings.
func (e *Extractor) Config() Config {
	return e.config
}

// ExtractTopics returns at most topN topics of text, best first.
func (e *Extractor) ExtractTopics(ctx context.Context, text string, topN int, opts Options) ([]Topic, error) {
	res, err := e.Extract(ctx, text, topN, opts)
	if err != nil {
		return nil, err
	}
	return res.Topics, nil
}

// Extract is ExtractTopics with run statistics. Every vector allocated during
// the run is released before it returns, so Stats.Vectors.Live is 0.
func (e *Extractor) Extract(ctx context.Context, text string, topN int, opts Options) (res *Result, err error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID))

	defer func() {
		if !e.metrics {
			return
		}
		status, topics := "ok", 0
		if err != nil {
			status = "error"
		} else {
			topics = len(res.Topics)
		}
		recordExtraction(status, time.Since(start).Seconds(), topics)
	}()

	if topN <= 0 {
		return nil, fmt.Errorf("%w: topN must be positive, got %d", ErrInvalidInput, topN)
	}
	if !embeddings.IsReady(e.embedder) {
		return nil, fmt.Errorf("%w: embedder not ready", ErrCollaboratorUnavailable)
	}
	if !embeddings.IsReady(e.tagger) {
		return nil, fmt.Errorf("%w: tagger not ready", ErrCollaboratorUnavailable)
	}

	chunks, err := chunking.NewChunker(e.tokenizer, logger).Chunk(text, e.config.MaxTokens, e.config.OverlapTokens)
	if err != nil {
		if errors.Is(err, chunking.ErrInvalidMaxTokens) {
			err = fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		logger.Error("Chunking failed", zap.Error(err))
		return nil, err
	}
	logger.Debug("Chunked document",
		zap.Int("text_len", len(text)),
		zap.Int("num_chunks", len(chunks)))

	tracker := vector.NewTracker()
	procOpts := []processing.Option{
		processing.WithConcurrency(e.config.Concurrency),
		processing.WithLogger(logger),
	}
	if e.metrics {
		procOpts = append(procOpts, processing.WithObserver(recordChunk))
	}
	processed, err := processing.NewProcessor(e.tagger, e.embedder, procOpts...).Process(ctx, tracker, chunks)
	if err != nil {
		logger.Error("Chunk processing failed", zap.Error(err))
		return nil, fmt.Errorf("processing chunks: %w", err)
	}

	stats := Stats{RunID: runID, Chunks: len(chunks)}
	for _, p := range processed {
		if p.Err != nil {
			stats.FailedChunks++
		}
		stats.Mentions += len(p.Entities)
	}

	entities := aggregate.Fold(tracker, processed)
	doc := scoring.DocumentEmbedding(tracker, processed, e.config.EmbeddingDim)
	for _, p := range processed {
		p.Embedding.Release()
	}

	groups := aggregate.NewGrouper(tracker, e.config.GroupSimilarity, logger).Group(entities)
	topics := scoring.NewScorer(tracker, logger).Score(groups, doc, topN, opts)

	doc.Release()
	for _, g := range groups {
		g.Release()
	}

	stats.Entities = len(entities)
	stats.Groups = len(groups)
	stats.Topics = len(topics)
	stats.Vectors = tracker.Stats()
	stats.Duration = time.Since(start)

	if stats.FailedChunks > 0 {
		logger.Warn("Some chunks failed",
			zap.Int("failed", stats.FailedChunks),
			zap.Int("total", stats.Chunks))
	}
	logger.Debug("Extraction complete",
		zap.Int("num_mentions", stats.Mentions),
		zap.Int("num_entities", stats.Entities),
		zap.Int("num_groups", stats.Groups),
		zap.Int("num_topics", stats.Topics),
		zap.Int64("live_vectors", stats.Vectors.Live),
		zap.Duration("duration", stats.Duration))

	if topics == nil {
		topics = []Topic{}
	}
	return &Result{Topics: topics, Stats: stats}, nil
}
