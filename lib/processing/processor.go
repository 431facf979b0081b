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

// Package processing runs the tagger and embedder over document chunks.
package processing

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/antflydb/topicmap/lib/chunking"
	"github.com/antflydb/topicmap/lib/embeddings"
	"github.com/antflydb/topicmap/lib/ner"
	"github.com/antflydb/topicmap/lib/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrChunkPanic wraps a panic recovered while processing a chunk.
var ErrChunkPanic = errors.New("chunk processing panicked")

// Chunk outcome labels passed to Observer.
const (
	StatusOK     = "ok"
	StatusEmpty  = "empty"
	StatusFailed = "failed"
)

// ProcessedChunk is the outcome for one chunk. Embedding is nil when the
// chunk had no mentions or failed; a non-nil Embedding is owned by the
// caller and must be released.
type ProcessedChunk struct {
	Index     int
	Embedding *vector.Vector
	Entities  []ner.Mention
	Err       error
}

// Observer is notified once per processed chunk.
type Observer func(status string, mentions int)

// Processor tags and embeds chunks concurrently.
type Processor struct {
	tagger      ner.Tagger
	embedder    embeddings.Embedder
	concurrency int
	observer    Observer
	logger      *zap.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithConcurrency bounds how many chunks are in flight (default GOMAXPROCS).
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithObserver registers a per-chunk callback, used for metrics.
func WithObserver(o Observer) Option {
	return func(p *Processor) { p.observer = o }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a Processor over the given collaborators.
func NewProcessor(tagger ner.Tagger, embedder embeddings.Embedder, opts ...Option) *Processor {
	p := &Processor{
		tagger:      tagger,
		embedder:    embedder,
		concurrency: runtime.GOMAXPROCS(0),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("processor")
	return p
}

// Process runs every chunk and returns one result per chunk, in chunk order.
// A failing chunk yields a result with Err set and does not stop the others.
// Vectors are allocated from tracker. If ctx is cancelled, any vectors
// already produced are released and ctx.Err() is returned.
func (p *Processor) Process(ctx context.Context, tracker *vector.Tracker, chunks []chunking.Chunk) ([]ProcessedChunk, error) {
	results := make([]ProcessedChunk, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = ProcessedChunk{Index: i, Err: err}
				return err
			}
			results[i] = p.processChunk(gctx, tracker, i, c)
			p.observe(results[i])
			return nil
		})
	}
	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	if err != nil {
		for _, r := range results {
			r.Embedding.Release()
		}
		p.logger.Debug("Chunk processing cancelled", zap.Error(err))
		return nil, err
	}

	p.logger.Debug("Processed chunks", zap.Int("num_chunks", len(chunks)))
	return results, nil
}

func (p *Processor) observe(r ProcessedChunk) {
	if p.observer == nil {
		return
	}
	switch {
	case r.Err != nil:
		p.observer(StatusFailed, 0)
	case len(r.Entities) == 0:
		p.observer(StatusEmpty, 0)
	default:
		p.observer(StatusOK, len(r.Entities))
	}
}

func (p *Processor) processChunk(ctx context.Context, tracker *vector.Tracker, index int, c chunking.Chunk) (result ProcessedChunk) {
	result.Index = index
	defer func() {
		if r := recover(); r != nil {
			result.Embedding.Release()
			result = ProcessedChunk{Index: index, Err: fmt.Errorf("%w: %v", ErrChunkPanic, r)}
			p.logger.Warn("Recovered panic in chunk",
				zap.Int("chunk", index),
				zap.Any("panic", r))
		}
	}()

	if strings.TrimSpace(c.Text) == "" {
		return result
	}

	raw, err := p.tagger.Tag(ctx, c.Text)
	if err != nil {
		p.logger.Warn("Tagging failed for chunk", zap.Int("chunk", index), zap.Error(err))
		result.Err = fmt.Errorf("tagging chunk %d: %w", index, err)
		return result
	}

	mentions := ner.MergeTokens(ner.ReconstructOffsets(c.Text, raw))
	if len(mentions) == 0 {
		return result
	}

	values, err := p.embedder.Embed(ctx, c.Text)
	if err == nil && len(values) == 0 {
		err = embeddings.ErrEmptyEmbedding
	}
	if err != nil {
		p.logger.Warn("Embedding failed for chunk", zap.Int("chunk", index), zap.Error(err))
		result.Err = fmt.Errorf("embedding chunk %d: %w", index, err)
		return result
	}

	result.Entities = ner.Rebase(mentions, c.Offset)
	result.Embedding = tracker.From(values)

	p.logger.Debug("Processed chunk",
		zap.Int("chunk", index),
		zap.Int("offset", c.Offset),
		zap.Int("num_mentions", len(mentions)))
	return result
}
