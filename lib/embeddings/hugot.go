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

package embeddings

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/antflydb/topicmap/lib/hugot"
	khugot "github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/backends"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrEmbedderClosed is returned by Embed after Close.
var ErrEmbedderClosed = errors.New("embedder closed")

var _ Embedder = (*HugotEmbedder)(nil)

// HugotEmbedder runs a sentence embedding model through a pool of Hugot
// feature extraction pipelines.
type HugotEmbedder struct {
	session      *hugot.SharedSession
	pipelines    []*pipelines.FeatureExtractionPipeline
	sem          *semaphore.Weighted
	nextPipeline atomic.Uint64
	logger       *zap.Logger
	poolSize     int

	mu     sync.RWMutex
	closed bool
}

// NewHugotEmbedder loads a feature extraction model from modelPath.
// poolSize determines how many texts can be embedded concurrently (0 = CPU count).
// onnxFilename defaults to "model.onnx".
func NewHugotEmbedder(session *hugot.SharedSession, modelPath, onnxFilename string, poolSize int, logger *zap.Logger) (*HugotEmbedder, error) {
	if modelPath == "" {
		return nil, errors.New("model path is required")
	}
	if session == nil {
		return nil, errors.New("hugot session is required")
	}
	if onnxFilename == "" {
		onnxFilename = "model.onnx"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}
	logger = logger.Named("embedder")

	logger.Info("Initializing Hugot embedder",
		zap.String("modelPath", modelPath),
		zap.String("onnxFilename", onnxFilename),
		zap.Int("poolSize", poolSize),
		zap.String("backend", hugot.BackendName()))

	s, err := session.Acquire()
	if err != nil {
		logger.Error("Failed to create Hugot session", zap.Error(err))
		return nil, fmt.Errorf("creating hugot session: %w", err)
	}

	list := make([]*pipelines.FeatureExtractionPipeline, 0, poolSize)
	for i := range poolSize {
		cfg := khugot.FeatureExtractionConfig{
			ModelPath:    modelPath,
			Name:         fmt.Sprintf("embed:%s:%s:%d", modelPath, onnxFilename, i),
			OnnxFilename: onnxFilename,
			Options: []backends.PipelineOption[*pipelines.FeatureExtractionPipeline]{
				pipelines.WithNormalization(),
			},
		}
		p, err := khugot.NewPipeline(s, cfg)
		if err != nil {
			_ = session.Release()
			logger.Error("Failed to create pipeline", zap.Int("index", i), zap.Error(err))
			return nil, fmt.Errorf("creating feature extraction pipeline %d: %w", i, err)
		}
		list = append(list, p)
	}

	logger.Info("Created feature extraction pipelines", zap.Int("count", len(list)))

	return &HugotEmbedder{
		session:   session,
		pipelines: list,
		sem:       semaphore.NewWeighted(int64(poolSize)),
		logger:    logger,
		poolSize:  poolSize,
	}, nil
}

// Embed returns the unit-length embedding of text.
func (h *HugotEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrEmbedderClosed
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring pipeline slot: %w", err)
	}
	defer h.sem.Release(1)

	idx := int(h.nextPipeline.Add(1) % uint64(h.poolSize))
	output, err := h.pipelines[idx].RunPipeline([]string{text})
	if err != nil {
		h.logger.Error("Pipeline inference failed",
			zap.Int("pipelineIndex", idx),
			zap.Error(err))
		return nil, fmt.Errorf("running feature extraction: %w", err)
	}
	if len(output.Embeddings) == 0 || len(output.Embeddings[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}

	// The pipeline output is owned by hugot; hand out a copy.
	out := make([]float32, len(output.Embeddings[0]))
	copy(out, output.Embeddings[0])
	return normalizeL2(out), nil
}

// Ready reports whether the embedder can still serve requests.
func (h *HugotEmbedder) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.closed
}

// Close releases the embedder's hold on the shared session, waiting for
// in-flight Embed calls.
func (h *HugotEmbedder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.pipelines = nil
	return h.session.Release()
}
