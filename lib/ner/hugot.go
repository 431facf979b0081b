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

package ner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/antflydb/topicmap/lib/hugot"
	"github.com/antflydb/topicmap/lib/tokenizer"
	khugot "github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrTaggerClosed is returned by Tag after Close.
var ErrTaggerClosed = errors.New("tagger closed")

var _ Tagger = (*HugotTagger)(nil)

// HugotTagger runs a token classification model through a pool of Hugot
// pipelines. Aggregation is disabled so callers get raw BIO tokens and do the
// merge themselves.
type HugotTagger struct {
	session      *hugot.SharedSession
	pipelines    []*pipelines.TokenClassificationPipeline
	sem          *semaphore.Weighted
	nextPipeline atomic.Uint64
	tokenizer    tokenizer.Tokenizer
	logger       *zap.Logger
	poolSize     int

	mu     sync.RWMutex
	closed bool
}

// NewHugotTagger loads a token classification model from modelPath.
// poolSize determines how many chunks can be tagged concurrently (0 = CPU count).
// onnxFilename defaults to "model.onnx".
func NewHugotTagger(session *hugot.SharedSession, modelPath, onnxFilename string, poolSize int, logger *zap.Logger) (*HugotTagger, error) {
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
	logger = logger.Named("tagger")

	logger.Info("Initializing Hugot tagger",
		zap.String("modelPath", modelPath),
		zap.String("onnxFilename", onnxFilename),
		zap.Int("poolSize", poolSize),
		zap.String("backend", hugot.BackendName()))

	s, err := session.Acquire()
	if err != nil {
		logger.Error("Failed to create Hugot session", zap.Error(err))
		return nil, fmt.Errorf("creating hugot session: %w", err)
	}

	list := make([]*pipelines.TokenClassificationPipeline, 0, poolSize)
	for i := range poolSize {
		// Pipeline names must be unique within a session.
		cfg := khugot.TokenClassificationConfig{
			ModelPath:    modelPath,
			Name:         fmt.Sprintf("ner:%s:%s:%d", modelPath, onnxFilename, i),
			OnnxFilename: onnxFilename,
		}
		p, err := khugot.NewPipeline(s, cfg)
		if err != nil {
			_ = session.Release()
			logger.Error("Failed to create pipeline", zap.Int("index", i), zap.Error(err))
			return nil, fmt.Errorf("creating token classification pipeline %d: %w", i, err)
		}
		p.AggregationStrategy = "NONE"
		list = append(list, p)
	}

	logger.Info("Created token classification pipelines", zap.Int("count", len(list)))

	return &HugotTagger{
		session:   session,
		pipelines: list,
		sem:       semaphore.NewWeighted(int64(poolSize)),
		tokenizer: tokenizer.ForModel(modelPath),
		logger:    logger,
		poolSize:  poolSize,
	}, nil
}

// Tag returns the model's token-level predictions for text.
func (h *HugotTagger) Tag(ctx context.Context, text string) ([]RawMention, error) {
	if text == "" {
		return nil, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrTaggerClosed
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring pipeline slot: %w", err)
	}
	defer h.sem.Release(1)

	idx := int(h.nextPipeline.Add(1) % uint64(h.poolSize))
	output, err := h.pipelines[idx].RunPipeline([]string{text})
	if err != nil {
		h.logger.Error("Token classification failed",
			zap.Int("pipelineIndex", idx),
			zap.Error(err))
		return nil, fmt.Errorf("running token classification: %w", err)
	}
	if len(output.Entities) == 0 {
		return nil, nil
	}

	raw := toRawMentions(text, output.Entities[0])
	h.logger.Debug("Tagged chunk",
		zap.Int("pipelineIndex", idx),
		zap.Int("num_tokens", len(raw)))
	return raw, nil
}

// CountTokens counts tokens with the model's own tokenizer when available.
func (h *HugotTagger) CountTokens(text string) int {
	return h.tokenizer.CountTokens(text)
}

// Ready reports whether the tagger can still serve requests.
func (h *HugotTagger) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.closed
}

// Close releases the tagger's hold on the shared session. It waits for
// in-flight Tag calls to finish.
func (h *HugotTagger) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.pipelines = nil
	return h.session.Release()
}

// toRawMentions keeps the model's offsets only when they fall inside text;
// anything else is left nil so it gets reconstructed.
func toRawMentions(text string, entities []pipelines.Entity) []RawMention {
	out := make([]RawMention, 0, len(entities))
	for _, e := range entities {
		m := RawMention{
			Label: e.Entity,
			Word:  e.Word,
			Score: e.Score,
		}
		start, end := int(e.Start), int(e.End)
		if start >= 0 && end <= len(text) && start < end {
			m.Start = Offset(start)
			m.End = Offset(end)
		}
		out = append(out, m)
	}
	return out
}
