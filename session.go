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
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxIterations bounds how many times a Session can refine a result.
const DefaultMaxIterations = 5

// IterationResult is the outcome of Session.Continue.
type IterationResult struct {
	Topics     []Topic `json:"topics"`
	Iteration  int     `json:"iteration"`
	CanIterate bool    `json:"canIterate"`
	Options    Options `json:"options"`
}

// Session remembers the last extracted text and re-runs it with
// progressively stricter settings. It is safe for concurrent use.
type Session struct {
	id        string
	extractor *Extractor
	logger    *zap.Logger

	mu            sync.Mutex
	text          string
	hasText       bool
	iteration     int
	maxIterations int
}

// NewSession creates a session over x. A non-positive maxIterations selects
// DefaultMaxIterations.
func NewSession(x *Extractor, maxIterations int) *Session {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	id := uuid.NewString()
	return &Session{
		id:            id,
		extractor:     x,
		logger:        x.logger.Named("session").With(zap.String("session_id", id)),
		maxIterations: maxIterations,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Extract runs a normal extraction, remembers text and resets the iteration
// counter.
func (s *Session) Extract(ctx context.Context, text string, topN int, opts Options) ([]Topic, error) {
	s.mu.Lock()
	s.text = text
	s.hasText = true
	s.iteration = 0
	s.mu.Unlock()

	return s.extractor.ExtractTopics(ctx, text, topN, opts)
}

// Continue re-runs the remembered text with the settings of the next
// iteration i (1-based): MinRelevance 0.3+0.1*i, centrality on odd
// iterations and the raw dot product unless i is a multiple of 3. Those
// three fields of opts are overridden. Once the iteration limit is reached
// it returns CanIterate=false and no topics.
func (s *Session) Continue(ctx context.Context, topN int, opts Options) (*IterationResult, error) {
	s.mu.Lock()
	if !s.hasText {
		s.mu.Unlock()
		return nil, ErrNoPreviousExtraction
	}
	if s.iteration >= s.maxIterations {
		iteration := s.iteration
		s.mu.Unlock()
		return &IterationResult{Topics: []Topic{}, Iteration: iteration, CanIterate: false}, nil
	}
	s.iteration++
	i := s.iteration
	text := s.text
	canIterate := i < s.maxIterations
	s.mu.Unlock()

	opts = IterationOptions(i, opts)
	s.logger.Debug("Continuing extraction",
		zap.Int("iteration", i),
		zap.Float64("minRelevance", *opts.MinRelevance),
		zap.Bool("centrality", opts.UseCentrality),
		zap.Bool("l2", opts.UseL2Norm))

	topics, err := s.extractor.ExtractTopics(ctx, text, topN, opts)
	if err != nil {
		return nil, err
	}
	return &IterationResult{
		Topics:     topics,
		Iteration:  i,
		CanIterate: canIterate,
		Options:    opts,
	}, nil
}

// IterationOptions returns opts adjusted for iteration i.
func IterationOptions(i int, opts Options) Options {
	minRelevance := 0.3 + 0.1*float64(i)
	opts.MinRelevance = &minRelevance
	opts.UseCentrality = i%2 == 1
	opts.UseL2Norm = i%3 != 0
	return opts
}

// Reset forgets the remembered text.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = ""
	s.hasText = false
	s.iteration = 0
}

// SetMaxIterations changes the iteration limit.
func (s *Session) SetMaxIterations(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: max iterations must be positive, got %d", ErrInvalidInput, n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxIterations = n
	return nil
}

// Iteration returns the current iteration count.
func (s *Session) Iteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iteration
}
