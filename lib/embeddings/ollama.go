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
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var _ Embedder = (*OllamaEmbedder)(nil)

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server URL; empty uses OLLAMA_HOST or the Ollama default.
	Host string
	// Model is the embedding model name, e.g. "nomic-embed-text".
	Model string
	// MaxConcurrent bounds in-flight requests (default 4).
	MaxConcurrent int64
	// MaxRetries is the number of retries after a failed request (default 2, negative disables).
	MaxRetries int
	// Timeout applies per request (default 30s).
	Timeout time.Duration
	// RetryBackoff is multiplied by the attempt number between retries (default 500ms).
	RetryBackoff time.Duration
}

// OllamaEmbedder calls the /api/embed endpoint of an Ollama server.
type OllamaEmbedder struct {
	client  *api.Client
	config  OllamaConfig
	reqLock *semaphore.Weighted
	logger  *zap.Logger
}

// NewOllamaEmbedder creates an embedder for cfg.Model.
func NewOllamaEmbedder(cfg OllamaConfig, httpClient *http.Client, logger *zap.Logger) (*OllamaEmbedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("ollama model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}

	u := envconfig.Host()
	if cfg.Host != "" {
		parsed, err := url.Parse(cfg.Host)
		if err != nil {
			return nil, fmt.Errorf("parsing ollama host %q: %w", cfg.Host, err)
		}
		u = parsed
	}

	logger = logger.Named("ollama")
	logger.Info("Initializing Ollama embedder",
		zap.String("host", u.String()),
		zap.String("model", cfg.Model),
		zap.Int64("maxConcurrent", cfg.MaxConcurrent))

	return &OllamaEmbedder{
		client:  api.NewClient(u, httpClient),
		config:  cfg,
		reqLock: semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:  logger,
	}, nil
}

// Embed returns the unit-length embedding of text, retrying failed requests.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.reqLock.Release(1)

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * e.config.RetryBackoff):
			}
			e.logger.Debug("Retrying embedding request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
		}

		vec, err := e.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		if errors.Is(err, ErrEmptyEmbedding) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	e.logger.Error("Embedding request failed", zap.Int("retries", e.config.MaxRetries), zap.Error(lastErr))
	return nil, fmt.Errorf("embedding after %d retries: %w", e.config.MaxRetries, lastErr)
}

func (e *OllamaEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	rCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	res, err := e.client.Embed(rCtx, &api.EmbedRequest{
		Model: e.config.Model,
		Input: text,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}

	out := make([]float32, 0, len(res.Embeddings[0]))
	for _, v := range res.Embeddings[0] {
		out = append(out, float32(v))
	}
	return normalizeL2(out), nil
}
