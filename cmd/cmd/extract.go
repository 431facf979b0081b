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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/antflydb/antfly-go/libaf/healthserver"
	"github.com/antflydb/topicmap"
	"github.com/antflydb/topicmap/lib/embeddings"
	"github.com/antflydb/topicmap/lib/hugot"
	"github.com/antflydb/topicmap/lib/ner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	embedderHugot  = "hugot"
	embedderOllama = "ollama"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file...]",
	Short: "Extract ranked topics from documents",
	Long: `Extract the salient topics of each document. Files are processed one by
one; with no arguments, or "-", the document is read from stdin.

The named-entity model is a local token classification model directory
(model.onnx plus tokenizer.json, fetched with "topicmap pull"). Embeddings come
from a local feature extraction model or from an Ollama server.

Examples:
  # Top 5 topics of a file with local models
  topicmap extract --ner-model ~/.topicmap/models/ner/dslim/bert-base-NER \
    --embedding-model ~/.topicmap/models/embedders/BAAI/bge-small-en-v1.5 article.txt

  # Embeddings from Ollama, JSON output
  topicmap extract --embedder ollama --ollama-model nomic-embed-text --format json article.txt

  # Refine three times with stricter thresholds
  topicmap extract --iterations 3 article.txt`,
	Args: cobra.ArbitraryArgs,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	f := extractCmd.Flags()
	f.Int("top-n", 5, "number of topics to return")
	f.Bool("l2-norm", true, "score with the raw dot product instead of cosine similarity")
	f.Bool("centrality", false, "score against the centroid of the entities instead of the document")
	f.Float64("min-relevance", 0, "drop topics scoring below this (only when set)")
	f.String("format", formatText, "output format (text, json)")
	f.Bool("stats", false, "include run statistics in the output (without --iterations)")
	f.Int("iterations", 0, "after the first pass, re-run up to this many times with stricter settings")

	f.String("embedder", embedderHugot, "embedding backend (hugot, ollama)")
	f.String("ner-model", "", "token classification model directory")
	f.String("embedding-model", "", "feature extraction model directory (hugot embedder)")
	f.String("onnx-file", "model.onnx", "ONNX file name inside the model directories")
	f.Int("pool-size", 0, "pipelines per model (0 = CPU count)")
	f.String("ollama-host", "", "Ollama server URL (default from OLLAMA_HOST)")
	f.String("ollama-model", "nomic-embed-text", "Ollama embedding model")

	f.Int("max-tokens", 0, "chunk size in tokens (0 = config)")
	f.Int("overlap-tokens", -1, "chunk overlap in tokens (-1 = config)")
	f.Int("concurrency", 0, "chunks processed at once (0 = config)")
	f.Duration("cache-ttl", 0, "cache tagger and embedder results for this long (0 = config)")
	f.Bool("no-cache", false, "disable the result cache")
	f.Int("health-port", 0, "serve /healthz, /readyz and /metrics on this port while running (0 = off)")

	mustBindPFlag("models.ner", f.Lookup("ner-model"))
	mustBindPFlag("models.embedding", f.Lookup("embedding-model"))
	mustBindPFlag("models.onnx_file", f.Lookup("onnx-file"))
	mustBindPFlag("models.pool_size", f.Lookup("pool-size"))
	mustBindPFlag("embedder", f.Lookup("embedder"))
	mustBindPFlag("ollama.host", f.Lookup("ollama-host"))
	mustBindPFlag("ollama.model", f.Lookup("ollama-model"))
	mustBindPFlag("health_port", f.Lookup("health-port"))
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	flags := cmd.Flags()
	format, _ := flags.GetString("format")
	if format != formatJSON && format != formatText {
		return fmt.Errorf("unknown output format %q", format)
	}
	topN, _ := flags.GetInt("top-n")
	iterations, _ := flags.GetInt("iterations")
	withStats, _ := flags.GetBool("stats")
	opts := scoringOptions(cmd)

	cfg, err := extractConfig(cmd)
	if err != nil {
		return err
	}

	var readyCheck atomic.Pointer[func() bool]
	if port := viper.GetInt("health_port"); port > 0 {
		healthserver.Start(logger, port, func() bool {
			check := readyCheck.Load()
			return check != nil && (*check)()
		})
	}

	session := hugot.NewSharedSession()
	defer func() {
		_ = session.Close()
	}()

	tagger, err := loadTagger(session, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = tagger.Close()
	}()

	embedder, closeEmbedder, err := loadEmbedder(session, logger)
	if err != nil {
		return err
	}
	defer closeEmbedder()

	noCache, _ := flags.GetBool("no-cache")
	var (
		e embeddings.Embedder = embedder
		t ner.Tagger          = tagger
	)
	if !noCache && cfg.CacheTTL > 0 {
		cache := topicmap.NewCache(cfg.CacheTTL, logger)
		defer cache.Close()
		e = cache.WrapEmbedder(embedder, viper.GetString("embedder"))
		t = cache.WrapTagger(tagger, "ner")
	}

	x, err := topicmap.New(e, t, topicmap.WithLogger(logger), topicmap.WithConfig(cfg))
	if err != nil {
		return err
	}
	check := collaboratorsReady(e, t)
	readyCheck.Store(&check)

	if len(args) == 0 {
		args = []string{"-"}
	}
	out := cmd.OutOrStdout()
	for _, source := range args {
		text, err := readDocument(source, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := extractDocument(ctx, x, out, source, text, topN, iterations, opts, format, withStats); err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}
	}
	return nil
}

func extractDocument(ctx context.Context, x *topicmap.Extractor, out io.Writer, source, text string, topN, iterations int, opts topicmap.Options, format string, withStats bool) error {
	if iterations <= 0 {
		res, err := x.Extract(ctx, text, topN, opts)
		if err != nil {
			return err
		}
		r := report{Source: source, Options: opts, Topics: res.Topics}
		if withStats {
			r.Stats = &res.Stats
		}
		return writeReport(out, format, r)
	}

	s := topicmap.NewSession(x, iterations)
	topics, err := s.Extract(ctx, text, topN, opts)
	if err != nil {
		return err
	}
	if err := writeReport(out, format, report{Source: source, Options: opts, Topics: topics}); err != nil {
		return err
	}
	for {
		it, err := s.Continue(ctx, topN, opts)
		if err != nil {
			return err
		}
		if err := writeReport(out, format, report{
			Source:    source,
			Iteration: it.Iteration,
			Options:   it.Options,
			Topics:    it.Topics,
		}); err != nil {
			return err
		}
		if !it.CanIterate {
			return nil
		}
	}
}

func scoringOptions(cmd *cobra.Command) topicmap.Options {
	flags := cmd.Flags()
	opts := topicmap.DefaultOptions()
	opts.UseL2Norm, _ = flags.GetBool("l2-norm")
	opts.UseCentrality, _ = flags.GetBool("centrality")
	if flags.Changed("min-relevance") {
		v, _ := flags.GetFloat64("min-relevance")
		opts.MinRelevance = &v
	}
	return opts
}

// extractConfig overlays the pipeline flags that were set on the viper config.
func extractConfig(cmd *cobra.Command) (topicmap.Config, error) {
	flags := cmd.Flags()
	cfg := pipelineConfig()
	if v, _ := flags.GetInt("max-tokens"); v > 0 {
		cfg.MaxTokens = v
	}
	if v, _ := flags.GetInt("overlap-tokens"); v >= 0 {
		cfg.OverlapTokens = v
	}
	if v, _ := flags.GetInt("concurrency"); v > 0 {
		cfg.Concurrency = v
	}
	if v, _ := flags.GetDuration("cache-ttl"); v > 0 {
		cfg.CacheTTL = v
	}
	return cfg, cfg.Validate()
}

func loadTagger(session *hugot.SharedSession, logger *zap.Logger) (*ner.HugotTagger, error) {
	modelPath := viper.GetString("models.ner")
	if modelPath == "" {
		return nil, errors.New("--ner-model is required")
	}
	start := time.Now()
	tagger, err := ner.NewHugotTagger(session, modelPath, viper.GetString("models.onnx_file"), viper.GetInt("models.pool_size"), logger)
	if err != nil {
		return nil, fmt.Errorf("loading NER model: %w", err)
	}
	topicmap.RecordModelLoadDuration(modelPath, "ner", time.Since(start).Seconds())
	return tagger, nil
}

func loadEmbedder(session *hugot.SharedSession, logger *zap.Logger) (embeddings.Embedder, func(), error) {
	switch backend := viper.GetString("embedder"); backend {
	case embedderHugot:
		modelPath := viper.GetString("models.embedding")
		if modelPath == "" {
			return nil, nil, errors.New("--embedding-model is required for the hugot embedder")
		}
		start := time.Now()
		e, err := embeddings.NewHugotEmbedder(session, modelPath, viper.GetString("models.onnx_file"), viper.GetInt("models.pool_size"), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("loading embedding model: %w", err)
		}
		topicmap.RecordModelLoadDuration(modelPath, "embedder", time.Since(start).Seconds())
		return e, func() { _ = e.Close() }, nil
	case embedderOllama:
		e, err := embeddings.NewOllamaEmbedder(embeddings.OllamaConfig{
			Host:  viper.GetString("ollama.host"),
			Model: viper.GetString("ollama.model"),
		}, nil, logger)
		if err != nil {
			return nil, nil, err
		}
		return e, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedder %q (want %s or %s)", backend, embedderHugot, embedderOllama)
	}
}

func readDocument(source string, stdin io.Reader) (string, error) {
	if source == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", source, err)
	}
	return string(data), nil
}

// collaboratorsReady reports readiness for /readyz: both models loaded and not closed.
func collaboratorsReady(e embeddings.Embedder, t ner.Tagger) func() bool {
	return func() bool {
		return embeddings.IsReady(e) && embeddings.IsReady(t)
	}
}
