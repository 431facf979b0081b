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
// Package models downloads ONNX token classification and embedding models
// from the HuggingFace Hub into the local model directory layout:
//
//	root/kind/owner/name/
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gomlx/go-huggingface/hub"
	"go.uber.org/zap"
)

// Kind is the model directory a download is stored under.
type Kind string

const (
	KindNER       Kind = "ner"
	KindEmbedding Kind = "embedders"
)

// ErrNoModelFiles is returned when a repo has no ONNX file for the requested variant.
var ErrNoModelFiles = errors.New("no model files found")

// Ref is an owner/name HuggingFace repo reference.
type Ref struct {
	Owner string
	Name  string
}

// ParseRef parses "owner/name", tolerating an "hf:" prefix.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "hf:")
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Ref{}, fmt.Errorf("invalid model reference %q: expected owner/name", s)
	}
	return Ref{Owner: owner, Name: name}, nil
}

func (r Ref) String() string { return r.Owner + "/" + r.Name }

// Dir returns the directory a model of the given kind lives in under root.
func Dir(root string, kind Kind, ref Ref) string {
	return filepath.Join(root, string(kind), ref.Owner, ref.Name)
}

// DefaultRoot is ~/.topicmap/models, or a relative fallback when the home
// directory cannot be resolved.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".topicmap", "models")
	}
	return filepath.Join(home, ".topicmap", "models")
}

// Variants lists the ONNX variants SelectFiles understands. "" is full precision.
func Variants() []string {
	return []string{"", "fp16", "q4", "q4f16", "quantized"}
}

var tokenizerFiles = []string{
	"tokenizer.json",
	"tokenizer_config.json",
	"config.json",
	"special_tokens_map.json",
	"vocab.txt",
}

// SelectFiles picks tokenizer and config files plus the ONNX model (and its
// external data file) for variant out of a repo listing. Tokenizer files are
// taken from the first path they appear at.
func SelectFiles(files []string, variant string) []string {
	var result []string
	for _, tf := range tokenizerFiles {
		for _, f := range files {
			if filepath.Base(f) == tf {
				result = append(result, f)
				break
			}
		}
	}

	onnxBase := "model"
	if variant != "" {
		onnxBase = "model_" + variant
	}
	for _, f := range files {
		base := filepath.Base(f)
		if base == onnxBase+".onnx" || base == onnxBase+".onnx_data" {
			result = append(result, f)
		}
	}
	return result
}

func hasONNX(files []string) bool {
	return slices.ContainsFunc(files, func(f string) bool {
		return strings.HasSuffix(f, ".onnx")
	})
}

// Puller downloads models from the HuggingFace Hub.
type Puller struct {
	root   string
	token  string
	logger *zap.Logger
}

// Option configures a Puller.
type Option func(*Puller)

// WithToken sets the HuggingFace API token for gated repos.
func WithToken(token string) Option {
	return func(p *Puller) { p.token = token }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Puller) { p.logger = logger }
}

// NewPuller creates a Puller storing models under root.
func NewPuller(root string, opts ...Option) *Puller {
	p := &Puller{root: root, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Puller) repo(ref Ref) *hub.Repo {
	repo := hub.New(ref.String())
	if p.token != "" {
		repo = repo.WithAuth(p.token)
	}
	return repo
}

// Pull downloads ref into root/kind/owner/name and returns that directory.
// ONNX files under subdirectories (e.g. onnx/model.onnx) are flattened.
func (p *Puller) Pull(ctx context.Context, ref Ref, kind Kind, variant string) (string, error) {
	if !slices.Contains(Variants(), variant) {
		return "", fmt.Errorf("unknown variant %q: valid variants are %q", variant, Variants())
	}
	repo := p.repo(ref)

	var files []string
	for name, err := range repo.IterFileNames() {
		if err != nil {
			return "", fmt.Errorf("listing files in %s: %w", ref, err)
		}
		files = append(files, name)
	}

	toDownload := SelectFiles(files, variant)
	if !hasONNX(toDownload) {
		return "", fmt.Errorf("%w in %s for variant %q", ErrNoModelFiles, ref, variant)
	}

	dir := Dir(p.root, kind, ref)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating model directory: %w", err)
	}

	for _, name := range toDownload {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p.logger.Info("Downloading model file",
			zap.String("model", ref.String()),
			zap.String("file", name))
		cached, err := repo.DownloadFile(name)
		if err != nil {
			return "", fmt.Errorf("downloading %s: %w", name, err)
		}
		if err := copyFile(cached, filepath.Join(dir, filepath.Base(name))); err != nil {
			return "", fmt.Errorf("copying %s: %w", name, err)
		}
	}

	p.logger.Info("Model ready",
		zap.String("model", ref.String()),
		zap.String("path", dir),
		zap.Int("files", len(toDownload)))
	return dir, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying: %w", err)
	}
	return out.Close()
}
