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

// Package tokenizer provides token counting used to size chunks for model
// input limits.
package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// DefaultEncoding is the BPE encoding used when no model tokenizer is available.
const DefaultEncoding = "cl100k_base"

// Tokenizer provides token counting for text chunking.
type Tokenizer interface {
	// CountTokens returns the number of tokens in the text.
	// Returns a character-based estimate on error.
	CountTokens(text string) int
}

// approximate is the fallback estimate (1 token ≈ 4 chars for English).
func approximate(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// WordPieceTokenizer counts tokens with the HuggingFace tokenizer.json that
// ships next to a token classification model, so chunk sizes match what the
// tagger will actually see (special tokens included).
type WordPieceTokenizer struct {
	tokenizer *tokenizer.Tokenizer
}

// NewWordPieceTokenizer loads tokenizer.json from modelPath.
func NewWordPieceTokenizer(modelPath string) (*WordPieceTokenizer, error) {
	file := filepath.Join(modelPath, "tokenizer.json")
	if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("tokenizer.json not found in %s: %w", modelPath, err)
	}
	tk, err := pretrained.FromFile(file)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer from %s: %w", file, err)
	}
	return &WordPieceTokenizer{tokenizer: tk}, nil
}

// CountTokens returns the number of tokens in the text.
// Uses a recover wrapper to handle panics from the underlying tokenizer library
// (github.com/sugarme/tokenizer has a bounds check bug in BertNormalizer.TransformRange).
func (t *WordPieceTokenizer) CountTokens(text string) (count int) {
	if text == "" {
		return 0
	}

	defer func() {
		if r := recover(); r != nil {
			count = approximate(text)
		}
	}()

	enc, err := t.tokenizer.EncodeSingle(text, true)
	if err != nil {
		return approximate(text)
	}

	return len(enc.Ids)
}

// BPETokenizer uses OpenAI's tiktoken BPE tokenization.
type BPETokenizer struct {
	tiktoken *tiktoken.Tiktoken
}

func init() {
	// Set the offline loader for tiktoken to avoid network requests
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// NewBPETokenizer creates a BPE tokenizer using tiktoken-go with embedded
// dictionaries. An empty encoding selects DefaultEncoding.
func NewBPETokenizer(encoding string) (*BPETokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}

	tk, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %q: %w", encoding, err)
	}

	return &BPETokenizer{tiktoken: tk}, nil
}

// CountTokens returns the number of tokens in the text.
func (t *BPETokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.tiktoken.Encode(text, nil, nil))
}

// ApproximateTokenizer estimates counts from byte length. It never fails and
// is used when neither a model tokenizer nor the BPE tables can be loaded.
type ApproximateTokenizer struct{}

// CountTokens returns len(text)/4, at least 1 for non-empty text.
func (ApproximateTokenizer) CountTokens(text string) int {
	return approximate(text)
}

// ForModel returns the model's own tokenizer when modelPath holds a
// tokenizer.json, then falls back to BPE and finally to the approximation.
func ForModel(modelPath string) Tokenizer {
	if modelPath != "" {
		if tk, err := NewWordPieceTokenizer(modelPath); err == nil {
			return tk
		}
	}
	if tk, err := NewBPETokenizer(DefaultEncoding); err == nil {
		return tk
	}
	return ApproximateTokenizer{}
}
