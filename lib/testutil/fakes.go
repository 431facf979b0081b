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

// Package testutil provides deterministic in-memory collaborators for tests.
package testutil

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/antflydb/topicmap/lib/ner"
	"github.com/cespare/xxhash/v2"
)

// ErrInjected is returned by fakes for texts containing their failure marker.
var ErrInjected = errors.New("injected failure")

type word struct {
	text       string
	start, end int
}

func words(text string) []word {
	var out []word
	start := -1
	for i, r := range text {
		inWord := unicode.IsLetter(r) || unicode.IsDigit(r)
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			out = append(out, word{text[start:i], start, i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, word{text[start:], start, len(text)})
	}
	return out
}

// Tagger tags words found in Types. Consecutive words of the same type form
// one B-/I- run. Offsets are omitted unless WithOffsets is set, so callers
// exercise offset reconstruction.
type Tagger struct {
	Types       map[string]string
	WithOffsets bool
	// FailOn makes Tag return ErrInjected for texts containing it.
	FailOn string
	// PanicOn makes Tag panic for texts containing it.
	PanicOn string
	NotReady bool

	calls atomic.Int64
}

// Tag implements ner.Tagger.
func (t *Tagger) Tag(ctx context.Context, text string) ([]ner.RawMention, error) {
	t.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.FailOn != "" && strings.Contains(text, t.FailOn) {
		return nil, ErrInjected
	}
	if t.PanicOn != "" && strings.Contains(text, t.PanicOn) {
		panic("tagger exploded")
	}

	var (
		out      []ner.RawMention
		prevType string
	)
	for _, w := range words(text) {
		typ, ok := t.Types[w.text]
		if !ok {
			out = append(out, t.raw("O", w))
			prevType = ""
			continue
		}
		prefix := "B-"
		if typ == prevType {
			prefix = "I-"
		}
		out = append(out, t.raw(prefix+typ, w))
		prevType = typ
	}
	return out, nil
}

func (t *Tagger) raw(label string, w word) ner.RawMention {
	m := ner.RawMention{Label: label, Word: w.text, Score: 0.9}
	if t.WithOffsets {
		m.Start = ner.Offset(w.start)
		m.End = ner.Offset(w.end)
	}
	return m
}

// CountTokens counts whitespace separated words.
func (t *Tagger) CountTokens(text string) int {
	return len(strings.Fields(text))
}

// Ready implements embeddings.Readiness.
func (t *Tagger) Ready() bool { return !t.NotReady }

// Calls returns how many times Tag ran.
func (t *Tagger) Calls() int64 { return t.calls.Load() }

// Embedder produces bag-of-words vectors: each lower-cased word is hashed
// into one of Dim buckets and the result is normalized, so texts sharing
// words are similar.
type Embedder struct {
	Dim int
	// FailOn makes Embed return ErrInjected for texts containing it.
	FailOn   string
	NotReady bool

	mu    sync.Mutex
	texts []string
}

// Embed implements embeddings.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.FailOn != "" && strings.Contains(text, e.FailOn) {
		return nil, ErrInjected
	}
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()
	return Vector(text, e.dim()), nil
}

func (e *Embedder) dim() int {
	if e.Dim <= 0 {
		return 16
	}
	return e.Dim
}

// Ready implements embeddings.Readiness.
func (e *Embedder) Ready() bool { return !e.NotReady }

// Texts returns every text embedded so far.
func (e *Embedder) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

// Vector is the bag-of-words embedding used by Embedder.
func Vector(text string, dim int) []float32 {
	out := make([]float32, dim)
	for _, w := range words(text) {
		out[xxhash.Sum64String(strings.ToLower(w.text))%uint64(dim)]++
	}
	var sum float64
	for _, v := range out {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		out[0] = 1
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i := range out {
		out[i] /= norm
	}
	return out
}
