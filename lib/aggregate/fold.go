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

// Package aggregate folds per-chunk mentions into document-level entities and
// merges entities that refer to the same thing.
package aggregate

import (
	"slices"
	"strings"

	"github.com/antflydb/topicmap/lib/ner"
	"github.com/antflydb/topicmap/lib/processing"
	"github.com/antflydb/topicmap/lib/vector"
)

// Aggregate accumulates every mention of one entity across the document.
//
// EmbeddingSum is the sum of the embeddings of the chunks the mentions came
// from; EmbeddingCount <= MentionCount because mentions from chunks without an
// embedding are counted but contribute no vector. The aggregate owns
// EmbeddingSum and must Release it.
type Aggregate struct {
	// Key is the lower-cased mention text.
	Key string
	// Text is the display form: the first surface form seen, or after
	// grouping the longest member surface form.
	Text string

	Indices map[int]struct{}
	Types   map[string]struct{}

	EmbeddingSum   *vector.Vector
	EmbeddingCount int
	MentionCount   int
	Mentions       []ner.Mention

	// Variations lists the keys of the aggregates merged into this one.
	Variations []string
}

func newAggregate(key, text string) *Aggregate {
	return &Aggregate{
		Key:        key,
		Text:       text,
		Indices:    make(map[int]struct{}),
		Types:      make(map[string]struct{}),
		Variations: []string{key},
	}
}

// Mean returns a new vector holding EmbeddingSum/EmbeddingCount, or nil when
// the aggregate has no embedding. The caller releases it.
func (a *Aggregate) Mean() *vector.Vector {
	return vector.Mean(a.EmbeddingSum, a.EmbeddingCount)
}

// HasEmbedding reports whether at least one embedding was accumulated.
func (a *Aggregate) HasEmbedding() bool {
	return a.EmbeddingCount > 0 && a.EmbeddingSum.Valid()
}

// Release frees the embedding sum.
func (a *Aggregate) Release() {
	a.EmbeddingSum.Release()
}

// SortedIndices returns the distinct mention start offsets in ascending order.
func (a *Aggregate) SortedIndices() []int {
	out := make([]int, 0, len(a.Indices))
	for i := range a.Indices {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// SortedTypes returns the subcategory tags in ascending order.
func (a *Aggregate) SortedTypes() []string {
	out := make([]string, 0, len(a.Types))
	for t := range a.Types {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (a *Aggregate) sharesType(other *Aggregate) bool {
	for t := range a.Types {
		if _, ok := other.Types[t]; ok {
			return true
		}
	}
	return false
}

// Fold builds one aggregate per distinct lower-cased mention text, in order of
// first appearance. Chunks are visited in order; failed chunks carry no
// mentions and are skipped. The chunk embeddings are read, not consumed.
//
// The first chunk embedding seen fixes the dimensionality. Aggregates that
// never saw an embedding get a zero sum of that dimensionality.
func Fold(tracker *vector.Tracker, chunks []processing.ProcessedChunk) []*Aggregate {
	var (
		order []*Aggregate
		byKey = make(map[string]*Aggregate)
		dim   int
	)

	for _, chunk := range chunks {
		hasEmbedding := chunk.Embedding.Valid()
		if hasEmbedding && dim == 0 {
			dim = chunk.Embedding.Dim()
		}

		for _, m := range chunk.Entities {
			key := strings.ToLower(m.Text)
			agg, ok := byKey[key]
			if !ok {
				agg = newAggregate(key, m.Text)
				byKey[key] = agg
				order = append(order, agg)
			}

			if hasEmbedding {
				if agg.EmbeddingSum == nil {
					agg.EmbeddingSum = tracker.Zeros(chunk.Embedding.Dim())
				}
				if agg.EmbeddingSum.Add(chunk.Embedding) {
					agg.EmbeddingCount++
				}
			}

			agg.MentionCount++
			agg.Mentions = append(agg.Mentions, m)
			agg.Indices[m.Start] = struct{}{}
			for _, tag := range ner.Subcategories(m.Type) {
				agg.Types[tag] = struct{}{}
			}
		}
	}

	for _, agg := range order {
		if agg.EmbeddingSum == nil {
			agg.EmbeddingSum = tracker.Zeros(dim)
		}
	}
	return order
}
