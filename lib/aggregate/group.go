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

package aggregate

import (
	"strings"

	"github.com/antflydb/topicmap/lib/vector"
	"go.uber.org/zap"
)

// DefaultSimilarityThreshold is the cosine similarity above which two
// entities with unrelated text are still considered the same.
const DefaultSimilarityThreshold = 0.9

const strippedPunctuation = ".,/#!$%^&*;:{}=-_`~()"

// NormalizeText lower-cases text, removes common punctuation and collapses
// whitespace.
func NormalizeText(text string) string {
	text = strings.Map(func(r rune) rune {
		if strings.ContainsRune(strippedPunctuation, r) {
			return -1
		}
		return r
	}, strings.ToLower(text))
	return strings.Join(strings.Fields(text), " ")
}

// Grouper merges aggregates that refer to the same entity.
type Grouper struct {
	tracker   *vector.Tracker
	threshold float64
	logger    *zap.Logger
}

// NewGrouper creates a Grouper. A non-positive threshold selects
// DefaultSimilarityThreshold.
func NewGrouper(tracker *vector.Tracker, threshold float64, logger *zap.Logger) *Grouper {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grouper{tracker: tracker, threshold: threshold, logger: logger.Named("grouper")}
}

// Related reports whether a and b name the same entity: equal or nested
// normalized text, or mean embeddings closer than the threshold. Type
// compatibility is checked separately.
func (g *Grouper) Related(a, b *Aggregate) bool {
	na, nb := NormalizeText(a.Key), NormalizeText(b.Key)
	if na == nb {
		return true
	}
	if na != "" && nb != "" && (strings.Contains(na, nb) || strings.Contains(nb, na)) {
		return true
	}
	if !a.HasEmbedding() || !b.HasEmbedding() {
		return false
	}

	ma, mb := a.Mean(), b.Mean()
	defer ma.Release()
	defer mb.Release()
	return vector.Cosine(ma, mb) > g.threshold
}

// Group makes a single greedy pass in input order. Each not yet grouped
// aggregate becomes a seed and absorbs every later, not yet grouped aggregate
// that is related to the seed itself and shares a type with it. Relatedness
// is not transitive: with A~B, B~C and A!~C, seed A yields {A,B} and C stays
// alone.
//
// Singletons are returned as is. Merged groups replace their members; the
// members' sums are released. Output order is seed order.
func (g *Grouper) Group(aggs []*Aggregate) []*Aggregate {
	grouped := make([]bool, len(aggs))
	out := make([]*Aggregate, 0, len(aggs))

	for i, seed := range aggs {
		if grouped[i] {
			continue
		}
		grouped[i] = true

		members := []*Aggregate{seed}
		for j := i + 1; j < len(aggs); j++ {
			if grouped[j] {
				continue
			}
			other := aggs[j]
			if g.Related(seed, other) && seed.sharesType(other) {
				members = append(members, other)
				grouped[j] = true
			}
		}

		if len(members) == 1 {
			out = append(out, seed)
			continue
		}
		merged := g.merge(members)
		g.logger.Debug("Grouped entities",
			zap.String("canonical", merged.Text),
			zap.Strings("variations", merged.Variations))
		out = append(out, merged)
	}

	g.logger.Debug("Grouping complete",
		zap.Int("num_entities", len(aggs)),
		zap.Int("num_groups", len(out)))
	return out
}

func (g *Grouper) merge(members []*Aggregate) *Aggregate {
	merged := newAggregate(members[0].Key, canonicalText(members))
	merged.Variations = merged.Variations[:0]

	dim := 0
	for _, m := range members {
		if d := m.EmbeddingSum.Dim(); d > 0 {
			dim = d
			break
		}
	}
	merged.EmbeddingSum = g.tracker.Zeros(dim)

	for _, m := range members {
		merged.Variations = append(merged.Variations, m.Variations...)
		for i := range m.Indices {
			merged.Indices[i] = struct{}{}
		}
		for t := range m.Types {
			merged.Types[t] = struct{}{}
		}
		if m.EmbeddingCount > 0 && merged.EmbeddingSum.Add(m.EmbeddingSum) {
			merged.EmbeddingCount += m.EmbeddingCount
		}
		merged.MentionCount += m.MentionCount
		merged.Mentions = append(merged.Mentions, m.Mentions...)
		m.Release()
	}
	return merged
}

// canonicalText picks the longest surface form, the first one on a tie.
func canonicalText(members []*Aggregate) string {
	best := members[0].Text
	for _, m := range members[1:] {
		if len(m.Text) > len(best) {
			best = m.Text
		}
	}
	return best
}
