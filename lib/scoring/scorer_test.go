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

package scoring

import (
	"testing"

	"github.com/antflydb/topicmap/lib/aggregate"
	"github.com/antflydb/topicmap/lib/ner"
	"github.com/antflydb/topicmap/lib/processing"
	"github.com/antflydb/topicmap/lib/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entity(tracker *vector.Tracker, text string, sum []float32, count int, mentions ...ner.Mention) *aggregate.Aggregate {
	a := &aggregate.Aggregate{
		Key:            text,
		Text:           text,
		Indices:        map[int]struct{}{},
		Types:          map[string]struct{}{},
		EmbeddingSum:   tracker.From(sum),
		EmbeddingCount: count,
		MentionCount:   len(mentions),
		Mentions:       mentions,
	}
	for _, m := range mentions {
		a.Indices[m.Start] = struct{}{}
		for _, tag := range ner.Subcategories(m.Type) {
			a.Types[tag] = struct{}{}
		}
	}
	return a
}

func at(start int, typ string) ner.Mention {
	return ner.Mention{Text: "x", Type: typ, Start: start, End: start + 1}
}

func topicNames(topics []Topic) []string {
	var out []string
	for _, t := range topics {
		out = append(out, t.Topic)
	}
	return out
}

func release(doc *vector.Vector, entities []*aggregate.Aggregate) {
	doc.Release()
	for _, e := range entities {
		e.Release()
	}
}

func TestDocumentEmbedding(t *testing.T) {
	tracker := vector.NewTracker()
	chunks := []processing.ProcessedChunk{
		{Embedding: tracker.From([]float32{1, 0})},
		{},
		{Embedding: tracker.From([]float32{0, 1})},
	}

	doc := DocumentEmbedding(tracker, chunks, 0)
	values, ok := doc.Values()
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, 0.5}, values)

	doc.Release()
	for _, c := range chunks {
		c.Embedding.Release()
	}
	assert.Equal(t, int64(0), tracker.Stats().Live)
}

func TestDocumentEmbeddingNoChunks(t *testing.T) {
	tracker := vector.NewTracker()

	doc := DocumentEmbedding(tracker, nil, 0)
	assert.Equal(t, DefaultEmbeddingDim, doc.Dim())
	doc.Release()

	doc = DocumentEmbedding(tracker, []processing.ProcessedChunk{{}}, 16)
	assert.Equal(t, 16, doc.Dim())
	doc.Release()
}

func TestSimilarity(t *testing.T) {
	tracker := vector.NewTracker()
	a := tracker.From([]float32{2, 0})
	b := tracker.From([]float32{3, 0})
	zero := tracker.Zeros(2)
	short := tracker.From([]float32{1})

	assert.InDelta(t, 6.0, Similarity(a, b, true), 1e-9)
	assert.InDelta(t, 1.0, Similarity(a, b, false), 1e-9)
	assert.Zero(t, Similarity(a, zero, false))
	assert.Zero(t, Similarity(a, short, true))
	assert.Zero(t, Similarity(a, short, false))

	b.Release()
	assert.Zero(t, Similarity(a, b, true))
}

func TestScoreL2Ranking(t *testing.T) {
	tracker := vector.NewTracker()
	doc := tracker.From([]float32{1, 0})

	// Means: near (0.9, 0.1), far (0.1, 0.9), mid (0.5, 0.5).
	entities := []*aggregate.Aggregate{
		entity(tracker, "far", []float32{0.2, 1.8}, 2, at(5, "ORG")),
		entity(tracker, "near", []float32{0.9, 0.1}, 1, at(1, "ORG")),
		entity(tracker, "mid", []float32{1.5, 1.5}, 3, at(9, "PER")),
	}

	topics := NewScorer(tracker, nil).Score(entities, doc, 10, Options{UseL2Norm: true})
	require.Len(t, topics, 3)
	assert.Equal(t, []string{"near", "mid", "far"}, topicNames(topics))
	assert.InDelta(t, 0.9, topics[0].RelevanceScore, 1e-6)
	assert.InDelta(t, 0.5, topics[1].RelevanceScore, 1e-6)
	assert.InDelta(t, 0.1, topics[2].RelevanceScore, 1e-6)
	for i := 1; i < len(topics); i++ {
		assert.GreaterOrEqual(t, topics[i-1].RelevanceScore, topics[i].RelevanceScore)
	}

	release(doc, entities)
	assert.Equal(t, int64(0), tracker.Stats().Live)
}

func TestScoreCosineDiffersFromL2(t *testing.T) {
	tracker := vector.NewTracker()
	doc := tracker.From([]float32{1, 0})

	// "big" has the larger dot product, "aligned" the larger cosine.
	entities := []*aggregate.Aggregate{
		entity(tracker, "big", []float32{3, 3}, 1, at(0, "ORG")),
		entity(tracker, "aligned", []float32{1, 0}, 1, at(4, "ORG")),
	}
	scorer := NewScorer(tracker, nil)

	l2 := scorer.Score(entities, doc, 2, Options{UseL2Norm: true})
	assert.Equal(t, []string{"big", "aligned"}, topicNames(l2))

	cos := scorer.Score(entities, doc, 2, Options{})
	assert.Equal(t, []string{"aligned", "big"}, topicNames(cos))
	assert.InDelta(t, 1.0, cos[0].RelevanceScore, 1e-6)

	release(doc, entities)
}

func TestScoreFiltersAndTopN(t *testing.T) {
	tracker := vector.NewTracker()
	doc := tracker.From([]float32{1, 0})

	noIndices := entity(tracker, "ghost", []float32{1, 0}, 1)
	noIndices.Types["ORG"] = struct{}{}
	entities := []*aggregate.Aggregate{
		noIndices,
		entity(tracker, "a", []float32{0.9, 0}, 1, at(0, "ORG")),
		entity(tracker, "b", []float32{0.8, 0}, 1, at(1, "ORG")),
		entity(tracker, "c", []float32{0.2, 0}, 1, at(2, "ORG")),
		entity(tracker, "no-embedding", []float32{0, 0}, 0, at(3, "ORG")),
	}
	scorer := NewScorer(tracker, nil)

	top := scorer.Score(entities, doc, 2, Options{UseL2Norm: true})
	assert.Equal(t, []string{"a", "b"}, topicNames(top))

	all := scorer.Score(entities, doc, 0, Options{UseL2Norm: true})
	assert.Equal(t, []string{"a", "b", "c", "no-embedding"}, topicNames(all))
	for _, topic := range all {
		assert.NotEmpty(t, topic.Indices)
		assert.NotEmpty(t, topic.Subcategories)
	}

	minRelevance := 0.5
	filtered := scorer.Score(entities, doc, 10, Options{UseL2Norm: true, MinRelevance: &minRelevance})
	assert.Equal(t, []string{"a", "b"}, topicNames(filtered))

	release(doc, entities)
	assert.Equal(t, int64(0), tracker.Stats().Live)
}

func TestScoreStableTies(t *testing.T) {
	tracker := vector.NewTracker()
	doc := tracker.From([]float32{1, 0})
	entities := []*aggregate.Aggregate{
		entity(tracker, "first", []float32{0, 1}, 1, at(0, "ORG")),
		entity(tracker, "second", []float32{0, 1}, 1, at(1, "ORG")),
		entity(tracker, "third", []float32{0, 1}, 1, at(2, "ORG")),
	}
	topics := NewScorer(tracker, nil).Score(entities, doc, 3, Options{})
	assert.Equal(t, []string{"first", "second", "third"}, topicNames(topics))
	release(doc, entities)
}

func TestScoreCentrality(t *testing.T) {
	tracker := vector.NewTracker()
	// The document points away from every entity; the centroid of the
	// entity means is (0.5, 0.5).
	doc := tracker.From([]float32{-1, 0})
	entities := []*aggregate.Aggregate{
		entity(tracker, "x", []float32{1, 0}, 1, at(0, "ORG")),
		entity(tracker, "y", []float32{0, 1}, 1, at(1, "ORG")),
		entity(tracker, "xy", []float32{1, 1}, 2, at(2, "ORG")),
	}
	scorer := NewScorer(tracker, nil)

	topics := scorer.Score(entities, doc, 3, Options{UseCentrality: true})
	assert.Equal(t, "xy", topics[0].Topic)
	assert.InDelta(t, 1.0, topics[0].RelevanceScore, 1e-6)

	plain := scorer.Score(entities, doc, 3, Options{})
	assert.Equal(t, "y", plain[0].Topic)

	release(doc, entities)
	assert.Equal(t, int64(0), tracker.Stats().Live)
}

func TestScoreEntityDetails(t *testing.T) {
	tracker := vector.NewTracker()
	doc := tracker.From([]float32{1})
	e := entity(tracker, "Jordan", []float32{1}, 1,
		ner.Mention{Text: "Jordan", Type: "PER", Start: 40, End: 46},
		ner.Mention{Text: "Jordan", Type: "LOC", Start: 10, End: 16},
		ner.Mention{Text: "jordan", Type: "PER", Start: 5, End: 11},
	)

	topics := NewScorer(tracker, nil).Score([]*aggregate.Aggregate{e}, doc, 1, Options{})
	require.Len(t, topics, 1)

	topic := topics[0]
	assert.Equal(t, []int{5, 10, 40}, topic.Indices)
	assert.Equal(t, []string{"LOC", "PER", "location", "named_entity", "person"}, topic.Subcategories)
	require.Len(t, topic.EntityDetails, 2)
	assert.Equal(t, "PER", topic.EntityDetails[0].Type)
	assert.Equal(t, []int{5, 40}, []int{topic.EntityDetails[0].Mentions[0].Start, topic.EntityDetails[0].Mentions[1].Start})
	assert.Equal(t, "LOC", topic.EntityDetails[1].Type)

	release(doc, []*aggregate.Aggregate{e})
}
