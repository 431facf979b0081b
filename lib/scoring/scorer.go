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

// Package scoring ranks aggregated entities by how close they are to the
// document's overall meaning.
package scoring

import (
	"cmp"
	"slices"

	"github.com/antflydb/topicmap/lib/aggregate"
	"github.com/antflydb/topicmap/lib/ner"
	"github.com/antflydb/topicmap/lib/processing"
	"github.com/antflydb/topicmap/lib/vector"
	"go.uber.org/zap"
)

// DefaultEmbeddingDim is the dimensionality of the zero document embedding
// used when no chunk produced one.
const DefaultEmbeddingDim = 768

// Topic is one ranked entry of the result.
type Topic struct {
	Topic          string         `json:"topic"`
	Indices        []int          `json:"indices"`
	Subcategories  []string       `json:"subcategories"`
	RelevanceScore float64        `json:"relevanceScore"`
	EntityDetails  []EntityDetail `json:"entityDetails"`
}

// EntityDetail lists the mentions of one entity type, ordered by position.
type EntityDetail struct {
	Type     string        `json:"type"`
	Mentions []ner.Mention `json:"mentions"`
}

// Options controls similarity and filtering.
type Options struct {
	// UseL2Norm scores with the raw dot product instead of cosine similarity.
	UseL2Norm bool `json:"useL2Norm"`
	// UseCentrality compares entities with the centroid of all entity
	// embeddings rather than with the document embedding.
	UseCentrality bool `json:"useCentrality"`
	// MinRelevance drops topics scoring below it when set.
	MinRelevance *float64 `json:"minRelevance,omitempty"`
}

// DocumentEmbedding returns the mean of the valid chunk embeddings, or a zero
// vector of dim (DefaultEmbeddingDim if dim <= 0) when there are none.
// Embeddings whose dimensionality differs from the first one are skipped.
// The caller releases the result; the chunk embeddings are not consumed.
func DocumentEmbedding(tracker *vector.Tracker, chunks []processing.ProcessedChunk, dim int) *vector.Vector {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}

	var (
		sum   *vector.Vector
		count int
	)
	for _, c := range chunks {
		if !c.Embedding.Valid() {
			continue
		}
		if sum == nil {
			sum = tracker.Zeros(c.Embedding.Dim())
		}
		if sum.Add(c.Embedding) {
			count++
		}
	}
	if sum == nil {
		return tracker.Zeros(dim)
	}
	defer sum.Release()
	return vector.Mean(sum, count)
}

// Similarity compares a with b: the raw dot product when useL2Norm is set,
// cosine similarity otherwise. Invalid or mismatched vectors score 0.
func Similarity(a, b *vector.Vector, useL2Norm bool) float64 {
	if !useL2Norm {
		return vector.Cosine(a, b)
	}
	dot, ok := vector.Dot(a, b)
	if !ok {
		return 0
	}
	return dot
}

// Scorer turns aggregates into ranked topics.
type Scorer struct {
	tracker *vector.Tracker
	logger  *zap.Logger
}

// NewScorer creates a Scorer allocating temporaries from tracker.
func NewScorer(tracker *vector.Tracker, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{tracker: tracker, logger: logger.Named("scorer")}
}

// Score ranks entities against docEmbedding and returns at most topN topics
// (all of them when topN <= 0), best first. Ties keep input order. Entities
// without indices or subcategories are dropped. Neither the entities' sums
// nor docEmbedding are released.
func (s *Scorer) Score(entities []*aggregate.Aggregate, docEmbedding *vector.Vector, topN int, opts Options) []Topic {
	reference := docEmbedding
	if opts.UseCentrality {
		if centroid := s.centroid(entities); centroid != nil {
			defer centroid.Release()
			reference = centroid
		}
	}

	topics := make([]Topic, 0, len(entities))
	for _, e := range entities {
		if len(e.Indices) == 0 || len(e.Types) == 0 {
			continue
		}
		score := s.similarity(e, reference, opts.UseL2Norm)
		if opts.MinRelevance != nil && score < *opts.MinRelevance {
			continue
		}
		topics = append(topics, Topic{
			Topic:          e.Text,
			Indices:        e.SortedIndices(),
			Subcategories:  e.SortedTypes(),
			RelevanceScore: score,
			EntityDetails:  entityDetails(e.Mentions),
		})
	}

	slices.SortStableFunc(topics, func(a, b Topic) int {
		return cmp.Compare(b.RelevanceScore, a.RelevanceScore)
	})
	if topN > 0 && len(topics) > topN {
		topics = topics[:topN]
	}

	s.logger.Debug("Scored entities",
		zap.Int("num_entities", len(entities)),
		zap.Int("num_topics", len(topics)),
		zap.Bool("l2", opts.UseL2Norm),
		zap.Bool("centrality", opts.UseCentrality))
	return topics
}

func (s *Scorer) similarity(e *aggregate.Aggregate, reference *vector.Vector, useL2Norm bool) float64 {
	mean := e.Mean()
	if mean == nil {
		return 0
	}
	defer mean.Release()
	return Similarity(mean, reference, useL2Norm)
}

// centroid averages the mean embeddings of entities that have one.
// It returns nil when none does.
func (s *Scorer) centroid(entities []*aggregate.Aggregate) *vector.Vector {
	var (
		sum   *vector.Vector
		count int
	)
	for _, e := range entities {
		mean := e.Mean()
		if mean == nil {
			continue
		}
		if sum == nil {
			sum = s.tracker.Zeros(mean.Dim())
		}
		if sum.Add(mean) {
			count++
		}
		mean.Release()
	}
	if sum == nil {
		return nil
	}
	defer sum.Release()
	return vector.Mean(sum, count)
}

// entityDetails groups mentions by type in order of first appearance and
// orders each group by start offset.
func entityDetails(mentions []ner.Mention) []EntityDetail {
	var details []EntityDetail
	index := make(map[string]int)
	for _, m := range mentions {
		i, ok := index[m.Type]
		if !ok {
			i = len(details)
			index[m.Type] = i
			details = append(details, EntityDetail{Type: m.Type})
		}
		details[i].Mentions = append(details[i].Mentions, m)
	}
	for i := range details {
		slices.SortStableFunc(details[i].Mentions, func(a, b ner.Mention) int {
			return cmp.Compare(a.Start, b.Start)
		})
	}
	return details
}
