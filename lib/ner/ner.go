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

// Package ner defines the named-entity tagger collaborator and turns its raw
// token-level output into whole entity mentions.
package ner

import (
	"context"
)

// RawMention is one token-level prediction from a tagger.
type RawMention struct {
	// Label follows a BIO-like scheme: "B-PER", "I-PER", "O" or a bare type such as "PER"
	Label string `json:"label"`
	// Word is the token text; sub-word continuations carry a "##" prefix
	Word string `json:"word"`
	// Start is the character offset where the token begins, nil if the tagger did not report it
	Start *int `json:"start,omitempty"`
	// End is the character offset where the token ends (exclusive), nil if unknown
	End *int `json:"end,omitempty"`
	// Score is the confidence score (0.0 to 1.0)
	Score float32 `json:"score"`
}

// Mention is a merged entity occurrence.
type Mention struct {
	// Text is the entity text (e.g., "John Smith")
	Text string `json:"text"`
	// Type is the entity type (e.g., "PER", "ORG", "LOC", "MISC")
	Type string `json:"type"`
	// Start is the character offset where the entity begins
	Start int `json:"start"`
	// End is the character offset where the entity ends (exclusive)
	End int `json:"end"`
}

// Tagger is the named-entity collaborator.
type Tagger interface {
	// Tag returns token-level predictions for text in token order.
	Tag(ctx context.Context, text string) ([]RawMention, error)

	// CountTokens returns how many model tokens text occupies.
	// Used only to size chunks.
	CountTokens(text string) int
}

// Offset returns a pointer to n, for building RawMentions with known offsets.
func Offset(n int) *int {
	return &n
}

// Rebase shifts mention offsets by the chunk's document offset.
func Rebase(mentions []Mention, offset int) []Mention {
	if offset == 0 {
		return mentions
	}
	out := make([]Mention, len(mentions))
	for i, m := range mentions {
		m.Start += offset
		m.End += offset
		out[i] = m
	}
	return out
}
