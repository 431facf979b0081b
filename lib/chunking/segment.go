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

// Package chunking splits documents into sentences and packs them into
// token-bounded, overlapping chunks sized for model input.
package chunking

import (
	"regexp"
	"strings"
)

var sentenceTerminator = regexp.MustCompile(`[.!?]+\s+`)

// Sentence is a span of the source document. Text is always
// document[Start:End], terminator and trailing whitespace included.
type Sentence struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Segment splits text into ordered, non-overlapping sentences.
// Whitespace-only spans are dropped; a trailing fragment without terminal
// punctuation becomes the final sentence.
func Segment(text string) []Sentence {
	if text == "" {
		return nil
	}

	var sentences []Sentence
	start := 0
	for _, loc := range sentenceTerminator.FindAllStringIndex(text, -1) {
		end := loc[1]
		if span := text[start:end]; strings.TrimSpace(span) != "" {
			sentences = append(sentences, Sentence{Text: span, Start: start, End: end})
		}
		start = end
	}

	if start < len(text) {
		if rest := text[start:]; strings.TrimSpace(rest) != "" {
			sentences = append(sentences, Sentence{Text: rest, Start: start, End: len(text)})
		}
	}

	return sentences
}
