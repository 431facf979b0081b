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

package chunking

import (
	"errors"
	"fmt"

	"github.com/antflydb/topicmap/lib/tokenizer"
	"go.uber.org/zap"
)

// Defaults match the window the NER and embedding models were sized for.
const (
	DefaultMaxTokens     = 512
	DefaultOverlapTokens = 50
)

// ErrInvalidMaxTokens is returned when maxTokens is not positive.
var ErrInvalidMaxTokens = errors.New("max tokens must be positive")

// Chunk is a contiguous window of the document starting at Offset.
type Chunk struct {
	Text   string `json:"text"`
	Offset int    `json:"offset"`
}

// End returns the document offset just past the chunk.
func (c Chunk) End() int {
	return c.Offset + len(c.Text)
}

// Chunker packs sentences into windows of at most maxTokens tokens, each
// window overlapping the previous one by roughly overlapTokens tokens.
type Chunker struct {
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewChunker creates a chunker that counts tokens with tk.
func NewChunker(tk tokenizer.Tokenizer, logger *zap.Logger) *Chunker {
	if tk == nil {
		tk = tokenizer.ApproximateTokenizer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{tokenizer: tk, logger: logger}
}

// window is the result of packing sentences from startIdx.
type window struct {
	startIdx int // first sentence index
	endIdx   int // one past the last included sentence
	start    int // document offset of the first sentence
	end      int // document offset past the last sentence
	tokens   int
}

// Chunk splits text into overlapping chunks. A document without sentences
// yields a single empty chunk at offset 0 so downstream stages always have
// one unit of work.
func (c *Chunker) Chunk(text string, maxTokens, overlapTokens int) ([]Chunk, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxTokens, maxTokens)
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens - 1
	}

	sentences := Segment(text)
	if len(sentences) == 0 {
		c.logger.Debug("No sentences found, emitting empty chunk",
			zap.Int("text_length", len(text)))
		return []Chunk{{Text: "", Offset: 0}}, nil
	}

	counts := make([]int, len(sentences))
	for i, s := range sentences {
		counts[i] = c.tokenizer.CountTokens(s.Text)
	}

	var chunks []Chunk
	next := 0
	for next < len(sentences) {
		w := buildWindow(sentences, counts, next, maxTokens)
		chunks = append(chunks, Chunk{
			Text:   text[w.start:w.end],
			Offset: w.start,
		})

		next = overlapStart(w, counts, overlapTokens)
		if next <= w.startIdx {
			next = w.endIdx
		}
	}

	c.logger.Debug("Chunked document",
		zap.Int("num_sentences", len(sentences)),
		zap.Int("num_chunks", len(chunks)),
		zap.Int("max_tokens", maxTokens),
		zap.Int("overlap_tokens", overlapTokens))

	return chunks, nil
}

// buildWindow greedily includes sentences while the running token count stays
// within maxTokens. A sentence that alone exceeds the limit is included anyway.
func buildWindow(sentences []Sentence, counts []int, startIdx, maxTokens int) window {
	tokens := 0
	endIdx := startIdx
	for endIdx < len(sentences) && tokens+counts[endIdx] <= maxTokens {
		tokens += counts[endIdx]
		endIdx++
	}
	if endIdx == startIdx {
		tokens = counts[startIdx]
		endIdx = startIdx + 1
	}
	return window{
		startIdx: startIdx,
		endIdx:   endIdx,
		start:    sentences[startIdx].Start,
		end:      sentences[endIdx-1].End,
		tokens:   tokens,
	}
}

// overlapStart walks back from the end of w until overlapTokens tokens are
// covered or the window's first sentence is reached.
func overlapStart(w window, counts []int, overlapTokens int) int {
	next := w.endIdx
	overlap := 0
	for next > w.startIdx && overlap < overlapTokens {
		next--
		overlap += counts[next]
	}
	return next
}
