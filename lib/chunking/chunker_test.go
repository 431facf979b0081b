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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func TestSegment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Sentence
	}{
		{
			name: "empty",
			text: "",
			want: nil,
		},
		{
			name: "whitespace only",
			text: "   \n\t ",
			want: nil,
		},
		{
			name: "trailing fragment",
			text: "Hello world. How are you? Fine!",
			want: []Sentence{
				{Text: "Hello world. ", Start: 0, End: 13},
				{Text: "How are you? ", Start: 13, End: 26},
				{Text: "Fine!", Start: 26, End: 31},
			},
		},
		{
			name: "repeated terminators",
			text: "Wait... what?! Yes",
			want: []Sentence{
				{Text: "Wait... ", Start: 0, End: 8},
				{Text: "what?! ", Start: 8, End: 15},
				{Text: "Yes", Start: 15, End: 18},
			},
		},
		{
			name: "terminator without whitespace does not split",
			text: "Version 1.2 shipped.",
			want: []Sentence{
				{Text: "Version 1.2 shipped.", Start: 0, End: 20},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segment(tt.text)
			assert.Equal(t, tt.want, got)
			for _, s := range got {
				assert.Equal(t, tt.text[s.Start:s.End], s.Text)
			}
		})
	}
}

func TestChunkEmptyDocument(t *testing.T) {
	c := NewChunker(wordCounter{}, nil)

	for _, text := range []string{"", "   "} {
		chunks, err := c.Chunk(text, DefaultMaxTokens, DefaultOverlapTokens)
		require.NoError(t, err)
		assert.Equal(t, []Chunk{{Text: "", Offset: 0}}, chunks)
	}
}

func TestChunkOverlap(t *testing.T) {
	c := NewChunker(wordCounter{}, nil)
	text := "a b c. d e f. g h i. j k l."

	chunks, err := c.Chunk(text, 6, 3)
	require.NoError(t, err)

	assert.Equal(t, []Chunk{
		{Text: "a b c. d e f. ", Offset: 0},
		{Text: "d e f. g h i. ", Offset: 7},
		{Text: "g h i. j k l.", Offset: 14},
		{Text: "j k l.", Offset: 21},
	}, chunks)
}

func TestChunkWithoutOverlap(t *testing.T) {
	c := NewChunker(wordCounter{}, nil)
	text := "a b c. d e f. g h i. j k l."

	chunks, err := c.Chunk(text, 6, 0)
	require.NoError(t, err)

	assert.Equal(t, []Chunk{
		{Text: "a b c. d e f. ", Offset: 0},
		{Text: "g h i. j k l.", Offset: 14},
	}, chunks)
}

func TestChunkClampsOverlapBelowMaxTokens(t *testing.T) {
	c := NewChunker(wordCounter{}, nil)
	text := "a. b. c. d. e."

	// Overlap 10 with max 4 behaves as overlap 3, not as no overlap.
	clamped, err := c.Chunk(text, 4, 10)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{
		{Text: "a. b. c. d. ", Offset: 0},
		{Text: "b. c. d. e.", Offset: 3},
		{Text: "c. d. e.", Offset: 6},
	}, clamped)

	same, err := c.Chunk(text, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, clamped, same)
}

func TestChunkOversizeSentence(t *testing.T) {
	c := NewChunker(wordCounter{}, nil)
	text := "one two three four. five."

	chunks, err := c.Chunk(text, 2, 0)
	require.NoError(t, err)

	assert.Equal(t, []Chunk{
		{Text: "one two three four. ", Offset: 0},
		{Text: "five.", Offset: 20},
	}, chunks)
}

func TestChunkCoversDocument(t *testing.T) {
	c := NewChunker(wordCounter{}, nil)
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Sentence number ")
		b.WriteString(strings.Repeat("word ", i%7))
		b.WriteString("ends here. ")
	}
	text := strings.TrimSpace(b.String())

	for _, tc := range []struct{ max, overlap int }{{10, 3}, {25, 8}, {4, 50}, {1000, 50}} {
		chunks, err := c.Chunk(text, tc.max, tc.overlap)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		covered := 0
		for _, ch := range chunks {
			assert.Equal(t, text[ch.Offset:ch.End()], ch.Text)
			assert.LessOrEqual(t, ch.Offset, covered, "gap before offset %d", ch.Offset)
			if ch.End() > covered {
				covered = ch.End()
			}
		}
		assert.Equal(t, len(text), covered)
		assert.Equal(t, 0, chunks[0].Offset)
	}
}

func TestChunkRejectsNonPositiveMaxTokens(t *testing.T) {
	c := NewChunker(wordCounter{}, nil)
	_, err := c.Chunk("Hello.", 0, 0)
	require.ErrorIs(t, err, ErrInvalidMaxTokens)
}
