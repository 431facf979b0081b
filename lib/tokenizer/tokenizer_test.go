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

package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBPETokenizerCountsTokens(t *testing.T) {
	tk, err := NewBPETokenizer("")
	require.NoError(t, err)

	assert.Equal(t, 0, tk.CountTokens(""))
	short := tk.CountTokens("Hello world.")
	long := tk.CountTokens("Hello world. This sentence is noticeably longer than the first one.")
	assert.Positive(t, short)
	assert.Greater(t, long, short)
}

func TestBPETokenizerUnknownEncoding(t *testing.T) {
	_, err := NewBPETokenizer("not-an-encoding")
	require.Error(t, err)
}

func TestApproximateTokenizer(t *testing.T) {
	var tk ApproximateTokenizer
	assert.Equal(t, 0, tk.CountTokens(""))
	assert.Equal(t, 1, tk.CountTokens("ab"))
	assert.Equal(t, 3, tk.CountTokens("abcdefghijkl"))
}

func TestWordPieceTokenizerMissingFile(t *testing.T) {
	_, err := NewWordPieceTokenizer(t.TempDir())
	require.Error(t, err)
}

func TestForModelFallsBackToBPE(t *testing.T) {
	tk := ForModel(t.TempDir())
	_, ok := tk.(*BPETokenizer)
	assert.True(t, ok)
}
