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

package ner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/antflydb/topicmap/lib/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// findModelPath searches for a token classification model in common locations.
func findModelPath(t *testing.T) string {
	t.Helper()

	homeDir, _ := os.UserHomeDir()
	paths := []string{
		os.Getenv("TOPICMAP_NER_MODEL"),
		filepath.Join(homeDir, ".topicmap", "models", "ner", "dslim", "bert-base-NER"),
		"../../testdata/ner/bert-base-NER",
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(p, "model.onnx")); err == nil {
			t.Logf("Found model at %s", p)
			return p
		}
	}

	return ""
}

func TestToRawMentions(t *testing.T) {
	text := "John works"
	entities := []pipelines.Entity{
		{Entity: "B-PER", Word: "John", Start: 0, End: 4, Score: 0.99},
		{Entity: "I-PER", Word: "##x", Start: 40, End: 42, Score: 0.5},
	}

	raw := toRawMentions(text, entities)
	require.Len(t, raw, 2)

	require.NotNil(t, raw[0].Start)
	assert.Equal(t, 0, *raw[0].Start)
	assert.Equal(t, 4, *raw[0].End)
	assert.Equal(t, "B-PER", raw[0].Label)
	assert.InDelta(t, 0.99, raw[0].Score, 1e-6)

	// Out of range offsets are dropped for reconstruction.
	assert.Nil(t, raw[1].Start)
	assert.Nil(t, raw[1].End)
	assert.Equal(t, "##x", raw[1].Word)
}

func TestNewHugotTaggerValidation(t *testing.T) {
	_, err := NewHugotTagger(hugot.NewSharedSession(), "", "", 1, nil)
	require.Error(t, err)

	_, err = NewHugotTagger(nil, "/tmp/model", "", 1, nil)
	require.Error(t, err)
}

func TestHugotTagger(t *testing.T) {
	modelPath := findModelPath(t)
	if modelPath == "" {
		t.Skip("NER model not found, skipping hugot tagger test")
	}

	session := hugot.NewSharedSession()
	defer func() { _ = session.Close() }()

	tagger, err := NewHugotTagger(session, modelPath, "model.onnx", 2, zap.NewNop())
	require.NoError(t, err)

	text := "John Smith works at Google in Mountain View."
	raw, err := tagger.Tag(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	mentions := MergeTokens(ReconstructOffsets(text, raw))
	var texts []string
	for _, m := range mentions {
		texts = append(texts, m.Text)
	}
	assert.Contains(t, texts, "John Smith")
	assert.Positive(t, tagger.CountTokens(text))

	require.NoError(t, tagger.Close())
	assert.False(t, tagger.Ready())
	_, err = tagger.Tag(context.Background(), text)
	assert.ErrorIs(t, err, ErrTaggerClosed)
}
