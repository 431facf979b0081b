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

// Package embeddings provides the embedding collaborators: a local Hugot
// feature extraction model and a remote Ollama server.
package embeddings

import (
	"context"
	"errors"
	"math"
)

// ErrEmptyEmbedding is returned when a backend produced no vector.
var ErrEmptyEmbedding = errors.New("empty embedding")

// Embedder maps text to a dense vector. All vectors from one Embedder share
// the same dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Readiness is implemented by collaborators that can report whether they are
// able to serve requests.
type Readiness interface {
	Ready() bool
}

// IsReady reports whether v is usable: non-nil, and Ready when it implements
// Readiness.
func IsReady(v any) bool {
	if v == nil {
		return false
	}
	if r, ok := v.(Readiness); ok {
		return r.Ready()
	}
	return true
}

// normalizeL2 scales vec to unit length in place. Zero vectors are returned
// unchanged.
func normalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
