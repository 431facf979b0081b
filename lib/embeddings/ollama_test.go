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

package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOllamaServer(t *testing.T, failures int32, embedding []float32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed", req["model"])

		if n <= failures {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"temporary"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      "test-embed",
			"embeddings": [][]float32{embedding},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOllamaEmbedder(t *testing.T) {
	srv, calls := newOllamaServer(t, 0, []float32{3, 4})

	e, err := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "test-embed"}, srv.Client(), zap.NewNop())
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaEmbedderRetries(t *testing.T) {
	srv, calls := newOllamaServer(t, 2, []float32{1, 0, 0})

	e, err := NewOllamaEmbedder(OllamaConfig{
		Host:         srv.URL,
		Model:        "test-embed",
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}, srv.Client(), nil)
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaEmbedderGivesUp(t *testing.T) {
	srv, calls := newOllamaServer(t, 100, []float32{1})

	e, err := NewOllamaEmbedder(OllamaConfig{
		Host:         srv.URL,
		Model:        "test-embed",
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "never works")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaEmbedderEmptyResponse(t *testing.T) {
	srv, _ := newOllamaServer(t, 0, []float32{})

	e, err := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "test-embed"}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestNewOllamaEmbedderValidation(t *testing.T) {
	_, err := NewOllamaEmbedder(OllamaConfig{}, nil, nil)
	require.Error(t, err)

	_, err = NewOllamaEmbedder(OllamaConfig{Model: "m", Host: "://bad"}, nil, nil)
	require.Error(t, err)
}

func TestNormalizeL2(t *testing.T) {
	v := normalizeL2([]float32{0, 3, 4})
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)

	zero := normalizeL2([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

type readyStub struct{ ready bool }

func (r readyStub) Ready() bool { return r.ready }

func TestIsReady(t *testing.T) {
	assert.False(t, IsReady(nil))
	assert.True(t, IsReady(struct{}{}))
	assert.True(t, IsReady(readyStub{ready: true}))
	assert.False(t, IsReady(readyStub{ready: false}))
}
