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
package topicmap

import (
	"context"
	"testing"

	"github.com/antflydb/topicmap/lib/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractRecordsMetrics(t *testing.T) {
	tagger := newTagger()
	tagger.FailOn = "BROKEN"
	x, err := New(&testutil.Embedder{Dim: 1024}, tagger,
		WithConfig(fiveChunkConfig()),
		WithLogger(zap.NewNop()))
	require.NoError(t, err)

	okBefore := promtest.ToFloat64(extractionRequests.WithLabelValues("ok"))
	errBefore := promtest.ToFloat64(extractionRequests.WithLabelValues("error"))
	failedBefore := promtest.ToFloat64(chunksProcessed.WithLabelValues("failed"))
	chunkOKBefore := promtest.ToFloat64(chunksProcessed.WithLabelValues("ok"))
	topicsBefore := promtest.ToFloat64(topicsReturned)

	res, err := x.Extract(context.Background(), document, 3, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, okBefore+1, promtest.ToFloat64(extractionRequests.WithLabelValues("ok")))
	assert.Equal(t, failedBefore+1, promtest.ToFloat64(chunksProcessed.WithLabelValues("failed")))
	assert.Equal(t, chunkOKBefore+4, promtest.ToFloat64(chunksProcessed.WithLabelValues("ok")))
	assert.Equal(t, topicsBefore+float64(len(res.Topics)), promtest.ToFloat64(topicsReturned))

	_, err = x.Extract(context.Background(), document, 0, DefaultOptions())
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, errBefore+1, promtest.ToFloat64(extractionRequests.WithLabelValues("error")))
}

func TestCacheMetricHelpers(t *testing.T) {
	hits := promtest.ToFloat64(cacheHits.WithLabelValues("embedding"))
	misses := promtest.ToFloat64(cacheMisses.WithLabelValues("embedding"))

	RecordCacheHit("embedding")
	RecordCacheMiss("embedding")
	RecordCacheMiss("embedding")

	assert.Equal(t, hits+1, promtest.ToFloat64(cacheHits.WithLabelValues("embedding")))
	assert.Equal(t, misses+2, promtest.ToFloat64(cacheMisses.WithLabelValues("embedding")))
}
