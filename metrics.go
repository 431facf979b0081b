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

import "github.com/prometheus/client_golang/prometheus"

var (
	extractionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "topicmap",
			Name:      "extraction_requests_total",
			Help:      "The total number of topic extraction requests.",
		},
		[]string{"status"},
	)

	extractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "topicmap",
			Name:      "extraction_duration_seconds",
			Help:      "Time taken to extract topics from one document.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	chunksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "topicmap",
			Name:      "chunks_processed_total",
			Help:      "The total number of chunks processed.",
		},
		[]string{"status"}, // ok, empty, failed
	)

	mentionsExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "topicmap",
			Name:      "mentions_extracted_total",
			Help:      "The total number of entity mentions found.",
		},
	)

	topicsReturned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "topicmap",
			Name:      "topics_returned_total",
			Help:      "The total number of topics returned.",
		},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "topicmap",
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		},
		[]string{"type"}, // embedding, tagging
	)

	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "topicmap",
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		},
		[]string{"type"}, // embedding, tagging
	)

	modelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "topicmap",
			Name:      "model_load_duration_seconds",
			Help:      "Time taken to load a model.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model", "type"},
	)
)

func init() {
	prometheus.MustRegister(extractionRequests)
	prometheus.MustRegister(extractionDuration)
	prometheus.MustRegister(chunksProcessed)
	prometheus.MustRegister(mentionsExtracted)
	prometheus.MustRegister(topicsReturned)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(modelLoadDuration)
}

// RecordModelLoadDuration records how long it took to load a model
func RecordModelLoadDuration(model, modelType string, seconds float64) {
	modelLoadDuration.WithLabelValues(model, modelType).Observe(seconds)
}

// RecordCacheHit increments the cache hit counter
func RecordCacheHit(cacheType string) {
	cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments the cache miss counter
func RecordCacheMiss(cacheType string) {
	cacheMisses.WithLabelValues(cacheType).Inc()
}

func recordChunk(status string, mentions int) {
	chunksProcessed.WithLabelValues(status).Inc()
	mentionsExtracted.Add(float64(mentions))
}

func recordExtraction(status string, seconds float64, topics int) {
	extractionRequests.WithLabelValues(status).Inc()
	extractionDuration.Observe(seconds)
	topicsReturned.Add(float64(topics))
}
