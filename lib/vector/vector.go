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

// Package vector provides owned embedding buffers with an explicit release
// protocol. Every buffer handed out by a Tracker must be released exactly once;
// the tracker counts allocations and releases so a caller can verify that an
// extraction left nothing behind.
package vector

import (
	"math"
	"sync"
	"sync/atomic"
)

// Vector is a dense float32 embedding owned by a Tracker.
// A released vector reports itself invalid and contributes nothing to any
// arithmetic it takes part in.
type Vector struct {
	mu       sync.RWMutex
	data     []float32
	tracker  *Tracker
	released atomic.Bool
}

// Stats is a snapshot of a tracker's bookkeeping.
type Stats struct {
	Allocated      int64 `json:"allocated"`
	Released       int64 `json:"released"`
	Live           int64 `json:"live"`
	DoubleReleases int64 `json:"double_releases"`
}

// Tracker hands out vectors and recycles their buffers per dimensionality.
// The zero value is not usable; use NewTracker. A nil *Tracker is accepted by
// every method and simply skips bookkeeping and pooling.
type Tracker struct {
	allocated      atomic.Int64
	released       atomic.Int64
	doubleReleases atomic.Int64

	poolsMu sync.Mutex
	pools   map[int]*sync.Pool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{pools: make(map[int]*sync.Pool)}
}

// Stats returns the current allocation counters.
func (t *Tracker) Stats() Stats {
	if t == nil {
		return Stats{}
	}
	allocated := t.allocated.Load()
	released := t.released.Load()
	return Stats{
		Allocated:      allocated,
		Released:       released,
		Live:           allocated - released,
		DoubleReleases: t.doubleReleases.Load(),
	}
}

func (t *Tracker) pool(dim int) *sync.Pool {
	t.poolsMu.Lock()
	defer t.poolsMu.Unlock()
	p, ok := t.pools[dim]
	if !ok {
		p = &sync.Pool{New: func() any {
			buf := make([]float32, dim)
			return &buf
		}}
		t.pools[dim] = p
	}
	return p
}

func (t *Tracker) buffer(dim int) []float32 {
	if t == nil || dim == 0 {
		return make([]float32, dim)
	}
	buf := *(t.pool(dim).Get().(*[]float32))
	clear(buf)
	return buf
}

func (t *Tracker) recycle(buf []float32) {
	if t == nil || len(buf) == 0 {
		return
	}
	t.pool(len(buf)).Put(&buf)
}

// Zeros allocates a zero vector of the given dimensionality.
func (t *Tracker) Zeros(dim int) *Vector {
	if dim < 0 {
		dim = 0
	}
	v := &Vector{data: t.buffer(dim), tracker: t}
	if t != nil {
		t.allocated.Add(1)
	}
	return v
}

// From copies values into a new tracked vector.
func (t *Tracker) From(values []float32) *Vector {
	v := t.Zeros(len(values))
	copy(v.data, values)
	return v
}

// Valid reports whether v can still be read.
func (v *Vector) Valid() bool {
	return v != nil && !v.released.Load()
}

// Dim returns the dimensionality, or 0 for a nil or released vector.
func (v *Vector) Dim() int {
	if !v.Valid() {
		return 0
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.data)
}

// Values returns a copy of the vector's contents.
// ok is false when the vector is nil or already released.
func (v *Vector) Values() (values []float32, ok bool) {
	if !v.Valid() {
		return nil, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.data == nil && v.released.Load() {
		return nil, false
	}
	out := make([]float32, len(v.data))
	copy(out, v.data)
	return out, true
}

// Release returns the buffer to its tracker. It reports false, and records a
// double release, when the vector had already been released.
func (v *Vector) Release() bool {
	if v == nil {
		return false
	}
	if !v.released.CompareAndSwap(false, true) {
		if v.tracker != nil {
			v.tracker.doubleReleases.Add(1)
		}
		return false
	}
	v.mu.Lock()
	buf := v.data
	v.data = nil
	v.mu.Unlock()
	if v.tracker != nil {
		v.tracker.released.Add(1)
		v.tracker.recycle(buf)
	}
	return true
}

// Add accumulates other into v. It reports false and leaves v unchanged when
// either vector is invalid or the dimensionalities differ.
func (v *Vector) Add(other *Vector) bool {
	if !v.Valid() || !other.Valid() || v == other {
		return false
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.data == nil || other.data == nil || len(v.data) != len(other.data) {
		return false
	}
	for i, x := range other.data {
		v.data[i] += x
	}
	return true
}

// Scaled returns a new vector from v's tracker holding v*factor.
// It returns nil when v is invalid.
func (v *Vector) Scaled(factor float32) *Vector {
	if !v.Valid() {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.data == nil {
		return nil
	}
	out := v.tracker.Zeros(len(v.data))
	for i, x := range v.data {
		out.data[i] = x * factor
	}
	return out
}

// Mean returns sum/count as a new vector, or nil when count is not positive
// or sum is invalid.
func Mean(sum *Vector, count int) *Vector {
	if count <= 0 {
		return nil
	}
	return sum.Scaled(1 / float32(count))
}

// Dot returns the dot product of a and b.
// ok is false when either vector is invalid or their dimensionalities differ.
func Dot(a, b *Vector) (dot float64, ok bool) {
	if !a.Valid() || !b.Valid() {
		return 0, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a != b {
		b.mu.RLock()
		defer b.mu.RUnlock()
	}
	if a.data == nil || b.data == nil || len(a.data) != len(b.data) {
		return 0, false
	}
	for i := range a.data {
		dot += float64(a.data[i]) * float64(b.data[i])
	}
	return dot, true
}

// Norm returns the L2 norm of v, 0 for an invalid vector.
func Norm(v *Vector) float64 {
	sq, ok := Dot(v, v)
	if !ok {
		return 0
	}
	return math.Sqrt(sq)
}

// Cosine returns the cosine similarity of a and b. Invalid vectors, mismatched
// dimensionalities and zero norms all yield 0.
func Cosine(a, b *Vector) float64 {
	dot, ok := Dot(a, b)
	if !ok {
		return 0
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (na * nb)
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}
