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

// Package hugot creates the Hugot sessions that back the built-in tagger and
// embedder. Only the pure Go (goMLX) backend is used: it needs no CGO and no
// native runtime, so a single static binary can run both models.
package hugot

import (
	"errors"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
)

// ErrSessionClosed is returned when acquiring from a closed shared session.
var ErrSessionClosed = errors.New("hugot session closed")

// NewSession creates a new Hugot session on the pure Go backend.
func NewSession(opts ...options.WithOption) (*hugot.Session, error) {
	return hugot.NewGoSession(opts...)
}

// BackendName returns a human-readable name of the backend in use.
func BackendName() string {
	return "goMLX (Pure Go)"
}

// SharedSession lets the tagger and embedder run their pipelines in a single
// session. The session is created on first Acquire and destroyed when the
// last holder releases it.
type SharedSession struct {
	mu      sync.Mutex
	session *hugot.Session
	refs    int
	closed  bool
	opts    []options.WithOption
}

// NewSharedSession returns a lazily created shared session.
func NewSharedSession(opts ...options.WithOption) *SharedSession {
	return &SharedSession{opts: opts}
}

// Acquire returns the session, creating it if needed, and takes a reference.
// Every successful Acquire must be paired with Release.
func (s *SharedSession) Acquire() (*hugot.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.session == nil {
		session, err := NewSession(s.opts...)
		if err != nil {
			return nil, err
		}
		s.session = session
	}
	s.refs++
	return s.session, nil
}

// Release drops a reference and destroys the session with the last one.
func (s *SharedSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return nil
	}
	s.refs--
	if s.refs > 0 || s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

// Close destroys the session regardless of outstanding references.
func (s *SharedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.refs = 0
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
