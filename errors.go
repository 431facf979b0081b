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

import "errors"

var (
	// ErrCollaboratorUnavailable is returned when the embedder or tagger is
	// missing or reports that it is not ready.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrInvalidInput is returned for out of range arguments such as a
	// non-positive topN.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoPreviousExtraction is returned by Session.Continue before any
	// text was extracted.
	ErrNoPreviousExtraction = errors.New("no previous extraction")
)
