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

import "strings"

// SubwordPrefix marks a WordPiece continuation token that attaches to the
// previous token without a space.
const SubwordPrefix = "##"

// ReconstructOffsets fills in missing token offsets by locating each word in
// text. The search cursor only moves forward, starting after the end of the
// previously located token; tokens whose text cannot be found are pinned at
// the cursor. Tokens that already carry offsets are left alone and do not
// move the cursor.
//
// This is an approximation: tokenization can reuse substrings, so a repeated
// word may be attributed to an earlier occurrence than the one tagged.
func ReconstructOffsets(text string, tokens []RawMention) []RawMention {
	out := make([]RawMention, len(tokens))
	cursor := 0
	for i, tok := range tokens {
		out[i] = tok
		if tok.Start != nil && tok.End != nil {
			continue
		}

		word := strings.TrimPrefix(tok.Word, SubwordPrefix)
		start := cursor
		if idx := strings.Index(text[cursor:], word); idx >= 0 && word != "" {
			start = cursor + idx
		}
		end := min(start+len(word), len(text))

		if tok.Start == nil {
			out[i].Start = Offset(start)
		}
		if tok.End == nil {
			out[i].End = Offset(end)
		}
		cursor = end
	}
	return out
}

// MergeTokens folds BIO-tagged tokens into whole mentions:
//   - "B-T" flushes any open mention and starts a new one of type T
//   - "O" flushes the open mention
//   - "I-T" extends the open mention when its type is T; "##" sub-words are
//     appended without a space, other words with one
//   - "I-T" with a different open type flushes it and starts a new mention,
//     as does "I-T" with nothing open
//   - any other label is a single-token mention of that type
//
// Tokens must carry offsets (see ReconstructOffsets); missing ones read as 0.
func MergeTokens(tokens []RawMention) []Mention {
	var (
		merged  []Mention
		current *Mention
	)

	flush := func() {
		if current != nil {
			merged = append(merged, *current)
			current = nil
		}
	}
	open := func(tok RawMention, entityType string) {
		flush()
		current = &Mention{
			Text:  strings.TrimPrefix(tok.Word, SubwordPrefix),
			Type:  entityType,
			Start: deref(tok.Start),
			End:   deref(tok.End),
		}
	}

	for _, tok := range tokens {
		switch {
		case IsBIOOutside(tok.Label):
			flush()
		case IsBIOBegin(tok.Label):
			open(tok, GetLabelType(tok.Label))
		case IsBIOInside(tok.Label):
			entityType := GetLabelType(tok.Label)
			if current == nil || current.Type != entityType {
				open(tok, entityType)
				continue
			}
			if strings.HasPrefix(tok.Word, SubwordPrefix) {
				current.Text += strings.TrimPrefix(tok.Word, SubwordPrefix)
			} else {
				current.Text += " " + tok.Word
			}
			current.End = deref(tok.End)
		default:
			open(tok, tok.Label)
		}
	}
	flush()

	return merged
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
