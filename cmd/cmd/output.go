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

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/antflydb/topicmap"
	"github.com/bytedance/sonic/encoder"
	"github.com/fatih/color"
)

// Output formats for --format.
const (
	formatJSON = "json"
	formatText = "text"
)

// report is one extraction written by the extract command.
type report struct {
	Source    string           `json:"source"`
	Iteration int              `json:"iteration,omitempty"`
	Options   topicmap.Options `json:"options"`
	Topics    []topicmap.Topic `json:"topics"`
	Stats     *topicmap.Stats  `json:"stats,omitempty"`
}

func writeReport(w io.Writer, format string, r report) error {
	switch format {
	case formatJSON:
		enc := encoder.NewStreamEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case formatText:
		return writeText(w, r)
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, formatJSON, formatText)
	}
}

var (
	headerColor = color.New(color.FgGreen, color.Bold)
	topicColor  = color.New(color.FgCyan, color.Bold)
	scoreColor  = color.New(color.FgYellow)
	detailColor = color.New(color.Faint)
)

func writeText(w io.Writer, r report) error {
	title := r.Source
	if r.Iteration > 0 {
		title = fmt.Sprintf("%s (iteration %d)", r.Source, r.Iteration)
	}
	if _, err := headerColor.Fprintln(w, title); err != nil {
		return err
	}

	if len(r.Topics) == 0 {
		_, err := detailColor.Fprintln(w, "  no topics found")
		return err
	}

	for i, t := range r.Topics {
		fmt.Fprintf(w, "%3d. %s  %s\n", i+1,
			topicColor.Sprint(t.Topic),
			scoreColor.Sprintf("%.4f", t.RelevanceScore))
		detailColor.Fprintf(w, "     %s\n", strings.Join(t.Subcategories, ", "))
		for _, d := range t.EntityDetails {
			detailColor.Fprintf(w, "     %s: %d mention(s) at %s\n", d.Type, len(d.Mentions), offsets(d))
		}
	}

	if r.Stats != nil {
		s := r.Stats
		detailColor.Fprintf(w, "  %d chunks (%d failed), %d mentions, %d entities, %d groups in %s\n",
			s.Chunks, s.FailedChunks, s.Mentions, s.Entities, s.Groups, s.Duration)
	}
	return nil
}

func offsets(d topicmap.EntityDetail) string {
	parts := make([]string, len(d.Mentions))
	for i, m := range d.Mentions {
		parts[i] = fmt.Sprintf("%d-%d", m.Start, m.End)
	}
	return strings.Join(parts, " ")
}
