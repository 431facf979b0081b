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

// Command topicmap extracts the salient topics of text documents.
//
// Usage:
//
//	topicmap extract article.txt             # Rank the topics of a file
//	cat page.txt | topicmap extract -        # Read from stdin
//	topicmap extract --iterations 3 doc.txt  # Refine with stricter settings
//	topicmap version                         # Print the version
package main

import "github.com/antflydb/topicmap/cmd/cmd"

// https://goreleaser.com/cookbooks/using-main.version/
var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
