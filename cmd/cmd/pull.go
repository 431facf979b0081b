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
	"os/signal"
	"syscall"

	"github.com/antflydb/topicmap/lib/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pullCmd = &cobra.Command{
	Use:   "pull [flags] <owner/name>",
	Short: "Download an ONNX model from the HuggingFace Hub",
	Long: `Download the ONNX weights and tokenizer of a HuggingFace model into the
local model directory, where extract can load it with --ner-model or
--embedding-model.

Examples:
  topicmap pull dslim/bert-base-NER
  topicmap pull --kind embedders BAAI/bge-small-en-v1.5
  topicmap pull --variant quantized --models-dir ./models dslim/bert-base-NER`,
	Args: cobra.ExactArgs(1),
	RunE: runPull,
}

func init() {
	f := pullCmd.Flags()
	f.String("kind", string(models.KindNER), "model kind (ner, embedders)")
	f.String("variant", "", "ONNX variant (fp16, q4, q4f16, quantized; empty for full precision)")
	f.String("models-dir", models.DefaultRoot(), "root directory for downloaded models")
	f.String("hf-token", "", "HuggingFace token for gated models (or TOPICMAP_HF_TOKEN)")

	mustBindPFlag("models.dir", f.Lookup("models-dir"))
	mustBindPFlag("hf_token", f.Lookup("hf-token"))

	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ref, err := models.ParseRef(args[0])
	if err != nil {
		return err
	}
	kind, err := parseKind(cmd.Flag("kind").Value.String())
	if err != nil {
		return err
	}

	puller := models.NewPuller(viper.GetString("models.dir"),
		models.WithToken(viper.GetString("hf_token")),
		models.WithLogger(logger))
	dir, err := puller.Pull(ctx, ref, kind, cmd.Flag("variant").Value.String())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), dir)
	return nil
}

func parseKind(s string) (models.Kind, error) {
	switch models.Kind(s) {
	case models.KindNER, models.KindEmbedding:
		return models.Kind(s), nil
	}
	return "", fmt.Errorf("unknown model kind %q (want %s or %s)", s, models.KindNER, models.KindEmbedding)
}
