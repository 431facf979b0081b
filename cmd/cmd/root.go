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
	"os"
	"path/filepath"
	"strings"

	"github.com/antflydb/antfly-go/libaf/logging"
	"github.com/antflydb/topicmap"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Version is set by main from the build's ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "topicmap",
	Short: "Extract the salient topics of text documents",
	Long: `topicmap finds the named entities of a document, merges duplicates and
ranks them by how close they are to the document's overall meaning.

Configuration is read from $HOME/.topicmap/topicmap.yaml or ./topicmap.yaml,
from TOPICMAP_* environment variables (a .env file is loaded first) and from
flags, later sources taking precedence.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.topicmap/topicmap.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-style", "terminal", "log style (terminal, json, logfmt, noop)")
	mustBindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("log.style", rootCmd.PersistentFlags().Lookup("log-style"))

	setDefaults()
}

func setDefaults() {
	defaults := topicmap.DefaultConfig()
	viper.SetDefault("pipeline.max_tokens", defaults.MaxTokens)
	viper.SetDefault("pipeline.overlap_tokens", defaults.OverlapTokens)
	viper.SetDefault("pipeline.concurrency", defaults.Concurrency)
	viper.SetDefault("pipeline.group_similarity", defaults.GroupSimilarity)
	viper.SetDefault("pipeline.embedding_dim", defaults.EmbeddingDim)
	viper.SetDefault("pipeline.cache_ttl", defaults.CacheTTL)
}

func initConfig() {
	// A missing .env is normal; the environment is used as is.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".topicmap"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("topicmap")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TOPICMAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// pipelineConfig assembles the extractor settings from viper.
func pipelineConfig() topicmap.Config {
	return topicmap.Config{
		MaxTokens:       viper.GetInt("pipeline.max_tokens"),
		OverlapTokens:   viper.GetInt("pipeline.overlap_tokens"),
		Concurrency:     viper.GetInt("pipeline.concurrency"),
		GroupSimilarity: viper.GetFloat64("pipeline.group_similarity"),
		EmbeddingDim:    viper.GetInt("pipeline.embedding_dim"),
		CacheTTL:        viper.GetDuration("pipeline.cache_ttl"),
	}
}

// loggingConfig reads log.level and log.style. NewLogger exits the process on
// an unknown style, so styles are checked here first.
func loggingConfig() (*logging.Config, error) {
	c := &logging.Config{
		Level: logging.Level(strings.ToLower(viper.GetString("log.level"))),
		Style: logging.Style(strings.ToLower(viper.GetString("log.style"))),
	}
	switch c.Style {
	case "", logging.StyleTerminal, logging.StyleJson, logging.StyleLogfmt, logging.StyleNoop:
	default:
		return nil, fmt.Errorf("invalid log style %q: must be one of terminal, json, logfmt, noop", c.Style)
	}
	switch c.Level {
	case "", logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.Level)
	}
	return c, nil
}

func newLogger() (*zap.Logger, error) {
	c, err := loggingConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(c), nil
}
