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
	"testing"

	"github.com/antflydb/antfly-go/libaf/logging"
	"github.com/antflydb/topicmap/lib/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func withLogFlags(t *testing.T, level, style string) {
	t.Helper()
	viper.Set("log.level", level)
	viper.Set("log.style", style)
	t.Cleanup(func() {
		viper.Set("log.level", "info")
		viper.Set("log.style", "terminal")
	})
}

func TestLoggingConfig(t *testing.T) {
	withLogFlags(t, "WARN", "logfmt")
	c, err := loggingConfig()
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, c.Level)
	assert.Equal(t, logging.StyleLogfmt, c.Style)

	withLogFlags(t, "info", "yaml")
	_, err = loggingConfig()
	assert.ErrorContains(t, err, "invalid log style")

	withLogFlags(t, "verbose", "json")
	_, err = loggingConfig()
	assert.ErrorContains(t, err, "invalid log level")
}

func TestNewLoggerHonoursFlags(t *testing.T) {
	withLogFlags(t, "warn", "json")
	logger, err := newLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))

	withLogFlags(t, "debug", "logfmt")
	logger, err = newLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	withLogFlags(t, "error", "noop")
	logger, err = newLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestCollaboratorsReady(t *testing.T) {
	embedder := &testutil.Embedder{}
	tagger := &testutil.Tagger{}
	assert.True(t, collaboratorsReady(embedder, tagger)())

	tagger.NotReady = true
	assert.False(t, collaboratorsReady(embedder, tagger)())

	tagger.NotReady = false
	embedder.NotReady = true
	assert.False(t, collaboratorsReady(embedder, tagger)())
}
