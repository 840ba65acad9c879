// Copyright 2026 The go-benor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDebugToggle(t *testing.T) {
	defer CloseDebug()

	assert.False(t, config.Level.Enabled(zap.DebugLevel))
	OpenDebug()
	assert.True(t, config.Level.Enabled(zap.DebugLevel))
	Debugw("debug opened", "node", 0)
	CloseDebug()
	assert.False(t, config.Level.Enabled(zap.DebugLevel))
}

func TestNamedLogger(t *testing.T) {
	l := Named("engine", "node", 3)
	assert.NotNil(t, l)
	l.Infow("iteration started", "k", 1)

	// level changes on the root config reach child loggers
	OpenDebug()
	defer CloseDebug()
	assert.True(t, l.Desugar().Core().Enabled(zap.DebugLevel))
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Errorw("swallowed", "ctx", "test")
	assert.False(t, l.Desugar().Core().Enabled(zap.ErrorLevel))
}
