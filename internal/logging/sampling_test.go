package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/codetoname/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampledLogger(levels map[zapcore.Level]LevelSamplingConfig) (*zap.Logger, *observer.ObservedLogs) {
	core, observed := observer.New(TraceLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels:  levels,
	})
	return zap.New(sampled), observed
}

func TestSampledCore_LimitsInfo(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSamplingConfig{
		zapcore.InfoLevel: {Initial: 2, Thereafter: 0},
	})

	for i := 0; i < 10; i++ {
		logger.Info("repeated")
	}

	assert.Equal(t, 2, observed.FilterMessage("repeated").Len())
}

func TestSampledCore_ErrorsNeverSampled(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSamplingConfig{
		zapcore.InfoLevel: {Initial: 1, Thereafter: 0},
	})

	for i := 0; i < 10; i++ {
		logger.Error("failure")
	}

	assert.Equal(t, 10, observed.FilterMessage("failure").Len())
}

func TestSampledCore_UnconfiguredLevelPassesThrough(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSamplingConfig{})

	for i := 0; i < 5; i++ {
		logger.Warn("warning")
		logger.Log(TraceLevel, "trace")
	}

	assert.Equal(t, 5, observed.FilterMessage("warning").Len())
	assert.Equal(t, 5, observed.FilterMessage("trace").Len())
}

func TestSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Same(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}

func TestLevelFilterCore(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	band := &levelFilterCore{Core: core, minLevel: zapcore.InfoLevel, maxLevel: zapcore.InfoLevel}

	assert.False(t, band.Enabled(zapcore.DebugLevel))
	assert.True(t, band.Enabled(zapcore.InfoLevel))
	assert.False(t, band.Enabled(zapcore.WarnLevel))

	logger := zap.New(band.With([]zapcore.Field{zap.String("k", "v")}))
	logger.Debug("no")
	logger.Info("yes")
	logger.Warn("no")

	logs := observed.All()
	if assert.Len(t, logs, 1) {
		assert.Equal(t, "yes", logs[0].Message)
		assert.Equal(t, "v", logs[0].ContextMap()["k"])
	}
}
