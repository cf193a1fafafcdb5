package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTestLogger_Assertions(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "repository indexed", zap.Int64("github_id", 12), zap.Int("features", 3))
	tl.Debug(ctx, "skipping file", zap.String("path", "broken.py"))
	tl.Debug(ctx, "skipping file", zap.String("path", "other.py"))

	tl.AssertLogged(t, zapcore.InfoLevel, "indexed")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "indexed")
	tl.AssertField(t, "repository indexed", "features", int64(3))
	tl.AssertNoSecrets(t)
	assert.Equal(t, 2, tl.Count(zapcore.DebugLevel, "skipping"))

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestTestLogger_AssertNoSecrets_Detects(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "clone", zap.String("url", "https://user:pw@github.com/a/b.git"))

	rec := &recordingTB{}
	tl.AssertNoSecrets(rec)
	assert.True(t, rec.failed)
}

type recordingTB struct {
	testing.TB
	failed bool
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(string, ...interface{}) { r.failed = true }
