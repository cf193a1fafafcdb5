package logging

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/codetoname/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSecretField(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	logger.Info(context.Background(), "credentials", Secret("password", config.Secret("hunter22")))

	logs := observed.All()
	require.Len(t, logs, 1)
	obj, ok := logs[0].ContextMap()["password"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "[REDACTED:8]", obj["password"])
}

func TestRedactedString(t *testing.T) {
	field := RedactedString("token", "ghp_1234567890abcdef")
	assert.Equal(t, "[REDACTED:20]", field.String)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://redacted@github.com/a/b.git", RedactURL("https://user:pw@github.com/a/b.git"))
	assert.Equal(t, "https://github.com/a/b.git", RedactURL("https://github.com/a/b.git"))
}

func TestRedactingEncoder_EncodeEntry(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "clone"}, []zapcore.Field{
		zap.String("github.password", "hunter2"),
		zap.String("url", "https://octocat:pw@github.com/a/b.git"),
		zap.String("note", "token ghp_abcdefghijklmnopqrstuvwxyz"),
		zap.String("lang", "python"),
	})
	require.NoError(t, err)
	out := buf.String()

	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "octocat:pw")
	assert.NotContains(t, out, "ghp_abcdefghijklmnopqrstuvwxyz")
	assert.Contains(t, out, `"lang":"python"`)
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	child := enc.Clone()
	child.AddString("token", "abc")
	child.AddString("branch", "main")

	buf, err := child.EncodeEntry(zapcore.Entry{Message: "m"}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"token":"[REDACTED]"`)
	assert.Contains(t, buf.String(), `"branch":"main"`)
}

func TestNewRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{})
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, []zapcore.Field{zap.String("password", "visible")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "visible")
}

func TestNewRedactingEncoder_InvalidPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{
		Enabled:  true,
		Patterns: []string{"[unclosed"},
	})
	assert.Error(t, err)
}
