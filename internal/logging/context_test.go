package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func fieldMap(fields []zap.Field) map[string]zap.Field {
	m := make(map[string]zap.Field, len(fields))
	for _, f := range fields {
		m[f.Key] = f
	}
	return m
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_OTELTracing(t *testing.T) {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(tracetest.NewInMemoryExporter()),
	)
	ctx, span := provider.Tracer("test").Start(context.Background(), "crawl.step")
	defer span.End()

	fields := fieldMap(ContextFields(ctx))
	assert.NotEmpty(t, fields["trace_id"].String)
	assert.NotEmpty(t, fields["span_id"].String)
	_, sampled := fields["trace_sampled"]
	assert.True(t, sampled)
}

func TestWithRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), "3f1c-run_1")
	assert.Equal(t, "3f1c-run_1", RunIDFromContext(ctx))
	assert.Equal(t, "", RunIDFromContext(context.Background()))
}

func TestWithRunID_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { WithRunID(context.Background(), "") })
	assert.Panics(t, func() { WithRunID(context.Background(), "bad id!") })
}

func TestWithRepository(t *testing.T) {
	ctx := WithRepository(context.Background(), 99, "https://github.com/a/b.git")
	repo := RepositoryFromContext(ctx)
	if assert.NotNil(t, repo) {
		assert.Equal(t, int64(99), repo.ID)
		assert.Equal(t, "https://github.com/a/b.git", repo.URL)
	}
	assert.Nil(t, RepositoryFromContext(context.Background()))
}

func TestWithLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
