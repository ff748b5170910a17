package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopedLiftsDebugWhenVerbose(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()

	Debug(ctx, Scoped(rec, false), StageNavigation, "quiet")
	Debug(ctx, Scoped(rec, true, "session", "s1"), StageNavigation, "loud", "url", "http://x")

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, slog.LevelDebug, events[0].Level)
	assert.Equal(t, slog.LevelInfo, events[1].Level)

	v, ok := events[1].Attr("session")
	require.True(t, ok)
	assert.Equal(t, "s1", v)
	v, ok = events[1].Attr("url")
	require.True(t, ok)
	assert.Equal(t, "http://x", v)
}

func TestSlogObserverRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := NewSlogObserver(logger)
	ctx := context.Background()

	Debug(ctx, obs, StageExtraction, "hidden")
	Warn(ctx, obs, StageExtraction, "field degraded", "field", "title")
	Debug(ctx, Scoped(obs, true), StageCapture, "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "field degraded")
	assert.Contains(t, out, "stage=extraction")
	assert.Contains(t, out, "field=title")
	assert.Contains(t, out, "shown")
}

func TestRecorderFilterAndTrace(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()
	obs := Multi(Nop{}, rec)

	Info(ctx, obs, StageNavigation, "loaded")
	Warn(ctx, obs, StageExtraction, "bad selector", "error", errors.New("boom"))
	Error(ctx, obs, StageCapture, "screenshot failed")

	assert.Len(t, rec.Warnings(), 2)
	assert.Len(t, rec.Filter(slog.LevelWarn, StageExtraction), 1)

	trace := rec.Trace()
	require.Len(t, trace, 3)
	assert.Equal(t, "WARN", trace[1].Level)
	assert.Equal(t, "extraction", trace[1].Stage)
	assert.Equal(t, "boom", trace[1].Attrs["error"])
	assert.Nil(t, trace[0].Attrs)
}

func TestRecorderConcurrent(t *testing.T) {
	rec := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Info(context.Background(), rec, StageSession, strings.Repeat("x", 3))
		}()
	}
	wg.Wait()
	assert.Len(t, rec.Events(), 20)
}
