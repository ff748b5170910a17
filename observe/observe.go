// Package observe carries diagnostics out of the scrape pipeline. The
// pipeline reports every event unconditionally; observers decide what is
// worth emitting.
package observe

import (
	"context"
	"log/slog"
	"time"
)

// Stage names the pipeline stage an event belongs to.
type Stage string

const (
	StageSession     Stage = "session"
	StageNavigation  Stage = "navigation"
	StageInteraction Stage = "interaction"
	StageExtraction  Stage = "extraction"
	StageCapture     Stage = "capture"
	StageResult      Stage = "result"
)

// Event is one diagnostic record. Args are slog-style key/value pairs.
type Event struct {
	Time  time.Time
	Level slog.Level
	Stage Stage
	Msg   string
	Args  []any
}

// Observer receives pipeline events. Implementations must be safe for
// concurrent use.
type Observer interface {
	Record(ctx context.Context, e Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

func emit(ctx context.Context, o Observer, level slog.Level, stage Stage, msg string, args []any) {
	o.Record(ctx, Event{Time: time.Now(), Level: level, Stage: stage, Msg: msg, Args: args})
}

func Debug(ctx context.Context, o Observer, stage Stage, msg string, args ...any) {
	emit(ctx, o, slog.LevelDebug, stage, msg, args)
}

func Info(ctx context.Context, o Observer, stage Stage, msg string, args ...any) {
	emit(ctx, o, slog.LevelInfo, stage, msg, args)
}

func Warn(ctx context.Context, o Observer, stage Stage, msg string, args ...any) {
	emit(ctx, o, slog.LevelWarn, stage, msg, args)
}

func Error(ctx context.Context, o Observer, stage Stage, msg string, args ...any) {
	emit(ctx, o, slog.LevelError, stage, msg, args)
}

// scoped decorates every event with fixed args and, when verbose, lifts
// debug events to info so they survive an info-level logger.
type scoped struct {
	next    Observer
	verbose bool
	args    []any
}

// Scoped returns an observer for one scrape.
func Scoped(next Observer, verbose bool, args ...any) Observer {
	return &scoped{next: next, verbose: verbose, args: args}
}

func (s *scoped) Record(ctx context.Context, e Event) {
	if s.verbose && e.Level < slog.LevelInfo {
		e.Level = slog.LevelInfo
	}
	if len(s.args) > 0 {
		e.Args = append(append(make([]any, 0, len(s.args)+len(e.Args)), s.args...), e.Args...)
	}
	s.next.Record(ctx, e)
}

type multi []Observer

// Multi fans every event out to all observers in order.
func Multi(obs ...Observer) Observer {
	return multi(obs)
}

func (m multi) Record(ctx context.Context, e Event) {
	for _, o := range m {
		o.Record(ctx, e)
	}
}
