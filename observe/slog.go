package observe

import (
	"context"
	"log/slog"
)

// SlogObserver writes events through a slog.Logger.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver returns an observer backed by l, or slog.Default when nil.
func NewSlogObserver(l *slog.Logger) *SlogObserver {
	if l == nil {
		l = slog.Default()
	}
	return &SlogObserver{logger: l}
}

func (o *SlogObserver) Record(ctx context.Context, e Event) {
	if !o.logger.Enabled(ctx, e.Level) {
		return
	}
	args := make([]any, 0, len(e.Args)+2)
	args = append(args, "stage", string(e.Stage))
	args = append(args, e.Args...)
	o.logger.Log(ctx, e.Level, e.Msg, args...)
}
