package observe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/use-agent/pagescrape/models"
)

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the events at level or above that belong to stage.
// An empty stage matches all stages.
func (r *Recorder) Filter(level slog.Level, stage Stage) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Level < level {
			continue
		}
		if stage != "" && e.Stage != stage {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Warnings is Filter(slog.LevelWarn, "").
func (r *Recorder) Warnings() []Event {
	return r.Filter(slog.LevelWarn, "")
}

// Trace converts the events into their wire form.
func (r *Recorder) Trace() []models.TraceEntry {
	events := r.Events()
	out := make([]models.TraceEntry, 0, len(events))
	for _, e := range events {
		out = append(out, models.TraceEntry{
			Time:    e.Time,
			Level:   e.Level.String(),
			Stage:   string(e.Stage),
			Message: e.Msg,
			Attrs:   attrMap(e.Args),
		})
	}
	return out
}

// Attr returns the value recorded under key, if any.
func (e Event) Attr(key string) (any, bool) {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1], true
		}
	}
	return nil, false
}

func attrMap(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	m := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			m["!BADKEY"] = key
			break
		}
		switch v := args[i+1].(type) {
		case error:
			m[key] = v.Error()
		case fmt.Stringer:
			m[key] = v.String()
		default:
			m[key] = v
		}
	}
	return m
}
