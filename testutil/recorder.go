package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Record is a log record captured by a [Recorder].
type Record struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// String returns the attribute under key formatted with %v, or "" if absent.
func (r Record) String(key string) string {
	v, ok := r.Attrs[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Has reports whether the record carries an attribute under key.
func (r Record) Has(key string) bool {
	_, ok := r.Attrs[key]
	return ok
}

// Recorder is a slog.Handler that keeps every record in memory.
// It is safe for concurrent use. Handlers derived with WithAttrs or WithGroup
// share the parent's storage.
type Recorder struct {
	state  *recorderState
	attrs  []slog.Attr
	prefix string
	level  slog.Leveler
}

type recorderState struct {
	mu      sync.Mutex
	records []Record
}

// NewRecorder creates a Recorder that captures records at Info and above.
func NewRecorder() *Recorder {
	return NewRecorderLevel(slog.LevelInfo)
}

// NewRecorderLevel creates a Recorder that captures records at level and above.
func NewRecorderLevel(level slog.Leveler) *Recorder {
	return &Recorder{state: &recorderState{}, level: level}
}

// Logger returns a *slog.Logger writing to r.
func (r *Recorder) Logger() *slog.Logger {
	return slog.New(r)
}

func (r *Recorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.level.Level()
}

func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs()+len(r.attrs))
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[r.prefix+a.Key] = a.Value.Resolve().Any()
		return true
	})

	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.records = append(r.state.records, Record{
		Time:    rec.Time,
		Level:   rec.Level,
		Message: rec.Message,
		Attrs:   attrs,
	})
	return nil
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *r
	next.attrs = append([]slog.Attr(nil), r.attrs...)
	for _, a := range attrs {
		a.Key = r.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (r *Recorder) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	next := *r
	next.prefix = r.prefix + name + "."
	return &next
}

// Records returns a copy of everything captured so far.
func (r *Recorder) Records() []Record {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return append([]Record(nil), r.state.records...)
}

// Messages returns the message of every captured record, in order.
func (r *Recorder) Messages() []string {
	recs := r.Records()
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.Message
	}
	return out
}

// Reset discards captured records.
func (r *Recorder) Reset() {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.records = nil
}
