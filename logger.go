package calllog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ErrStreamClosed is reported for a stream whose consumer stopped reading
// before the handler finished.
var ErrStreamClosed = errors.New("stream closed")

// Logger intercepts handler invocations and logs one entry record and one
// exit record for each of them.
//
// A Logger is immutable after New and safe for concurrent use; the sink's
// slog.Handler must be as well.
type Logger struct {
	sink     *slog.Logger
	clock    func() time.Time
	loc      *time.Location
	stringer func(any) string
	limit    int
	stacks   bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock sets the clock used for both the start and end readings.
// The default is time.Now, which carries a monotonic reading.
func WithClock(clock func() time.Time) Option {
	return func(l *Logger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLocation sets the time zone timestamps are rendered in. Default time.Local.
func WithLocation(loc *time.Location) Option {
	return func(l *Logger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithStringer replaces [Stringify] for argument and result snapshots.
// Use it to redact sensitive payloads.
func WithStringer(fn func(any) string) Option {
	return func(l *Logger) {
		if fn != nil {
			l.stringer = fn
		}
	}
}

// WithSnapshotLimit truncates every argument and result snapshot to n bytes.
// Zero, the default, keeps snapshots whole.
func WithSnapshotLimit(n int) Option {
	return func(l *Logger) {
		l.limit = n
	}
}

// WithStackTraces controls whether panics are logged with a goroutine stack.
// Enabled by default.
func WithStackTraces(enabled bool) Option {
	return func(l *Logger) {
		l.stacks = enabled
	}
}

// New creates a Logger that emits records to sink.
// If sink is nil, slog.Default() is used.
func New(sink *slog.Logger, opts ...Option) *Logger {
	if sink == nil {
		sink = slog.Default()
	}
	l := &Logger{
		sink:     sink,
		clock:    time.Now,
		loc:      time.Local,
		stringer: Stringify,
		stacks:   true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Intercept runs inv.Proceed and logs the call around it.
//
// The entry record is emitted before Proceed starts. When Proceed returns,
// exactly one exit record is emitted: the success variant with the result
// snapshot, or the failure variant with the error. The result and error are
// returned unchanged. If Proceed panics, the failure is logged and the panic
// is re-raised with the same value.
func (l *Logger) Intercept(ctx context.Context, inv Invocation) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := l.clock()
	l.logEntry(ctx, inv.Descriptor, start, inv.Args)

	completed := false
	defer func() {
		if completed {
			return
		}
		exit := l.exitRecord(inv.Descriptor, start)
		r := recover()
		if r == nil {
			exit.Err = ErrGoexit
			l.logExit(ctx, &exit, false)
			return
		}
		exit.Panic = r
		if l.stacks {
			exit.Stack = debug.Stack()
		}
		l.logExit(ctx, &exit, false)
		panic(r)
	}()

	res, err := inv.Proceed(ctx)
	completed = true

	exit := l.exitRecord(inv.Descriptor, start)
	exit.Err = err
	l.logResult(ctx, &exit, res)
	return res, err
}

// InterceptStream wraps a streaming invocation. Events pass through
// unchanged; the exit record is emitted once the stream has fully finished.
//
// The entry record is emitted when iteration starts. The stream failed if the
// handler yielded an error, if the consumer stopped early ([ErrStreamClosed]),
// or if ctx ended before the handler did; otherwise the result snapshot is the
// number of events delivered.
func (l *Logger) InterceptStream(ctx context.Context, inv StreamInvocation) iter.Seq2[any, error] {
	if ctx == nil {
		ctx = context.Background()
	}
	return func(yield func(any, error) bool) {
		start := l.clock()
		l.logEntry(ctx, inv.Descriptor, start, inv.Args)

		var (
			events    int
			failure   error
			stopped   bool
			completed bool
		)
		defer func() {
			exit := l.exitRecord(inv.Descriptor, start)
			exit.Events = events
			if !completed {
				r := recover()
				if r == nil {
					exit.Err = ErrGoexit
					l.logExit(ctx, &exit, true)
					return
				}
				exit.Panic = r
				if l.stacks {
					exit.Stack = debug.Stack()
				}
				l.logExit(ctx, &exit, true)
				panic(r)
			}
			switch {
			case failure != nil:
				exit.Err = failure
			case stopped:
				exit.Err = ErrStreamClosed
			case ctx.Err() != nil:
				exit.Err = ctx.Err()
			default:
				exit.Result = fmt.Sprintf("%d events", events)
			}
			l.logExit(ctx, &exit, true)
		}()

		for v, err := range inv.Proceed(ctx) {
			if err != nil {
				if failure == nil {
					failure = err
				}
			} else {
				events++
			}
			if !yield(v, err) {
				stopped = true
				break
			}
		}
		completed = true
	}
}

func (l *Logger) exitRecord(desc Descriptor, start time.Time) ExitRecord {
	end := l.clock()
	return ExitRecord{
		Descriptor: desc,
		Time:       end,
		Duration:   elapsed(start, end),
	}
}

func (l *Logger) logEntry(ctx context.Context, desc Descriptor, start time.Time, args []any) {
	if !l.sink.Enabled(ctx, slog.LevelInfo) {
		return
	}
	l.emit(ctx, slog.LevelInfo, MsgEntry, func() []slog.Attr {
		entry := EntryRecord{
			Descriptor: desc,
			Time:       start,
			Args:       StringifyArgs(args, l.snapshot),
		}
		return entry.attrs(l.loc)
	})
}

// logResult logs a unary exit record, taking the result snapshot only when
// the record will actually be written.
func (l *Logger) logResult(ctx context.Context, exit *ExitRecord, res any) {
	if exit.Failed() {
		l.logExit(ctx, exit, false)
		return
	}
	if !l.sink.Enabled(ctx, slog.LevelInfo) {
		return
	}
	l.emit(ctx, slog.LevelInfo, MsgSuccess, func() []slog.Attr {
		exit.Result = l.snapshot(res)
		return exit.attrs(l.loc, false)
	})
}

func (l *Logger) logExit(ctx context.Context, exit *ExitRecord, stream bool) {
	level, msg := slog.LevelInfo, MsgSuccess
	if exit.Failed() {
		level, msg = slog.LevelError, MsgFailure
	}
	l.emit(ctx, level, msg, func() []slog.Attr {
		return exit.attrs(l.loc, stream)
	})
}

// emit builds a record and hands it to the sink. A record whose snapshots or
// sink panic is dropped; it must never replace the handler's own outcome.
func (l *Logger) emit(ctx context.Context, level slog.Level, msg string, build func() []slog.Attr) {
	defer func() {
		_ = recover()
	}()
	attrs := build()
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	l.sink.LogAttrs(ctx, level, msg, attrs...)
}

func (l *Logger) snapshot(v any) string {
	return truncate(l.stringer(v), l.limit)
}
