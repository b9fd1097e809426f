package calllog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Log messages. Entry and success exits are logged at Info, failures at Error.
const (
	MsgEntry   = "incoming request"
	MsgSuccess = "outgoing response"
	MsgFailure = "request failed"
)

// TimestampLayout renders record timestamps: sortable, with a zone offset.
const TimestampLayout = time.RFC3339Nano

// ErrGoexit is reported when a handler ends its goroutine with runtime.Goexit
// instead of returning.
var ErrGoexit = errors.New("goroutine exited")

// EntryRecord describes a call as it starts.
type EntryRecord struct {
	Descriptor Descriptor
	Time       time.Time
	Args       []string
}

// ExitRecord describes how a call finished. Exactly one of Result, Err or
// Panic is meaningful: Err and Panic mark a failure.
type ExitRecord struct {
	Descriptor Descriptor
	Time       time.Time
	Duration   time.Duration

	Result string
	Err    error
	Panic  any
	Stack  []byte

	// Events counts stream events; zero for unary calls.
	Events int
}

// Failed reports whether r is the failure variant.
func (r *ExitRecord) Failed() bool {
	return r.Err != nil || r.Panic != nil
}

func (r *EntryRecord) attrs(loc *time.Location) []slog.Attr {
	return []slog.Attr{
		slog.String("method", r.Descriptor.String()),
		slog.String("timestamp", r.Time.In(loc).Format(TimestampLayout)),
		slog.String("args", FormatArgs(r.Args)),
		slog.Int("arg_count", len(r.Args)),
	}
}

func (r *ExitRecord) attrs(loc *time.Location, stream bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("method", r.Descriptor.String()),
		slog.String("timestamp", r.Time.In(loc).Format(TimestampLayout)),
		slog.Duration("duration", r.Duration),
		slog.Int64("duration_ms", r.Duration.Milliseconds()),
	}
	if stream {
		attrs = append(attrs, slog.Int("events", r.Events))
	}
	switch {
	case r.Panic != nil:
		attrs = append(attrs,
			slog.String("error", Stringify(r.Panic)),
			slog.String("error_type", "panic"),
		)
		if len(r.Stack) > 0 {
			attrs = append(attrs, slog.String("stack", string(r.Stack)))
		}
	case r.Err != nil:
		attrs = append(attrs,
			slog.String("error", Stringify(r.Err)),
			slog.String("error_type", fmt.Sprintf("%T", r.Err)),
			slog.Bool("canceled", errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded)),
		)
	default:
		attrs = append(attrs, slog.String("response", r.Result))
	}
	return attrs
}

// elapsed returns end-start, clamped at zero for clocks that step backwards.
func elapsed(start, end time.Time) time.Duration {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
