package calllog_test

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broady/calllog"
	"github.com/broady/calllog/testutil"
)

var tickDesc = calllog.Descriptor{Service: "Clock", Method: "Ticks"}

func ticks(n int, failAt int, failure error) func(context.Context) iter.Seq2[any, error] {
	return func(ctx context.Context) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for i := range n {
				if i == failAt {
					yield(nil, failure)
					return
				}
				if !yield(i, nil) {
					return
				}
			}
		}
	}
}

func collect(seq iter.Seq2[any, error]) ([]any, error) {
	var events []any
	for v, err := range seq {
		if err != nil {
			return events, err
		}
		events = append(events, v)
	}
	return events, nil
}

func TestInterceptStream_Success(t *testing.T) {
	rec := testutil.NewRecorder()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l := calllog.New(rec.Logger(), calllog.WithClock(stepClock(start, time.Second)))

	seq := l.InterceptStream(context.Background(), calllog.StreamInvocation{
		Descriptor: tickDesc,
		Args:       []any{3},
		Proceed:    ticks(3, -1, nil),
	})

	// Nothing is logged until the stream is consumed.
	assert.Empty(t, rec.Records())

	events, err := collect(seq)
	require.NoError(t, err)
	assert.Equal(t, []any{0, 1, 2}, events)

	records := rec.Records()
	require.Len(t, records, 2)
	assert.Equal(t, calllog.MsgEntry, records[0].Message)
	assert.Equal(t, "[3]", records[0].String("args"))
	assert.Equal(t, calllog.MsgSuccess, records[1].Message)
	assert.Equal(t, "3 events", records[1].String("response"))
	assert.EqualValues(t, 3, records[1].Attrs["events"])
	assert.Equal(t, time.Second, records[1].Attrs["duration"])
}

func TestInterceptStream_DurationCoversWholeStream(t *testing.T) {
	rec := testutil.NewRecorder()
	l := calllog.New(rec.Logger())

	seq := l.InterceptStream(context.Background(), calllog.StreamInvocation{
		Descriptor: tickDesc,
		Proceed: func(ctx context.Context) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				for i := range 3 {
					time.Sleep(5 * time.Millisecond)
					if !yield(i, nil) {
						return
					}
				}
			}
		},
	})
	_, err := collect(seq)
	require.NoError(t, err)

	d := rec.Records()[1].Attrs["duration"].(time.Duration)
	assert.GreaterOrEqual(t, d, 15*time.Millisecond)
}

func TestInterceptStream_HandlerError(t *testing.T) {
	rec := testutil.NewRecorder()
	l := calllog.New(rec.Logger())
	boom := errors.New("upstream gone")

	events, err := collect(l.InterceptStream(context.Background(), calllog.StreamInvocation{
		Descriptor: tickDesc,
		Proceed:    ticks(5, 2, boom),
	}))

	assert.Same(t, boom, err)
	assert.Equal(t, []any{0, 1}, events)

	records := rec.Records()
	require.Len(t, records, 2)
	assert.Equal(t, calllog.MsgFailure, records[1].Message)
	assert.Equal(t, "upstream gone", records[1].String("error"))
	assert.EqualValues(t, 2, records[1].Attrs["events"])
}

func TestInterceptStream_ConsumerStops(t *testing.T) {
	rec := testutil.NewRecorder()
	l := calllog.New(rec.Logger())

	seq := l.InterceptStream(context.Background(), calllog.StreamInvocation{
		Descriptor: tickDesc,
		Proceed:    ticks(10, -1, nil),
	})
	for v := range seq {
		if v == 1 {
			break
		}
	}

	records := rec.Records()
	require.Len(t, records, 2)
	assert.Equal(t, calllog.MsgFailure, records[1].Message)
	assert.Equal(t, calllog.ErrStreamClosed.Error(), records[1].String("error"))
}

func TestInterceptStream_ContextCanceled(t *testing.T) {
	rec := testutil.NewRecorder()
	l := calllog.New(rec.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	seq := l.InterceptStream(ctx, calllog.StreamInvocation{
		Descriptor: tickDesc,
		Proceed: func(ctx context.Context) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				yield("first", nil)
				cancel()
				// Handler notices cancellation and returns quietly.
			}
		},
	})

	events, err := collect(seq)
	require.NoError(t, err)
	assert.Equal(t, []any{"first"}, events)

	records := rec.Records()
	require.Len(t, records, 2)
	assert.Equal(t, calllog.MsgFailure, records[1].Message)
	assert.Equal(t, true, records[1].Attrs["canceled"])
}

func TestInterceptStream_Panic(t *testing.T) {
	rec := testutil.NewRecorder()
	l := calllog.New(rec.Logger(), calllog.WithStackTraces(false))

	seq := l.InterceptStream(context.Background(), calllog.StreamInvocation{
		Descriptor: tickDesc,
		Proceed: func(ctx context.Context) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				yield(1, nil)
				panic("stream exploded")
			}
		},
	})

	assert.PanicsWithValue(t, "stream exploded", func() {
		for range seq {
		}
	})

	records := rec.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "panic", records[1].String("error_type"))
	assert.EqualValues(t, 1, records[1].Attrs["events"])
}
