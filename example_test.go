package calllog_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/broady/calllog"
)

func Example() {
	// Drop time and timestamps so the output is stable.
	sink := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey, "timestamp", "duration", "duration_ms":
				return slog.Attr{}
			}
			return a
		},
	}))
	l := calllog.New(sink)

	add := calllog.Wrap2(l, calllog.Descriptor{Service: "Math", Method: "Add"},
		func(ctx context.Context, a, b int) (int, error) {
			return a + b, nil
		})
	divide := calllog.Wrap2(l, calllog.Descriptor{Service: "Math", Method: "Divide"},
		func(ctx context.Context, a, b int) (int, error) {
			if b == 0 {
				return 0, errors.New("divide by zero")
			}
			return a / b, nil
		})

	sum, _ := add(context.Background(), 2, 3)
	fmt.Println("sum:", sum)

	_, err := divide(context.Background(), 1, 0)
	fmt.Println("err:", err)

	// Output:
	// level=INFO msg="incoming request" method=Math.Add args="[2, 3]" arg_count=2
	// level=INFO msg="outgoing response" method=Math.Add response=5
	// sum: 5
	// level=INFO msg="incoming request" method=Math.Divide args="[1, 0]" arg_count=2
	// level=ERROR msg="request failed" method=Math.Divide error="divide by zero" error_type=*errors.errorString canceled=false
	// err: divide by zero
}

func ExampleWithClock() {
	readings := []time.Time{
		time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 9, 0, 0, 250_000_000, time.UTC),
	}
	clock := func() time.Time {
		t := readings[0]
		readings = readings[1:]
		return t
	}

	sink := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	l := calllog.New(sink, calllog.WithClock(clock), calllog.WithLocation(time.UTC))

	_, _ = l.Intercept(context.Background(), calllog.Invocation{
		Descriptor: calllog.Descriptor{Service: "Status", Method: "Ping"},
		Proceed:    func(ctx context.Context) (any, error) { return nil, nil },
	})

	// Output:
	// level=INFO msg="incoming request" method=Status.Ping timestamp=2024-03-01T09:00:00Z args=[] arg_count=0
	// level=INFO msg="outgoing response" method=Status.Ping timestamp=2024-03-01T09:00:00.25Z duration=250ms duration_ms=250 response=<nil>
}
