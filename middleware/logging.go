// Package middleware adapts the calllog interceptor and Prometheus metrics
// to rpc interceptors.
package middleware

import (
	"context"
	"iter"

	"github.com/broady/calllog"
	"github.com/broady/calllog/rpc"
)

// LoggingInterceptor creates an interceptor that logs every call with l:
// an entry record before the handler runs and one exit record after it.
// The request is the single logged argument; a nil request (an rpc.Empty
// handler) logs no arguments.
func LoggingInterceptor(l *calllog.Logger) rpc.UnaryInterceptor {
	if l == nil {
		l = calllog.New(nil)
	}
	return func(ctx rpc.Context, req any, handler rpc.HandlerFunc) (any, error) {
		return l.Intercept(ctx, calllog.Invocation{
			Descriptor: descriptor(ctx),
			Args:       args(req),
			Proceed: func(c context.Context) (any, error) {
				return handler(c, req)
			},
		})
	}
}

// StreamLoggingInterceptor creates a stream interceptor that logs the whole
// stream as one call. The exit record is written when the stream ends.
func StreamLoggingInterceptor(l *calllog.Logger) rpc.StreamInterceptor {
	if l == nil {
		l = calllog.New(nil)
	}
	return func(ctx rpc.Context, req any, handler rpc.StreamHandlerFunc) iter.Seq2[any, error] {
		return l.InterceptStream(ctx, calllog.StreamInvocation{
			Descriptor: descriptor(ctx),
			Args:       args(req),
			Proceed: func(c context.Context) iter.Seq2[any, error] {
				return handler(c, req)
			},
		})
	}
}

func descriptor(ctx rpc.Context) calllog.Descriptor {
	return calllog.Descriptor{Service: ctx.Service(), Method: ctx.Method()}
}

func args(req any) []any {
	if req == nil {
		return nil
	}
	return []any{req}
}
