package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"slices"

	"github.com/broady/calllog"
	"github.com/broady/calllog/internal/meta"
)

// ErrStreamClosed is returned by Emitter.Send when the client has
// disconnected or stopped reading. Handlers should return when they get it.
var ErrStreamClosed = calllog.ErrStreamClosed

// Emitter delivers the events of a streaming call.
type Emitter[T any] interface {
	// Send delivers one event. Once the client is gone, or the request
	// context is done, it returns an error matching [ErrStreamClosed].
	Send(event T) error
}

type emitter[T any] struct {
	ctx   context.Context
	yield func(any, error) bool
}

func (e *emitter[T]) Send(event T) error {
	if err := e.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamClosed, err)
	}
	if !e.yield(event, nil) {
		return ErrStreamClosed
	}
	return nil
}

// StreamHandlerFunc produces the events of the rest of a stream chain.
type StreamHandlerFunc func(ctx context.Context, req any) iter.Seq2[any, error]

// StreamInterceptor wraps the whole event stream of a streaming call.
//
// The returned sequence is consumed by the framework, so an interceptor sees
// the stream start, every event, and the stream end:
//
//	func count(ctx rpc.Context, req any, handler rpc.StreamHandlerFunc) iter.Seq2[any, error] {
//	    return func(yield func(any, error) bool) {
//	        n := 0
//	        for event, err := range handler(ctx, req) {
//	            n++
//	            if !yield(event, err) {
//	                break
//	            }
//	        }
//	        log.Printf("%s streamed %d events", ctx.EndpointID(), n)
//	    }
//	}
type StreamInterceptor func(ctx Context, req any, handler StreamHandlerFunc) iter.Seq2[any, error]

// wrapStream builds the stream chain around final, outermost interceptor
// first.
func wrapStream(interceptors []StreamInterceptor, final StreamHandlerFunc) StreamHandlerFunc {
	next := final
	for _, si := range slices.Backward(interceptors) {
		inner := next
		next = func(c context.Context, r any) iter.Seq2[any, error] {
			return si(asContext(c), r, inner)
		}
	}
	return next
}

// StreamHandler implements Endpoint for server-sent event responses.
type StreamHandler[Req any, Res any] struct {
	fn                 func(context.Context, Req) iter.Seq2[any, error]
	unaryInterceptors  []UnaryInterceptor
	streamInterceptors []StreamInterceptor
	skipValidation     bool
	maxRequestBodySize *uint64
}

// Stream creates a streaming handler. The handler sends events through the
// [Emitter] and returns when it is done; a non-nil error other than
// [ErrStreamClosed] is sent to the client as a final error event.
//
//	func Count(ctx context.Context, req *CountRequest, e rpc.Emitter[int]) error {
//	    for i := range req.N {
//	        if err := e.Send(i); err != nil {
//	            return err
//	        }
//	    }
//	    return nil
//	}
//
//	clock.Register("Count", rpc.Stream(Count))
func Stream[Req any, Res any](fn func(context.Context, Req, Emitter[Res]) error) *StreamHandler[Req, Res] {
	seq := func(ctx context.Context, req Req) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			err := fn(ctx, req, &emitter[Res]{ctx: ctx, yield: yield})
			if err != nil && !errors.Is(err, ErrStreamClosed) {
				yield(nil, err)
			}
		}
	}
	return &StreamHandler[Req, Res]{fn: seq}
}

// WithUnaryInterceptor adds a setup check. It runs before the first event
// with a no-op handler and can only reject the stream.
func (h *StreamHandler[Req, Res]) WithUnaryInterceptor(i UnaryInterceptor) *StreamHandler[Req, Res] {
	h.unaryInterceptors = append(h.unaryInterceptors, i)
	return h
}

// WithStreamInterceptor adds an interceptor around this endpoint's events,
// inside the global and matched ones.
func (h *StreamHandler[Req, Res]) WithStreamInterceptor(i StreamInterceptor) *StreamHandler[Req, Res] {
	h.streamInterceptors = append(h.streamInterceptors, i)
	return h
}

// WithSkipValidation turns off validator tags for this endpoint.
func (h *StreamHandler[Req, Res]) WithSkipValidation() *StreamHandler[Req, Res] {
	h.skipValidation = true
	return h
}

// WithMaxRequestBodySize overrides the app's maximum request body size.
func (h *StreamHandler[Req, Res]) WithMaxRequestBodySize(size uint64) *StreamHandler[Req, Res] {
	h.maxRequestBodySize = &size
	return h
}

// Metadata implements [Endpoint].
func (h *StreamHandler[Req, Res]) Metadata() *meta.MethodMetadata {
	return newMetadata[Req, Res]("stream")
}

func (h *StreamHandler[Req, Res]) primitive() string { return "stream" }

func (h *StreamHandler[Req, Res]) serveHTTP(ctx *rpcContext) {
	req, err := decodeRequest[Req](ctx, "stream", h.maxRequestBodySize, h.skipValidation)
	if err != nil {
		handleError(ctx, err)
		return
	}

	var reqAny any = req
	if isEmpty[Req]() {
		reqAny = nil
	}

	if err := h.setup(ctx, reqAny); err != nil {
		handleError(ctx, err)
		return
	}

	flusher, ok := ctx.writer.(http.Flusher)
	if !ok {
		handleError(ctx, Errorf(CodeInternal, "%T cannot flush events", ctx.writer))
		return
	}

	hdr := ctx.writer.Header()
	for k, v := range sseHeaders {
		hdr.Set(k, v)
	}
	ctx.writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event, err := range h.events(ctx, reqAny) {
		if err != nil {
			h.writeError(ctx, err)
			flusher.Flush()
			return
		}
		if err := writeEvent(ctx.writer, response{Result: event}); err != nil {
			ctx.log().Debug("client disconnected during write",
				"endpoint", ctx.EndpointID(),
				"error", err)
			return
		}
		flusher.Flush()
	}
}

// setup runs the unary interceptors with a no-op handler. They can only
// accept or reject the stream.
func (h *StreamHandler[Req, Res]) setup(ctx *rpcContext, req any) error {
	all := make([]UnaryInterceptor, 0, len(ctx.interceptors)+len(h.unaryInterceptors))
	all = append(all, ctx.interceptors...)
	all = append(all, h.unaryInterceptors...)
	if len(all) == 0 {
		return nil
	}
	_, err := wrapUnary(all, func(context.Context, any) (any, error) {
		return nil, nil
	})(ctx, req)
	return err
}

// events returns the handler's sequence wrapped by the stream interceptors:
// global, matched, then handler-level.
func (h *StreamHandler[Req, Res]) events(ctx *rpcContext, req any) iter.Seq2[any, error] {
	all := make([]StreamInterceptor, 0, len(ctx.streamInterceptors)+len(h.streamInterceptors))
	all = append(all, ctx.streamInterceptors...)
	all = append(all, h.streamInterceptors...)

	final := func(c context.Context, r any) iter.Seq2[any, error] {
		var typed Req
		if r != nil {
			var ok bool
			if typed, ok = r.(Req); !ok {
				return func(yield func(any, error) bool) {
					yield(nil, Errorf(CodeInternal, "interceptor changed request type to %T", r))
				}
			}
		}
		return h.fn(c, typed)
	}

	return wrapStream(all, final)(ctx, req)
}

func (h *StreamHandler[Req, Res]) writeError(ctx *rpcContext, err error) {
	svcErr := transformError(ctx, err)
	if werr := writeEvent(ctx.writer, errorResponse{Error: svcErr}); werr != nil {
		ctx.log().Error("failed to write stream error",
			"endpoint", ctx.EndpointID(),
			"error", werr)
	}
}

var sseHeaders = map[string]string{
	"Content-Type":      "text/event-stream",
	"Cache-Control":     "no-cache",
	"Connection":        "keep-alive",
	"X-Accel-Buffering": "no",
}

// writeEvent writes one SSE "data:" frame holding the JSON envelope.
func writeEvent(w io.Writer, envelope any) error {
	data, err := codec.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	_, err = w.Write(frame)
	return err
}
