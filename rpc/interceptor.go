package rpc

import (
	"context"
	"slices"
)

// HandlerFunc runs the rest of a unary chain: the remaining interceptors and
// then the endpoint function.
type HandlerFunc func(ctx context.Context, req any) (res any, err error)

// UnaryInterceptor wraps a query or exec call.
//
//	func timing(ctx rpc.Context, req any, handler rpc.HandlerFunc) (any, error) {
//	    start := time.Now()
//	    res, err := handler(ctx, req)
//	    log.Printf("%s took %v", ctx.EndpointID(), time.Since(start))
//	    return res, err
//	}
//
// req is the decoded request, or nil for an [Empty] one. An interceptor may
// replace req with a value of the same type, return its own result, or
// reject the call with an error without calling handler.
type UnaryInterceptor func(ctx Context, req any, handler HandlerFunc) (res any, err error)

// wrapUnary builds the unary chain around final, outermost interceptor first.
func wrapUnary(interceptors []UnaryInterceptor, final HandlerFunc) HandlerFunc {
	next := final
	for _, ui := range slices.Backward(interceptors) {
		inner := next
		next = func(c context.Context, r any) (any, error) {
			return ui(asContext(c), r, inner)
		}
	}
	return next
}

// asContext recovers the RPC Context from a context an interceptor may have
// wrapped, keeping the wrapper's values and deadline.
func asContext(ctx context.Context) Context {
	if c, ok := ctx.(Context); ok {
		return c
	}
	if rc, ok := ctx.Value(contextKey{}).(*rpcContext); ok {
		return rc.withParent(ctx)
	}
	return NewContext(ctx, "", "")
}
