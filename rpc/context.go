// Package rpc is a small HTTP RPC framework: an App of named services whose
// typed handlers are decorated with interceptors when they are registered.
//
// The framework is the "surrounding framework" for calllog: it decides which
// handlers are intercepted (see [Within] and [App.Intercept]) and hands each
// matched call to the interceptor chain.
package rpc

import (
	"context"
	"log/slog"
	"net/http"
)

// Context carries metadata about the current call.
// It embeds context.Context, so it can be passed anywhere a context is expected.
type Context interface {
	context.Context

	// Service returns the service name, e.g. "Math".
	Service() string

	// Method returns the method name, e.g. "Add".
	Method() string

	// EndpointID returns "Service.Method".
	EndpointID() string

	// HTTPRequest returns the underlying request, or nil outside HTTP.
	HTTPRequest() *http.Request

	// HTTPWriter returns the response writer, or nil outside HTTP.
	HTTPWriter() http.ResponseWriter
}

type contextKey struct{}

// rpcContext is the concrete Context. It also carries per-request
// configuration copied from the App.
type rpcContext struct {
	context.Context
	service string
	method  string
	request *http.Request
	writer  http.ResponseWriter

	errorTransformer   ErrorTransformer
	maskInternalErrors bool
	interceptors       []UnaryInterceptor
	streamInterceptors []StreamInterceptor
	logger             *slog.Logger
	maxRequestBodySize uint64
}

func newContext(parent context.Context, w http.ResponseWriter, r *http.Request, service, method string) *rpcContext {
	return &rpcContext{
		Context: parent,
		service: service,
		method:  method,
		request: r,
		writer:  w,
	}
}

// NewContext creates a Context outside an HTTP request, for tests and for
// calling interceptors directly.
func NewContext(parent context.Context, service, method string) Context {
	return newContext(parent, nil, nil, service, method)
}

// FromContext extracts the Context from ctx, following context wrapping.
func FromContext(ctx context.Context) (Context, bool) {
	if c, ok := ctx.(Context); ok {
		return c, true
	}
	c, ok := ctx.Value(contextKey{}).(*rpcContext)
	return c, ok
}

func (c *rpcContext) Value(key any) any {
	if key == (contextKey{}) {
		return c
	}
	return c.Context.Value(key)
}

func (c *rpcContext) Service() string                 { return c.service }
func (c *rpcContext) Method() string                  { return c.method }
func (c *rpcContext) EndpointID() string              { return c.service + "." + c.method }
func (c *rpcContext) HTTPRequest() *http.Request      { return c.request }
func (c *rpcContext) HTTPWriter() http.ResponseWriter { return c.writer }

func (c *rpcContext) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// withParent returns a copy of c whose values and cancellation come from
// parent. Interceptors that wrap the context use this to keep RPC metadata.
func (c *rpcContext) withParent(parent context.Context) *rpcContext {
	next := *c
	next.Context = parent
	return &next
}

// SetHeader sets an HTTP response header. It is a no-op outside HTTP.
func SetHeader(ctx context.Context, key, value string) {
	c, ok := FromContext(ctx)
	if !ok || c.HTTPWriter() == nil {
		return
	}
	c.HTTPWriter().Header().Set(key, value)
}
