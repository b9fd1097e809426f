package rpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/broady/calllog/internal/meta"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

var (
	validate      = validator.New()
	schemaDecoder = schema.NewDecoder()
)

func init() {
	schemaDecoder.IgnoreUnknownKeys(true)
}

// Endpoint is the interface for registered handlers.
// It is exported so users can pass it to Register, but sealed so they cannot implement it.
type Endpoint interface {
	Metadata() *meta.MethodMetadata
}

// endpointHandler is the internal interface implemented by all handlers.
type endpointHandler interface {
	Endpoint
	primitive() string
	serveHTTP(ctx *rpcContext)
}

// UnaryHandler implements Endpoint for request/response handlers.
type UnaryHandler[Req any, Res any] struct {
	fn                 func(context.Context, Req) (Res, error)
	kind               string
	interceptors       []UnaryInterceptor
	skipValidation     bool
	maxRequestBodySize *uint64
}

// Exec creates a handler for operations with side effects, served on POST
// with a JSON body.
//
//	func CreateTask(ctx context.Context, req *CreateTaskRequest) (*Task, error)
//
//	tasks.Register("Create", rpc.Exec(CreateTask))
func Exec[Req any, Res any](fn func(context.Context, Req) (Res, error)) *UnaryHandler[Req, Res] {
	return &UnaryHandler[Req, Res]{fn: fn, kind: "exec"}
}

// Query creates a handler for read-only operations, served on GET with the
// request decoded from the query string.
//
//	func Add(ctx context.Context, req *AddRequest) (int, error)
//
//	math.Register("Add", rpc.Query(Add))
func Query[Req any, Res any](fn func(context.Context, Req) (Res, error)) *UnaryHandler[Req, Res] {
	return &UnaryHandler[Req, Res]{fn: fn, kind: "query"}
}

// WithUnaryInterceptor adds an interceptor to this handler.
// Handler interceptors run after global, matched and service interceptors.
func (h *UnaryHandler[Req, Res]) WithUnaryInterceptor(i UnaryInterceptor) *UnaryHandler[Req, Res] {
	h.interceptors = append(h.interceptors, i)
	return h
}

// WithSkipValidation disables request validation for this handler.
func (h *UnaryHandler[Req, Res]) WithSkipValidation() *UnaryHandler[Req, Res] {
	h.skipValidation = true
	return h
}

// WithMaxRequestBodySize overrides the app's maximum request body size.
func (h *UnaryHandler[Req, Res]) WithMaxRequestBodySize(size uint64) *UnaryHandler[Req, Res] {
	h.maxRequestBodySize = &size
	return h
}

// Metadata implements [Endpoint].
func (h *UnaryHandler[Req, Res]) Metadata() *meta.MethodMetadata {
	return newMetadata[Req, Res](h.kind)
}

func (h *UnaryHandler[Req, Res]) primitive() string { return h.kind }

func (h *UnaryHandler[Req, Res]) serveHTTP(ctx *rpcContext) {
	req, err := decodeRequest[Req](ctx, h.kind, h.maxRequestBodySize, h.skipValidation)
	if err != nil {
		handleError(ctx, err)
		return
	}

	all := make([]UnaryInterceptor, 0, len(ctx.interceptors)+len(h.interceptors))
	all = append(all, ctx.interceptors...)
	all = append(all, h.interceptors...)

	res, err := h.invoke(ctx, all, req)
	if err != nil {
		handleError(ctx, err)
		return
	}

	ctx.writer.Header().Set("Content-Type", "application/json")
	if err := encodeResponse(ctx.writer, res); err != nil {
		// Response may be partially written, nothing we can do.
		ctx.log().Error("failed to encode response",
			"endpoint", ctx.EndpointID(),
			"error", err)
	}
}

// invoke runs the interceptor chain around the typed function. An Empty
// request enters the chain as nil so interceptors see no arguments.
func (h *UnaryHandler[Req, Res]) invoke(ctx Context, interceptors []UnaryInterceptor, req Req) (any, error) {
	var reqAny any = req
	if isEmpty[Req]() {
		reqAny = nil
	}

	final := func(c context.Context, r any) (any, error) {
		var typed Req
		if r != nil {
			var ok bool
			if typed, ok = r.(Req); !ok {
				return nil, Errorf(CodeInternal, "interceptor changed request type to %T", r)
			}
		}
		return h.fn(c, typed)
	}

	return wrapUnary(interceptors, final)(ctx, reqAny)
}

func newMetadata[Req any, Res any](primitive string) *meta.MethodMetadata {
	return &meta.MethodMetadata{
		Primitive: primitive,
		Request:   reflect.TypeFor[Req](),
		Response:  reflect.TypeFor[Res](),
	}
}

func isEmpty[T any]() bool {
	return reflect.TypeFor[T]() == reflect.TypeFor[Empty]()
}

// decodeRequest decodes the request from the query string (query) or the
// JSON body (exec, stream) and validates it.
func decodeRequest[Req any](ctx *rpcContext, primitive string, limit *uint64, skipValidation bool) (Req, error) {
	var req Req
	if isEmpty[Req]() {
		return req, nil
	}

	if primitive == "query" {
		if err := decodeQuery(ctx.request, &req); err != nil {
			return req, err
		}
	} else if ctx.request.Body != nil {
		effective := ctx.maxRequestBodySize
		if limit != nil {
			effective = *limit
		}
		body := ctx.request.Body
		if effective > 0 {
			body = http.MaxBytesReader(ctx.writer, body, int64(effective))
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return req, Errorf(CodeInvalidArgument, "request body exceeds %d bytes", tooLarge.Limit)
			}
			return req, Errorf(CodeInvalidArgument, "failed to read body: %v", err)
		}
		// An empty body decodes as the zero request.
		if len(bytes.TrimSpace(data)) > 0 {
			if err := codec.Unmarshal(data, &req); err != nil {
				return req, Errorf(CodeInvalidArgument, "failed to decode body: %v", err)
			}
		}
	}

	if !skipValidation {
		if err := validateRequest(req); err != nil {
			return req, err
		}
	}
	return req, nil
}

// decodeQuery decodes URL query parameters into dst, a *Req where Req is a
// struct or a pointer to one.
func decodeQuery[Req any](r *http.Request, dst *Req) error {
	t := reflect.TypeFor[Req]()
	switch {
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		val := reflect.New(t.Elem())
		if err := schemaDecoder.Decode(val.Interface(), r.URL.Query()); err != nil {
			return Errorf(CodeInvalidArgument, "failed to decode query: %v", err)
		}
		*dst = val.Interface().(Req)
	case t.Kind() == reflect.Struct:
		if err := schemaDecoder.Decode(dst, r.URL.Query()); err != nil {
			return Errorf(CodeInvalidArgument, "failed to decode query: %v", err)
		}
	default:
		return Errorf(CodeInternal, "query request type %v must be a struct", t)
	}
	return nil
}

// validateRequest validates struct requests. Nil pointers and non-struct
// values have nothing to validate.
func validateRequest(req any) error {
	v := reflect.ValueOf(req)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	return validate.Struct(req)
}
