package rpc

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/broady/calllog/internal/meta"
)

// App routes /{Service}/{Method} requests to registered endpoints and runs
// the interceptors resolved for each one. Build it, register services, then
// serve [App.Handler].
type App struct {
	mu                 sync.RWMutex
	routes             map[string]*route
	scoped             []scopedInterceptors
	errorTransformer   ErrorTransformer
	maskInternalErrors bool
	interceptors       []UnaryInterceptor
	streamInterceptors []StreamInterceptor
	middlewares        []func(http.Handler) http.Handler
	logger             *slog.Logger
	maxRequestBodySize uint64
}

// route is a registered endpoint with the interceptors resolved for it at
// registration time.
type route struct {
	handler            endpointHandler
	meta               *meta.MethodMetadata
	interceptors       []UnaryInterceptor
	streamInterceptors []StreamInterceptor
}

const defaultMaxBodySize = 1 << 20

func NewApp() *App {
	return &App{
		routes:             make(map[string]*route),
		maxRequestBodySize: defaultMaxBodySize,
	}
}

// WithErrorTransformer sets the transformer consulted before
// [DefaultErrorTransformer].
func (a *App) WithErrorTransformer(fn ErrorTransformer) *App {
	a.errorTransformer = fn
	return a
}

// WithMaskInternalErrors replaces the message of internal errors in responses
// with a generic one. Interceptors still see the handler's error.
func (a *App) WithMaskInternalErrors() *App {
	a.maskInternalErrors = true
	return a
}

// WithUnaryInterceptor adds an interceptor that runs for every endpoint.
//
// Order, outermost first:
//  1. Global interceptors (App.WithUnaryInterceptor)
//  2. Matched interceptors (App.Intercept)
//  3. Service interceptors (Service.WithUnaryInterceptor)
//  4. Handler interceptors (UnaryHandler.WithUnaryInterceptor)
//  5. Handler function
//
// Interceptors at the same level run in the order they were added. On stream
// endpoints unary interceptors only see the setup call.
func (a *App) WithUnaryInterceptor(i UnaryInterceptor) *App {
	a.interceptors = append(a.interceptors, i)
	return a
}

// WithStreamInterceptor adds a global stream interceptor. It wraps the events
// of every streaming endpoint, outside matched and handler-level ones.
func (a *App) WithStreamInterceptor(i StreamInterceptor) *App {
	a.streamInterceptors = append(a.streamInterceptors, i)
	return a
}

// Intercept attaches interceptors to every endpoint selected by m. unary
// wraps query and exec endpoints, stream wraps streaming endpoints; either
// may be nil.
//
// Matching happens in Service.Register, so Intercept must be called before
// the endpoints it should apply to are registered.
//
//	app.Intercept(rpc.Within("Math.*", "*.Get*"),
//	    middleware.LoggingInterceptor(logger),
//	    middleware.StreamLoggingInterceptor(logger))
func (a *App) Intercept(m Matcher, unary UnaryInterceptor, stream StreamInterceptor) *App {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scoped = append(a.scoped, scopedInterceptors{matcher: m, unary: unary, stream: stream})
	return a
}

// WithMiddleware wraps the handler returned by [App.Handler]. The first
// middleware added is the outermost.
func (a *App) WithMiddleware(mw func(http.Handler) http.Handler) *App {
	a.middlewares = append(a.middlewares, mw)
	return a
}

// WithLogger sets the logger for framework diagnostics such as recovered
// panics and encode failures. The default is slog.Default().
func (a *App) WithLogger(logger *slog.Logger) *App {
	a.logger = logger
	return a
}

// WithMaxRequestBodySize limits request bodies, in bytes. Zero disables the
// limit; handlers may override it.
func (a *App) WithMaxRequestBodySize(size uint64) *App {
	a.maxRequestBodySize = size
	return a
}

// Handler returns an http.Handler serving /{Service}/{Method}. The returned
// handler includes all configured middleware.
func (a *App) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(a.serveHTTP)
	for _, mw := range slices.Backward(a.middlewares) {
		h = mw(h)
	}
	return h
}

// Routes returns the registered endpoints in ID order.
func (a *App) Routes() []*meta.MethodMetadata {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rm := make(meta.RouteMap, len(a.routes))
	for id, r := range a.routes {
		rm[id] = r.meta
	}
	return rm.Sorted()
}

func (a *App) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

func (a *App) serveHTTP(w http.ResponseWriter, req *http.Request) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		a.log().Error("handler panic recovered",
			slog.String("route", req.URL.Path),
			slog.Any("panic", rec),
			slog.String("stack", string(debug.Stack())))
		msg := "internal server error"
		if !a.maskInternalErrors {
			msg = "internal server error (panic)"
		}
		writeError(w, NewError(CodeInternal, msg), a.logger)
	}()

	service, method, ok := strings.Cut(strings.Trim(req.URL.Path, "/"), "/")
	var r *route
	if ok && !strings.Contains(method, "/") {
		a.mu.RLock()
		r = a.routes[service+"."+method]
		a.mu.RUnlock()
	}
	if r == nil {
		writeError(w, Errorf(CodeNotFound, "no endpoint at %s", req.URL.Path), a.logger)
		return
	}

	expected := r.meta.HTTPMethod()
	if req.Method != expected {
		w.Header().Set("Allow", expected)
		writeError(w, Errorf(CodeMethodNotAllowed, "method %s not allowed, expected %s", req.Method, expected), a.logger)
		return
	}

	rc := newContext(req.Context(), w, req, service, method)
	rc.errorTransformer, rc.maskInternalErrors = a.errorTransformer, a.maskInternalErrors
	rc.logger, rc.maxRequestBodySize = a.logger, a.maxRequestBodySize
	rc.interceptors = concat(a.interceptors, r.interceptors)
	rc.streamInterceptors = concat(a.streamInterceptors, r.streamInterceptors)

	r.handler.serveHTTP(rc)
}

// Service is a named group of endpoints.
type Service struct {
	app          *App
	name         string
	interceptors []UnaryInterceptor
}

// Service returns a handle for registering endpoints under name. Handles for
// the same name share the route table but not their interceptors.
func (a *App) Service(name string) *Service {
	return &Service{
		app:  a,
		name: name,
	}
}

// WithUnaryInterceptor adds an interceptor to this service. It applies to
// endpoints registered after the call.
func (s *Service) WithUnaryInterceptor(i UnaryInterceptor) *Service {
	s.interceptors = append(s.interceptors, i)
	return s
}

// Register registers a handler for the given method name and attaches the
// interceptors of every App.Intercept matcher that selects it.
// If a handler is already registered for this service and method, it is
// replaced and a warning is logged.
func (s *Service) Register(name string, handler Endpoint) {
	h, ok := handler.(endpointHandler)
	if !ok {
		panic(fmt.Sprintf("rpc: %s.%s: endpoint %T was not built by Exec, Query or Stream", s.name, name, handler))
	}

	md := h.Metadata()
	md.Service = s.name
	md.Method = name

	a := s.app
	a.mu.Lock()
	defer a.mu.Unlock()

	r := &route{handler: h, meta: md}
	stream := h.primitive() == "stream"
	for _, sc := range a.scoped {
		if sc.matcher == nil || !sc.matcher.Match(s.name, name) {
			continue
		}
		if stream && sc.stream != nil {
			r.streamInterceptors = append(r.streamInterceptors, sc.stream)
		}
		if !stream && sc.unary != nil {
			r.interceptors = append(r.interceptors, sc.unary)
		}
	}
	r.interceptors = append(r.interceptors, s.interceptors...)

	id := md.EndpointID()
	if _, exists := a.routes[id]; exists {
		a.log().Warn("duplicate route registration",
			slog.String("endpoint", id))
	}
	a.routes[id] = r
}

func concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
