package calllog

import (
	"context"
	"iter"
	"reflect"
	"runtime"
	"strings"
)

// Descriptor identifies an intercepted handler.
type Descriptor struct {
	Service string
	Method  string
}

// String returns "Service.Method", or just the method when there is no service.
func (d Descriptor) String() string {
	if d.Service == "" {
		return d.Method
	}
	return d.Service + "." + d.Method
}

// FuncDescriptor derives a Descriptor from a Go function value using its
// qualified runtime name. For "github.com/acme/api.(*Server).Get" the service
// is "github.com/acme/api.(*Server)" and the method is "Get".
func FuncDescriptor(fn any) Descriptor {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return Descriptor{Method: "<unknown>"}
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return Descriptor{Method: "<unknown>"}
	}
	name := f.Name()
	// Skip the package path so dots in domain names are not split on.
	slash := strings.LastIndex(name, "/")
	dot := strings.LastIndex(name[slash+1:], ".")
	if dot < 0 {
		return Descriptor{Method: name}
	}
	dot += slash + 1
	return Descriptor{Service: name[:dot], Method: name[dot+1:]}
}

// Invocation is a single call to a handler, handed to [Logger.Intercept].
//
// Proceed runs the real handler. It is called exactly once.
type Invocation struct {
	Descriptor Descriptor
	Args       []any
	Proceed    func(ctx context.Context) (any, error)
}

// StreamInvocation is a call to a handler whose work completes over a stream
// of events rather than with a single return value.
//
// A non-nil error yielded by the sequence marks the call as failed.
type StreamInvocation struct {
	Descriptor Descriptor
	Args       []any
	Proceed    func(ctx context.Context) iter.Seq2[any, error]
}
