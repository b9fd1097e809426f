// Package calllog logs every call entering a set of handlers.
//
// A [Logger] wraps a handler invocation. It records when the call started and
// what it was called with, runs the handler, and then records either the
// result or the failure together with the elapsed time:
//
//	l := calllog.New(slog.Default())
//	add := calllog.Wrap2(l, calllog.Descriptor{Service: "Math", Method: "Add"},
//	    func(ctx context.Context, a, b int) (int, error) { return a + b, nil })
//
//	sum, err := add(ctx, 2, 3) // logs "incoming request" then "outgoing response"
//
// The wrapped function behaves exactly like the original: the same value is
// returned, the same error value is returned, and a panic is re-raised with the
// same value after it has been logged. Logging is a side channel only.
//
// Handlers are usually decorated once, when they are registered with a router
// or service. See the rpc and middleware packages for the HTTP framework
// integration.
package calllog
