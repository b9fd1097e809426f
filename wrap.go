package calllog

import "context"

// Wrap0 decorates a handler that takes no arguments. The returned function has
// the same signature and returns exactly what fn returns.
func Wrap0[R any](l *Logger, desc Descriptor, fn func(context.Context) (R, error)) func(context.Context) (R, error) {
	return func(ctx context.Context) (R, error) {
		var res R
		_, err := l.Intercept(ctx, Invocation{
			Descriptor: desc,
			Args:       []any{},
			Proceed: func(ctx context.Context) (any, error) {
				var err error
				res, err = fn(ctx)
				return res, err
			},
		})
		return res, err
	}
}

// Wrap1 decorates a single-argument handler.
func Wrap1[A, R any](l *Logger, desc Descriptor, fn func(context.Context, A) (R, error)) func(context.Context, A) (R, error) {
	return func(ctx context.Context, a A) (R, error) {
		var res R
		_, err := l.Intercept(ctx, Invocation{
			Descriptor: desc,
			Args:       []any{a},
			Proceed: func(ctx context.Context) (any, error) {
				var err error
				res, err = fn(ctx, a)
				return res, err
			},
		})
		return res, err
	}
}

// Wrap2 decorates a two-argument handler.
func Wrap2[A, B, R any](l *Logger, desc Descriptor, fn func(context.Context, A, B) (R, error)) func(context.Context, A, B) (R, error) {
	return func(ctx context.Context, a A, b B) (R, error) {
		var res R
		_, err := l.Intercept(ctx, Invocation{
			Descriptor: desc,
			Args:       []any{a, b},
			Proceed: func(ctx context.Context) (any, error) {
				var err error
				res, err = fn(ctx, a, b)
				return res, err
			},
		})
		return res, err
	}
}

// Wrap3 decorates a three-argument handler.
func Wrap3[A, B, C, R any](l *Logger, desc Descriptor, fn func(context.Context, A, B, C) (R, error)) func(context.Context, A, B, C) (R, error) {
	return func(ctx context.Context, a A, b B, c C) (R, error) {
		var res R
		_, err := l.Intercept(ctx, Invocation{
			Descriptor: desc,
			Args:       []any{a, b, c},
			Proceed: func(ctx context.Context) (any, error) {
				var err error
				res, err = fn(ctx, a, b, c)
				return res, err
			},
		})
		return res, err
	}
}
