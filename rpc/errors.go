package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorCode is the machine-readable part of an [Error].
type ErrorCode string

const (
	CodeInvalidArgument   ErrorCode = "invalid_argument"
	CodeUnauthenticated   ErrorCode = "unauthenticated"
	CodePermissionDenied  ErrorCode = "permission_denied"
	CodeNotFound          ErrorCode = "not_found"
	CodeMethodNotAllowed  ErrorCode = "method_not_allowed"
	CodeConflict          ErrorCode = "conflict"
	CodeResourceExhausted ErrorCode = "resource_exhausted"
	CodeCanceled          ErrorCode = "canceled"
	CodeInternal          ErrorCode = "internal"
	CodeNotImplemented    ErrorCode = "not_implemented"
	CodeUnavailable       ErrorCode = "unavailable"
	CodeDeadlineExceeded  ErrorCode = "deadline_exceeded"
)

// statusClientClosed is nginx's "client closed request".
const statusClientClosed = 499

var codeStatus = map[ErrorCode]int{
	CodeInvalidArgument:   http.StatusBadRequest,
	CodeUnauthenticated:   http.StatusUnauthorized,
	CodePermissionDenied:  http.StatusForbidden,
	CodeNotFound:          http.StatusNotFound,
	CodeMethodNotAllowed:  http.StatusMethodNotAllowed,
	CodeConflict:          http.StatusConflict,
	CodeResourceExhausted: http.StatusTooManyRequests,
	CodeCanceled:          statusClientClosed,
	CodeInternal:          http.StatusInternalServerError,
	CodeNotImplemented:    http.StatusNotImplemented,
	CodeUnavailable:       http.StatusServiceUnavailable,
	CodeDeadlineExceeded:  http.StatusGatewayTimeout,
}

// HTTPStatus returns the response status for c. Unknown codes are 500.
func (c ErrorCode) HTTPStatus() int {
	if status, ok := codeStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is the error sent to clients, encoded as {"error": {...}}.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithDetail returns a copy of e with key set in its details.
func (e *Error) WithDetail(key string, value any) *Error {
	out := *e
	out.Details = maps.Clone(e.Details)
	if out.Details == nil {
		out.Details = make(map[string]any, 1)
	}
	out.Details[key] = value
	return &out
}

// ErrorTransformer maps a handler error to the error sent to the client.
// Returning nil falls back to [DefaultErrorTransformer].
//
// The transformer only shapes the response. Interceptors, including the
// logging ones, always see the handler's original error.
type ErrorTransformer func(error) *Error

// DefaultErrorTransformer maps an error to an [Error]:
//   - an *Error anywhere in the chain is returned as is
//   - context deadline and cancellation become deadline_exceeded and canceled
//   - a closed stream becomes canceled
//   - validation failures become invalid_argument with one detail per field
//   - for joined errors the first error decides the code
//
// Anything else is internal, with the error text as the message.
func DefaultErrorTransformer(err error) *Error {
	if err == nil {
		return nil
	}

	var svcErr *Error
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.As(err, &svcErr):
		return svcErr
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(CodeDeadlineExceeded, "request timeout")
	case errors.Is(err, context.Canceled):
		return NewError(CodeCanceled, "context canceled")
	case errors.Is(err, ErrStreamClosed):
		return NewError(CodeCanceled, "stream closed")
	case errors.As(err, &fieldErrs):
		return validationError(fieldErrs)
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := joined.Unwrap(); len(errs) > 0 {
			return joinedError(errs)
		}
	}
	return NewError(CodeInternal, err.Error())
}

func validationError(fieldErrs validator.ValidationErrors) *Error {
	out := &Error{
		Code:    CodeInvalidArgument,
		Details: make(map[string]any, len(fieldErrs)),
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := describeFieldError(fe)
		out.Details[fe.Field()] = msg
		parts = append(parts, fe.Field()+": "+msg)
	}
	out.Message = strings.Join(parts, "; ")
	return out
}

func joinedError(errs []error) *Error {
	first := DefaultErrorTransformer(errs[0])
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return &Error{
		Code:    first.Code,
		Message: strings.Join(parts, "; "),
		Details: first.Details,
	}
}

// fieldMessages holds the message for common validator tags. A %s verb is
// replaced by the tag's parameter.
var fieldMessages = map[string]string{
	"required": "required",
	"email":    "must be a valid email address",
	"min":      "must be at least %s",
	"gte":      "must be at least %s",
	"max":      "must be at most %s",
	"lte":      "must be at most %s",
	"gt":       "must be greater than %s",
	"lt":       "must be less than %s",
	"ne":       "must not equal %s",
	"oneof":    "must be one of: %s",
}

func describeFieldError(fe validator.FieldError) string {
	if tmpl, ok := fieldMessages[fe.Tag()]; ok {
		if strings.Contains(tmpl, "%s") {
			return fmt.Sprintf(tmpl, fe.Param())
		}
		return tmpl
	}
	if fe.Param() == "" {
		return "failed " + fe.Tag() + " validation"
	}
	return "failed " + fe.Tag() + "=" + fe.Param() + " validation"
}

// transformError applies the app's transformer, then the default one, then
// masking of internal messages.
func transformError(ctx *rpcContext, err error) *Error {
	var svcErr *Error
	if ctx.errorTransformer != nil {
		svcErr = ctx.errorTransformer(err)
	}
	if svcErr == nil {
		svcErr = DefaultErrorTransformer(err)
	}
	if ctx.maskInternalErrors && svcErr.Code == CodeInternal {
		return NewError(CodeInternal, "internal server error")
	}
	return svcErr
}

func handleError(ctx *rpcContext, err error) {
	writeError(ctx.writer, transformError(ctx, err), ctx.log())
}

// writeError writes svcErr as a JSON response with its mapped status.
func writeError(w http.ResponseWriter, svcErr *Error, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.Code.HTTPStatus())
	if err := encodeErrorResponse(w, svcErr); err != nil {
		// Status already sent.
		logger.Error("failed to encode error response",
			slog.String("code", string(svcErr.Code)),
			slog.String("message", svcErr.Message),
			slog.Any("error", err))
	}
}
