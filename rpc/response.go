package rpc

import (
	"io"

	"github.com/bytedance/sonic"
)

// Empty represents a void request or response.
//
// As a request type it marks a handler that takes no arguments: the body is
// not decoded and the request passed through the interceptor chain is nil.
//
//	func Ping(ctx context.Context, _ rpc.Empty) (rpc.Empty, error) {
//	    return nil, nil
//	}
//
// Wire format: {"result": null}
type Empty *struct{}

// codec is the JSON implementation used on the wire. ConfigStd keeps
// encoding/json's behaviour (sorted map keys, HTML escaping).
var codec = sonic.ConfigStd

// response is the internal envelope type for successful responses.
type response struct {
	Result any `json:"result"`
}

// errorResponse is the internal envelope type for error responses.
type errorResponse struct {
	Error *Error `json:"error"`
}

// encodeResponse writes a successful response to w.
func encodeResponse(w io.Writer, result any) error {
	return codec.NewEncoder(w).Encode(response{Result: result})
}

// encodeErrorResponse writes an error response to w.
func encodeErrorResponse(w io.Writer, err *Error) error {
	return codec.NewEncoder(w).Encode(errorResponse{Error: err})
}
