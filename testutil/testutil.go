// Package testutil provides testing helpers: a capturing slog handler for
// asserting on log records, and a request builder with assertions for
// handlers served by an rpc.App.
// It does not import the packages it tests, so it can be used from any of them.
package testutil

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

// RequestBuilder builds a request for an rpc endpoint step by step.
type RequestBuilder struct {
	method      string
	path        string
	body        []byte
	headers     map[string]string
	queryParams url.Values
}

// NewRequest creates a new request builder for a GET on "/".
func NewRequest() *RequestBuilder {
	return &RequestBuilder{
		method:      "GET",
		path:        "/",
		headers:     make(map[string]string),
		queryParams: make(url.Values),
	}
}

// GET targets a query endpoint.
func (b *RequestBuilder) GET(path string) *RequestBuilder {
	b.method = "GET"
	b.path = path
	return b
}

// POST targets an exec or stream endpoint.
func (b *RequestBuilder) POST(path string) *RequestBuilder {
	b.method = "POST"
	b.path = path
	return b
}

// WithJSON encodes v as the JSON body.
func (b *RequestBuilder) WithJSON(v any) *RequestBuilder {
	data, _ := sonic.ConfigStd.Marshal(v)
	b.body = data
	b.headers["Content-Type"] = "application/json"
	return b
}

// WithBody sets the body verbatim, for malformed input.
func (b *RequestBuilder) WithBody(body string) *RequestBuilder {
	b.body = []byte(body)
	return b
}

func (b *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	b.headers[key] = value
	return b
}

// WithQuery appends a query string parameter.
func (b *RequestBuilder) WithQuery(key, value string) *RequestBuilder {
	b.queryParams.Add(key, value)
	return b
}

// Build returns the request and a fresh recorder for it.
func (b *RequestBuilder) Build() (*http.Request, *httptest.ResponseRecorder) {
	path := b.path
	if len(b.queryParams) > 0 {
		path += "?" + b.queryParams.Encode()
	}

	var body io.Reader
	if len(b.body) > 0 {
		body = bytes.NewReader(b.body)
	}
	req := httptest.NewRequest(b.method, path, body)
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	return req, httptest.NewRecorder()
}

// Serve builds the request and serves it with h.
func (b *RequestBuilder) Serve(h http.Handler) *httptest.ResponseRecorder {
	req, w := b.Build()
	h.ServeHTTP(w, req)
	return w
}

func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if w.Code != expectedStatus {
		t.Errorf("status = %d, want %d; body: %s", w.Code, expectedStatus, w.Body.String())
	}
}

// AssertJSONResponse checks that the response is a {"result": ...} envelope
// whose result equals expected once both are rendered as JSON.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expected any) {
	t.Helper()

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var envelope struct {
		Result any `json:"result"`
	}
	if err := sonic.ConfigStd.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode result envelope: %v; body: %s", err, w.Body.String())
	}

	// Compare as JSON to ignore formatting and numeric type differences.
	expectedJSON, _ := sonic.ConfigStd.Marshal(expected)
	var expectedData any
	_ = sonic.ConfigStd.Unmarshal(expectedJSON, &expectedData)

	want, _ := sonic.ConfigStd.MarshalIndent(expectedData, "", "  ")
	got, _ := sonic.ConfigStd.MarshalIndent(envelope.Result, "", "  ")
	if string(want) != string(got) {
		t.Errorf("response mismatch:\nExpected:\n%s\nActual:\n%s", want, got)
	}
}

// ErrorResponse mirrors the body of an {"error": ...} envelope.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AssertJSONError checks that the response is an {"error": ...} envelope
// with the expected code.
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) *ErrorResponse {
	t.Helper()

	var envelope struct {
		Error *ErrorResponse `json:"error"`
	}
	if err := sonic.ConfigStd.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v; body: %s", err, w.Body.String())
	}
	if envelope.Error == nil {
		t.Fatalf("expected error envelope\nBody: %s", w.Body.String())
	}
	if envelope.Error.Code != expectedCode {
		t.Errorf("error code = %s (%s), want %s", envelope.Error.Code, envelope.Error.Message, expectedCode)
	}
	return envelope.Error
}

func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expectedValue string) {
	t.Helper()
	if got := w.Header().Get(key); got != expectedValue {
		t.Errorf("header %s = %q, want %q", key, got, expectedValue)
	}
}

// SSEData returns the payloads of the "data:" lines of a server-sent event
// response, in order.
func SSEData(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(w.Body.Bytes()))
	for sc.Scan() {
		if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			out = append(out, data)
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("failed to read event stream: %v", err)
	}
	return out
}
