package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/broady/calllog"
	"github.com/broady/calllog/internal/config"
)

type DemoCmd struct {
	config.Config `embed:""`

	HTTP bool `help:"Run the scenarios through the HTTP app instead of direct calls." name:"http"`
}

func (c *DemoCmd) Run() error {
	return c.run(context.Background(), os.Stdout)
}

func (c *DemoCmd) run(ctx context.Context, w io.Writer) error {
	sink, err := c.NewSink(w)
	if err != nil {
		return err
	}
	l, err := c.NewLogger(sink)
	if err != nil {
		return err
	}
	if c.HTTP {
		return runHTTPScenarios(newApp(sink, l, c.Within, nil).Handler(), w)
	}
	return runScenarios(ctx, l, w)
}

// runScenarios calls the plain functions through typed decorators: a
// successful call, a failing call, and a call with no arguments and no result.
func runScenarios(ctx context.Context, l *calllog.Logger, w io.Writer) error {
	addFn := calllog.Wrap2(l, calllog.Descriptor{Service: "Math", Method: "Add"}, add)
	divideFn := calllog.Wrap2(l, calllog.Descriptor{Service: "Math", Method: "Divide"}, divide)
	pingFn := calllog.Wrap0(l, calllog.Descriptor{Service: "Status", Method: "Ping"}, ping)

	sum, err := addFn(ctx, 2, 3)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Math.Add(2, 3) = %d\n", sum)

	if _, err := divideFn(ctx, 1, 0); !errors.Is(err, errDivideByZero) {
		return fmt.Errorf("Math.Divide(1, 0): expected %v, got %v", errDivideByZero, err)
	}
	fmt.Fprintf(w, "Math.Divide(1, 0) failed: %v\n", errDivideByZero)

	if _, err := pingFn(ctx); err != nil {
		return err
	}
	fmt.Fprintln(w, "Status.Ping() done")
	return nil
}

// runHTTPScenarios sends the same calls to h.
func runHTTPScenarios(h http.Handler, w io.Writer) error {
	calls := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/Math/Add?a=2&b=3", ""},
		{http.MethodPost, "/Math/Divide", `{"a":1,"b":0}`},
		{http.MethodPost, "/Status/Ping", ""},
		{http.MethodPost, "/Tasks/Create", `{"title":"write the demo"}`},
		{http.MethodPost, "/Clock/Count", `{"n":3}`},
	}
	for _, call := range calls {
		var body io.Reader
		if call.body != "" {
			body = strings.NewReader(call.body)
		}
		req := httptest.NewRequest(call.method, call.path, body)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		fmt.Fprintf(w, "%s %s -> %d %s\n", call.method, call.path, rec.Code, strings.TrimSpace(rec.Body.String()))
	}
	return nil
}
