package rpc

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

type ctxKey string

func TestContextAccessors(t *testing.T) {
	req := httptest.NewRequest("POST", "/Math/Add", nil)
	w := httptest.NewRecorder()
	ctx := newContext(context.Background(), w, req, "Math", "Add")

	if ctx.Service() != "Math" || ctx.Method() != "Add" {
		t.Errorf("unexpected service/method: %s/%s", ctx.Service(), ctx.Method())
	}
	if ctx.EndpointID() != "Math.Add" {
		t.Errorf("expected Math.Add, got %s", ctx.EndpointID())
	}
	if ctx.HTTPRequest() != req {
		t.Error("expected request to be returned from context")
	}
	if ctx.HTTPWriter() != w {
		t.Error("expected writer to be returned from context")
	}
}

func TestNewContext_OutsideHTTP(t *testing.T) {
	ctx := NewContext(context.Background(), "Status", "Ping")
	if ctx.HTTPRequest() != nil || ctx.HTTPWriter() != nil {
		t.Error("expected no HTTP request or writer")
	}
	// Should not panic.
	SetHeader(ctx, "X-Custom-Header", "v")
}

func TestFromContext(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		ctx := NewContext(context.Background(), "S", "M")
		got, ok := FromContext(ctx)
		if !ok || got.EndpointID() != "S.M" {
			t.Errorf("expected S.M, got %v %v", got, ok)
		}
	})

	t.Run("wrapped", func(t *testing.T) {
		ctx := NewContext(context.Background(), "S", "M")
		wrapped := context.WithValue(ctx, ctxKey("k"), "v")
		got, ok := FromContext(wrapped)
		if !ok || got.EndpointID() != "S.M" {
			t.Errorf("expected S.M, got %v %v", got, ok)
		}
	})

	t.Run("absent", func(t *testing.T) {
		if _, ok := FromContext(context.Background()); ok {
			t.Error("expected no RPC context")
		}
	})
}

func TestSetHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	ctx := newContext(context.Background(), w, req, "S", "M")

	SetHeader(context.WithValue(ctx, ctxKey("k"), "v"), "X-Custom-Header", "custom-value")

	if w.Header().Get("X-Custom-Header") != "custom-value" {
		t.Errorf("expected header to be set, got %s", w.Header().Get("X-Custom-Header"))
	}

	// Should not panic.
	SetHeader(context.Background(), "X-Custom-Header", "custom-value")
}

func TestAsContext_KeepsWrapperValuesAndDeadline(t *testing.T) {
	base := NewContext(context.Background(), "S", "M")
	deadline := time.Now().Add(time.Hour)
	wrapped, cancel := context.WithDeadline(context.WithValue(base, ctxKey("k"), "v"), deadline)
	defer cancel()

	got := asContext(wrapped)
	if got.EndpointID() != "S.M" {
		t.Errorf("expected S.M, got %s", got.EndpointID())
	}
	if got.Value(ctxKey("k")) != "v" {
		t.Error("expected wrapper value to be visible")
	}
	if d, ok := got.Deadline(); !ok || !d.Equal(deadline) {
		t.Errorf("expected wrapper deadline, got %v %v", d, ok)
	}

	cancel()
	if got.Err() == nil {
		t.Error("expected cancellation to propagate")
	}
}

func TestAsContext_PlainContext(t *testing.T) {
	got := asContext(context.Background())
	if got.EndpointID() != "." {
		t.Errorf("expected empty endpoint, got %q", got.EndpointID())
	}
}
