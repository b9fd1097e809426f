package middleware

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broady/calllog/rpc"
)

func TestMetricsInterceptor_Outcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	interceptor := m.Interceptor()
	ctx := rpc.NewContext(context.Background(), "Math", "Divide")

	_, err := interceptor(ctx, nil, func(ctx context.Context, req any) (any, error) {
		return 1, nil
	})
	require.NoError(t, err)

	_, err = interceptor(ctx, nil, func(ctx context.Context, req any) (any, error) {
		return nil, errDivideByZero
	})
	require.ErrorIs(t, err, errDivideByZero)

	_, err = interceptor(ctx, nil, func(ctx context.Context, req any) (any, error) {
		return nil, context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("Math.Divide", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("Math.Divide", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("Math.Divide", OutcomeCanceled)))
	assert.Equal(t, 3, testutil.CollectAndCount(m.duration))
}

func TestMetricsInterceptor_Panic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ctx := rpc.NewContext(context.Background(), "Math", "Boom")

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = m.Interceptor()(ctx, nil, func(ctx context.Context, req any) (any, error) {
			panic("boom")
		})
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("Math.Boom", OutcomePanic)))
}

func TestMetricsInterceptor_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	interceptor := MetricsInterceptor(reg)
	ctx := rpc.NewContext(context.Background(), "Status", "Ping")

	_, _ = interceptor(ctx, nil, func(ctx context.Context, req any) (any, error) {
		return nil, errors.New("down")
	})

	expected := `
# HELP calllog_handler_calls_total Total number of intercepted handler calls
# TYPE calllog_handler_calls_total counter
calllog_handler_calls_total{endpoint="Status.Ping",outcome="error"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "calllog_handler_calls_total"))
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
