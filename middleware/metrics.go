package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/broady/calllog/rpc"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
	OutcomePanic    = "panic"
)

// Metrics holds the handler metrics recorded by [Metrics.Interceptor].
type Metrics struct {
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
}

// NewMetrics creates the handler metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calllog_handler_duration_seconds",
				Help:    "Duration of intercepted handler calls in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "outcome"},
		),
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calllog_handler_calls_total",
				Help: "Total number of intercepted handler calls",
			},
			[]string{"endpoint", "outcome"},
		),
	}
}

// Interceptor returns a unary interceptor recording every call.
func (m *Metrics) Interceptor() rpc.UnaryInterceptor {
	return func(ctx rpc.Context, req any, handler rpc.HandlerFunc) (res any, err error) {
		start := time.Now()
		outcome := OutcomePanic
		defer func() {
			m.observe(ctx.EndpointID(), outcome, time.Since(start))
		}()
		res, err = handler(ctx, req)
		outcome = outcomeOf(err)
		return res, err
	}
}

func (m *Metrics) observe(endpoint, outcome string, d time.Duration) {
	m.duration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
	m.calls.WithLabelValues(endpoint, outcome).Inc()
}

// MetricsInterceptor creates handler metrics on reg and returns their
// interceptor.
func MetricsInterceptor(reg prometheus.Registerer) rpc.UnaryInterceptor {
	return NewMetrics(reg).Interceptor()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
