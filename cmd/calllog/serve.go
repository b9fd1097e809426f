package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/broady/calllog/internal/config"
	"github.com/broady/calllog/middleware"
	"github.com/broady/calllog/rpc"
)

type ServeCmd struct {
	config.Config `embed:""`

	ShutdownTimeout time.Duration `help:"How long to wait for in-flight calls on shutdown." env:"CALLLOG_SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c *ServeCmd) Run() error {
	sink, err := c.NewSink(os.Stderr)
	if err != nil {
		return err
	}
	l, err := c.NewLogger(sink)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app := newApp(sink, l, c.Within, middleware.NewMetrics(reg))

	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           newRouter(app, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, srv, sink, c.ShutdownTimeout)
}

// newRouter mounts the app under /{service}/{method} next to the health,
// route listing and metrics endpoints.
func newRouter(app *rpc.App, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/routes", func(w http.ResponseWriter, r *http.Request) {
		type routeInfo struct {
			Endpoint  string `json:"endpoint"`
			Method    string `json:"method"`
			Primitive string `json:"primitive"`
		}
		var out []routeInfo
		for _, md := range app.Routes() {
			out = append(out, routeInfo{md.EndpointID(), md.HTTPMethod(), md.Primitive})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := sonic.ConfigStd.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Handle("/{service}/{method}", app.Handler())
	return r
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, log *slog.Logger, shutdownTimeout time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
