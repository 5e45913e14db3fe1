package metrics

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_events_dispatched_total",
			Help: "Total number of lifecycle events fired by point and outcome",
		},
		[]string{"point", "outcome"},
	)

	ScriptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlgate_script_duration_seconds",
			Help:    "Duration of event script executions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)

	ScriptResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_script_results_total",
			Help: "Total number of event script results by kind",
		},
		[]string{"kind"},
	)

	BroadcastErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_broadcast_errors_total",
			Help: "Total number of broadcast publish errors by sink",
		},
		[]string{"sink"},
	)

	BroadcastPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_broadcast_published_total",
			Help: "Total number of events published by sink",
		},
		[]string{"sink"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlgate_request_duration_seconds",
			Help:    "Duration of data service requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "code"},
	)

	SchemaReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_schema_reloads_total",
			Help: "Total number of schema cache reloads by service and result",
		},
		[]string{"service", "result"},
	)
)

type PromServerOpts struct {
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
	Logger            *zap.Logger
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartPrometheusServer starts a Prometheus metrics server with the given options.
// The server shuts down gracefully when ctx is canceled.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	effectiveOpts := defaultPrometheusServerOptions()
	logger := zap.NewNop()
	if opts != nil {
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
		if opts.Logger != nil {
			logger = opts.Logger
		}
	}

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting metrics server", zap.String("addr", effectiveOpts.Addr), zap.String("path", effectiveOpts.Path))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down metrics server", zap.Error(err))
		}

		select {
		case <-serverClosed:
			logger.Info("metrics server shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
