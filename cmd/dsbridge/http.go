package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/dstiny-bridge/internal/bridges/dstiny"
	"github.com/nerrad567/dstiny-bridge/internal/eventbridge"
	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/database"
	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/mqtt"
)

const (
	readHeaderTimeout  = 5 * time.Second
	healthCheckTimeout = 3 * time.Second
)

// registerMetrics adds the bus/hub counters and process gauges to reg.
func registerMetrics(reg *prometheus.Registry, metrics *dstiny.Metrics, queue *eventbridge.Queue) error {
	if err := metrics.Register(reg); err != nil {
		return err
	}
	for _, c := range []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "dsbridge_event_queue_length",
			Help: "Hub events waiting to be written to the bus",
		}, func() float64 { return float64(queue.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "dsbridge_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"version": version, "commit": commit},
		}, func() float64 { return 1 }),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// healthChecks holds the optional dependencies checked by /health. Nil
// members are skipped.
type healthChecks struct {
	db      *database.DB
	mqtt    *mqtt.Client
	influx  *influxdb.Client
	session dstiny.StateSource
}

// check returns the first failing dependency.
func (h healthChecks) check(ctx context.Context) error {
	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if h.mqtt != nil {
		if err := h.mqtt.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if h.influx != nil {
		if err := h.influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if h.session != nil {
		if s := h.session.State(); s != dstiny.StateOnline {
			return fmt.Errorf("bus session %s", s)
		}
	}
	return nil
}

// newHTTPHandler serves the Prometheus registry at metricsPath and a
// plain-text /health.
func newHTTPHandler(metricsPath string, reg *prometheus.Registry, checks healthChecks) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := checks.check(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, err)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
