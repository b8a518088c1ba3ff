// Package metrics exposes Prometheus metrics for pipeline runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the pipeline collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	RunCount      *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	AudioDuration prometheus.Histogram
	LastCues      prometheus.Gauge
	LastNeutral   prometheus.Gauge
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visemesync_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "visemesync_run_duration_seconds",
				Help:    "Wall-clock duration of a pipeline run in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		AudioDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "visemesync_audio_duration_seconds",
				Help:    "Duration of the processed audio in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		LastCues: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "visemesync_last_run_cues",
				Help: "Number of viseme cues written by the last successful run",
			},
		),
		LastNeutral: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "visemesync_last_run_neutral_cues",
				Help: "Number of neutral cues written by the last successful run",
			},
		),
	}
}

// ObserveRun records one pipeline run. Sizes are only recorded for runs
// that wrote a timeline.
func (m *Metrics) ObserveRun(status string, elapsed time.Duration, audioMs float64, cues, neutral int, wrote bool) {
	m.RunCount.WithLabelValues(status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	if !wrote {
		return
	}
	m.AudioDuration.Observe(audioMs / 1000)
	m.LastCues.Set(float64(cues))
	m.LastNeutral.Set(float64(neutral))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
