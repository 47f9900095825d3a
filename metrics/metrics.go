// Package metrics provides Prometheus metrics for the dictation pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dictate/log"
)

const namespace = "dictate"

// Metrics holds all Prometheus metrics for the process.
type Metrics struct {
	// Session metrics
	SessionsTotal   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionErrors   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	AcquireRetries  prometheus.Counter

	// Transcript metrics
	TranscriptEvents *prometheus.CounterVec

	// Commit metrics
	Commits        *prometheus.CounterVec
	CommitsSkipped *prometheus.CounterVec

	// Delivery metrics
	Deliveries       *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	Commands         *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of dictation sessions started",
		}, []string{"mode"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of dictation sessions currently listening",
		}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Total number of sessions ended by an error",
		}, []string{"kind"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of dictation sessions in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		AcquireRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquire_retries_total",
			Help:      "Total number of retried audio/engine acquisitions",
		}),
		TranscriptEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_events_total",
			Help:      "Total number of recognition events received",
		}, []string{"type"}),
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Total number of utterances committed",
		}, []string{"trigger"}),
		CommitsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_skipped_total",
			Help:      "Total number of commit attempts skipped",
		}, []string{"reason"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of deliveries by outcome",
		}, []string{"outcome"}),
		DeliveryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time from delivery request to outcome",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of voice commands by kind",
		}, []string{"kind"}),
	}
}

// Discard returns unregistered metrics.
func Discard() *Metrics { return New(nil) }

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("metrics listening on " + addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
