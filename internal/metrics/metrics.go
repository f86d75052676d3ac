// Package metrics exports bonjour entity activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rescp17/lanpeer/pkg/bonjour"
)

const metricNamespace = "lanpeer"

// Tracer implements bonjour.Tracer with Prometheus collectors.
type Tracer struct {
	started     *prometheus.CounterVec
	failed      *prometheus.CounterVec
	replyErrors *prometheus.CounterVec
	running     *prometheus.GaugeVec
	exited      *prometheus.CounterVec
	peers       prometheus.Gauge
	churn       *prometheus.CounterVec
}

var _ bonjour.Tracer = &Tracer{}

// NewTracer creates the collectors and registers them with reg. Collectors
// already registered by an earlier Tracer are reused.
func NewTracer(reg prometheus.Registerer) *Tracer {
	t := &Tracer{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "operations_started_total",
			Help:      "Provider operations begun",
		}, []string{"kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "operations_failed_total",
			Help:      "Provider operations that could not begin",
		}, []string{"kind"}),
		replyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "reply_errors_total",
			Help:      "Replies that carried an error",
		}, []string{"kind"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "runners",
			Help:      "Runners currently polling an operation",
		}, []string{"kind"}),
		exited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "runners_exited_total",
			Help:      "Runners that finished, by outcome",
		}, []string{"kind", "outcome"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "peers",
			Help:      "Peers tracked after the last reconciliation",
		}),
		churn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "peer_changes_total",
			Help:      "Peers added or removed by reconciliation",
		}, []string{"change"}),
	}

	t.started = register(reg, t.started)
	t.failed = register(reg, t.failed)
	t.replyErrors = register(reg, t.replyErrors)
	t.running = register(reg, t.running)
	t.exited = register(reg, t.exited)
	t.peers = register(reg, t.peers)
	t.churn = register(reg, t.churn)
	return t
}

// register adds c to reg, returning the collector already registered under
// the same descriptor if there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (t *Tracer) OperationStarted(kind bonjour.Kind) {
	t.started.WithLabelValues(kind.String()).Inc()
	t.running.WithLabelValues(kind.String()).Inc()
}

func (t *Tracer) OperationFailed(kind bonjour.Kind, _ error) {
	t.failed.WithLabelValues(kind.String()).Inc()
}

func (t *Tracer) ReplyFailed(kind bonjour.Kind, _ error) {
	t.replyErrors.WithLabelValues(kind.String()).Inc()
}

func (t *Tracer) RunnerExited(kind bonjour.Kind, errored bool) {
	outcome := "stopped"
	if errored {
		outcome = "error"
	}
	t.exited.WithLabelValues(kind.String(), outcome).Inc()
	t.running.WithLabelValues(kind.String()).Dec()
}

func (t *Tracer) PeersReconciled(added, removed, total int) {
	t.churn.WithLabelValues("added").Add(float64(added))
	t.churn.WithLabelValues("removed").Add(float64(removed))
	t.peers.Set(float64(total))
}

// Serve exposes g on http://addr/metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return serve(ctx, ln, g)
}

func serve(ctx context.Context, ln net.Listener, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("Serving metrics", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
