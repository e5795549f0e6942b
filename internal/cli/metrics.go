package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	sourceLive     = "live"
	sourceSnapshot = "snapshot"
)

// metrics counts what a reading command observed.
type metrics struct {
	records    *prometheus.CounterVec
	emptyPolls prometheus.Counter
	overruns   prometheus.Counter
	abandoned  prometheus.Counter
}

// newMetrics creates the reader metrics and registers them with reg.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shmlog_records_total",
				Help: "Total number of records read",
			},
			[]string{"source"},
		),
		emptyPolls: factory.NewCounter(prometheus.CounterOpts{
			Name: "shmlog_empty_polls_total",
			Help: "Total number of live reads that found no new record",
		}),
		overruns: factory.NewCounter(prometheus.CounterOpts{
			Name: "shmlog_overruns_total",
			Help: "Total number of times the producer lapped the reader",
		}),
		abandoned: factory.NewCounter(prometheus.CounterOpts{
			Name: "shmlog_abandoned_total",
			Help: "Total number of times the producer was found gone",
		}),
	}
}

// record, emptyPoll, overrun and abandon count one event. They do nothing on
// a nil *metrics.
func (m *metrics) record(label string) {
	if m != nil {
		m.records.WithLabelValues(label).Inc()
	}
}

func (m *metrics) emptyPoll() {
	if m != nil {
		m.emptyPolls.Inc()
	}
}

func (m *metrics) overrun() {
	if m != nil {
		m.overruns.Inc()
	}
}

func (m *metrics) abandon() {
	if m != nil {
		m.abandoned.Inc()
	}
}

// serveMetrics serves reg on addr at /metrics until stop is called or ctx is
// done. It returns the bound address, which differs from addr for port 0.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) (string, func(), error) {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
		<-done
	}

	return ln.Addr().String(), stop, nil
}
