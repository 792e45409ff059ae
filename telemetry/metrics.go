package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the kernel's Prometheus collectors. Each Metrics registers
// under its own registry, never the shared default one, so two Metrics
// never collide; package orchestrator creates one per node.
type Metrics struct {
	registry *prometheus.Registry

	BlocksProduced      prometheus.Counter
	BlockProduceSeconds  prometheus.Histogram
	MempoolSize          prometheus.Gauge
	ViewChanges          prometheus.Counter
	FirewallInterceptions *prometheus.CounterVec
	SyncStatus           prometheus.Gauge // 0 = synced, 1 = syncing
}

// NewMetrics registers every collector against a fresh registry scoped to
// this process.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BlocksProduced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "blocks_produced_total",
			Help: "Total number of blocks this node has produced as leader.",
		}),
		BlockProduceSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "block_produce_seconds",
			Help:    "Time spent producing a block, from PrepareBlock through CommitBlock.",
			Buckets: prometheus.DefBuckets,
		}),
		MempoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "mempool_size",
			Help: "Number of transactions currently held in the mempool.",
		}),
		ViewChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "view_changes_total",
			Help: "Total number of consensus view changes triggered by timeout or equivocation.",
		}),
		FirewallInterceptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "firewall_interceptions_total",
			Help: "Firewall verdicts by outcome (block, require_approval).",
		}, []string{"verdict"}),
		SyncStatus: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sync_status",
			Help: "1 if this node is currently syncing block history, 0 if synced.",
		}),
	}
}

// Handler returns the HTTP handler serving this process's /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HealthStatus is the JSON body served at /healthz.
type HealthStatus struct {
	Healthy   bool   `json:"healthy"`
	Component string `json:"component"`
}

// ServeHealthAndMetrics starts a background HTTP server exposing /healthz
// and /metrics on addr, shutting down cleanly when ctx is canceled.
func ServeHealthAndMetrics(ctx context.Context, addr, component string, m *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"healthy":true,"component":%q}`, component)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("telemetry: metrics server: %w", err)
		}
		return nil
	}
}
