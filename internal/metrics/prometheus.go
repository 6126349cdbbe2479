package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromRecorder implements Recorder backed by Prometheus counters/gauges.
type PromRecorder struct {
	registry             *prometheus.Registry
	handler              http.Handler
	rpcCalls             *prometheus.CounterVec
	rpcDuration          *prometheus.HistogramVec
	capabilityDowngrades *prometheus.CounterVec
	workDispatched       prometheus.Counter
	lastWorkHeight       prometheus.Gauge
	workFetcherStops     *prometheus.CounterVec
	blocksSubmitted      *prometheus.CounterVec
	walletBalance        prometheus.Gauge
	walletImmatured      prometheus.Gauge
}

// NewPromRecorder creates a Prometheus-backed Recorder and exposes a handler for metrics scraping.
// Namespace is prefixed on all metrics; if empty, "nodeadapter" is used.
func NewPromRecorder(namespace string) (*PromRecorder, error) {
	if namespace == "" {
		namespace = "nodeadapter"
	}
	reg := prometheus.NewRegistry()

	rpcCalls := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "rpc_calls_total", Help: "Node RPC calls by method and result."}, []string{"method", "status"})
	rpcDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "rpc_call_duration_seconds", Help: "Node RPC call latency.", Buckets: prometheus.DefBuckets}, []string{"method"})
	capabilityDowngrades := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "capability_downgrades_total", Help: "Permanent fallbacks to legacy node endpoints."}, []string{"capability"})
	workDispatched := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "work_dispatched_total", Help: "Block templates dispatched as new work."})
	lastWorkHeight := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "last_work_height", Help: "Height of the last dispatched block template."})
	workFetcherStops := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "work_fetcher_stops_total", Help: "Work fetcher session terminations by reason."}, []string{"reason"})
	blocksSubmitted := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "block_submissions_total", Help: "Block submissions by result."}, []string{"status"})
	walletBalance := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "wallet_balance", Help: "Last observed spendable wallet balance in coin base units."})
	walletImmatured := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "wallet_immature_balance", Help: "Last observed immature wallet balance in coin base units."})

	collectors := []prometheus.Collector{rpcCalls, rpcDuration, capabilityDowngrades, workDispatched, lastWorkHeight, workFetcherStops, blocksSubmitted, walletBalance, walletImmatured}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &PromRecorder{
		registry:             reg,
		handler:              promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		rpcCalls:             rpcCalls,
		rpcDuration:          rpcDuration,
		capabilityDowngrades: capabilityDowngrades,
		workDispatched:       workDispatched,
		lastWorkHeight:       lastWorkHeight,
		workFetcherStops:     workFetcherStops,
		blocksSubmitted:      blocksSubmitted,
		walletBalance:        walletBalance,
		walletImmatured:      walletImmatured,
	}, nil
}

// Handler exposes the HTTP handler for scraping.
func (p *PromRecorder) Handler() http.Handler {
	return p.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (p *PromRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PromRecorder) RPCCall(method string, success bool, elapsed time.Duration) {
	p.rpcCalls.WithLabelValues(method, status(success)).Inc()
	p.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (p *PromRecorder) CapabilityDowngraded(capability string) {
	p.capabilityDowngrades.WithLabelValues(capability).Inc()
}

func (p *PromRecorder) WorkDispatched(height int64) {
	p.workDispatched.Inc()
	p.lastWorkHeight.Set(float64(height))
}

func (p *PromRecorder) WorkFetcherStopped(reason string) { p.workFetcherStops.WithLabelValues(reason).Inc() }
func (p *PromRecorder) BlockSubmitted(success bool)      { p.blocksSubmitted.WithLabelValues(status(success)).Inc() }

func (p *PromRecorder) BalanceObserved(balance, immatured int64) {
	p.walletBalance.Set(float64(balance))
	p.walletImmatured.Set(float64(immatured))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
