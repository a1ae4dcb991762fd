// Package metrics exposes ledger and provenance activity as Prometheus
// metrics. A Recorder is both a staking.Observer and a provenance commit
// handler.
package metrics

import (
	"net/http"

	"github.com/Klingon-tech/locker/internal/provenance"
	"github.com/Klingon-tech/locker/internal/staking"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "locker"

// Recorder owns a registry with the locker metrics.
type Recorder struct {
	registry *prometheus.Registry

	staked       prometheus.Gauge
	emitted      prometheus.Gauge
	claimed      prometheus.Gauge
	unallocated  prometheus.Gauge
	outstanding  prometheus.Gauge
	settledAt    prometheus.Gauge
	provenance   prometheus.Gauge
	settlements  prometheus.Counter
	distributed  prometheus.Counter
	operations   *prometheus.CounterVec
	payoutTokens prometheus.Histogram
}

// New registers the locker metrics on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	r.staked = gauge("items_staked", "Number of items currently staked.")
	r.emitted = gauge("emitted_tokens", "Rewards credited to holders, in tokens.")
	r.claimed = gauge("claimed_tokens", "Rewards minted to holders, in tokens.")
	r.unallocated = gauge("unallocated_tokens", "Curve output released while nothing was staked, in tokens.")
	r.outstanding = gauge("outstanding_tokens", "Credited but unclaimed rewards, in tokens.")
	r.settledAt = gauge("last_settled_timestamp_seconds", "Unix time of the last settlement.")
	r.provenance = gauge("provenance_entries", "Committed provenance entries.")
	r.settlements = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "settlements_total", Help: "Settlements that distributed a pool.",
	})
	r.distributed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "distributed_tokens_total", Help: "Tokens distributed by settlements.",
	})
	r.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ledger_operations_total", Help: "Committed ledger operations.",
	}, []string{"op"})
	r.payoutTokens = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "item_payout_tokens", Help: "Per-item settlement payouts, in tokens.",
		Buckets: prometheus.ExponentialBuckets(0.001, 10, 8),
	})

	r.registry.MustRegister(
		r.staked, r.emitted, r.claimed, r.unallocated, r.outstanding, r.settledAt,
		r.provenance, r.settlements, r.distributed, r.operations, r.payoutTokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// OnCommit implements staking.Observer.
func (r *Recorder) OnCommit(op string, t staking.Totals) {
	r.operations.WithLabelValues(op).Inc()
	r.SetTotals(t)
}

// OnSettlement implements staking.Observer.
func (r *Recorder) OnSettlement(s *staking.Settlement) {
	if s.Distributed.IsZero() {
		return
	}
	r.settlements.Inc()
	r.distributed.Add(fixed.Float(s.Distributed, fixed.Decimals))
	for _, p := range s.Payouts {
		r.payoutTokens.Observe(fixed.Float(p.Amount, fixed.Decimals))
	}
}

// SetTotals copies a ledger snapshot into the gauges.
func (r *Recorder) SetTotals(t staking.Totals) {
	r.staked.Set(float64(t.Staked))
	r.emitted.Set(fixed.Float(t.Emitted, fixed.Decimals))
	r.claimed.Set(fixed.Float(t.Claimed, fixed.Decimals))
	r.unallocated.Set(fixed.Float(t.Unallocated, fixed.Decimals))
	r.outstanding.Set(fixed.Float(t.Outstanding, fixed.Decimals))
	r.settledAt.Set(float64(t.LastSettledAt))
}

// OnProvenanceCommit is a provenance.CommitHandler.
func (r *Recorder) OnProvenanceCommit(_ provenance.Entry, length int) {
	r.provenance.Set(float64(length))
}

// SetProvenanceLength seeds the provenance gauge on startup.
func (r *Recorder) SetProvenanceLength(n int) {
	r.provenance.Set(float64(n))
}

var _ staking.Observer = (*Recorder)(nil)
