// Package prom exports a cache's Stats snapshot as Prometheus metrics.
package prom

import (
	"github.com/IvanBrykalov/concache/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsProvider is the narrow surface the adapter depends on — any Cache
// or LoadingCache satisfies it via its Stats() method.
type StatsProvider interface {
	Stats() cache.Stats
}

// SizeProvider is implemented by caches that can report their current
// resident size; exposed as an additional gauge when present.
type SizeProvider interface {
	Size() int64
}

// Adapter is a prometheus.Collector that reads a fresh cache.Stats
// snapshot on every scrape rather than tracking deltas itself — the
// Stats counters are already monotonic, so Prometheus's own counter
// semantics apply directly without an intermediate Add() step.
type Adapter struct {
	source StatsProvider
	size   SizeProvider // nil if source doesn't implement it

	hits             *prometheus.Desc
	misses           *prometheus.Desc
	loadSuccess      *prometheus.Desc
	loadFailure      *prometheus.Desc
	loadTimeNanos    *prometheus.Desc
	evictionCount    *prometheus.Desc
	evictionWeight   *prometheus.Desc
	evictionsByCause *prometheus.Desc
	sizeEntries      *prometheus.Desc
}

// removalCauseLabels mirrors cache.RemovalCause's enumeration order,
// used to label the evictionsByCause series.
var removalCauseLabels = [5]string{"EXPLICIT", "REPLACED", "COLLECTED", "EXPIRED", "SIZE"}

// New constructs an Adapter for source and registers it with reg (nil
// means prometheus.DefaultRegisterer). If source also implements
// SizeProvider, a size_entries gauge is exported too.
func New(reg prometheus.Registerer, ns, sub string, source StatsProvider) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := []string{}
	a := &Adapter{
		source:           source,
		hits:             prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "hits_total"), "Cache hits", labels, nil),
		misses:           prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "misses_total"), "Cache misses", labels, nil),
		loadSuccess:      prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "load_success_total"), "Successful loader invocations", labels, nil),
		loadFailure:      prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "load_failure_total"), "Failed loader invocations", labels, nil),
		loadTimeNanos:    prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "load_duration_nanos_total"), "Cumulative loader duration in nanoseconds", labels, nil),
		evictionCount:    prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "evictions_total"), "Entries evicted by the size/weight bound or by expiration", labels, nil),
		evictionWeight:   prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "eviction_weight_total"), "Cumulative weight of evicted entries", labels, nil),
		evictionsByCause: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "evictions_by_cause_total"), "Evicted entries, broken down by RemovalCause", []string{"cause"}, nil),
		sizeEntries:      prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "size_entries"), "Number of resident entries", labels, nil),
	}
	if sp, ok := source.(SizeProvider); ok {
		a.size = sp
	}
	reg.MustRegister(a)
	return a
}

func (a *Adapter) Describe(ch chan<- *prometheus.Desc) {
	ch <- a.hits
	ch <- a.misses
	ch <- a.loadSuccess
	ch <- a.loadFailure
	ch <- a.loadTimeNanos
	ch <- a.evictionCount
	ch <- a.evictionWeight
	ch <- a.evictionsByCause
	if a.size != nil {
		ch <- a.sizeEntries
	}
}

func (a *Adapter) Collect(ch chan<- prometheus.Metric) {
	s := a.source.Stats()
	ch <- prometheus.MustNewConstMetric(a.hits, prometheus.CounterValue, float64(s.HitCount))
	ch <- prometheus.MustNewConstMetric(a.misses, prometheus.CounterValue, float64(s.MissCount))
	ch <- prometheus.MustNewConstMetric(a.loadSuccess, prometheus.CounterValue, float64(s.LoadSuccessCount))
	ch <- prometheus.MustNewConstMetric(a.loadFailure, prometheus.CounterValue, float64(s.LoadFailureCount))
	ch <- prometheus.MustNewConstMetric(a.loadTimeNanos, prometheus.CounterValue, float64(s.TotalLoadTimeNanos))
	ch <- prometheus.MustNewConstMetric(a.evictionCount, prometheus.CounterValue, float64(s.EvictionCount))
	ch <- prometheus.MustNewConstMetric(a.evictionWeight, prometheus.CounterValue, float64(s.EvictionWeight))
	for i, count := range s.EvictionCountByCause {
		ch <- prometheus.MustNewConstMetric(a.evictionsByCause, prometheus.CounterValue, float64(count), removalCauseLabels[i])
	}
	if a.size != nil {
		ch <- prometheus.MustNewConstMetric(a.sizeEntries, prometheus.GaugeValue, float64(a.size.Size()))
	}
}
