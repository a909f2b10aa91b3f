package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments for the ingestion engine. All
// methods are nil-safe so components can run unmetered in tests.
type Metrics struct {
	filings       *prometheus.CounterVec
	cacheHits     *prometheus.CounterVec
	networkFetches prometheus.Counter
}

// New registers the ingestion metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		filings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "form4_filings_total",
			Help: "Filings carried through the ingestion pipeline, by outcome.",
		}, []string{"outcome"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "form4_cache_hits_total",
			Help: "Submission cache hits, by tier.",
		}, []string{"tier"}),
		networkFetches: factory.NewCounter(prometheus.CounterOpts{
			Name: "form4_network_fetches_total",
			Help: "Submissions fetched from EDGAR over the network.",
		}),
	}
}

// IncFiling counts one filing outcome (succeeded, failed, skipped).
func (m *Metrics) IncFiling(outcome string) {
	if m == nil {
		return
	}
	m.filings.WithLabelValues(outcome).Inc()
}

// IncCacheHit counts one cache hit for the given tier (memory, disk).
func (m *Metrics) IncCacheHit(tier string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(tier).Inc()
}

// IncNetworkFetch counts one network fetch.
func (m *Metrics) IncNetworkFetch() {
	if m == nil {
		return
	}
	m.networkFetches.Inc()
}
