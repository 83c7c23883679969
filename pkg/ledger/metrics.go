package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	blocks     *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	orphans    prometheus.Gauge
	evicted    prometheus.Counter
	reorgs     prometheus.Counter
	reorgDepth prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dagledger",
			Name:      "blocks_total",
			Help:      "Submitted blocks by outcome status",
		}, []string{"status"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dagledger",
			Name:      "blocks_rejected_total",
			Help:      "Rejected blocks by reason",
		}, []string{"kind"}),
		orphans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dagledger",
			Name:      "orphans",
			Help:      "Blocks buffered waiting for parents",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dagledger",
			Name:      "orphans_evicted_total",
			Help:      "Orphans evicted from a full buffer",
		}),
		reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dagledger",
			Name:      "reorgs_total",
			Help:      "Canonical reorganisations",
		}),
		reorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dagledger",
			Name:      "reorg_depth",
			Help:      "Blocks rolled back per reorganisation",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.blocks, m.rejected, m.orphans, m.evicted, m.reorgs, m.reorgDepth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
