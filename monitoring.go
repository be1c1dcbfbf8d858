package lcoll

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats counts collection activity. A registry shares one Stats among all of
// its collections.
type Stats struct {
	Hits       atomic.Uint64
	Misses     atomic.Uint64
	Hydrations atomic.Uint64
	Adds       atomic.Uint64
	Removes    atomic.Uint64
	Writes     atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Hits       uint64
	Misses     uint64
	Hydrations uint64
	Adds       uint64
	Removes    uint64
	Writes     uint64
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:       s.Hits.Load(),
		Misses:     s.Misses.Load(),
		Hydrations: s.Hydrations.Load(),
		Adds:       s.Adds.Load(),
		Removes:    s.Removes.Load(),
		Writes:     s.Writes.Load(),
	}
}

// HitRatio is the share of lookups served from memory.
func (ss StatsSnapshot) HitRatio() float64 {
	total := ss.Hits + ss.Misses
	if total == 0 {
		return 0
	}
	return float64(ss.Hits) / float64(total)
}

type statsCollector struct {
	stats *Stats
	descs []*prometheus.Desc
}

var statsMetricNames = []string{"hits", "misses", "hydrations", "adds", "removes", "writes"}

var statsMetricHelp = []string{
	"Lookups served by a resident record instance.",
	"Lookups that had to consult the store.",
	"Records decoded from the store into the cache.",
	"Records that became known to a collection.",
	"Records removed from a collection.",
	"Records written to the store.",
}

// NewCollector exposes stats as Prometheus counters named lcoll_<counter>_total.
// labels are attached to every metric, e.g. {"model": "users"}.
func NewCollector(stats *Stats, labels prometheus.Labels) prometheus.Collector {
	c := &statsCollector{stats: stats}
	for i, name := range statsMetricNames {
		c.descs = append(c.descs, prometheus.NewDesc(
			prometheus.BuildFQName("lcoll", "", name+"_total"),
			statsMetricHelp[i],
			nil,
			labels,
		))
	}
	return c
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	ss := c.stats.Snapshot()
	values := []uint64{ss.Hits, ss.Misses, ss.Hydrations, ss.Adds, ss.Removes, ss.Writes}
	for i, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(values[i]))
	}
}
