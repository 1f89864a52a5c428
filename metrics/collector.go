// Package metrics exports carta map occupancy to Prometheus.
package metrics

import (
	"carta"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carta"

// StatsSource is anything that can report map stats, usually a *carta.Map.
type StatsSource interface {
	Stats() carta.Stats
}

// Collector implements prometheus.Collector. Every scrape calls Stats once, which
// takes each bucket's shared lock in turn.
type Collector struct {
	src StatsSource

	buckets    *prometheus.Desc
	entries    *prometheus.Desc
	empty      *prometheus.Desc
	maxEntries *prometheus.Desc
	poisoned   *prometheus.Desc
}

// NewCollector returns a collector for src, labelled map=name.
func NewCollector(name string, src StatsSource) *Collector {
	labels := prometheus.Labels{"map": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", metric), help, nil, labels)
	}
	return &Collector{
		src:        src,
		buckets:    desc("buckets", "Fixed number of buckets in the table."),
		entries:    desc("entries", "Number of keys stored."),
		empty:      desc("buckets_empty", "Number of buckets holding no entry."),
		maxEntries: desc("bucket_max_entries", "Entries in the fullest bucket."),
		poisoned:   desc("buckets_poisoned", "Buckets refusing operations after an interrupted write."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.buckets
	ch <- c.entries
	ch <- c.empty
	ch <- c.maxEntries
	ch <- c.poisoned
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	gauge(c.buckets, s.Buckets)
	gauge(c.entries, s.Entries)
	gauge(c.empty, s.EmptyBuckets)
	gauge(c.maxEntries, s.MaxBucketEntries)
	gauge(c.poisoned, s.PoisonedBuckets)
}
