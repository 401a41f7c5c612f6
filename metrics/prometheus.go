package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mailtrust"

// Collector exports registered Validator counters to Prometheus. Values are
// read at scrape time, so validators need no Prometheus dependency.
type Collector struct {
	mu         sync.RWMutex
	validators map[string]*Validator

	validations *prometheus.Desc
	dnsSeconds  *prometheus.Desc
	verifySecs  *prometheus.Desc
	cache       *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector with no validators registered.
func NewCollector() *Collector {
	labels := []string{"validator"}
	return &Collector{
		validators: map[string]*Validator{},
		validations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "validations_total"),
			"Total number of validations by outcome.",
			[]string{"validator", "outcome"}, nil,
		),
		dnsSeconds: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "dns_seconds_total"),
			"Cumulative time spent on DNS lookups.",
			labels, nil,
		),
		verifySecs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "verify_seconds_total"),
			"Cumulative time spent verifying signatures or certificates.",
			labels, nil,
		),
		cache: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cache_lookups_total"),
			"Total number of cache lookups by result.",
			[]string{"validator", "result"}, nil,
		),
	}
}

// Register adds v under name, replacing any validator of the same name.
func (c *Collector) Register(name string, v *Validator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validators[name] = v
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.validations
	ch <- c.dnsSeconds
	ch <- c.verifySecs
	ch <- c.cache
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	names := make([]string, 0, len(c.validators))
	for name := range c.validators {
		names = append(names, name)
	}
	sort.Strings(names)
	snaps := make([]Snapshot, len(names))
	for i, name := range names {
		snaps[i] = c.validators[name].Snapshot()
	}
	c.mu.RUnlock()

	for i, name := range names {
		s := snaps[i]
		other := s.TotalValidations - s.SuccessfulValidations - s.FailedValidations
		ch <- prometheus.MustNewConstMetric(c.validations, prometheus.CounterValue, float64(s.SuccessfulValidations), name, "success")
		ch <- prometheus.MustNewConstMetric(c.validations, prometheus.CounterValue, float64(s.FailedValidations), name, "failure")
		ch <- prometheus.MustNewConstMetric(c.validations, prometheus.CounterValue, float64(other), name, "none")
		ch <- prometheus.MustNewConstMetric(c.dnsSeconds, prometheus.CounterValue, s.DNSTime.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.verifySecs, prometheus.CounterValue, s.VerifyTime.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.cache, prometheus.CounterValue, float64(s.CacheHits), name, "hit")
		ch <- prometheus.MustNewConstMetric(c.cache, prometheus.CounterValue, float64(s.CacheMisses), name, "miss")
	}
}
