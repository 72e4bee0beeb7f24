package connection

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is anything that can report a stats snapshot. *Connection
// satisfies it.
type StatsSource interface {
	Stats() StatsSnapshot
}

// StatsCollector exports a StatsSource as Prometheus metrics. Values are
// read from a fresh snapshot on every scrape.
type StatsCollector struct {
	src StatsSource

	pushAttempts    *prometheus.Desc
	pushFailures    *prometheus.Desc
	pingAttempts    *prometheus.Desc
	pingFailures    *prometheus.Desc
	transportErrors *prometheus.Desc
	consecNetErrs   *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector creates a collector for src. Register it with a
// prometheus.Registry to expose the counters.
func NewStatsCollector(src StatsSource) *StatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("sensorlink", "", name), help, nil, nil)
	}
	return &StatsCollector{
		src:             src,
		pushAttempts:    desc("push_attempts_total", "Push requests attempted."),
		pushFailures:    desc("push_failures_total", "Push requests rejected with a non-2xx status."),
		pingAttempts:    desc("ping_attempts_total", "Ping requests attempted."),
		pingFailures:    desc("ping_failures_total", "Ping requests rejected with a non-2xx status."),
		transportErrors: desc("transport_errors_total", "Requests that produced no HTTP response."),
		consecNetErrs:   desc("consecutive_network_errors", "Failed requests since the last 2xx response."),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pushAttempts
	ch <- c.pushFailures
	ch <- c.pingAttempts
	ch <- c.pingFailures
	ch <- c.transportErrors
	ch <- c.consecNetErrs
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.pushAttempts, prometheus.CounterValue, float64(s.PushAttempts))
	ch <- prometheus.MustNewConstMetric(c.pushFailures, prometheus.CounterValue, float64(s.PushFailures))
	ch <- prometheus.MustNewConstMetric(c.pingAttempts, prometheus.CounterValue, float64(s.PingAttempts))
	ch <- prometheus.MustNewConstMetric(c.pingFailures, prometheus.CounterValue, float64(s.PingFailures))
	ch <- prometheus.MustNewConstMetric(c.transportErrors, prometheus.CounterValue, float64(s.TransportErrors))
	ch <- prometheus.MustNewConstMetric(c.consecNetErrs, prometheus.GaugeValue, float64(s.ConsecutiveNetworkErrors))
}
