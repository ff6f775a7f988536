package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "approach"

// Collector exposes a Stats snapshot as Prometheus metrics on every scrape
type Collector struct {
	stats *Stats

	reports            *prometheus.Desc
	rejectedReports    *prometheus.Desc
	identityViolations *prometheus.Desc
	clockViolations    *prometheus.Desc
	announcements      *prometheus.Desc
	evictions          *prometheus.Desc
	activeAircraft     *prometheus.Desc
	messages           *prometheus.Desc
	uptime             *prometheus.Desc
}

// NewCollector creates a collector reading s
func NewCollector(s *Stats) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		stats:              s,
		reports:            desc("reports_total", "Position reports received."),
		rejectedReports:    desc("rejected_reports_total", "Position reports dropped as invalid."),
		identityViolations: desc("identity_violations_total", "Updates rejected because the callsign changed."),
		clockViolations:    desc("clock_violations_total", "Updates with a timestamp in the future."),
		announcements:      desc("announcements_total", "Gate crossings announced."),
		evictions:          desc("evictions_total", "Aircraft evicted as stale."),
		activeAircraft:     desc("active_aircraft", "Aircraft currently tracked."),
		messages:           desc("sbs_messages_total", "SBS lines by transmission type, 0 for non-MSG lines.", "type"),
		uptime:             desc("uptime_seconds", "Seconds since the counters were created."),
	}
}

// NewRegistry returns a Prometheus registry with s registered
func NewRegistry(s *Stats) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(s))
	return reg
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.reports
	ch <- c.rejectedReports
	ch <- c.identityViolations
	ch <- c.clockViolations
	ch <- c.announcements
	ch <- c.evictions
	ch <- c.activeAircraft
	ch <- c.messages
	ch <- c.uptime
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.reports, snap.Reports)
	counter(c.rejectedReports, snap.RejectedReports)
	counter(c.identityViolations, snap.IdentityViolations)
	counter(c.clockViolations, snap.ClockViolations)
	counter(c.announcements, snap.Announcements)
	counter(c.evictions, snap.Evictions)
	for t, n := range snap.MessageTypes {
		counter(c.messages, n, strconv.Itoa(t))
	}

	ch <- prometheus.MustNewConstMetric(c.activeAircraft, prometheus.GaugeValue, float64(snap.ActiveAircraft))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, snap.Uptime.Seconds())
}
