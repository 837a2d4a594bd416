package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time view of server state.
type Stats struct {
	Role              string // "master" or "slave"
	Keys              int
	Expires           int
	BlockedClients    int
	ConnectedReplicas int
	ReplicationOffset int64
	PubSubChannels    int
}

// StatsFunc samples the current Stats.
type StatsFunc func() Stats

// Collector exports Stats at scrape time.
type Collector struct {
	stats StatsFunc

	keys       *prometheus.Desc
	expires    *prometheus.Desc
	blocked    *prometheus.Desc
	replicas   *prometheus.Desc
	offset     *prometheus.Desc
	channels   *prometheus.Desc
	roleMaster *prometheus.Desc
}

// NewCollector creates a collector sampling stats on every scrape.
func NewCollector(stats StatsFunc) *Collector {
	return &Collector{
		stats: stats,
		keys: prometheus.NewDesc(namespace+"_keyspace_keys",
			"Keys in the keyspace.", nil, nil),
		expires: prometheus.NewDesc(namespace+"_keyspace_expires",
			"Keys with an expiry.", nil, nil),
		blocked: prometheus.NewDesc(namespace+"_blocked_clients",
			"Clients parked in BLPOP or XREAD BLOCK.", nil, nil),
		replicas: prometheus.NewDesc(namespace+"_replication_connected_replicas",
			"Replicas attached to this primary.", nil, nil),
		offset: prometheus.NewDesc(namespace+"_replication_offset_bytes",
			"Replication offset: bytes propagated on a primary, processed on a replica.", nil, nil),
		channels: prometheus.NewDesc(namespace+"_pubsub_channels",
			"Channels with at least one subscriber.", nil, nil),
		roleMaster: prometheus.NewDesc(namespace+"_replication_is_primary",
			"1 when this node is a primary.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.expires
	ch <- c.blocked
	ch <- c.replicas
	ch <- c.offset
	ch <- c.channels
	ch <- c.roleMaster
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()

	primary := 0.0
	if s.Role == "master" {
		primary = 1
	}

	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(s.Keys))
	ch <- prometheus.MustNewConstMetric(c.expires, prometheus.GaugeValue, float64(s.Expires))
	ch <- prometheus.MustNewConstMetric(c.blocked, prometheus.GaugeValue, float64(s.BlockedClients))
	ch <- prometheus.MustNewConstMetric(c.replicas, prometheus.GaugeValue, float64(s.ConnectedReplicas))
	ch <- prometheus.MustNewConstMetric(c.offset, prometheus.GaugeValue, float64(s.ReplicationOffset))
	ch <- prometheus.MustNewConstMetric(c.channels, prometheus.GaugeValue, float64(s.PubSubChannels))
	ch <- prometheus.MustNewConstMetric(c.roleMaster, prometheus.GaugeValue, primary)
}
