// control/collector.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus export of per-endpoint counters.

package control

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/netpair/api"
)

// EndpointSnapshot is the state of one endpoint at scrape time.
type EndpointSnapshot struct {
	Name    string
	Stats   api.Stats
	Pool    api.PoolStats
	RxState api.RxState
	Pending int
}

// SnapshotFunc returns the current state of every endpoint.
type SnapshotFunc func() []EndpointSnapshot

// Collector is a prometheus.Collector reading endpoint snapshots on
// every scrape.
type Collector struct {
	source SnapshotFunc

	rxPackets   *prometheus.Desc
	txPackets   *prometheus.Desc
	rxBytes     *prometheus.Desc
	txBytes     *prometheus.Desc
	rxDropped   *prometheus.Desc
	txDropped   *prometheus.Desc
	txErrors    *prometheus.Desc
	poolFree    *prometheus.Desc
	poolQueued  *prometheus.Desc
	poolFlight  *prometheus.Desc
	exhaustions *prometheus.Desc
	pending     *prometheus.Desc
	polling     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector whose metric names start with prefix.
func NewCollector(prefix string, source SnapshotFunc) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(prefix, "", name), help, []string{"endpoint"}, nil)
	}
	return &Collector{
		source:      source,
		rxPackets:   desc("rx_packets_total", "Frames delivered to the upper layer"),
		txPackets:   desc("tx_packets_total", "Transmits completed"),
		rxBytes:     desc("rx_bytes_total", "Bytes delivered to the upper layer"),
		txBytes:     desc("tx_bytes_total", "Bytes of completed transmits"),
		rxDropped:   desc("rx_dropped_total", "Received frames dropped"),
		txDropped:   desc("tx_dropped_total", "Transmits rejected as oversized"),
		txErrors:    desc("tx_errors_total", "Transmit completions synthesized by the watchdog"),
		poolFree:    desc("pool_free_buffers", "Buffers in the free set"),
		poolQueued:  desc("pool_queued_buffers", "Buffers waiting on the receive queue"),
		poolFlight:  desc("pool_inflight_buffers", "Buffers held by transmits in progress"),
		exhaustions: desc("pool_exhaustions_total", "Buffer requests that found the pool empty"),
		pending:     desc("tx_pending", "Transmits waiting for completion"),
		polling:     desc("rx_polling", "1 while the receive path is in polling state"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs() {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source() {
		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), s.Name)
		}
		gauge := func(d *prometheus.Desc, v int) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), s.Name)
		}
		counter(c.rxPackets, s.Stats.RxPackets)
		counter(c.txPackets, s.Stats.TxPackets)
		counter(c.rxBytes, s.Stats.RxBytes)
		counter(c.txBytes, s.Stats.TxBytes)
		counter(c.rxDropped, s.Stats.RxDropped)
		counter(c.txDropped, s.Stats.TxDropped)
		counter(c.txErrors, s.Stats.TxErrors)
		gauge(c.poolFree, s.Pool.Free)
		gauge(c.poolQueued, s.Pool.Queued)
		gauge(c.poolFlight, s.Pool.InFlight)
		counter(c.exhaustions, s.Pool.Exhaustions)
		gauge(c.pending, s.Pending)
		polling := 0
		if s.RxState == api.Polling {
			polling = 1
		}
		gauge(c.polling, polling)
	}
}

func (c *Collector) descs() []*prometheus.Desc {
	return []*prometheus.Desc{
		c.rxPackets, c.txPackets, c.rxBytes, c.txBytes,
		c.rxDropped, c.txDropped, c.txErrors,
		c.poolFree, c.poolQueued, c.poolFlight, c.exhaustions,
		c.pending, c.polling,
	}
}
