package web

import (
	"github.com/prometheus/client_golang/prometheus"

	inet "github.com/intersectFR/Intersect-Engine-FR/net"
)

const namespace = "intersect"

// Collector exports the Statistics of a Network. Counters are read at
// scrape time, so nothing is kept in step with the network.
type Collector struct {
	network *inet.Network

	state             *prometheus.Desc
	activeConnections *prometheus.Desc
	listeners         *prometheus.Desc
	latency           *prometheus.Desc
	timeAlive         *prometheus.Desc
	timeConnected     *prometheus.Desc
	bytesReceived     *prometheus.Desc
	bytesSent         *prometheus.Desc
	packetsLost       *prometheus.Desc
	packetsReceived   *prometheus.Desc
	packetsSent       *prometheus.Desc
}

func NewCollector(n *inet.Network) *Collector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &Collector{
		network:           n,
		state:             desc("network", "state", "Current network state; 1 for the labelled state.", "state"),
		activeConnections: desc("network", "active_connections", "Connections currently established."),
		listeners:         desc("network", "listeners", "Open sockets."),
		latency:           desc("network", "latency_seconds", "Smoothed round trip time of the most recent sample."),
		timeAlive:         desc("network", "alive_seconds_total", "Time spent with sockets open."),
		timeConnected:     desc("network", "connected_seconds_total", "Time spent with at least one established connection."),
		bytesReceived:     desc("transport", "received_bytes_total", "Datagram bytes received."),
		bytesSent:         desc("transport", "sent_bytes_total", "Datagram bytes sent."),
		packetsLost:       desc("transport", "lost_packets_total", "Datagrams retransmitted or abandoned."),
		packetsReceived:   desc("transport", "received_packets_total", "Datagrams received."),
		packetsSent:       desc("transport", "sent_packets_total", "Datagrams sent."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.activeConnections
	ch <- c.listeners
	ch <- c.latency
	ch <- c.timeAlive
	ch <- c.timeConnected
	ch <- c.bytesReceived
	ch <- c.bytesSent
	ch <- c.packetsLost
	ch <- c.packetsReceived
	ch <- c.packetsSent
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.network.Statistics().Snapshot()
	ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, 1, c.network.State().String())
	ch <- prometheus.MustNewConstMetric(c.activeConnections, prometheus.GaugeValue, float64(s.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(c.listeners, prometheus.GaugeValue, float64(s.Listeners))
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, s.Latency.Seconds())
	ch <- prometheus.MustNewConstMetric(c.timeAlive, prometheus.CounterValue, s.TimeAlive.Seconds())
	ch <- prometheus.MustNewConstMetric(c.timeConnected, prometheus.CounterValue, s.TimeConnected.Seconds())
	ch <- prometheus.MustNewConstMetric(c.bytesReceived, prometheus.CounterValue, float64(s.TotalBytesReceived))
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(s.TotalBytesSent))
	ch <- prometheus.MustNewConstMetric(c.packetsLost, prometheus.CounterValue, float64(s.TotalPacketsLost))
	ch <- prometheus.MustNewConstMetric(c.packetsReceived, prometheus.CounterValue, float64(s.TotalPacketsReceived))
	ch <- prometheus.MustNewConstMetric(c.packetsSent, prometheus.CounterValue, float64(s.TotalPacketsSent))
}
