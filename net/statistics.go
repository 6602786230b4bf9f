package net

import (
	"sync/atomic"
	"time"
)

// Statistics are the counters a Network keeps. All fields are safe for
// concurrent use. Nothing resets them except Reset.
type Statistics struct {
	activeConnections    atomic.Int64
	latency              atomic.Int64
	listeners            atomic.Int64
	timeAlive            atomic.Int64
	timeConnected        atomic.Int64
	totalBytesReceived   atomic.Int64
	totalBytesSent       atomic.Int64
	totalPacketsLost     atomic.Int64
	totalPacketsReceived atomic.Int64
	totalPacketsSent     atomic.Int64
}

// StatisticsSnapshot is a point in time copy of Statistics.
type StatisticsSnapshot struct {
	ActiveConnections    int64         `json:"active_connections"`
	Latency              time.Duration `json:"latency_ns"`
	Listeners            int64         `json:"listeners"`
	TimeAlive            time.Duration `json:"time_alive_ns"`
	TimeConnected        time.Duration `json:"time_connected_ns"`
	TotalBytesReceived   int64         `json:"total_bytes_received"`
	TotalBytesSent       int64         `json:"total_bytes_sent"`
	TotalPacketsLost     int64         `json:"total_packets_lost"`
	TotalPacketsReceived int64         `json:"total_packets_received"`
	TotalPacketsSent     int64         `json:"total_packets_sent"`
}

func (s *Statistics) ActiveConnections() int64 { return s.activeConnections.Load() }
func (s *Statistics) Latency() time.Duration    { return time.Duration(s.latency.Load()) }
func (s *Statistics) Listeners() int64          { return s.listeners.Load() }
func (s *Statistics) TimeAlive() time.Duration  { return time.Duration(s.timeAlive.Load()) }
func (s *Statistics) TimeConnected() time.Duration {
	return time.Duration(s.timeConnected.Load())
}
func (s *Statistics) TotalBytesReceived() int64   { return s.totalBytesReceived.Load() }
func (s *Statistics) TotalBytesSent() int64       { return s.totalBytesSent.Load() }
func (s *Statistics) TotalPacketsLost() int64     { return s.totalPacketsLost.Load() }
func (s *Statistics) TotalPacketsReceived() int64 { return s.totalPacketsReceived.Load() }
func (s *Statistics) TotalPacketsSent() int64     { return s.totalPacketsSent.Load() }

func (s *Statistics) AddBytesReceived(n int64) int64 { return s.totalBytesReceived.Add(n) }
func (s *Statistics) AddBytesSent(n int64) int64     { return s.totalBytesSent.Add(n) }
func (s *Statistics) AddPacketsLost(n int64) int64   { return s.totalPacketsLost.Add(n) }
func (s *Statistics) IncrementPacketsLost() int64    { return s.totalPacketsLost.Add(1) }
func (s *Statistics) IncrementPacketsReceived() int64 {
	return s.totalPacketsReceived.Add(1)
}
func (s *Statistics) IncrementPacketsSent() int64 { return s.totalPacketsSent.Add(1) }

func (s *Statistics) addActiveConnections(n int64)    { s.activeConnections.Add(n) }
func (s *Statistics) setListeners(n int64)            { s.listeners.Store(n) }
func (s *Statistics) setLatency(d time.Duration)      { s.latency.Store(int64(d)) }
func (s *Statistics) addTimeAlive(d time.Duration)    { s.timeAlive.Add(int64(d)) }
func (s *Statistics) addTimeConnected(d time.Duration) { s.timeConnected.Add(int64(d)) }

// Snapshot copies every counter. Counters are read one at a time, so a
// snapshot taken under load is not a single consistent cut.
func (s *Statistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		ActiveConnections:    s.ActiveConnections(),
		Latency:              s.Latency(),
		Listeners:            s.Listeners(),
		TimeAlive:            s.TimeAlive(),
		TimeConnected:        s.TimeConnected(),
		TotalBytesReceived:   s.TotalBytesReceived(),
		TotalBytesSent:       s.TotalBytesSent(),
		TotalPacketsLost:     s.TotalPacketsLost(),
		TotalPacketsReceived: s.TotalPacketsReceived(),
		TotalPacketsSent:     s.TotalPacketsSent(),
	}
}

// Reset zeroes every counter.
func (s *Statistics) Reset() {
	s.activeConnections.Store(0)
	s.latency.Store(0)
	s.listeners.Store(0)
	s.timeAlive.Store(0)
	s.timeConnected.Store(0)
	s.totalBytesReceived.Store(0)
	s.totalBytesSent.Store(0)
	s.totalPacketsLost.Store(0)
	s.totalPacketsReceived.Store(0)
	s.totalPacketsSent.Store(0)
}
