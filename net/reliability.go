package net

import (
	"sync"
	"time"
)

type datagramKey struct {
	channel  uint8
	mode     TransmissionMode
	id       uint32
	fragment uint8
}

func (e AckEntry) key() datagramKey {
	return datagramKey{channel: e.Channel, mode: e.Mode, id: e.ID, fragment: e.Fragment}
}

type pendingDatagram struct {
	wire      []byte
	firstSent time.Time
	nextSend  time.Time
	attempts  int
}

// sendWindow tracks reliable datagrams until they are acknowledged, and
// schedules their retransmission. It implements selective repeat: each
// datagram is acknowledged and retransmitted on its own.
type sendWindow struct {
	mu      sync.Mutex
	limit   int
	pending map[datagramKey]*pendingDatagram

	minRTO, maxRTO time.Duration
	backoff        BackoffConfig
	maxRetransmits int

	srtt, rttvar time.Duration
	rto          time.Duration
}

func newSendWindow(cfg Configuration) *sendWindow {
	return &sendWindow{
		limit:          cfg.SendWindow,
		pending:        make(map[datagramKey]*pendingDatagram),
		minRTO:         cfg.MinRetransmitTimeout,
		maxRTO:         cfg.MaxRetransmitTimeout,
		backoff:        cfg.RetransmitBackoff,
		maxRetransmits: cfg.MaxRetransmits,
		rto:            min(max(cfg.RetransmitBackoff.InitialDelay, cfg.MinRetransmitTimeout), cfg.MaxRetransmitTimeout),
	}
}

// HasRoom reports whether n more datagrams fit in the window.
func (w *sendWindow) HasRoom(n int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)+n <= w.limit
}

func (w *sendWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Track starts the retransmission timer of a datagram about to be sent.
func (w *sendWindow) Track(k datagramKey, wire []byte, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[k] = &pendingDatagram{
		wire:      wire,
		firstSent: now,
		nextSend:  now.Add(w.rto),
		attempts:  1,
	}
}

// Ack releases a datagram. It returns a round trip sample when the
// datagram was only sent once.
func (w *sendWindow) Ack(k datagramKey, now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pending[k]
	if !ok {
		return 0, false
	}
	delete(w.pending, k)
	if p.attempts != 1 {
		return 0, false
	}
	rtt := now.Sub(p.firstSent)
	w.sample(rtt)
	return rtt, true
}

// sample updates the smoothed round trip time and the base timeout,
// following RFC 6298.
func (w *sendWindow) sample(rtt time.Duration) {
	if w.srtt == 0 {
		w.srtt = rtt
		w.rttvar = rtt / 2
	} else {
		delta := w.srtt - rtt
		if delta < 0 {
			delta = -delta
		}
		w.rttvar = (3*w.rttvar + delta) / 4
		w.srtt = (7*w.srtt + rtt) / 8
	}
	w.rto = min(max(w.srtt+4*w.rttvar, w.minRTO), w.maxRTO)
}

// SmoothedRTT returns the current estimate, zero before any sample.
func (w *sendWindow) SmoothedRTT() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.srtt
}

// Due returns the datagrams whose timers expired, rescheduling them with
// backoff. exhausted is set when a datagram ran out of retransmissions.
func (w *sendWindow) Due(now time.Time) (resend [][]byte, exhausted bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.pending {
		if now.Before(p.nextSend) {
			continue
		}
		if p.attempts > w.maxRetransmits {
			exhausted = true
			continue
		}
		p.attempts++
		cfg := w.backoff
		cfg.InitialDelay = w.rto
		p.nextSend = now.Add(nextBackoffDelay(cfg, p.attempts))
		resend = append(resend, p.wire)
	}
	return resend, exhausted
}

// Clear forgets every pending datagram.
func (w *sendWindow) Clear() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.pending)
	w.pending = make(map[datagramKey]*pendingDatagram)
	return n
}
