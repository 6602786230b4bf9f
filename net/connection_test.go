package net

import (
	gonet "net"
	"testing"
	"time"

	"github.com/intersectFR/Intersect-Engine-FR/buffer"
	"github.com/intersectFR/Intersect-Engine-FR/ttesting"
)

func testConnection(t *testing.T, cfg Configuration) *Connection {
	t.Helper()
	n, err := New(NewRegistry(), cfg)
	ttesting.MustNotError(t, "new", err)
	t.Cleanup(func() { n.Close() })

	local, err := gonet.ListenPacket("udp4", "127.0.0.1:0")
	ttesting.MustNotError(t, "local socket", err)
	sink, err := gonet.ListenPacket("udp4", "127.0.0.1:0")
	ttesting.MustNotError(t, "sink socket", err)
	t.Cleanup(func() { sink.Close() })

	m := NewConnectionManager(n, cfg.Listen.ConnectionConfiguration, true, []gonet.PacketConn{local}, nil)
	t.Cleanup(func() { m.Close() })
	c := newConnection(n, m, local, sink.LocalAddr())
	if !c.establish() {
		t.Fatal("establish failed")
	}
	return c
}

func TestIncompleteMessagesArePruned(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.ConnectionTimeout = time.Minute
	cfg.ReassemblyTimeout = time.Second
	c := testConnection(t, cfg)

	packed, err := PackType(Unreliable, MessageTypeData)
	ttesting.MustNotError(t, "pack", err)
	first := WireHeader{ID: 3, PackedType: packed, Channel: 2, Length: 20, Fragment: 0}
	c.receive(first, make([]byte, 10))
	ttesting.AssertEqualInt(t, "pending", c.pendingReassembly(), 1)

	c.maintain(time.Now())
	ttesting.AssertEqualInt(t, "kept while fresh", c.pendingReassembly(), 1)

	c.maintain(time.Now().Add(2 * time.Second))
	ttesting.AssertEqualInt(t, "pruned", c.pendingReassembly(), 0)
	ttesting.AssertEqual(t, "lost", c.network.Statistics().TotalPacketsLost(), int64(1))
	ttesting.AssertEqual(t, "still connected", c.IsConnected(), true)
}

func TestEstablishOnce(t *testing.T) {
	c := testConnection(t, DefaultConfiguration())
	ttesting.AssertEqual(t, "second establish", c.establish(), false)
	ttesting.AssertEqual(t, "active", c.network.Statistics().ActiveConnections(), int64(1))
}

// control builds a single datagram control message as it arrives from the
// peer.
func control(t *testing.T, mt MessageType, fill func(w *buffer.MemoryBuffer) error) (WireHeader, []byte) {
	t.Helper()
	w := buffer.NewMemoryBuffer(0)
	defer w.Close()
	ttesting.MustNotError(t, "fill", fill(w))
	packed, err := PackType(Unreliable, mt)
	ttesting.MustNotError(t, "pack", err)
	payload := append([]byte(nil), w.Bytes()...)
	return WireHeader{PackedType: packed, Length: uint16(len(payload)), Fragment: PackFragment(0, true)}, payload
}

func ethernetConfiguration() Configuration {
	cfg := DefaultConfiguration()
	cfg.ConnectionTimeout = time.Minute
	cfg.Listen.MTU = MTUEthernet
	return cfg
}

func TestMSSOfferBelowSmallestMTUIgnored(t *testing.T) {
	c := testConnection(t, ethernetConfiguration())
	initial := MSS(ProtocolUDP, MTUEthernet)

	for _, offer := range []int{1, 0, MSS(ProtocolUDP, MTUSizes[0]) - 1} {
		c.receive(control(t, MessageTypeMssRequest, func(w *buffer.MemoryBuffer) error { return WriteMSS(w, offer) }))
		ttesting.AssertEqualInt(t, "mss after request", c.MSS(), initial)
		c.receive(control(t, MessageTypeMssAck, func(w *buffer.MemoryBuffer) error { return WriteMSS(w, offer) }))
		ttesting.AssertEqualInt(t, "mss after ack", c.MSS(), initial)
	}
	if c.SegmentSize() <= 0 {
		t.Fatalf("segment size %d", c.SegmentSize())
	}

	c.receive(control(t, MessageTypeMssRequest, func(w *buffer.MemoryBuffer) error { return WriteMSS(w, 600) }))
	ttesting.AssertEqualInt(t, "lowered", c.MSS(), 600)
	c.receive(control(t, MessageTypeMssAck, func(w *buffer.MemoryBuffer) error { return WriteMSS(w, 1000) }))
	ttesting.AssertEqualInt(t, "never raised", c.MSS(), 600)
	c.receive(control(t, MessageTypeConnectionResponse, func(w *buffer.MemoryBuffer) error {
		return WriteHandshake(w, Handshake{Version: ProtocolVersion, MSS: 1, Session: c.session})
	}))
	ttesting.AssertEqualInt(t, "handshake offer", c.MSS(), 600)
}

func TestRequestMSSBounds(t *testing.T) {
	c := testConnection(t, ethernetConfiguration())
	ttesting.AssertErrorIs(t, "too small", c.RequestMSS(MSS(ProtocolUDP, MTUSizes[0])-1), ErrInvalidConfiguration)
	ttesting.MustNotError(t, "smallest class", c.RequestMSS(MSS(ProtocolUDP, MTUSizes[0])))
	ttesting.AssertEqualInt(t, "applies on ack", c.MSS(), MSS(ProtocolUDP, MTUEthernet))
}

func TestDisposalIsTerminal(t *testing.T) {
	c := testConnection(t, ethernetConfiguration())
	ttesting.MustNotError(t, "close", c.Close())
	ttesting.AssertErrorIs(t, "second close", c.Close(), ErrAlreadyDisposed)

	m := NewMessage(MessageTypeData, Reliable, 0)
	defer m.Close()
	ttesting.MustNotError(t, "write", m.WriteString("late"))
	ttesting.AssertErrorIs(t, "send", c.Send(m), ErrAlreadyDisposed)
	ttesting.AssertEqual(t, "try send", c.TrySend(m), false)
	ttesting.AssertErrorIs(t, "request mss", c.RequestMSS(600), ErrAlreadyDisposed)
	ttesting.AssertEqual(t, "connected", c.IsConnected(), false)
	ttesting.AssertEqual(t, "disposed", c.IsDisposed(), true)
}

func TestFailedWriteLeavesReliableMessageQueued(t *testing.T) {
	cfg := ethernetConfiguration()
	cfg.MaxRetransmits = 2
	c := testConnection(t, cfg)
	ttesting.MustNotError(t, "close socket", c.socket.Close())

	payload := make([]byte, c.SegmentSize()+1)
	reliable := NewMessage(MessageTypeData, Reliable, 0)
	defer reliable.Close()
	_, err := reliable.Write(payload)
	ttesting.MustNotError(t, "write", err)
	ttesting.MustNotError(t, "reliable send", c.Send(reliable))
	ttesting.AssertEqualInt(t, "queued fragments", c.window.Len(), 2)

	unreliable := NewMessage(MessageTypeData, Unreliable, 0)
	defer unreliable.Close()
	ttesting.MustNotError(t, "write", unreliable.WriteString("x"))
	if err := c.Send(unreliable); err == nil {
		t.Error("unreliable send on a closed socket succeeded")
	}

	now := time.Now()
	for i := 0; i < 10 && !c.IsDisposed(); i++ {
		now = now.Add(time.Minute / 2)
		c.lastReceived.Store(now.UnixNano())
		c.maintain(now)
	}
	ttesting.AssertErrorIs(t, "reason", c.Err(), ErrPeerUnresponsive)
	ttesting.AssertEqualInt(t, "window", c.window.Len(), 0)
}
