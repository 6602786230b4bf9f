package net

import (
	"crypto/rand"
	"encoding/hex"
	"slices"
	gonet "net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/intersectFR/Intersect-Engine-FR/buffer"
)

// ConnectionID identifies a connection for its whole lifetime.
type ConnectionID [16]byte

func newConnectionID() ConnectionID {
	var id ConnectionID
	if _, err := rand.Read(id[:]); err != nil {
		glog.Fatalf("could not generate connection id: %v", err)
	}
	return id
}

func (id ConnectionID) String() string { return hex.EncodeToString(id[:]) }

type connectionState int32

const (
	connCreated connectionState = iota
	connConnected
	connDisposed
)

// Connection is one peer of a Network. Connections are created by the
// network, during Connect on a client and on admission on a server.
type Connection struct {
	id      ConnectionID
	network *Network
	manager *ConnectionManager
	socket  gonet.PacketConn
	remote  gonet.Addr
	created time.Time

	state        atomic.Int32
	mss          atomic.Int32
	latency      atomic.Int64
	lastReceived atomic.Int64
	lastPing     atomic.Int64

	// session is the id of the client connection the handshake was made
	// for: c.id on a client, the peer's on a server.
	session ConnectionID
	// retired are sessions this remote address used before, newest last.
	retired []ConnectionID

	// sendMu keeps the ids of a stream in the order they hit the wire.
	sendMu  sync.Mutex
	sendIDs map[streamKey]uint32
	window  *sendWindow

	recvMu     sync.Mutex
	streams    map[streamKey]*receiveStream
	reassembly map[reassemblyKey]*FragmentReassembler

	established    chan struct{}
	disposed       chan struct{}
	disconnectAck  chan struct{}
	disconnectOnce sync.Once
	err            error
}

func newConnection(n *Network, m *ConnectionManager, socket gonet.PacketConn, remote gonet.Addr) *Connection {
	now := time.Now()
	id := newConnectionID()
	c := &Connection{
		id:            id,
		session:       id,
		network:       n,
		manager:       m,
		socket:        socket,
		remote:        remote,
		created:       now,
		sendIDs:       make(map[streamKey]uint32),
		window:        newSendWindow(n.cfg),
		streams:       make(map[streamKey]*receiveStream),
		reassembly:    make(map[reassemblyKey]*FragmentReassembler),
		established:   make(chan struct{}),
		disposed:      make(chan struct{}),
		disconnectAck: make(chan struct{}),
	}
	c.mss.Store(int32(MSS(m.cfg.Protocol, m.cfg.MTU)))
	c.lastReceived.Store(now.UnixNano())
	c.lastPing.Store(now.UnixNano())
	return c
}

func (c *Connection) ID() ConnectionID       { return c.id }
func (c *Connection) Network() *Network      { return c.network }
func (c *Connection) RemoteAddr() gonet.Addr { return c.remote }
func (c *Connection) LocalAddr() gonet.Addr  { return c.socket.LocalAddr() }
func (c *Connection) CreatedAt() time.Time   { return c.created }
func (c *Connection) Latency() time.Duration { return time.Duration(c.latency.Load()) }

func (c *Connection) connState() connectionState { return connectionState(c.state.Load()) }

// IsConnected reports whether the handshake completed and the connection
// has not been disposed.
func (c *Connection) IsConnected() bool { return c.connState() == connConnected }

// IsDisposed reports whether the connection is closed for good.
func (c *Connection) IsDisposed() bool { return c.connState() == connDisposed }

// Err returns why the connection was disposed. It is nil while the
// connection is alive and after a local Close.
func (c *Connection) Err() error {
	select {
	case <-c.disposed:
		return c.err
	default:
		return nil
	}
}

// MSS returns the negotiated datagram payload size.
func (c *Connection) MSS() int { return int(c.mss.Load()) }

// SegmentSize is the number of message bytes that fit in one datagram.
func (c *Connection) SegmentSize() int {
	return c.MSS() - HeaderSize - c.network.cipher.Overhead()
}

// MaximumMessageLength is the longest message Send accepts.
func (c *Connection) MaximumMessageLength() int {
	return MaximumPayload(c.SegmentSize())
}

func (c *Connection) String() string {
	return c.id.String()[:8] + "@" + c.remote.String()
}

// Send transmits m. For reliable modes a nil error means the datagrams
// were queued for delivery, not that the peer received them; socket
// errors are retried until MaxRetransmits is exhausted. For other modes
// a socket error is returned. m is not retained and may be closed once
// Send returns.
func (c *Connection) Send(m *Message) error {
	switch c.connState() {
	case connDisposed:
		return ErrAlreadyDisposed
	case connCreated:
		return ErrNotConnected
	}
	return c.send(m.Type, m.Mode, m.Channel, m.Bytes())
}

// TrySend is Send reporting only success.
func (c *Connection) TrySend(m *Message) bool {
	err := c.Send(m)
	if err != nil {
		glog.V(2).Infof("%s: send %s: %v", c, m.Type, err)
	}
	return err == nil
}

func (c *Connection) send(t MessageType, mode TransmissionMode, channel uint8, payload []byte) error {
	seg := c.SegmentSize()
	n, err := FragmentCount(len(payload), seg)
	if err != nil {
		return err
	}
	reliable := mode.IsReliable()

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if reliable && !c.window.HasRoom(n) {
		return errors.Wrapf(ErrSendWindowFull, "%s: %d datagrams pending", c, c.window.Len())
	}
	sk := streamKey{channel: channel, mode: mode}
	id := c.sendIDs[sk]
	segments, err := Split(id, mode, t, channel, payload, seg)
	if err != nil {
		return err
	}
	wires := make([][]byte, len(segments))
	for i, s := range segments {
		if wires[i], err = c.network.cipher.Encrypt(s.Encode()); err != nil {
			return errors.Wrapf(err, "sealing fragment %d of message %d", i, id)
		}
	}
	c.sendIDs[sk] = id + 1

	if !reliable {
		for _, w := range wires {
			if err := c.write(w); err != nil {
				return err
			}
		}
		return nil
	}

	// Every fragment is in the window before the first write, so a
	// failed write leaves the message to retransmission instead of
	// half sent.
	now := time.Now()
	for i, w := range wires {
		c.window.Track(datagramKey{channel: channel, mode: mode, id: id, fragment: uint8(i)}, w, now)
	}
	for i, w := range wires {
		if err := c.write(w); err != nil {
			glog.V(2).Infof("%s: fragment %d of message %d left to retransmission: %v", c, i, id, err)
		}
	}
	return nil
}

func (c *Connection) write(datagram []byte) error {
	n, err := c.socket.WriteTo(datagram, c.remote)
	if err != nil {
		return errors.Wrapf(err, "writing to %s", c.remote)
	}
	c.network.stats.AddBytesSent(int64(n))
	c.network.stats.IncrementPacketsSent()
	return nil
}

// sendControl writes a single datagram transport message.
func (c *Connection) sendControl(t MessageType, fill func(w *buffer.MemoryBuffer) error) error {
	datagram, err := sealControl(c.network, t, fill)
	if err != nil {
		return err
	}
	glog.V(3).Infof("%s: -> %s", c, t)
	return c.write(datagram)
}

func (c *Connection) sendHandshake(t MessageType) error {
	return c.sendControl(t, func(w *buffer.MemoryBuffer) error {
		return WriteHandshake(w, Handshake{Version: ProtocolVersion, MSS: c.MSS(), Session: c.session})
	})
}

// isNewSession reports whether a ConnectionRequest payload comes from a
// different client connection than the one this connection was admitted
// for. Unreadable payloads are not new sessions.
func (c *Connection) isNewSession(payload []byte) bool {
	r := buffer.MemoryBufferFrom(payload, buffer.WithBlockPool(c.network.blocks))
	defer r.Close()
	hs, err := ReadHandshake(r)
	return err == nil && hs.Session != c.session && !slices.Contains(c.retired, hs.Session)
}

// retiredSessions returns the sessions a replacement connection must not
// be replaced by.
func (c *Connection) retiredSessions() []ConnectionID {
	keep := c.retired[max(0, len(c.retired)-(maximumRetiredSessions-1)):]
	return append(slices.Clone(keep), c.session)
}

const maximumRetiredSessions = 8

// minimumMSS is the MSS of the smallest MTU class.
func (c *Connection) minimumMSS() int {
	return MSS(c.manager.cfg.Protocol, MTUSizes[0])
}

// agreeMSS lowers the MSS to what the peer offers. Offers below the
// smallest MTU class or above the current MSS are ignored. It returns the
// MSS in effect.
func (c *Connection) agreeMSS(offer int) int {
	for {
		cur := c.mss.Load()
		if offer < c.minimumMSS() || offer >= int(cur) {
			return int(cur)
		}
		if c.mss.CompareAndSwap(cur, int32(offer)) {
			return offer
		}
	}
}

func (c *Connection) sendPing(now time.Time) error {
	c.lastPing.Store(now.UnixNano())
	return c.sendControl(MessageTypePing, func(w *buffer.MemoryBuffer) error {
		return WritePing(w, now)
	})
}

// RequestMSS asks the peer to lower the segment size to mss. The new size
// applies once the peer acknowledges it.
func (c *Connection) RequestMSS(mss int) error {
	switch c.connState() {
	case connDisposed:
		return ErrAlreadyDisposed
	case connCreated:
		return ErrNotConnected
	}
	if low := c.minimumMSS(); mss < low {
		return errors.Wrapf(ErrInvalidConfiguration, "mss %d below %d", mss, low)
	}
	return c.sendControl(MessageTypeMssRequest, func(w *buffer.MemoryBuffer) error {
		return WriteMSS(w, mss)
	})
}

func (c *Connection) acknowledge(h WireHeader) {
	entry := AckEntry{Channel: h.Channel, Mode: h.TransmissionMode(), ID: h.ID, Fragment: uint8(h.FragmentIndex())}
	err := c.sendControl(MessageTypeAcknowledge, func(w *buffer.MemoryBuffer) error {
		return WriteAcknowledge(w, []AckEntry{entry})
	})
	if err != nil {
		glog.V(2).Infof("%s: ack %d/%d: %v", c, h.ID, h.FragmentIndex(), err)
	}
}

// establish completes the handshake.
func (c *Connection) establish() bool {
	if !c.state.CompareAndSwap(int32(connCreated), int32(connConnected)) {
		return false
	}
	close(c.established)
	c.network.connected(c)
	return true
}

// Close tells the peer and disposes the connection.
func (c *Connection) Close() error {
	if !c.dispose(nil, true) {
		return ErrAlreadyDisposed
	}
	return nil
}

// dispose releases the connection and removes it from its network. It
// reports false when the connection was already disposed.
func (c *Connection) dispose(reason error, notifyPeer bool) bool {
	var prev connectionState
	for {
		cur := c.state.Load()
		if connectionState(cur) == connDisposed {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(connDisposed)) {
			prev = connectionState(cur)
			break
		}
	}
	if notifyPeer && prev == connConnected {
		if err := c.sendControl(MessageTypeDisconnect, nil); err != nil {
			glog.V(2).Infof("%s: disconnect: %v", c, err)
		}
	}
	c.err = reason
	close(c.disposed)

	c.recvMu.Lock()
	for k, r := range c.reassembly {
		r.Close()
		delete(c.reassembly, k)
	}
	for _, s := range c.streams {
		s.Close()
	}
	c.recvMu.Unlock()
	if lost := c.window.Clear(); lost > 0 {
		c.network.stats.AddPacketsLost(int64(lost))
	}

	c.network.removeConnection(c, prev == connConnected, reason)
	return true
}

func (c *Connection) stream(k streamKey) *receiveStream {
	s, ok := c.streams[k]
	if !ok {
		s = newReceiveStream(k.mode)
		c.streams[k] = s
	}
	return s
}

// receive handles one decrypted datagram from the peer. Datagrams of a
// connection are received by one goroutine.
func (c *Connection) receive(h WireHeader, payload []byte) {
	if c.IsDisposed() {
		return
	}
	c.lastReceived.Store(time.Now().UnixNano())
	if !h.MessageType().IsApplication() {
		c.receiveControl(h, payload)
		return
	}
	if !c.IsConnected() {
		glog.V(2).Infof("%s: %s before handshake completed, dropped", c, h)
		return
	}
	mode := h.TransmissionMode()
	if !mode.Valid() {
		glog.V(2).Infof("%s: %s: invalid mode, dropped", c, h)
		return
	}
	reliable := mode.IsReliable()
	sk := streamKey{channel: h.Channel, mode: mode}

	c.recvMu.Lock()
	s := c.stream(sk)
	switch s.Admit(h.ID) {
	case admitDrop:
		c.recvMu.Unlock()
		glog.V(2).Infof("%s: %s: stale or too far ahead, dropped", c, h)
		return
	case admitDuplicate:
		c.recvMu.Unlock()
		if reliable {
			c.acknowledge(h)
		}
		return
	}

	data := payload
	if !h.IsSingle() {
		rk := reassemblyKey{streamKey: sk, id: h.ID}
		r, ok := c.reassembly[rk]
		if !ok {
			var err error
			if r, err = ReassemblerFor(h, len(payload)); err != nil {
				c.recvMu.Unlock()
				glog.V(2).Infof("%s: %s: %v", c, h, err)
				return
			}
			c.reassembly[rk] = r
		}
		if err := r.Add(h.Fragment, payload); err != nil {
			c.recvMu.Unlock()
			if reliable && errors.Is(err, ErrDuplicateFragment) {
				c.acknowledge(h)
			}
			glog.V(2).Infof("%s: %s: %v", c, h, err)
			return
		}
		if !r.IsComplete() {
			c.recvMu.Unlock()
			if reliable {
				c.acknowledge(h)
			}
			return
		}
		var err error
		data, err = r.Assemble()
		r.Close()
		delete(c.reassembly, rk)
		if err != nil {
			c.recvMu.Unlock()
			c.network.stats.IncrementPacketsLost()
			glog.V(2).Infof("%s: %v", c, err)
			return
		}
	} else if int(h.Length) != len(payload) {
		c.recvMu.Unlock()
		glog.V(2).Infof("%s: %s: carries %d bytes", c, h, len(payload))
		return
	}

	ready := s.Complete(h.ID, receivedMessage(c.network.blocks, h, data, c))
	c.recvMu.Unlock()

	if reliable {
		c.acknowledge(h)
	}
	for _, m := range ready {
		c.network.deliver(m)
	}
}

func (c *Connection) receiveControl(h WireHeader, payload []byte) {
	t := h.MessageType()
	glog.V(3).Infof("%s: <- %s", c, t)
	r := buffer.MemoryBufferFrom(payload, buffer.WithBlockPool(c.network.blocks))
	defer r.Close()

	var err error
	switch t {
	case MessageTypePing:
		err = c.sendControl(MessageTypePong, func(w *buffer.MemoryBuffer) error {
			_, err := w.Write(payload)
			return err
		})
	case MessageTypePong:
		var sent time.Time
		if sent, err = ReadPing(r); err == nil {
			rtt := time.Since(sent)
			c.latency.Store(int64(rtt))
			c.network.stats.setLatency(rtt)
		}
	case MessageTypeMssRequest:
		var mss int
		if mss, err = ReadMSS(r); err == nil {
			agreed := c.agreeMSS(mss)
			err = c.sendControl(MessageTypeMssAck, func(w *buffer.MemoryBuffer) error {
				return WriteMSS(w, agreed)
			})
		}
	case MessageTypeMssAck:
		var mss int
		if mss, err = ReadMSS(r); err == nil {
			c.agreeMSS(mss)
		}
	case MessageTypeConnectionRequest:
		// The response was lost or the request duplicated; requests for
		// another session are handled by the manager.
		if c.IsConnected() {
			err = c.sendHandshake(MessageTypeConnectionResponse)
		}
	case MessageTypeConnectionResponse:
		var hs Handshake
		if hs, err = ReadHandshake(r); err != nil {
			break
		}
		if hs.Session != c.session {
			glog.V(2).Infof("%s: response for session %s ignored", c, hs.Session)
			break
		}
		if hs.Version != ProtocolVersion {
			c.dispose(errors.Wrapf(ErrConnectionRefused, "server speaks version %d", hs.Version), false)
			return
		}
		c.agreeMSS(hs.MSS)
		c.establish()
	case MessageTypeDisconnect:
		err = c.sendControl(MessageTypeDisconnectAcknowledge, nil)
		c.dispose(ErrPeerDisconnected, false)
	case MessageTypeDisconnectAcknowledge:
		c.disconnectOnce.Do(func() { close(c.disconnectAck) })
	case MessageTypeTerminate:
		reason, _ := ReadReason(r)
		c.dispose(errors.Wrapf(ErrConnectionRefused, "terminated by peer: %q", reason), false)
		return
	case MessageTypeAcknowledge:
		var entries []AckEntry
		if entries, err = ReadAcknowledge(r); err == nil {
			now := time.Now()
			for _, e := range entries {
				c.window.Ack(e.key(), now)
			}
		}
	case MessageTypeError:
		reason, _ := ReadReason(r)
		glog.Warningf("%s: peer reported error: %s", c, reason)
	case MessageTypeDiscoveryResponse:
		name, _ := ReadReason(r)
		glog.Infof("%s: discovered %q", c, name)
	default:
		glog.V(2).Infof("%s: %s ignored", c, h)
	}
	if err != nil {
		glog.V(2).Infof("%s: %s: %v", c, t, err)
	}
}

// maintain runs the periodic work of the connection: timeouts,
// retransmission, keepalive and reassembly pruning.
func (c *Connection) maintain(now time.Time) {
	st := c.connState()
	if st == connDisposed {
		return
	}
	cfg := &c.network.cfg
	if silent := now.Sub(time.Unix(0, c.lastReceived.Load())); silent > cfg.ConnectionTimeout {
		glog.Warningf("%s: no datagram for %s, dropping", c, silent.Round(time.Millisecond))
		c.dispose(errors.Wrapf(ErrConnectionTimedOut, "silent for %s", silent), false)
		return
	}
	if st != connConnected {
		return
	}

	resend, exhausted := c.window.Due(now)
	if exhausted {
		glog.Warningf("%s: peer stopped acknowledging, dropping", c)
		c.dispose(ErrPeerUnresponsive, true)
		return
	}
	if len(resend) > 0 {
		c.network.stats.AddPacketsLost(int64(len(resend)))
		glog.V(3).Infof("%s: retransmitting %d datagrams", c, len(resend))
	}
	for _, w := range resend {
		if err := c.write(w); err != nil {
			glog.V(2).Infof("%s: retransmit: %v", c, err)
		}
	}

	if now.Sub(time.Unix(0, c.lastPing.Load())) >= cfg.PingInterval {
		if err := c.sendPing(now); err != nil {
			glog.V(2).Infof("%s: ping: %v", c, err)
		}
	}

	c.recvMu.Lock()
	var pruned int
	for k, r := range c.reassembly {
		if now.Sub(r.LastActivity()) > cfg.ReassemblyTimeout {
			r.Close()
			delete(c.reassembly, k)
			pruned++
		}
	}
	c.recvMu.Unlock()
	if pruned > 0 {
		c.network.stats.AddPacketsLost(int64(pruned))
		glog.V(2).Infof("%s: discarded %d incomplete messages", c, pruned)
	}
}

// pendingReassembly is the number of partially received messages.
func (c *Connection) pendingReassembly() int {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	return len(c.reassembly)
}
