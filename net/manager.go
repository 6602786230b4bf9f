package net

import (
	"context"
	gonet "net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/net/trace"
	"golang.org/x/sync/errgroup"

	"github.com/intersectFR/Intersect-Engine-FR/buffer"
)

// maximumDatagram bounds the read buffer of a socket.
const maximumDatagram = 1 << 16

// ConnectionManager owns the sockets of one endpoint of a Network and runs
// a receive loop per socket. Datagrams are decrypted, parsed and routed to
// the connection of their remote address; a ConnectionRequest from an
// unknown address is offered to the network for admission.
type ConnectionManager struct {
	network *Network
	cfg     ConnectionConfiguration
	listen  bool
	sockets []gonet.PacketConn
	remotes []gonet.Addr

	events    trace.EventLog
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewConnectionManager wraps already opened sockets. When dialing, remotes
// holds the resolved server addresses; the first one is used.
func NewConnectionManager(network *Network, cfg ConnectionConfiguration, listen bool, sockets []gonet.PacketConn, remotes []gonet.Addr) *ConnectionManager {
	role := "client"
	if listen {
		role = "server"
	}
	m := &ConnectionManager{
		network: network,
		cfg:     cfg,
		listen:  listen,
		sockets: sockets,
		remotes: remotes,
		events:  trace.NewEventLog("intersect."+role, cfg.Protocol.String()+"://"+cfg.Address),
	}
	for _, s := range sockets {
		m.events.Printf("socket %s", s.LocalAddr())
	}
	return m
}

// LocalAddrs returns the bound address of every socket.
func (m *ConnectionManager) LocalAddrs() []gonet.Addr {
	addrs := make([]gonet.Addr, len(m.sockets))
	for i, s := range m.sockets {
		addrs[i] = s.LocalAddr()
	}
	return addrs
}

// Remote returns the dial target, or nil for a listening manager.
func (m *ConnectionManager) Remote() gonet.Addr {
	if len(m.remotes) == 0 {
		return nil
	}
	return m.remotes[0]
}

// Run receives on every socket until ctx is done or the sockets are
// closed.
func (m *ConnectionManager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range m.sockets {
		s := s
		g.Go(func() error { return m.receiveLoop(ctx, s) })
	}
	return g.Wait()
}

func (m *ConnectionManager) receiveLoop(ctx context.Context, socket gonet.PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		socket.SetReadDeadline(time.Now())
	})
	defer stop()

	glog.V(2).Infof("receiving on %s", socket.LocalAddr())
	buf := make([]byte, maximumDatagram)
	for {
		n, addr, err := socket.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || m.closed.Load() || errors.Is(err, gonet.ErrClosed) {
				return nil
			}
			glog.Warningf("reading from %s: %v", socket.LocalAddr(), err)
			m.events.Errorf("read: %v", err)
			continue
		}
		if !m.network.State().IsRunning() {
			return nil
		}
		m.handle(socket, addr, buf[:n])
	}
}

func (m *ConnectionManager) handle(socket gonet.PacketConn, addr gonet.Addr, datagram []byte) {
	stats := &m.network.stats
	stats.AddBytesReceived(int64(len(datagram)))
	stats.IncrementPacketsReceived()

	plain, err := m.network.cipher.Decrypt(datagram)
	if err != nil {
		glog.V(2).Infof("datagram from %s dropped: %v", addr, err)
		return
	}
	h, payload, err := DecodeHeader(plain)
	if err != nil {
		glog.V(2).Infof("datagram from %s dropped: %v", addr, err)
		return
	}

	if h.MessageType() == MessageTypeDiscoveryRequest {
		if m.listen {
			m.sendTo(socket, addr, MessageTypeDiscoveryResponse, func(w *buffer.MemoryBuffer) error {
				return WriteReason(w, m.network.cfg.Listen.DiscoveryName)
			})
		}
		return
	}
	if c := m.network.ConnectionByRemote(addr); c != nil && c.manager == m {
		// A request for another session means the peer lost its side of
		// the connection and is starting over with fresh streams.
		if m.listen && h.MessageType() == MessageTypeConnectionRequest && c.isNewSession(payload) {
			glog.Infof("%s: peer started a new session", c)
			retired := c.retiredSessions()
			c.dispose(errors.Wrap(ErrPeerDisconnected, "peer started a new session"), false)
			m.network.admit(m, socket, addr, payload, retired)
			return
		}
		c.receive(h, payload)
		return
	}

	switch t := h.MessageType(); {
	case t == MessageTypeConnectionRequest && m.listen:
		m.network.admit(m, socket, addr, payload, nil)
	case t == MessageTypeDiscoveryResponse:
		name, _ := readReason(m.network, payload)
		glog.Infof("discovered %q at %s", name, addr)
		m.events.Printf("discovered %q at %s", name, addr)
	default:
		glog.V(2).Infof("%s from unknown peer %s dropped", t, addr)
	}
}

func readReason(n *Network, payload []byte) (string, error) {
	r := buffer.MemoryBufferFrom(payload, buffer.WithBlockPool(n.blocks))
	defer r.Close()
	return ReadReason(r)
}

// sendTo writes a transport message to an address that has no connection.
func (m *ConnectionManager) sendTo(socket gonet.PacketConn, addr gonet.Addr, t MessageType, fill func(w *buffer.MemoryBuffer) error) {
	datagram, err := sealControl(m.network, t, fill)
	if err != nil {
		glog.V(2).Infof("%s to %s: %v", t, addr, err)
		return
	}
	n, err := socket.WriteTo(datagram, addr)
	if err != nil {
		glog.V(2).Infof("%s to %s: %v", t, addr, err)
		return
	}
	m.network.stats.AddBytesSent(int64(n))
	m.network.stats.IncrementPacketsSent()
}

// refuse tells a peer it will not be admitted.
func (m *ConnectionManager) refuse(socket gonet.PacketConn, addr gonet.Addr, reason string) {
	glog.Warningf("refusing %s: %s", addr, reason)
	m.events.Printf("refused %s: %s", addr, reason)
	m.sendTo(socket, addr, MessageTypeTerminate, func(w *buffer.MemoryBuffer) error {
		return WriteReason(w, reason)
	})
}

// Discover sends a discovery request to addr from the first socket.
// Responses are logged as they arrive.
func (m *ConnectionManager) Discover(addr gonet.Addr) {
	if len(m.sockets) == 0 {
		return
	}
	m.sendTo(m.sockets[0], addr, MessageTypeDiscoveryRequest, nil)
}

// Close closes every socket. Receive loops return once their pending read
// fails.
func (m *ConnectionManager) Close() error {
	var first error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		for _, s := range m.sockets {
			if err := s.Close(); err != nil && first == nil {
				first = errors.Wrapf(err, "closing %s", s.LocalAddr())
			}
		}
		m.events.Printf("closed")
		m.events.Finish()
	})
	return first
}

// sealControl encodes a single datagram transport message.
func sealControl(n *Network, t MessageType, fill func(w *buffer.MemoryBuffer) error) ([]byte, error) {
	w := buffer.NewMemoryBuffer(0, buffer.WithBlockPool(n.blocks))
	defer w.Close()
	if fill != nil {
		if err := fill(w); err != nil {
			return nil, errors.Wrapf(err, "encoding %s", t)
		}
	}
	packed := uint8(Unreliable)<<TransmissionModeShift | uint8(t)&MessageTypeMask
	s := Segment{
		Header: WireHeader{
			PackedType: packed,
			Length:     uint16(w.Len()),
			Fragment:   PackFragment(0, true),
		},
		Payload: w.Bytes(),
	}
	return n.cipher.Encrypt(s.Encode())
}
