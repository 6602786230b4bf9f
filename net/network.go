package net

import (
	"context"
	gonet "net"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/intersectFR/Intersect-Engine-FR/buffer"
	"github.com/intersectFR/Intersect-Engine-FR/encryption"
	"github.com/intersectFR/Intersect-Engine-FR/pool"
)

// Handler receives the events of a Network. Callbacks run on receive and
// maintenance goroutines and must not block for long.
type Handler interface {
	OnConnect(c *Connection)
	// OnDisconnect is called once per connection that completed its
	// handshake. reason is nil after a local Close.
	OnDisconnect(c *Connection, reason error)
	// OnMessage is called for every delivered application message. The
	// message is closed when the callback returns.
	OnMessage(m *Message)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Connect    func(c *Connection)
	Disconnect func(c *Connection, reason error)
	Message    func(m *Message)
}

func (h HandlerFuncs) OnConnect(c *Connection) {
	if h.Connect != nil {
		h.Connect(c)
	}
}

func (h HandlerFuncs) OnDisconnect(c *Connection, reason error) {
	if h.Disconnect != nil {
		h.Disconnect(c, reason)
	}
}

func (h HandlerFuncs) OnMessage(m *Message) {
	if h.Message != nil {
		h.Message(m)
	}
}

// Option configures a Network.
type Option func(*Network)

func WithHandler(h Handler) Option {
	return func(n *Network) { n.handler = h }
}

// WithCipher encrypts every datagram with a. Both peers must use the same
// algorithm and key. The caller keeps ownership of a.
func WithCipher(a encryption.Algorithm) Option {
	return func(n *Network) { n.cipher = a }
}

// WithBlockPool makes messages rent their storage from bp.
func WithBlockPool(bp *pool.BlockPool) Option {
	return func(n *Network) { n.blocks = bp }
}

// run is one Listen or Connect session, ended by Shutdown or Close.
type run struct {
	cancel   context.CancelFunc
	group    *errgroup.Group
	done     chan struct{}
	finish   sync.Once
	err      error
	stopCtx  func() bool
	managers []*ConnectionManager
}

func (r *run) end(err error) {
	r.finish.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Network is the top level transport object. A Network is either a
// server, started with Listen, or a client, started with Connect. After
// Shutdown it may be started again; after Close it is unusable.
type Network struct {
	registry *Registry
	cfg      Configuration
	handler  Handler
	cipher   encryption.Algorithm
	blocks   *pool.BlockPool

	sm    *stateMachine
	stats Statistics

	mu       sync.RWMutex
	conns    map[ConnectionID]*Connection
	byRemote map[string]*Connection
	server   *Connection
	dialer   *ConnectionManager
	current  *run
}

// New returns an initialized network using the protocols in registry.
func New(registry *Registry, cfg Configuration, opts ...Option) (*Network, error) {
	if registry == nil {
		return nil, errors.Wrap(ErrInvalidConfiguration, "nil registry")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Network{
		registry: registry,
		cfg:      cfg,
		handler:  HandlerFuncs{},
		blocks:   pool.Shared,
		sm:       newStateMachine(defaultTransitions()),
		conns:    make(map[ConnectionID]*Connection),
		byRemote: make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.cipher == nil {
		glog.Warning("network has no cipher; datagrams are sent in the clear")
		n.cipher = encryption.Noop{}
	}
	n.sm.onEnter(Disposed, func(prev NetworkState) {
		glog.Infof("network disposed (was %s)", prev)
	})
	if _, err := n.sm.Transition(Initialized); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Network) State() NetworkState         { return n.sm.State() }
func (n *Network) Configuration() Configuration { return n.cfg }

// Statistics returns the live counters of the network.
func (n *Network) Statistics() *Statistics { return &n.stats }

// CreateMessage returns an empty message whose storage comes from the
// network's block pool.
func (n *Network) CreateMessage(t MessageType, mode TransmissionMode, channel uint8) *Message {
	return newMessage(n.blocks, t, mode, channel)
}

// Connections returns the current connections, in no particular order.
func (n *Network) Connections() []*Connection {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Connection, 0, len(n.conns))
	for _, c := range n.conns {
		out = append(out, c)
	}
	return out
}

func (n *Network) Connection(id ConnectionID) (*Connection, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.conns[id]
	return c, ok
}

// ConnectionByRemote returns the connection to addr, or nil.
func (n *Network) ConnectionByRemote(addr gonet.Addr) *Connection {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.byRemote[addr.String()]
}

// LocalAddrs returns the addresses the running network is bound to.
func (n *Network) LocalAddrs() []gonet.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.current == nil {
		return nil
	}
	var addrs []gonet.Addr
	for _, m := range n.current.managers {
		addrs = append(addrs, m.LocalAddrs()...)
	}
	return addrs
}

// Listen binds cfg.Listen and accepts peers until ctx is done or Shutdown
// is called.
func (n *Network) Listen(ctx context.Context) error {
	if err := n.sm.TransitionFrom(Initialized, Listening); err != nil {
		return err
	}
	m, err := n.openManager(ctx, n.cfg.Listen.ConnectionConfiguration, true)
	if err != nil {
		n.abort()
		return err
	}
	n.start(m, context.AfterFunc(ctx, func() {
		if err := n.Shutdown(context.Background()); err != nil {
			glog.V(2).Infof("shutdown after listen context ended: %v", err)
		}
	}))
	glog.Infof("listening on %v", m.LocalAddrs())
	return nil
}

// Connect dials cfg.Connect and performs the handshake. ctx bounds the
// handshake only.
func (n *Network) Connect(ctx context.Context) error {
	if err := n.sm.TransitionFrom(Initialized, Listening); err != nil {
		return err
	}
	m, err := n.openManager(ctx, n.cfg.Connect, false)
	if err != nil {
		n.abort()
		return err
	}
	if m.Remote() == nil {
		m.Close()
		n.abort()
		return errors.Wrapf(ErrInvalidConfiguration, "no address to dial for %s", n.cfg.Connect.Address)
	}
	n.mu.Lock()
	n.dialer = m
	n.mu.Unlock()
	n.start(m, nil)

	c, err := n.handshake(ctx, m)
	if err != nil {
		n.Shutdown(context.Background())
		return err
	}
	if err := n.sm.TransitionFrom(Listening, Connected); err != nil {
		c.dispose(err, true)
		return err
	}
	glog.Infof("connected to %s", m.Remote())
	return nil
}

func (n *Network) openManager(ctx context.Context, cc ConnectionConfiguration, listen bool) (*ConnectionManager, error) {
	factory, err := n.registry.Lookup(cc.Protocol)
	if err != nil {
		return nil, err
	}
	m, err := factory(ctx, n, cc, listen)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s %s", cc.Protocol, cc.Address)
	}
	return m, nil
}

// abort returns a network whose start failed to Initialized.
func (n *Network) abort() {
	n.sm.Transition(ShutdownRequested)
	n.sm.Transition(Initialized)
}

func (n *Network) start(m *ConnectionManager, stopCtx func() bool) *run {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	r := &run{
		cancel:   cancel,
		group:    g,
		done:     make(chan struct{}),
		stopCtx:  stopCtx,
		managers: []*ConnectionManager{m},
	}
	g.Go(func() error { return m.Run(gctx) })
	g.Go(func() error { return n.maintain(gctx) })

	n.mu.Lock()
	n.current = r
	n.mu.Unlock()
	n.stats.setListeners(int64(len(m.sockets)))
	return r
}

// handshake creates the connection to the server and repeats the
// connection request until it is answered.
func (n *Network) handshake(ctx context.Context, m *ConnectionManager) (*Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Connect.Timeout)
	defer cancel()

	c := newConnection(n, m, m.sockets[0], m.Remote())
	n.addConnection(c)
	n.mu.Lock()
	n.server = c
	n.mu.Unlock()

	ticker := time.NewTicker(n.cfg.HandshakeRetryInterval)
	defer ticker.Stop()
	for {
		if err := c.sendHandshake(MessageTypeConnectionRequest); err != nil {
			glog.V(2).Infof("%s: connection request: %v", c, err)
		}
		select {
		case <-c.established:
			return c, nil
		case <-c.disposed:
			if err := c.Err(); err != nil {
				return nil, err
			}
			return nil, ErrConnectionRefused
		case <-ctx.Done():
			err := ctx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				err = errors.Wrapf(ErrConnectTimeout, "%s after %s", m.Remote(), n.cfg.Connect.Timeout)
			}
			c.dispose(err, false)
			return nil, err
		case <-ticker.C:
		}
	}
}

// admit answers a connection request from an unknown address. retired
// lists the earlier sessions of addr, whose late requests are not admitted.
func (n *Network) admit(m *ConnectionManager, socket gonet.PacketConn, addr gonet.Addr, payload []byte, retired []ConnectionID) {
	r := buffer.MemoryBufferFrom(payload, buffer.WithBlockPool(n.blocks))
	hs, err := ReadHandshake(r)
	r.Close()
	if err != nil {
		glog.V(2).Infof("connection request from %s dropped: %v", addr, err)
		return
	}
	if hs.Version != ProtocolVersion {
		m.refuse(socket, addr, "unsupported protocol version")
		return
	}
	if n.State() != Listening {
		return
	}

	n.mu.Lock()
	if existing := n.byRemote[addr.String()]; existing != nil {
		n.mu.Unlock()
		existing.receive(WireHeader{PackedType: uint8(MessageTypeConnectionRequest)}, payload)
		return
	}
	if limit := n.cfg.Listen.MaximumConnections; limit > 0 && len(n.conns) >= limit {
		n.mu.Unlock()
		m.refuse(socket, addr, "server full")
		return
	}
	c := newConnection(n, m, socket, addr)
	c.session = hs.Session
	c.retired = retired
	c.agreeMSS(hs.MSS)
	n.conns[c.id] = c
	n.byRemote[addr.String()] = c
	n.mu.Unlock()

	if err := c.sendHandshake(MessageTypeConnectionResponse); err != nil {
		glog.V(2).Infof("%s: connection response: %v", c, err)
	}
	c.establish()
}

func (n *Network) addConnection(c *Connection) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conns[c.id] = c
	n.byRemote[c.remote.String()] = c
}

// connected is called once a connection completes its handshake.
func (n *Network) connected(c *Connection) {
	n.stats.addActiveConnections(1)
	glog.Infof("%s: connected", c)
	n.handler.OnConnect(c)
}

// removeConnection is called once a connection is disposed.
func (n *Network) removeConnection(c *Connection, wasConnected bool, reason error) {
	n.mu.Lock()
	delete(n.conns, c.id)
	if n.byRemote[c.remote.String()] == c {
		delete(n.byRemote, c.remote.String())
	}
	isServer := n.server == c
	n.mu.Unlock()

	if wasConnected {
		n.stats.addActiveConnections(-1)
		if reason != nil {
			glog.Warningf("%s: disconnected: %v", c, reason)
		} else {
			glog.Infof("%s: disconnected", c)
		}
		n.handler.OnDisconnect(c, reason)
	}
	if !isServer || n.State() != Connected {
		return
	}
	if n.cfg.ReconnectAttempts > 0 && (errors.Is(reason, ErrConnectionTimedOut) || errors.Is(reason, ErrPeerUnresponsive)) {
		go n.reconnect()
		return
	}
	go func() {
		if err := n.Shutdown(context.Background()); err != nil {
			glog.V(2).Infof("shutdown after losing server: %v", err)
		}
	}()
}

// reconnect repeats the handshake with backoff after the server went
// silent, shutting down when every attempt fails.
func (n *Network) reconnect() {
	if err := n.sm.TransitionFrom(Connected, Reconnecting); err != nil {
		return
	}
	n.mu.RLock()
	m, r := n.dialer, n.current
	n.mu.RUnlock()
	if m == nil || r == nil {
		return
	}

	for attempt := 1; attempt <= n.cfg.ReconnectAttempts; attempt++ {
		delay := nextBackoffDelay(n.cfg.ReconnectBackoff, attempt)
		glog.Infof("reconnecting to %s in %s (attempt %d/%d)", m.Remote(), delay, attempt, n.cfg.ReconnectAttempts)
		select {
		case <-time.After(delay):
		case <-r.done:
			return
		}
		if n.State() != Reconnecting {
			return
		}
		c, err := n.handshake(context.Background(), m)
		if err != nil {
			glog.Warningf("reconnect attempt %d: %v", attempt, err)
			continue
		}
		if err := n.sm.TransitionFrom(Reconnecting, Connected); err != nil {
			c.dispose(err, true)
			return
		}
		glog.Infof("reconnected to %s", m.Remote())
		return
	}
	glog.Warningf("giving up on %s", m.Remote())
	if err := n.Shutdown(context.Background()); err != nil {
		glog.V(2).Infof("shutdown after reconnect: %v", err)
	}
}

func (n *Network) deliver(m *Message) {
	defer m.Close()
	n.handler.OnMessage(m)
}

// Send sends m to the server. It is only valid on a connected client.
func (n *Network) Send(m *Message) error {
	if n.State() != Connected {
		return ErrNotConnected
	}
	n.mu.RLock()
	c := n.server
	n.mu.RUnlock()
	if c == nil {
		return ErrNotConnected
	}
	return c.Send(m)
}

// Disconnect tells the server goodbye, waits for its acknowledgement
// until ctx is done, and shuts the client down.
func (n *Network) Disconnect(ctx context.Context) error {
	if err := n.sm.TransitionFrom(Connected, ShutdownRequested); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return errors.Wrap(ErrNotConnected, err.Error())
		}
		return err
	}
	n.mu.RLock()
	c := n.server
	n.mu.RUnlock()
	if c != nil {
		if err := c.sendControl(MessageTypeDisconnect, nil); err != nil {
			glog.V(2).Infof("%s: disconnect: %v", c, err)
		}
		select {
		case <-c.disconnectAck:
		case <-c.disposed:
		case <-ctx.Done():
			glog.V(2).Infof("%s: disconnect not acknowledged: %v", c, ctx.Err())
		}
	}
	return n.shutdown(ctx, false)
}

// Shutdown disconnects every peer, closes the sockets and returns the
// network to Initialized. ctx bounds the wait for the receive loops.
func (n *Network) Shutdown(ctx context.Context) error {
	if _, err := n.sm.Transition(ShutdownRequested); err != nil {
		return err
	}
	return n.shutdown(ctx, true)
}

func (n *Network) shutdown(ctx context.Context, notifyPeers bool) error {
	n.mu.Lock()
	r := n.current
	n.server = nil
	n.dialer = nil
	n.mu.Unlock()

	for _, c := range n.Connections() {
		c.dispose(nil, notifyPeers)
	}
	err := n.stop(ctx, r)
	n.stats.setListeners(0)
	if _, terr := n.sm.Transition(Initialized); terr != nil && err == nil {
		err = terr
	}
	n.mu.Lock()
	if n.current == r {
		n.current = nil
	}
	n.mu.Unlock()
	if r != nil {
		r.end(err)
	}
	glog.Infof("network shut down")
	return err
}

// stop cancels a run and waits for its goroutines until ctx is done.
func (n *Network) stop(ctx context.Context, r *run) error {
	if r == nil {
		return nil
	}
	if r.stopCtx != nil {
		r.stopCtx()
	}
	r.cancel()
	var first error
	for _, m := range r.managers {
		if err := m.Close(); err != nil && first == nil {
			first = err
		}
	}
	waited := make(chan error, 1)
	go func() { waited <- r.group.Wait() }()
	select {
	case err := <-waited:
		if err != nil && first == nil {
			first = err
		}
	case <-ctx.Done():
		if first == nil {
			first = ctx.Err()
		}
	}
	return first
}

// Wait blocks until the current Listen or Connect session ends and
// returns its error.
func (n *Network) Wait() error {
	n.mu.RLock()
	r := n.current
	n.mu.RUnlock()
	if r == nil {
		return nil
	}
	<-r.done
	return r.err
}

// Close disposes the network from any state. Connections are dropped and
// sockets closed; statistics are kept. A second Close returns
// ErrAlreadyDisposed.
func (n *Network) Close() error {
	prev, err := n.sm.Transition(Disposed)
	if err != nil {
		return err
	}
	n.mu.Lock()
	r := n.current
	n.current = nil
	n.server = nil
	n.dialer = nil
	n.mu.Unlock()

	for _, c := range n.Connections() {
		c.dispose(nil, prev.IsRunning())
	}
	err = n.stop(context.Background(), r)
	n.stats.setListeners(0)
	if r != nil {
		r.end(err)
	}
	return err
}

// maintain runs connection upkeep every MaintenanceInterval and accounts
// time alive and connected.
func (n *Network) maintain(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.MaintenanceInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			n.stats.addTimeAlive(elapsed)
			if st := n.State(); st == Connected || (st == Listening && n.stats.ActiveConnections() > 0) {
				n.stats.addTimeConnected(elapsed)
			}
			for _, c := range n.Connections() {
				c.maintain(now)
			}
		}
	}
}
