package net

import (
	"flag"
	"time"

	"github.com/pkg/errors"
)

// ConnectionConfiguration describes one endpoint to bind or dial.
type ConnectionConfiguration struct {
	Protocol Protocol
	// Address is host:port. Host names are resolved by the protocol
	// factory; every resolved address is used.
	Address string
	// MTU selects the datagram size class, see MTUSizes.
	MTU int
	// Timeout bounds the handshake when dialing.
	Timeout time.Duration
}

// ListenConfiguration describes a server endpoint.
type ListenConfiguration struct {
	ConnectionConfiguration

	// MaximumConnections caps admitted peers; zero means no cap.
	MaximumConnections int
	// DiscoveryName is returned to discovery requests.
	DiscoveryName string
}

// BackoffConfig shapes retry delays.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Configuration holds the tunables of a Network.
type Configuration struct {
	Connect ConnectionConfiguration
	Listen  ListenConfiguration

	PingInterval           time.Duration
	ConnectionTimeout      time.Duration
	HandshakeRetryInterval time.Duration
	ReassemblyTimeout      time.Duration
	MaintenanceInterval    time.Duration

	// SendWindow bounds unacknowledged reliable datagrams per connection.
	SendWindow           int
	MaxRetransmits       int
	MinRetransmitTimeout time.Duration
	MaxRetransmitTimeout time.Duration
	RetransmitBackoff    BackoffConfig

	ReconnectAttempts int
	ReconnectBackoff  BackoffConfig
}

// DefaultConfiguration returns the configuration used when a field is
// left unset.
func DefaultConfiguration() Configuration {
	return Configuration{
		Connect: ConnectionConfiguration{
			Protocol: ProtocolUDP,
			Address:  "127.0.0.1:5400",
			MTU:      MTUIEEE802,
			Timeout:  5 * time.Second,
		},
		Listen: ListenConfiguration{
			ConnectionConfiguration: ConnectionConfiguration{
				Protocol: ProtocolUDP,
				Address:  ":5400",
				MTU:      MTUIEEE802,
				Timeout:  5 * time.Second,
			},
			MaximumConnections: 0,
			DiscoveryName:      "intersect",
		},
		PingInterval:           time.Second,
		ConnectionTimeout:      10 * time.Second,
		HandshakeRetryInterval: 250 * time.Millisecond,
		ReassemblyTimeout:      10 * time.Second,
		MaintenanceInterval:    50 * time.Millisecond,
		SendWindow:             256,
		MaxRetransmits:         10,
		MinRetransmitTimeout:   100 * time.Millisecond,
		MaxRetransmitTimeout:   2 * time.Second,
		RetransmitBackoff: BackoffConfig{
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
		},
		ReconnectAttempts: 5,
		ReconnectBackoff: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			Multiplier:   2,
		},
	}
}

type protocolFlag struct{ p *Protocol }

func (f protocolFlag) String() string {
	if f.p == nil {
		return ""
	}
	return f.p.String()
}

func (f protocolFlag) Set(s string) error {
	p, err := ParseProtocol(s)
	if err != nil {
		return err
	}
	*f.p = p
	return nil
}

// RegisterFlags binds the commonly tuned fields to fs, keeping the current
// values as defaults.
func (c *Configuration) RegisterFlags(fs *flag.FlagSet) {
	fs.Var(protocolFlag{&c.Connect.Protocol}, "connect_protocol", "protocol used to dial (udp)")
	fs.StringVar(&c.Connect.Address, "connect_address", c.Connect.Address, "host:port to dial")
	fs.IntVar(&c.Connect.MTU, "connect_mtu", c.Connect.MTU, "MTU class used when dialing")
	fs.DurationVar(&c.Connect.Timeout, "connect_timeout", c.Connect.Timeout, "handshake timeout")

	fs.Var(protocolFlag{&c.Listen.Protocol}, "listen_protocol", "protocol to listen on (udp)")
	fs.StringVar(&c.Listen.Address, "listen_address", c.Listen.Address, "host:port to listen on")
	fs.IntVar(&c.Listen.MTU, "listen_mtu", c.Listen.MTU, "MTU class offered to clients")
	fs.IntVar(&c.Listen.MaximumConnections, "max_connections", c.Listen.MaximumConnections, "connection cap, 0 for none")
	fs.StringVar(&c.Listen.DiscoveryName, "discovery_name", c.Listen.DiscoveryName, "name returned to discovery requests")

	fs.DurationVar(&c.PingInterval, "ping_interval", c.PingInterval, "keepalive interval")
	fs.DurationVar(&c.ConnectionTimeout, "connection_timeout", c.ConnectionTimeout, "silence before a peer is dropped")
	fs.DurationVar(&c.ReassemblyTimeout, "reassembly_timeout", c.ReassemblyTimeout, "idle time before a partial message is discarded")
	fs.IntVar(&c.SendWindow, "send_window", c.SendWindow, "unacknowledged reliable datagrams per connection")
	fs.IntVar(&c.MaxRetransmits, "max_retransmits", c.MaxRetransmits, "retransmissions before a peer is declared dead")
	fs.IntVar(&c.ReconnectAttempts, "reconnect_attempts", c.ReconnectAttempts, "handshake attempts after losing the server")
}

func validMTU(mtu int) bool {
	for _, m := range MTUSizes {
		if m == mtu {
			return true
		}
	}
	return false
}

// Validate reports the first unusable field.
func (c *Configuration) Validate() error {
	for name, cc := range map[string]ConnectionConfiguration{"connect": c.Connect, "listen": c.Listen.ConnectionConfiguration} {
		if !validMTU(cc.MTU) {
			return errors.Wrapf(ErrInvalidConfiguration, "%s mtu %d not in %v", name, cc.MTU, MTUSizes)
		}
		if cc.Timeout <= 0 {
			return errors.Wrapf(ErrInvalidConfiguration, "%s timeout %s", name, cc.Timeout)
		}
	}
	switch {
	case c.Listen.MaximumConnections < 0:
		return errors.Wrapf(ErrInvalidConfiguration, "max connections %d", c.Listen.MaximumConnections)
	case c.PingInterval <= 0 || c.ConnectionTimeout <= c.PingInterval:
		return errors.Wrapf(ErrInvalidConfiguration, "connection timeout %s must exceed ping interval %s", c.ConnectionTimeout, c.PingInterval)
	case c.HandshakeRetryInterval <= 0:
		return errors.Wrapf(ErrInvalidConfiguration, "handshake retry interval %s", c.HandshakeRetryInterval)
	case c.ReassemblyTimeout <= 0:
		return errors.Wrapf(ErrInvalidConfiguration, "reassembly timeout %s", c.ReassemblyTimeout)
	case c.MaintenanceInterval <= 0:
		return errors.Wrapf(ErrInvalidConfiguration, "maintenance interval %s", c.MaintenanceInterval)
	case c.SendWindow <= 0:
		return errors.Wrapf(ErrInvalidConfiguration, "send window %d", c.SendWindow)
	case c.MaxRetransmits <= 0:
		return errors.Wrapf(ErrInvalidConfiguration, "max retransmits %d", c.MaxRetransmits)
	case c.MinRetransmitTimeout <= 0 || c.MaxRetransmitTimeout < c.MinRetransmitTimeout:
		return errors.Wrapf(ErrInvalidConfiguration, "retransmit timeout range [%s, %s]", c.MinRetransmitTimeout, c.MaxRetransmitTimeout)
	case c.ReconnectAttempts < 0:
		return errors.Wrapf(ErrInvalidConfiguration, "reconnect attempts %d", c.ReconnectAttempts)
	}
	return nil
}
