package udp

import (
	"context"
	gonet "net"
	"testing"

	inet "github.com/intersectFR/Intersect-Engine-FR/net"
	"github.com/intersectFR/Intersect-Engine-FR/ttesting"
)

func TestRegister(t *testing.T) {
	r := inet.NewRegistry()
	_, err := r.Lookup(inet.ProtocolUDP)
	ttesting.AssertErrorIs(t, "before", err, inet.ErrUnsupportedProtocol)
	Register(r)
	f, err := r.Lookup(inet.ProtocolUDP)
	ttesting.MustNotError(t, "after", err)
	if f == nil {
		t.Fatal("nil factory")
	}
}

func TestListenBindsEphemeralPort(t *testing.T) {
	m, err := NewManager(context.Background(), nil, inet.ConnectionConfiguration{Protocol: inet.ProtocolUDP, Address: "127.0.0.1:0"}, true)
	ttesting.MustNotError(t, "listen", err)
	defer m.Close()

	addrs := m.LocalAddrs()
	ttesting.AssertEqualInt(t, "sockets", len(addrs), 1)
	udpAddr, ok := addrs[0].(*gonet.UDPAddr)
	if !ok {
		t.Fatalf("local address %T; want *net.UDPAddr", addrs[0])
	}
	if udpAddr.Port == 0 {
		t.Error("port not assigned")
	}
	ttesting.AssertEqual(t, "remote", m.Remote(), gonet.Addr(nil))
}

func TestDialResolvesRemote(t *testing.T) {
	m, err := NewManager(context.Background(), nil, inet.ConnectionConfiguration{Protocol: inet.ProtocolUDP, Address: "127.0.0.1:4500"}, false)
	ttesting.MustNotError(t, "dial", err)
	defer m.Close()

	ttesting.AssertEqual(t, "remote", m.Remote().String(), "127.0.0.1:4500")
	ttesting.AssertEqualInt(t, "sockets", len(m.LocalAddrs()), 1)
}

func TestBadAddress(t *testing.T) {
	for _, addr := range []string{"no-port", "127.0.0.1:http", "127.0.0.1:70000"} {
		_, err := NewManager(context.Background(), nil, inet.ConnectionConfiguration{Protocol: inet.ProtocolUDP, Address: addr}, true)
		ttesting.AssertErrorIs(t, addr, err, inet.ErrInvalidConfiguration)
	}
}
