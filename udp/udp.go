// Package udp implements the UDP protocol of an inet.Network.
//
// Register installs the factory into a registry:
//
//	reg := inet.NewRegistry()
//	udp.Register(reg)
//	n, err := inet.New(reg, cfg)
package udp

import (
	"context"
	gonet "net"
	"strconv"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	inet "github.com/intersectFR/Intersect-Engine-FR/net"
)

// Register makes r open UDP sockets for inet.ProtocolUDP.
func Register(r *inet.Registry) {
	r.Register(inet.ProtocolUDP, NewManager)
}

// NewManager opens the sockets for cfg. A listening manager binds every
// address its host resolves to, or the wildcard address when the host is
// empty. A dialing manager binds an ephemeral port of the family of the
// first resolved address.
func NewManager(ctx context.Context, network *inet.Network, cfg inet.ConnectionConfiguration, listen bool) (*inet.ConnectionManager, error) {
	host, portString, err := gonet.SplitHostPort(cfg.Address)
	if err != nil {
		return nil, errors.Wrapf(inet.ErrInvalidConfiguration, "address %q: %v", cfg.Address, err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil || port < 0 || port > 0xffff {
		return nil, errors.Wrapf(inet.ErrInvalidConfiguration, "port %q", portString)
	}

	if listen {
		sockets, err := listenAll(ctx, host, port)
		if err != nil {
			return nil, err
		}
		return inet.NewConnectionManager(network, cfg, true, sockets, nil), nil
	}

	if host == "" {
		host = "localhost"
	}
	ips, err := resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	remote := &gonet.UDPAddr{IP: ips[0], Port: port}
	socket, err := gonet.ListenUDP(family(ips[0]), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening socket for %s", remote)
	}
	glog.V(2).Infof("dialing %s from %s", remote, socket.LocalAddr())
	return inet.NewConnectionManager(network, cfg, false, []gonet.PacketConn{socket}, []gonet.Addr{remote}), nil
}

func family(ip gonet.IP) string {
	if ip.To4() != nil {
		return "udp4"
	}
	return "udp6"
}

func resolve(ctx context.Context, host string) ([]gonet.IP, error) {
	addrs, err := gonet.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %q", host)
	}
	if len(addrs) == 0 {
		return nil, errors.Errorf("no addresses for %q", host)
	}
	ips := make([]gonet.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

func listenAll(ctx context.Context, host string, port int) ([]gonet.PacketConn, error) {
	var lc gonet.ListenConfig
	if host == "" {
		s, err := lc.ListenPacket(ctx, "udp", gonet.JoinHostPort("", strconv.Itoa(port)))
		if err != nil {
			return nil, errors.Wrapf(err, "listening on port %d", port)
		}
		return []gonet.PacketConn{s}, nil
	}

	ips, err := resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	sockets := make([]gonet.PacketConn, 0, len(ips))
	for _, ip := range ips {
		addr := gonet.JoinHostPort(ip.String(), strconv.Itoa(port))
		s, err := lc.ListenPacket(ctx, family(ip), addr)
		if err != nil {
			for _, open := range sockets {
				open.Close()
			}
			return nil, errors.Wrapf(err, "listening on %s", addr)
		}
		sockets = append(sockets, s)
	}
	return sockets, nil
}
