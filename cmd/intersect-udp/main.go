// Command intersect-udp runs an echo server or a client for it.
//
// Server:
//
//	intersect-udp -mode=server -listen_address=:5400 -debug_web_server_listen_address=:8080
//
// Client:
//
//	intersect-udp -mode=client -connect_address=localhost:5400 -messages=10
//
// Both sides use the development key unless -key_file is given or an
// intersect.key file is found next to the binary, in the working directory,
// in $INTERSECT_HOME or in the user configuration directory.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"badc0de.net/pkg/flagutil/v1"
	"github.com/bradfitz/iter"
	"github.com/golang/glog"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	_ "golang.org/x/net/trace"

	"github.com/intersectFR/Intersect-Engine-FR/encryption"
	inet "github.com/intersectFR/Intersect-Engine-FR/net"
	"github.com/intersectFR/Intersect-Engine-FR/secrets"
	"github.com/intersectFR/Intersect-Engine-FR/udp"
	"github.com/intersectFR/Intersect-Engine-FR/web"
)

const (
	channel  = 1
	greeting = "hello from the client"
)

var (
	mode           = flag.String("mode", "server", "server or client")
	messages       = flag.Int("messages", 10, "messages the client sends before disconnecting")
	cipherName     = flag.String("cipher", encryption.AESGCM, "datagram cipher: aes-gcm, chacha20-poly1305 or none")
	debugWebServer = flag.String("debug_web_server_listen_address", "", "where the debug server will listen")
)

var keyFile string

func main() {
	cfg := inet.DefaultConfiguration()
	cfg.RegisterFlags(flag.CommandLine)
	secrets.SetupKeyFileFlag(flag.CommandLine, "intersect.key", "key_file", &keyFile)
	flagutil.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		glog.Exitf("intersect-udp: %v", err)
	}
	glog.Flush()
}

func newCipher() (encryption.Algorithm, error) {
	if *cipherName == encryption.None {
		return encryption.Noop{}, nil
	}
	var key *encryption.SecureKey
	var err error
	if keyFile != "" {
		key, err = secrets.LoadKey(keyFile)
	} else {
		key, err = secrets.DevelopmentKey()
	}
	if err != nil {
		return nil, err
	}
	c, err := encryption.New(*cipherName, key)
	if err != nil {
		key.Destroy()
		return nil, err
	}
	return c, nil
}

func run(ctx context.Context, cfg inet.Configuration) error {
	cipher, err := newCipher()
	if err != nil {
		return err
	}
	defer cipher.Close()

	reg := inet.NewRegistry()
	udp.Register(reg)

	switch *mode {
	case "server":
		return serve(ctx, reg, cfg, cipher)
	case "client":
		return dial(ctx, reg, cfg, cipher)
	default:
		return errors.Errorf("unknown mode %q", *mode)
	}
}

func debugServer(n *inet.Network) {
	if *debugWebServer == "" {
		return
	}
	r := mux.NewRouter()
	web.NewHandler(n).RegisterRoutes(r)
	// /debug/requests and /debug/events are registered by x/net/trace.
	r.PathPrefix("/debug/").Handler(http.DefaultServeMux)
	go func() {
		glog.Infof("debug web server listening on %s", *debugWebServer)
		glog.Error(http.ListenAndServe(*debugWebServer, handlers.CombinedLoggingHandler(os.Stderr, r)))
	}()
}

// echoHandler answers every greeting with the same text and the counter
// incremented.
func echoHandler() inet.Handler {
	return inet.HandlerFuncs{
		Connect: func(c *inet.Connection) {
			glog.Infof("%s connected", c)
		},
		Disconnect: func(c *inet.Connection, reason error) {
			glog.Infof("%s disconnected: %v", c, reason)
		},
		Message: func(m *inet.Message) {
			text, err := m.ReadString()
			if err != nil {
				glog.Warningf("%s: malformed message: %v", m.Connection(), err)
				return
			}
			counter, err := m.ReadInt32()
			if err != nil {
				glog.Warningf("%s: malformed message: %v", m.Connection(), err)
				return
			}
			reply := m.Network().CreateMessage(m.Type, m.Mode, m.Channel)
			defer reply.Close()
			reply.WriteString(text)
			reply.WriteInt32(counter + 1)
			if err := m.Connection().Send(reply); err != nil {
				glog.Warningf("%s: echo: %v", m.Connection(), err)
			}
		},
	}
}

func serve(ctx context.Context, reg *inet.Registry, cfg inet.Configuration, cipher encryption.Algorithm) error {
	n, err := inet.New(reg, cfg, inet.WithHandler(echoHandler()), inet.WithCipher(cipher))
	if err != nil {
		return err
	}
	defer n.Close()
	debugServer(n)

	if err := n.Listen(ctx); err != nil {
		return err
	}
	glog.Infof("echo server listening on %v", n.LocalAddrs())
	err = n.Wait()
	s := n.Statistics().Snapshot()
	glog.Infof("served for %s: %d packets in, %d out, %d lost", s.TimeAlive, s.TotalPacketsReceived, s.TotalPacketsSent, s.TotalPacketsLost)
	return err
}

func dial(ctx context.Context, reg *inet.Registry, cfg inet.Configuration, cipher encryption.Algorithm) error {
	var replies atomic.Int32
	done := make(chan struct{})
	h := inet.HandlerFuncs{
		Message: func(m *inet.Message) {
			text, err := m.ReadString()
			if err != nil {
				return
			}
			counter, err := m.ReadInt32()
			if err != nil {
				return
			}
			glog.Infof("reply %q %d", text, counter)
			if int(replies.Add(1)) == *messages {
				close(done)
			}
		},
	}
	n, err := inet.New(reg, cfg, inet.WithHandler(h), inet.WithCipher(cipher))
	if err != nil {
		return err
	}
	defer n.Close()
	debugServer(n)

	if err := n.Connect(ctx); err != nil {
		return err
	}
	glog.Infof("connected to %s", cfg.Connect.Address)

	for i := range iter.N(*messages) {
		m := n.CreateMessage(inet.MessageTypeData, inet.Ordered, channel)
		m.WriteString(greeting)
		m.WriteInt32(int32(i))
		err := n.Send(m)
		m.Close()
		if err != nil {
			return errors.Wrapf(err, "sending message %d", i)
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(cfg.ConnectionTimeout):
		glog.Warningf("received %d of %d replies", replies.Load(), *messages)
	}

	dctx, cancel := context.WithTimeout(context.Background(), cfg.Connect.Timeout)
	defer cancel()
	return n.Disconnect(dctx)
}
