package net

import (
	"github.com/golang/glog"

	"github.com/intersectFR/Intersect-Engine-FR/buffer"
	"github.com/intersectFR/Intersect-Engine-FR/pool"
)

// Message is a single application message: a typed buffer plus the
// delivery parameters it is sent with.
//
// Outbound messages are written with the embedded buffer's Write* methods
// and handed to Connection.Send. Inbound messages arrive positioned at the
// start of their payload and are read-only.
type Message struct {
	*buffer.MemoryBuffer

	Type    MessageType
	Mode    TransmissionMode
	Channel uint8

	conn *Connection
}

// NewMessage returns an empty application message of type t. Types below
// MessageTypeData are reserved for the transport and are bumped to
// MessageTypeData.
func NewMessage(t MessageType, mode TransmissionMode, channel uint8) *Message {
	return newMessage(pool.Shared, t, mode, channel)
}

func newMessage(blocks *pool.BlockPool, t MessageType, mode TransmissionMode, channel uint8) *Message {
	if !t.IsApplication() {
		glog.V(2).Infof("message type %s is reserved; using %s", t, MessageTypeData)
		t = MessageTypeData
	}
	return &Message{
		MemoryBuffer: buffer.NewMemoryBuffer(0, buffer.WithBlockPool(blocks)),
		Type:         t,
		Mode:         mode,
		Channel:      channel,
	}
}

func receivedMessage(blocks *pool.BlockPool, h WireHeader, payload []byte, conn *Connection) *Message {
	return &Message{
		MemoryBuffer: buffer.MemoryBufferFrom(payload, buffer.WithBlockPool(blocks), buffer.WithAccess(true, true, false)),
		Type:         h.MessageType(),
		Mode:         h.TransmissionMode(),
		Channel:      h.Channel,
		conn:         conn,
	}
}

// Connection returns the connection an inbound message arrived on, or nil
// for outbound messages.
func (m *Message) Connection() *Connection { return m.conn }

// Network returns the network of the message's connection, if any.
func (m *Message) Network() *Network {
	if m.conn == nil {
		return nil
	}
	return m.conn.network
}
