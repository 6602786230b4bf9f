package net

import (
	"fmt"
	"strings"
)

// MessageType is the 5 bit type carried in the packed header byte.
// Types below MessageTypeData are handled by the transport itself.
type MessageType uint8

const (
	MessageTypeError MessageType = iota
	MessageTypePing
	MessageTypePong
	MessageTypeMssRequest
	MessageTypeMssAck
	MessageTypeDiscoveryRequest
	MessageTypeDiscoveryResponse
	MessageTypeConnectionRequest
	MessageTypeConnectionResponse
	MessageTypeDisconnect
	MessageTypeDisconnectAcknowledge
	MessageTypeTerminate
	MessageTypeAcknowledge
	MessageTypeBroadcast
	MessageTypeUnconnected
)

const (
	// MessageTypeData is the first application message type.
	MessageTypeData MessageType = 0x10
	// MessageTypeMax is the last encodable message type.
	MessageTypeMax MessageType = 0x1f
)

var messageTypeNames = [...]string{
	"error", "ping", "pong", "mss-request", "mss-ack",
	"discovery-request", "discovery-response",
	"connection-request", "connection-response",
	"disconnect", "disconnect-ack", "terminate", "ack",
	"broadcast", "unconnected",
}

// IsApplication reports whether t is delivered to the application.
func (t MessageType) IsApplication() bool {
	return t >= MessageTypeData && t <= MessageTypeMax
}

func (t MessageType) String() string {
	if int(t) < len(messageTypeNames) {
		return messageTypeNames[t]
	}
	if t.IsApplication() {
		return fmt.Sprintf("data+%d", t-MessageTypeData)
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// TransmissionMode selects delivery guarantees for a message. Modes are
// flags; Ordered implies Reliable.
type TransmissionMode uint8

const (
	// Unreliable messages may be lost. Duplicates are dropped.
	Unreliable TransmissionMode = 0
	// Reliable messages are retransmitted until acknowledged, or until the
	// connection is torn down.
	Reliable TransmissionMode = 1 << 0
	// Sequenced messages older than the newest delivered one on the same
	// channel are dropped.
	Sequenced TransmissionMode = 1 << 1
	// Ordered messages are delivered strictly in send order per channel,
	// holding back early arrivals.
	Ordered TransmissionMode = 1 << 2

	transmissionModeAll = Reliable | Sequenced | Ordered
)

func (m TransmissionMode) Has(flag TransmissionMode) bool { return m&flag == flag }

// IsReliable reports whether datagrams of m are acknowledged.
func (m TransmissionMode) IsReliable() bool { return m&(Reliable|Ordered) != 0 }

func (m TransmissionMode) IsOrdered() bool { return m&Ordered != 0 }

// IsSequenced reports whether stale messages of m are dropped. Ordered
// delivery takes precedence over sequencing.
func (m TransmissionMode) IsSequenced() bool { return m&Sequenced != 0 && m&Ordered == 0 }

// Valid reports whether m only uses known flags.
func (m TransmissionMode) Valid() bool { return m&^transmissionModeAll == 0 }

func (m TransmissionMode) String() string {
	if m == Unreliable {
		return "unreliable"
	}
	var parts []string
	if m.Has(Reliable) {
		parts = append(parts, "reliable")
	}
	if m.Has(Sequenced) {
		parts = append(parts, "sequenced")
	}
	if m.Has(Ordered) {
		parts = append(parts, "ordered")
	}
	if rest := m &^ transmissionModeAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}
