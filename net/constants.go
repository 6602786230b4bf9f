package net

import (
	"strings"

	"github.com/pkg/errors"
)

// Protocol is a wire protocol a ConnectionManager can speak.
type Protocol uint8

const (
	ProtocolUDP Protocol = iota + 1
	ProtocolTCP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUDP:
		return "udp"
	case ProtocolTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// ParseProtocol parses "udp" or "tcp".
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "udp":
		return ProtocolUDP, nil
	case "tcp":
		return ProtocolTCP, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedProtocol, "%q", s)
	}
}

// Worst case header sizes subtracted from an MTU.
const (
	MaximumIPHeaderSize  = 60
	MaximumTCPHeaderSize = 60
	MaximumUDPHeaderSize = 8
)

// MTU classes.
const (
	MTUIEEE802  = 508
	MTUX25      = 576
	MTUSimple   = 1024
	MTUCloud    = 1460
	MTUIEEE8023 = 1492
	MTUEthernet = 1500
)

// MTUSizes lists the supported MTU classes, smallest first.
var MTUSizes = []int{MTUIEEE802, MTUX25, MTUSimple, MTUCloud, MTUIEEE8023, MTUEthernet}

// MSS returns the largest transport payload for mtu under protocol.
func MSS(protocol Protocol, mtu int) int {
	switch protocol {
	case ProtocolTCP:
		return mtu - (MaximumIPHeaderSize + MaximumTCPHeaderSize)
	default:
		return mtu - (MaximumIPHeaderSize + MaximumUDPHeaderSize)
	}
}

// Fragment and message limits.
const (
	// MaximumFragments is bounded by the 7 bit fragment index.
	MaximumFragments = 0x7f
	// MaximumMessageLength is bounded by the 16 bit header length.
	MaximumMessageLength = 0xffff
)

// MaximumPayload returns the longest message that fits in
// MaximumFragments fragments of segmentSize bytes.
func MaximumPayload(segmentSize int) int {
	return min(segmentSize*MaximumFragments, MaximumMessageLength)
}
