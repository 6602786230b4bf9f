package net

import (
	"github.com/pkg/errors"
)

var (
	ErrMessageTooLarge      = errors.New("net: message too large")
	ErrInvalidMessageType   = errors.New("net: invalid message type")
	ErrShortHeader          = errors.New("net: datagram shorter than header")
	ErrDuplicateFragment    = errors.New("net: duplicate fragment")
	ErrFragmentOutOfRange   = errors.New("net: fragment index out of range")
	ErrReassemblyFailed     = errors.New("net: reassembly failed")
	ErrUnsupportedProtocol  = errors.New("net: unsupported protocol")
	ErrAlreadyDisposed      = errors.New("net: already disposed")
	ErrInvalidTransition    = errors.New("net: invalid state transition")
	ErrNotConnected         = errors.New("net: not connected")
	ErrSendWindowFull       = errors.New("net: send window full")
	ErrConnectTimeout       = errors.New("net: connect timed out")
	ErrConnectionRefused    = errors.New("net: connection refused")
	ErrConnectionTimedOut   = errors.New("net: connection timed out")
	ErrPeerUnresponsive     = errors.New("net: peer stopped acknowledging")
	ErrPeerDisconnected     = errors.New("net: peer disconnected")
	ErrInvalidConfiguration = errors.New("net: invalid configuration")
)
