package net

// This file contains one function per transport control message, writing
// or reading its payload.

import (
	"time"

	"github.com/pkg/errors"

	"github.com/intersectFR/Intersect-Engine-FR/buffer"
)

// ProtocolVersion is exchanged during the handshake. Peers with a
// different version are refused.
const ProtocolVersion = 1

// Handshake is the payload of ConnectionRequest and ConnectionResponse.
// Session is the id of the client connection making the attempt; the
// response echoes it.
type Handshake struct {
	Version uint8
	MSS     int
	Session ConnectionID
}

// WriteHandshake writes a connection request or response payload.
func WriteHandshake(w *buffer.MemoryBuffer, h Handshake) error {
	if err := w.WriteUint8(h.Version); err != nil {
		return err
	}
	if err := w.WriteUvarint32(uint32(h.MSS)); err != nil {
		return err
	}
	return w.WriteRaw(h.Session[:], 0, len(h.Session))
}

func ReadHandshake(r *buffer.MemoryBuffer) (Handshake, error) {
	var h Handshake
	var err error
	if h.Version, err = r.ReadUint8(); err != nil {
		return h, errors.Wrap(err, "handshake version")
	}
	mss, err := r.ReadUvarint16()
	if err != nil {
		return h, errors.Wrap(err, "handshake mss")
	}
	h.MSS = int(mss)
	if err := r.ReadRaw(h.Session[:], 0, len(h.Session)); err != nil {
		return h, errors.Wrap(err, "handshake session")
	}
	return h, nil
}

// WritePing writes the send time of a ping. The peer echoes it in a pong.
func WritePing(w *buffer.MemoryBuffer, sent time.Time) error {
	return w.WriteVarint(sent.UnixNano())
}

// ReadPing returns the time carried by a ping or pong.
func ReadPing(r *buffer.MemoryBuffer) (time.Time, error) {
	ns, err := r.ReadVarint()
	if err != nil {
		return time.Time{}, errors.Wrap(err, "ping timestamp")
	}
	return time.Unix(0, ns), nil
}

// WriteMSS writes an MSS request or acknowledgement.
func WriteMSS(w *buffer.MemoryBuffer, mss int) error {
	return w.WriteUvarint32(uint32(mss))
}

func ReadMSS(r *buffer.MemoryBuffer) (int, error) {
	mss, err := r.ReadUvarint16()
	if err != nil {
		return 0, errors.Wrap(err, "mss")
	}
	return int(mss), nil
}

// WriteReason writes the text of an error, terminate or discovery
// response message.
func WriteReason(w *buffer.MemoryBuffer, text string) error {
	return w.WriteString(text)
}

func ReadReason(r *buffer.MemoryBuffer) (string, error) {
	s, err := r.ReadString()
	return s, errors.Wrap(err, "reason")
}

// AckEntry identifies one received reliable datagram.
type AckEntry struct {
	Channel  uint8
	Mode     TransmissionMode
	ID       uint32
	Fragment uint8
}

// WriteAcknowledge writes a batch of acknowledgements.
func WriteAcknowledge(w *buffer.MemoryBuffer, entries []AckEntry) error {
	if err := w.WriteUvarint(uint64(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.WriteUint8(e.Channel); err != nil {
			return err
		}
		if err := w.WriteUint8(uint8(e.Mode)); err != nil {
			return err
		}
		if err := w.WriteUvarint32(e.ID); err != nil {
			return err
		}
		if err := w.WriteUint8(e.Fragment); err != nil {
			return err
		}
	}
	return nil
}

// ReadAcknowledge reads a batch written by WriteAcknowledge. The count is
// checked against the remaining bytes before anything is allocated.
func ReadAcknowledge(r *buffer.MemoryBuffer) ([]AckEntry, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, errors.Wrap(err, "ack count")
	}
	// Each entry takes at least 4 bytes.
	if n > uint64(r.Remaining()/4) {
		return nil, errors.Wrapf(buffer.ErrBufferUnderflow, "%d acks in %d bytes", n, r.Remaining())
	}
	entries := make([]AckEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		var e AckEntry
		if e.Channel, err = r.ReadUint8(); err != nil {
			return nil, err
		}
		mode, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		e.Mode = TransmissionMode(mode)
		if e.ID, err = r.ReadUvarint32(); err != nil {
			return nil, err
		}
		if e.Fragment, err = r.ReadUint8(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
