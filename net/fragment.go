package net

import (
	"github.com/pkg/errors"
)

// Segment is one datagram's worth of a message.
type Segment struct {
	Header  WireHeader
	Payload []byte
}

// Encode returns the header followed by the payload.
func (s Segment) Encode() []byte {
	out := make([]byte, HeaderSize+len(s.Payload))
	s.Header.Encode(out)
	copy(out[HeaderSize:], s.Payload)
	return out
}

// FragmentCount returns how many segments of segmentSize bytes a message of
// length bytes needs. An empty message still takes one segment.
func FragmentCount(length, segmentSize int) (int, error) {
	if segmentSize <= 0 {
		return 0, errors.Wrapf(ErrInvalidConfiguration, "segment size %d", segmentSize)
	}
	if length > MaximumMessageLength {
		return 0, errors.Wrapf(ErrMessageTooLarge, "%d bytes exceeds %d", length, MaximumMessageLength)
	}
	n := max(1, (length+segmentSize-1)/segmentSize)
	if n > MaximumFragments {
		return 0, errors.Wrapf(ErrMessageTooLarge, "%d bytes needs %d fragments of %d", length, n, segmentSize)
	}
	return n, nil
}

// Split cuts payload into segments sharing id, type and channel. It fails
// before producing anything when the message cannot be represented.
// Segment payloads alias payload.
func Split(id uint32, mode TransmissionMode, t MessageType, channel uint8, payload []byte, segmentSize int) ([]Segment, error) {
	n, err := FragmentCount(len(payload), segmentSize)
	if err != nil {
		return nil, err
	}
	packed, err := PackType(mode, t)
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, n)
	for i := range segments {
		start := i * segmentSize
		end := min(start+segmentSize, len(payload))
		segments[i] = Segment{
			Header: WireHeader{
				ID:         id,
				PackedType: packed,
				Channel:    channel,
				Length:     uint16(len(payload)),
				Fragment:   PackFragment(i, i == n-1),
			},
			Payload: payload[start:end],
		}
	}
	return segments, nil
}
