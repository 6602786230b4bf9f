package net

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/intersectFR/Intersect-Engine-FR/buffer"
)

// HeaderSize is the encoded size of a WireHeader.
const HeaderSize = 9

// Bit layout of the packed type byte and of the fragment byte.
const (
	TransmissionModeMask  = 0xe0
	TransmissionModeShift = 5
	MessageTypeMask       = 0x1f

	FragmentLastFlag  = 0x80
	FragmentIndexMask = 0x7f
)

// WireHeader prefixes every datagram, little-endian:
//
//	id u32 | packed type u8 | channel u8 | length u16 | fragment u8
//
// Length is the full logical message length, not the fragment's.
type WireHeader struct {
	ID         uint32
	PackedType uint8
	Channel    uint8
	Length     uint16
	Fragment   uint8
}

// PackType combines a transmission mode and a message type.
func PackType(mode TransmissionMode, t MessageType) (uint8, error) {
	if t > MessageTypeMax {
		return 0, errors.Wrapf(ErrInvalidMessageType, "%d does not fit in %d bits", t, 5)
	}
	if !mode.Valid() {
		return 0, errors.Wrapf(ErrInvalidMessageType, "transmission mode %s", mode)
	}
	return uint8(mode)<<TransmissionModeShift | uint8(t)&MessageTypeMask, nil
}

// PackFragment combines a fragment index and the last fragment flag.
func PackFragment(index int, last bool) uint8 {
	f := uint8(index) & FragmentIndexMask
	if last {
		f |= FragmentLastFlag
	}
	return f
}

func (h WireHeader) TransmissionMode() TransmissionMode {
	return TransmissionMode((h.PackedType & TransmissionModeMask) >> TransmissionModeShift)
}

func (h WireHeader) MessageType() MessageType {
	return MessageType(h.PackedType & MessageTypeMask)
}

func (h WireHeader) FragmentIndex() int {
	return int(h.Fragment & FragmentIndexMask)
}

func (h WireHeader) IsLastFragment() bool {
	return h.Fragment&FragmentLastFlag != 0
}

// IsSingle reports whether the message fits in this one datagram.
func (h WireHeader) IsSingle() bool {
	return h.FragmentIndex() == 0 && h.IsLastFragment()
}

func (h WireHeader) String() string {
	return fmt.Sprintf("id=%d type=%s mode=%s ch=%d len=%d frag=%d last=%t",
		h.ID, h.MessageType(), h.TransmissionMode(), h.Channel, h.Length, h.FragmentIndex(), h.IsLastFragment())
}

// Encode writes h into the first HeaderSize bytes of dst.
func (h WireHeader) Encode(dst []byte) error {
	w := buffer.NewFixedBuffer(dst, 0)
	if err := w.WriteUint32(h.ID); err != nil {
		return errors.Wrap(err, "header id")
	}
	if err := w.WriteUint8(h.PackedType); err != nil {
		return errors.Wrap(err, "header type")
	}
	if err := w.WriteUint8(h.Channel); err != nil {
		return errors.Wrap(err, "header channel")
	}
	if err := w.WriteUint16(h.Length); err != nil {
		return errors.Wrap(err, "header length")
	}
	if err := w.WriteUint8(h.Fragment); err != nil {
		return errors.Wrap(err, "header fragment")
	}
	return nil
}

// DecodeHeader parses the header at the start of datagram and returns it
// with the remaining payload.
func DecodeHeader(datagram []byte) (WireHeader, []byte, error) {
	var h WireHeader
	if len(datagram) < HeaderSize {
		return h, nil, errors.Wrapf(ErrShortHeader, "%d bytes", len(datagram))
	}
	r := buffer.NewFixedBuffer(datagram, len(datagram))
	h.ID, _ = r.ReadUint32()
	h.PackedType, _ = r.ReadUint8()
	h.Channel, _ = r.ReadUint8()
	h.Length, _ = r.ReadUint16()
	h.Fragment, _ = r.ReadUint8()
	return h, r.Remaining(), nil
}
