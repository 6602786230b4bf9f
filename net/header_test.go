package net

import (
	"testing"

	"github.com/intersectFR/Intersect-Engine-FR/ttesting"
)

func TestHeaderLayout(t *testing.T) {
	packed, err := PackType(Ordered, MessageTypeData+3)
	ttesting.MustNotError(t, "pack", err)
	h := WireHeader{
		ID:         0x04030201,
		PackedType: packed,
		Channel:    7,
		Length:     0x0605,
		Fragment:   PackFragment(2, true),
	}
	dst := make([]byte, HeaderSize)
	ttesting.MustNotError(t, "encode", h.Encode(dst))
	ttesting.AssertEqualBytes(t, "bytes", dst, []byte{0x01, 0x02, 0x03, 0x04, 0x93, 0x07, 0x05, 0x06, 0x82})

	got, rest, err := DecodeHeader(append(dst, 0xaa, 0xbb))
	ttesting.MustNotError(t, "decode", err)
	ttesting.AssertEqual(t, "header", got, h)
	ttesting.AssertEqualBytes(t, "payload", rest, []byte{0xaa, 0xbb})
	ttesting.AssertEqual(t, "mode", got.TransmissionMode(), Ordered)
	ttesting.AssertEqual(t, "type", got.MessageType(), MessageTypeData+3)
	ttesting.AssertEqualInt(t, "fragment", got.FragmentIndex(), 2)
	ttesting.AssertEqual(t, "last", got.IsLastFragment(), true)
	ttesting.AssertEqual(t, "single", got.IsSingle(), false)
}

func TestPackTypeRejects(t *testing.T) {
	_, err := PackType(Unreliable, MessageTypeMax+1)
	ttesting.AssertErrorIs(t, "type", err, ErrInvalidMessageType)
	_, err = PackType(TransmissionMode(0x08), MessageTypeData)
	ttesting.AssertErrorIs(t, "mode", err, ErrInvalidMessageType)
}

func TestEveryModeAndTypePacks(t *testing.T) {
	for _, mode := range []TransmissionMode{Unreliable, Reliable, Sequenced, Reliable | Sequenced, Ordered, Ordered | Reliable} {
		for typ := MessageType(0); typ <= MessageTypeMax; typ++ {
			packed, err := PackType(mode, typ)
			if err != nil {
				t.Fatalf("PackType(%s, %s): %v", mode, typ, err)
			}
			h := WireHeader{PackedType: packed}
			if h.TransmissionMode() != mode || h.MessageType() != typ {
				t.Errorf("PackType(%s, %s) unpacked to (%s, %s)", mode, typ, h.TransmissionMode(), h.MessageType())
			}
		}
	}
}

func TestShortHeader(t *testing.T) {
	_, _, err := DecodeHeader(make([]byte, HeaderSize-1))
	ttesting.AssertErrorIs(t, "short", err, ErrShortHeader)
	_, rest, err := DecodeHeader(make([]byte, HeaderSize))
	ttesting.AssertErrorIs(t, "exact", err, nil)
	ttesting.AssertEqualInt(t, "empty payload", len(rest), 0)
}

func TestMSS(t *testing.T) {
	ttesting.AssertEqualInt(t, "udp 508", MSS(ProtocolUDP, MTUIEEE802), 440)
	ttesting.AssertEqualInt(t, "udp 1500", MSS(ProtocolUDP, MTUEthernet), 1432)
	ttesting.AssertEqualInt(t, "tcp 1500", MSS(ProtocolTCP, MTUEthernet), 1380)
	ttesting.AssertEqualInt(t, "payload cap", MaximumPayload(1000), MaximumMessageLength)
	ttesting.AssertEqualInt(t, "payload", MaximumPayload(400), 400*MaximumFragments)
}
