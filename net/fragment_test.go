package net

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"

	"github.com/intersectFR/Intersect-Engine-FR/ttesting"
)

func payloadOf(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

func TestFragmentCount(t *testing.T) {
	for _, tc := range []struct {
		length, segment, want int
		err                   error
	}{
		{0, 100, 1, nil},
		{1, 100, 1, nil},
		{100, 100, 1, nil},
		{101, 100, 2, nil},
		{127 * 100, 100, 127, nil},
		{127*100 + 1, 100, 0, ErrMessageTooLarge},
		{MaximumMessageLength + 1, 1000, 0, ErrMessageTooLarge},
		{10, 0, 0, ErrInvalidConfiguration},
	} {
		got, err := FragmentCount(tc.length, tc.segment)
		if !errors.Is(err, tc.err) && !(err == nil && tc.err == nil) {
			t.Errorf("FragmentCount(%d, %d) error = %v; want %v", tc.length, tc.segment, err, tc.err)
			continue
		}
		if got != tc.want {
			t.Errorf("FragmentCount(%d, %d) = %d; want %d", tc.length, tc.segment, got, tc.want)
		}
	}
}

func TestSplit(t *testing.T) {
	payload := payloadOf(250)
	segments, err := Split(42, Reliable, MessageTypeData, 3, payload, 100)
	ttesting.MustNotError(t, "split", err)
	ttesting.AssertEqualInt(t, "count", len(segments), 3)

	var joined []byte
	for i, s := range segments {
		ttesting.AssertEqualUint32(t, "id", s.Header.ID, 42)
		ttesting.AssertEqualInt(t, "index", s.Header.FragmentIndex(), i)
		ttesting.AssertEqual(t, "last", s.Header.IsLastFragment(), i == 2)
		ttesting.AssertEqualInt(t, "length", int(s.Header.Length), 250)
		ttesting.AssertEqual(t, "channel", s.Header.Channel, uint8(3))
		joined = append(joined, s.Payload...)

		h, rest, err := DecodeHeader(s.Encode())
		ttesting.MustNotError(t, "decode", err)
		ttesting.AssertEqual(t, "encoded header", h, s.Header)
		ttesting.AssertEqualBytes(t, "encoded payload", rest, s.Payload)
	}
	ttesting.AssertEqualBytes(t, "joined", joined, payload)
}

func TestSplitEmpty(t *testing.T) {
	segments, err := Split(1, Unreliable, MessageTypeData, 0, nil, 100)
	ttesting.MustNotError(t, "split", err)
	ttesting.AssertEqualInt(t, "count", len(segments), 1)
	ttesting.AssertEqual(t, "single", segments[0].Header.IsSingle(), true)
	ttesting.AssertEqualInt(t, "encoded", len(segments[0].Encode()), HeaderSize)
}

func TestSplitTooManyFragments(t *testing.T) {
	segments, err := Split(1, Reliable, MessageTypeData, 0, payloadOf(128*10), 10)
	ttesting.AssertErrorIs(t, "too large", err, ErrMessageTooLarge)
	ttesting.AssertEqualInt(t, "nothing produced", len(segments), 0)
}

// permutations calls fn with every ordering of 0..n-1.
func permutations(n int, fn func([]int)) {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	var rec func(k int)
	rec = func(k int) {
		if k == n {
			fn(p)
			return
		}
		for i := k; i < n; i++ {
			p[k], p[i] = p[i], p[k]
			rec(k + 1)
			p[k], p[i] = p[i], p[k]
		}
	}
	rec(0)
}

func TestReassemblyOrderIndependent(t *testing.T) {
	payload := payloadOf(5*64 - 17)
	segments, err := Split(9, Reliable, MessageTypeData, 0, payload, 64)
	ttesting.MustNotError(t, "split", err)
	if len(segments) != 5 {
		t.Fatalf("got %d segments; want 5", len(segments))
	}

	orders := 0
	permutations(len(segments), func(order []int) {
		orders++
		first := segments[order[0]]
		r, err := ReassemblerFor(first.Header, len(first.Payload))
		if err != nil {
			t.Fatalf("order %v: ReassemblerFor: %v", order, err)
		}
		for k, i := range order {
			if r.IsComplete() {
				t.Fatalf("order %v: complete after %d fragments", order, k)
			}
			if err := r.Add(segments[i].Header.Fragment, segments[i].Payload); err != nil {
				t.Fatalf("order %v: Add(%d): %v", order, i, err)
			}
		}
		got, err := r.Assemble()
		if err != nil {
			t.Fatalf("order %v: Assemble: %v", order, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("order %v: payload mismatch", order)
		}
	})
	ttesting.AssertEqualInt(t, "orders", orders, 120)
}

func TestReassemblyDuplicate(t *testing.T) {
	segments, err := Split(3, Reliable, MessageTypeData, 0, payloadOf(30), 10)
	ttesting.MustNotError(t, "split", err)
	r := NewFragmentReassembler(3, 30, 0)
	ttesting.MustNotError(t, "first", r.Add(segments[1].Header.Fragment, segments[1].Payload))

	before := r.Count()
	err = r.Add(segments[1].Header.Fragment, []byte("different!"))
	ttesting.AssertErrorIs(t, "duplicate", err, ErrDuplicateFragment)
	ttesting.AssertEqualInt(t, "count unchanged", r.Count(), before)
	ttesting.AssertEqual(t, "try add", r.TryAdd(segments[1].Header.Fragment, segments[1].Payload), false)

	ttesting.MustNotError(t, "0", r.Add(segments[0].Header.Fragment, segments[0].Payload))
	ttesting.MustNotError(t, "2", r.Add(segments[2].Header.Fragment, segments[2].Payload))
	got, err := r.Assemble()
	ttesting.MustNotError(t, "assemble", err)
	ttesting.AssertEqualBytes(t, "payload", got, payloadOf(30))
}

func TestReassemblyRejectsPastLast(t *testing.T) {
	r := NewFragmentReassembler(1, 20, 0)
	ttesting.MustNotError(t, "last", r.Add(PackFragment(1, true), make([]byte, 10)))
	ttesting.AssertErrorIs(t, "past last", r.Add(PackFragment(2, false), make([]byte, 5)), ErrFragmentOutOfRange)
	ttesting.AssertErrorIs(t, "second last", r.Add(PackFragment(0, true), make([]byte, 10)), ErrFragmentOutOfRange)
	ttesting.AssertEqualInt(t, "capacity", r.Capacity(), 2)
}

func TestReassemblyRejectsExcessBytes(t *testing.T) {
	r := NewFragmentReassembler(1, 10, 0)
	ttesting.MustNotError(t, "first", r.Add(PackFragment(0, false), make([]byte, 8)))
	ttesting.AssertErrorIs(t, "excess", r.Add(PackFragment(1, true), make([]byte, 8)), ErrReassemblyFailed)
}

func TestReassemblyIncomplete(t *testing.T) {
	r := NewFragmentReassembler(1, 20, 0)
	ttesting.MustNotError(t, "first", r.Add(PackFragment(0, false), make([]byte, 10)))
	_, err := r.Assemble()
	ttesting.AssertErrorIs(t, "incomplete", err, ErrReassemblyFailed)
	if _, ok := r.TryAssemble(make([]byte, 20)); ok {
		t.Errorf("TryAssemble succeeded on an incomplete message")
	}
	r.Close()
	ttesting.AssertErrorIs(t, "closed", r.Add(PackFragment(1, true), make([]byte, 10)), ErrAlreadyDisposed)
}

func TestReassemblerForRejectsFraudulentLength(t *testing.T) {
	h := WireHeader{ID: 1, Length: 0xffff, Fragment: PackFragment(0, false)}
	_, err := ReassemblerFor(h, 10)
	ttesting.AssertErrorIs(t, "too many fragments", err, ErrMessageTooLarge)
}
