package net

import (
	"time"

	"github.com/pkg/errors"
)

// FragmentReassembler collects the fragments of one message, in any
// order, until the message can be assembled.
type FragmentReassembler struct {
	id     uint32
	length int

	fragments [][]byte
	count     int
	received  int
	lastSeen  bool
	firstSize int

	touched  time.Time
	disposed bool
}

// NewFragmentReassembler sizes a reassembler for a message of length
// bytes. A zero estimate derives one from the length.
func NewFragmentReassembler(id uint32, length uint16, estimatedFragments int) *FragmentReassembler {
	if estimatedFragments <= 0 {
		estimatedFragments = max(2, int(length)>>10)
	}
	return &FragmentReassembler{
		id:        id,
		length:    int(length),
		fragments: make([][]byte, min(estimatedFragments, MaximumFragments)),
	}
}

// ReassemblerFor sizes a reassembler from the first datagram seen of a
// message, assuming every fragment but the last carries as much as this
// one. A size claim that needs more than MaximumFragments fragments is
// rejected.
func ReassemblerFor(h WireHeader, fragmentSize int) (*FragmentReassembler, error) {
	estimate := 1
	if !h.IsLastFragment() && fragmentSize > 0 {
		estimate = (int(h.Length) + fragmentSize - 1) / fragmentSize
		if estimate > MaximumFragments {
			return nil, errors.Wrapf(ErrMessageTooLarge, "%d bytes in fragments of %d", h.Length, fragmentSize)
		}
	}
	estimate = max(estimate, h.FragmentIndex()+1)
	return NewFragmentReassembler(h.ID, h.Length, estimate), nil
}

func (r *FragmentReassembler) ID() uint32 { return r.id }

// Capacity is the number of fragments currently expected.
func (r *FragmentReassembler) Capacity() int { return len(r.fragments) }

// Count is the number of distinct fragments received.
func (r *FragmentReassembler) Count() int { return r.count }

// IsComplete reports whether every fragment up to the last has arrived.
func (r *FragmentReassembler) IsComplete() bool {
	return r.lastSeen && r.count == len(r.fragments)
}

// LastActivity returns when a fragment was last accepted.
func (r *FragmentReassembler) LastActivity() time.Time { return r.touched }

// Add stores data as the fragment described by the fragment byte. data is
// retained. Duplicates and indexes past the known last fragment are
// rejected without changing any state.
func (r *FragmentReassembler) Add(fragment uint8, data []byte) error {
	if r.disposed {
		return ErrAlreadyDisposed
	}
	idx := int(fragment & FragmentIndexMask)
	last := fragment&FragmentLastFlag != 0

	if r.lastSeen && idx >= len(r.fragments) {
		return errors.Wrapf(ErrFragmentOutOfRange, "index %d after last %d", idx, len(r.fragments)-1)
	}
	if last && r.lastSeen {
		// Only one fragment can carry the flag; any other index is a lie.
		if idx != len(r.fragments)-1 {
			return errors.Wrapf(ErrFragmentOutOfRange, "second last fragment %d", idx)
		}
	}
	if last && !r.lastSeen {
		for i := idx + 1; i < len(r.fragments); i++ {
			if r.fragments[i] != nil {
				return errors.Wrapf(ErrFragmentOutOfRange, "last fragment %d but %d already received", idx, i)
			}
		}
	}
	if idx < len(r.fragments) && r.fragments[idx] != nil {
		return errors.Wrapf(ErrDuplicateFragment, "message %d fragment %d", r.id, idx)
	}
	if r.received+len(data) > r.length {
		return errors.Wrapf(ErrReassemblyFailed, "fragments exceed declared length %d", r.length)
	}

	if idx >= len(r.fragments) {
		r.grow(idx, len(data))
	}
	if last {
		r.fragments = r.fragments[:idx+1]
		r.lastSeen = true
	}
	if r.firstSize == 0 && !last {
		r.firstSize = len(data)
	}

	if data == nil {
		data = []byte{}
	}
	r.fragments[idx] = data
	r.count++
	r.received += len(data)
	r.touched = time.Now()
	return nil
}

// TryAdd is Add reporting only whether the fragment was accepted.
func (r *FragmentReassembler) TryAdd(fragment uint8, data []byte) bool {
	return r.Add(fragment, data) == nil
}

func (r *FragmentReassembler) grow(idx, size int) {
	want := len(r.fragments) + 1
	if idx > len(r.fragments) {
		fragSize := r.firstSize
		if fragSize == 0 {
			fragSize = size
		}
		want = idx + 1
		if fragSize > 0 {
			want = max(want, (r.length+fragSize-1)/fragSize)
		}
	}
	want = max(min(want, MaximumFragments), idx+1)
	grown := make([][]byte, want)
	copy(grown, r.fragments)
	r.fragments = grown
}

// TryAssemble copies the message into dst in fragment order. It returns
// false, leaving dst's contents unspecified, unless the message is complete
// and exactly fills its declared length.
func (r *FragmentReassembler) TryAssemble(dst []byte) (int, bool) {
	if r.disposed || !r.IsComplete() || r.received != r.length || len(dst) < r.length {
		return 0, false
	}
	off := 0
	for _, f := range r.fragments {
		off += copy(dst[off:], f)
	}
	return off, true
}

// Assemble returns the whole message in a new slice.
func (r *FragmentReassembler) Assemble() ([]byte, error) {
	dst := make([]byte, r.length)
	if _, ok := r.TryAssemble(dst); !ok {
		return nil, errors.Wrapf(ErrReassemblyFailed, "message %d: %d/%d fragments, %d/%d bytes",
			r.id, r.count, len(r.fragments), r.received, r.length)
	}
	return dst, nil
}

// Close drops the collected fragments.
func (r *FragmentReassembler) Close() {
	r.disposed = true
	r.fragments = nil
}
