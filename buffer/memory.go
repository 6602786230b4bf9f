package buffer

import (
	"math"

	"github.com/pkg/errors"

	"github.com/intersectFR/Intersect-Engine-FR/pool"
)

// MaximumCapacity is the default ceiling on the size of a MemoryBuffer.
const MaximumCapacity = math.MaxInt32

const minimumGrowth = 64

// MemoryBuffer is a growable buffer whose storage is rented from a block
// pool. It owns its block exclusively until Close returns it.
//
// A MemoryBuffer is not safe for concurrent use.
type MemoryBuffer struct {
	Buffer

	blocks      *pool.BlockPool
	block       []byte
	position    int
	length      int
	maxCapacity int

	canRead, canSeek, canWrite bool
	closed                     bool
}

// MemoryOption adjusts a MemoryBuffer at construction.
type MemoryOption func(*MemoryBuffer)

// WithBlockPool rents storage from bp instead of pool.Shared.
func WithBlockPool(bp *pool.BlockPool) MemoryOption {
	return func(mb *MemoryBuffer) { mb.blocks = bp }
}

// WithMaximumCapacity lowers the capacity ceiling.
func WithMaximumCapacity(n int) MemoryOption {
	return func(mb *MemoryBuffer) {
		if n >= 0 && n < mb.maxCapacity {
			mb.maxCapacity = n
		}
	}
}

// WithAccess restricts which operations the buffer permits.
func WithAccess(canRead, canSeek, canWrite bool) MemoryOption {
	return func(mb *MemoryBuffer) {
		mb.canRead, mb.canSeek, mb.canWrite = canRead, canSeek, canWrite
	}
}

// NewMemoryBuffer returns an empty buffer. The initial capacity is a hint,
// clamped to the capacity ceiling.
func NewMemoryBuffer(initialCapacity int, opts ...MemoryOption) *MemoryBuffer {
	mb := &MemoryBuffer{
		blocks:      pool.Shared,
		maxCapacity: MaximumCapacity,
		canRead:     true,
		canSeek:     true,
		canWrite:    true,
	}
	mb.Buffer.spans = mb
	for _, opt := range opts {
		opt(mb)
	}
	initialCapacity = min(max(initialCapacity, 0), mb.maxCapacity)
	if initialCapacity > 0 {
		mb.block, _ = mb.blocks.Rent(initialCapacity)
	}
	return mb
}

// MemoryBufferFrom returns a buffer holding a copy of data, positioned at
// its start.
func MemoryBufferFrom(data []byte, opts ...MemoryOption) *MemoryBuffer {
	mb := NewMemoryBuffer(len(data), opts...)
	n := copy(mb.block, data)
	mb.length = n
	return mb
}

func (mb *MemoryBuffer) CanRead() bool  { return mb.canRead }
func (mb *MemoryBuffer) CanSeek() bool  { return mb.canSeek }
func (mb *MemoryBuffer) CanWrite() bool { return mb.canWrite }

func (mb *MemoryBuffer) Position() int { return mb.position }
func (mb *MemoryBuffer) Len() int      { return mb.length }
func (mb *MemoryBuffer) Cap() int      { return cap(mb.block) }

// Remaining returns the number of unread bytes.
func (mb *MemoryBuffer) Remaining() int { return mb.length - mb.position }

// SetPosition moves the cursor to p, which must lie in [0, Len()).
func (mb *MemoryBuffer) SetPosition(p int) error {
	if mb.closed {
		return ErrAlreadyDisposed
	}
	if !mb.canSeek {
		return ErrNotSeekable
	}
	if p < 0 || p >= mb.length {
		return errors.Wrapf(ErrPositionOutOfRange, "position %d outside [0, %d)", p, mb.length)
	}
	mb.position = p
	return nil
}

// Rewind moves the cursor to the start of the buffer. Unlike SetPosition it
// is valid on an empty buffer.
func (mb *MemoryBuffer) Rewind() error {
	if mb.closed {
		return ErrAlreadyDisposed
	}
	if !mb.canSeek {
		return ErrNotSeekable
	}
	mb.position = 0
	return nil
}

// SetCapacity grows the buffer to hold at least n bytes. It never shrinks.
func (mb *MemoryBuffer) SetCapacity(n int) error {
	if mb.closed {
		return ErrAlreadyDisposed
	}
	return mb.EnsureCapacity(n)
}

// EnsureCapacity makes sure the block holds at least n bytes, renting a
// larger block and copying the live bytes when it does not.
func (mb *MemoryBuffer) EnsureCapacity(n int) error {
	if n < 0 {
		return errors.Wrapf(ErrInvalidLength, "capacity %d", n)
	}
	if n > mb.maxCapacity {
		return errors.Wrapf(ErrCapacityExceeded, "capacity %d above %d", n, mb.maxCapacity)
	}
	if cap(mb.block) >= n {
		return nil
	}

	want := min(max(n, 2*cap(mb.block), minimumGrowth), mb.maxCapacity)
	block, _ := mb.blocks.Rent(want)
	copy(block, mb.block[:mb.length])
	old := mb.block
	mb.block = block
	mb.blocks.Return(old)
	return nil
}

func (mb *MemoryBuffer) ReadSpan(n int) ([]byte, error) {
	if mb.closed {
		return nil, ErrAlreadyDisposed
	}
	if !mb.canRead {
		return nil, ErrNotReadable
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "read of %d bytes", n)
	}
	if remaining := mb.length - mb.position; remaining < n {
		return nil, errors.Wrapf(ErrBufferUnderflow, "read of %d bytes, %d left", n, remaining)
	}
	s := mb.block[mb.position : mb.position+n]
	mb.position += n
	return s, nil
}

func (mb *MemoryBuffer) WriteSpan(n int) ([]byte, error) {
	if mb.closed {
		return nil, ErrAlreadyDisposed
	}
	if !mb.canWrite {
		return nil, ErrNotWritable
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "write of %d bytes", n)
	}
	if int64(mb.position)+int64(n) > int64(mb.maxCapacity) {
		return nil, errors.Wrapf(ErrCapacityExceeded, "write of %d bytes at %d", n, mb.position)
	}
	if err := mb.EnsureCapacity(mb.position + n); err != nil {
		return nil, err
	}
	s := mb.block[mb.position : mb.position+n]
	mb.position += n
	mb.length = max(mb.length, mb.position)
	return s, nil
}

// Bytes returns the live bytes. The slice aliases the buffer's block and is
// only valid until the next write or Close.
func (mb *MemoryBuffer) Bytes() []byte {
	return mb.block[:mb.length]
}

// Reset empties the buffer, keeping its block.
func (mb *MemoryBuffer) Reset() {
	mb.position = 0
	mb.length = 0
}

// Close returns the block to its pool. Any later operation fails with
// ErrAlreadyDisposed.
func (mb *MemoryBuffer) Close() error {
	if mb.closed {
		return ErrAlreadyDisposed
	}
	mb.closed = true
	mb.blocks.Return(mb.block)
	mb.block = nil
	mb.position, mb.length = 0, 0
	return nil
}
