package buffer

import (
	"github.com/pkg/errors"
)

// FixedBuffer is a non-growing buffer over a caller supplied region.
type FixedBuffer struct {
	Buffer

	region   []byte
	position int
	length   int
}

// NewFixedBuffer returns a buffer over region whose first length bytes are
// readable. Writes may fill the region up to len(region).
func NewFixedBuffer(region []byte, length int) *FixedBuffer {
	if length < 0 {
		length = 0
	}
	if length > len(region) {
		length = len(region)
	}
	fb := &FixedBuffer{region: region, length: length}
	fb.Buffer.spans = fb
	return fb
}

func (fb *FixedBuffer) ReadSpan(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "read of %d bytes", n)
	}
	if fb.length-fb.position < n {
		return nil, errors.Wrapf(ErrBufferUnderflow, "read of %d bytes, %d left", n, fb.length-fb.position)
	}
	s := fb.region[fb.position : fb.position+n]
	fb.position += n
	return s, nil
}

func (fb *FixedBuffer) WriteSpan(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "write of %d bytes", n)
	}
	if len(fb.region)-fb.position < n {
		return nil, errors.Wrapf(ErrBufferOverflow, "write of %d bytes, %d free", n, len(fb.region)-fb.position)
	}
	s := fb.region[fb.position : fb.position+n]
	fb.position += n
	fb.length = max(fb.length, fb.position)
	return s, nil
}

func (fb *FixedBuffer) Position() int { return fb.position }
func (fb *FixedBuffer) Len() int      { return fb.length }
func (fb *FixedBuffer) Cap() int      { return len(fb.region) }

// Bytes returns the written part of the region.
func (fb *FixedBuffer) Bytes() []byte { return fb.region[:fb.length] }

// Remaining returns the unread part of the region, without consuming it.
func (fb *FixedBuffer) Remaining() []byte { return fb.region[fb.position:fb.length] }
