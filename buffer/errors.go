package buffer

import (
	"github.com/pkg/errors"
)

var (
	ErrBufferUnderflow    = errors.New("buffer: not enough data to read")
	ErrBufferOverflow     = errors.New("buffer: not enough room to write")
	ErrCapacityExceeded   = errors.New("buffer: capacity ceiling exceeded")
	ErrVarintOverflow     = errors.New("buffer: varint overflows target type")
	ErrInvalidLength      = errors.New("buffer: invalid length")
	ErrPositionOutOfRange = errors.New("buffer: position out of range")
	ErrNotReadable        = errors.New("buffer: not readable")
	ErrNotWritable        = errors.New("buffer: not writable")
	ErrNotSeekable        = errors.New("buffer: not seekable")
	ErrAlreadyDisposed    = errors.New("buffer: already disposed")
)
