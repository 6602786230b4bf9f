package pool

// OversizeFactor bounds how much larger than requested a pooled block may be
// before the block pool gives up and allocates.
const OversizeFactor = 256

// BlockAllocator selects the smallest pooled block that holds at least
// Capacity bytes, and aborts once blocks grow OversizeFactor times larger.
type BlockAllocator struct {
	Capacity int
}

func (a BlockAllocator) Allocate() []byte {
	return make([]byte, a.Capacity)
}

func (a BlockAllocator) Select(block []byte) SelectionResult {
	if cap(block) >= a.Capacity*OversizeFactor {
		return Abort
	}
	if cap(block) < a.Capacity {
		return Continue
	}
	return Select
}

// DefaultBlockLimit is how many idle blocks a BlockPool keeps.
const DefaultBlockLimit = 256

// BlockPool recycles byte blocks by capacity.
type BlockPool struct {
	pool *Pool[[]byte]
}

// Shared is the process-wide block pool used when a caller does not supply
// its own.
var Shared = NewBlockPool()

func NewBlockPool() *BlockPool {
	return NewLimitedBlockPool(DefaultBlockLimit)
}

// NewLimitedBlockPool keeps at most limit idle blocks; zero means no limit.
func NewLimitedBlockPool(limit int) *BlockPool {
	return &BlockPool{
		pool: NewLimited(func(a, b []byte) int { return cap(a) - cap(b) }, limit),
	}
}

// Rent returns a block with len == cap >= n. The second return value
// reports whether the block was reused.
func (bp *BlockPool) Rent(n int) ([]byte, bool) {
	if n < 0 {
		n = 0
	}
	b, reused := bp.pool.Take(BlockAllocator{Capacity: n})
	return b[:cap(b)], reused
}

// Return hands a block back. Blocks with zero capacity, and blocks
// returned to a full pool, are dropped.
func (bp *BlockPool) Return(b []byte) {
	if cap(b) == 0 {
		return
	}
	bp.pool.Release(b[:cap(b)])
}

// Len reports the number of pooled blocks.
func (bp *BlockPool) Len() int {
	return bp.pool.Len()
}
