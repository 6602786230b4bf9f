// Package pool implements a best-fit free list of reusable objects, and a
// byte block pool built on top of it.
package pool

import (
	"sort"
	"sync"
)

// SelectionResult is what an Allocator answers when offered a pooled item.
type SelectionResult int

const (
	// Continue skips the offered item and moves to the next, larger one.
	Continue SelectionResult = iota
	// Select takes the offered item out of the pool.
	Select
	// Abort stops the scan; the allocator will allocate a fresh item.
	Abort
)

func (r SelectionResult) String() string {
	switch r {
	case Continue:
		return "continue"
	case Select:
		return "select"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Allocator chooses among pooled items and creates new ones on a miss.
type Allocator[T any] interface {
	Allocate() T
	Select(item T) SelectionResult
}

// Pool keeps released items sorted ascending according to its comparer.
//
// It is safe for concurrent use. Take never blocks waiting for an item and
// never fails: a miss falls back to the allocator.
type Pool[T any] struct {
	mu      sync.Mutex
	compare func(a, b T) int
	limit   int
	items   []T
}

// New returns an empty, unbounded pool ordered by compare, which returns a
// negative number when a sorts before b, zero when equal and a positive
// number otherwise.
func New[T any](compare func(a, b T) int) *Pool[T] {
	return &Pool[T]{compare: compare}
}

// NewLimited is New holding at most limit items. A limit of zero or less
// means unbounded.
func NewLimited[T any](compare func(a, b T) int, limit int) *Pool[T] {
	return &Pool[T]{compare: compare, limit: limit}
}

// Release returns item to the pool, inserting it after every item it does
// not sort before. It reports false, keeping nothing, when the pool is
// full.
func (p *Pool[T]) Release(item T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limit > 0 && len(p.items) >= p.limit {
		return false
	}
	idx := sort.Search(len(p.items), func(i int) bool {
		return p.compare(p.items[i], item) > 0
	})
	var zero T
	p.items = append(p.items, zero)
	copy(p.items[idx+1:], p.items[idx:])
	p.items[idx] = item
	return true
}

// Take offers pooled items to a in ascending order. It returns the selected
// item and true, or a freshly allocated item and false.
func (p *Pool[T]) Take(a Allocator[T]) (T, bool) {
	p.mu.Lock()
scan:
	for i, it := range p.items {
		switch a.Select(it) {
		case Continue:
		case Select:
			last := len(p.items) - 1
			copy(p.items[i:], p.items[i+1:])
			var zero T
			p.items[last] = zero
			p.items = p.items[:last]
			p.mu.Unlock()
			return it, true
		default:
			break scan
		}
	}
	p.mu.Unlock()

	return a.Allocate(), false
}

// Len returns the number of pooled items.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
