package pool

import (
	"testing"

	"github.com/intersectFR/Intersect-Engine-FR/ttesting"
)

func TestReleaseKeepsOrder(t *testing.T) {
	p := New(func(a, b int) int { return a - b })
	for _, v := range []int{5, 1, 4, 1, 3} {
		p.Release(v)
	}
	want := []int{1, 1, 3, 4, 5}
	if len(p.items) != len(want) {
		t.Fatalf("len = %d; want %d", len(p.items), len(want))
	}
	for i := range want {
		if p.items[i] != want[i] {
			t.Errorf("items[%d] = %d; want %d", i, p.items[i], want[i])
		}
	}
}

type thresholdAllocator struct {
	min, abort int
	offered    []int
}

func (a *thresholdAllocator) Allocate() int { return -1 }

func (a *thresholdAllocator) Select(v int) SelectionResult {
	a.offered = append(a.offered, v)
	if v >= a.abort {
		return Abort
	}
	if v < a.min {
		return Continue
	}
	return Select
}

func TestTakeVisitsEveryCandidate(t *testing.T) {
	p := New(func(a, b int) int { return a - b })
	for _, v := range []int{1, 2, 3, 4} {
		p.Release(v)
	}

	a := &thresholdAllocator{min: 4, abort: 100}
	got, ok := p.Take(a)
	ttesting.AssertEqual(t, "reused", ok, true)
	ttesting.AssertEqualInt(t, "value", got, 4)
	ttesting.AssertEqualInt(t, "offered", len(a.offered), 4)
	ttesting.AssertEqualInt(t, "remaining", p.Len(), 3)
}

func TestTakeAbort(t *testing.T) {
	p := New(func(a, b int) int { return a - b })
	p.Release(1)
	p.Release(500)

	a := &thresholdAllocator{min: 2, abort: 100}
	got, ok := p.Take(a)
	ttesting.AssertEqual(t, "reused", ok, false)
	ttesting.AssertEqualInt(t, "allocated", got, -1)
	ttesting.AssertEqualInt(t, "remaining", p.Len(), 2)
}

func TestBlockReuseIdentity(t *testing.T) {
	bp := NewBlockPool()
	b, reused := bp.Rent(1024)
	if reused {
		t.Fatalf("empty pool reported reuse")
	}
	first := &b[0]
	bp.Return(b)

	again, reused := bp.Rent(1024)
	ttesting.AssertEqual(t, "reused", reused, true)
	ttesting.AssertEqual(t, "identity", &again[0], first)
	ttesting.AssertEqualInt(t, "pool drained", bp.Len(), 0)
}

func TestBlockSmallestFit(t *testing.T) {
	bp := NewBlockPool()
	bp.Return(make([]byte, 64))
	bp.Return(make([]byte, 4096))
	bp.Return(make([]byte, 512))

	b, reused := bp.Rent(100)
	ttesting.AssertEqual(t, "reused", reused, true)
	ttesting.AssertEqualInt(t, "cap", cap(b), 512)
	ttesting.AssertEqualInt(t, "len", len(b), 512)
}

func TestBlockOversizeAbort(t *testing.T) {
	bp := NewBlockPool()
	big := make([]byte, 16*OversizeFactor)
	bp.Return(big)

	b, reused := bp.Rent(16)
	ttesting.AssertEqual(t, "reused", reused, false)
	ttesting.AssertEqualInt(t, "cap", cap(b), 16)
	ttesting.AssertEqualInt(t, "pooled", bp.Len(), 1)

	// One byte under the ceiling is still acceptable.
	bp2 := NewBlockPool()
	bp2.Return(make([]byte, 16*OversizeFactor-1))
	_, reused = bp2.Rent(16)
	ttesting.AssertEqual(t, "under ceiling reused", reused, true)
}

func TestSelectionResultString(t *testing.T) {
	for _, tc := range []struct {
		r    SelectionResult
		want string
	}{
		{Continue, "continue"},
		{Select, "select"},
		{Abort, "abort"},
		{SelectionResult(9), "unknown"},
	} {
		ttesting.AssertEqual(t, tc.want, tc.r.String(), tc.want)
	}
}

func TestReleaseRespectsLimit(t *testing.T) {
	p := NewLimited(func(a, b int) int { return a - b }, 3)
	for _, v := range []int{4, 2, 6} {
		ttesting.AssertEqual(t, "kept", p.Release(v), true)
	}
	ttesting.AssertEqual(t, "over limit", p.Release(1), false)
	ttesting.AssertEqualInt(t, "len", p.Len(), 3)
	ttesting.AssertEqualInt(t, "smallest", p.items[0], 2)

	got, ok := p.Take(&thresholdAllocator{min: 0, abort: 100})
	ttesting.AssertEqual(t, "reused", ok, true)
	ttesting.AssertEqualInt(t, "taken", got, 2)
	ttesting.AssertEqual(t, "room again", p.Release(1), true)
	ttesting.AssertEqualInt(t, "inserted first", p.items[0], 1)
}

func TestBlockPoolDropsBeyondLimit(t *testing.T) {
	bp := NewLimitedBlockPool(2)
	for i := 0; i < 5; i++ {
		bp.Return(make([]byte, 64))
	}
	ttesting.AssertEqualInt(t, "pooled", bp.Len(), 2)
}
