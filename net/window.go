package net

// Message ids are 32 bit serial numbers that wrap. a is newer than b when
// the forward distance from b to a is less than half the id space.
func seqNewer(a, b uint32) bool {
	return int32(a-b) > 0
}

// dedupSize is how many ids behind the newest one a dedupWindow remembers.
// Anything older is treated as already seen.
const dedupSize = 1024

// dedupWindow remembers which of the most recent dedupSize ids have been
// seen on a stream.
type dedupWindow struct {
	started bool
	newest  uint32
	bits    [dedupSize / 64]uint64
}

func (w *dedupWindow) bit(id uint32) (int, uint64) {
	slot := id % dedupSize
	return int(slot / 64), 1 << (slot % 64)
}

// Seen reports whether id was marked, or is too old to tell.
func (w *dedupWindow) Seen(id uint32) bool {
	if !w.started || seqNewer(id, w.newest) {
		return false
	}
	if w.newest-id >= dedupSize {
		return true
	}
	i, m := w.bit(id)
	return w.bits[i]&m != 0
}

// Mark records id.
func (w *dedupWindow) Mark(id uint32) {
	switch {
	case !w.started:
		w.started = true
		w.newest = id
	case seqNewer(id, w.newest):
		if id-w.newest >= dedupSize {
			w.bits = [dedupSize / 64]uint64{}
		} else {
			for s := w.newest + 1; s != id+1; s++ {
				i, m := w.bit(s)
				w.bits[i] &^= m
			}
		}
		w.newest = id
	case w.newest-id >= dedupSize:
		return
	}
	i, m := w.bit(id)
	w.bits[i] |= m
}
