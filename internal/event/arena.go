package event

import "sync/atomic"

// Arena is a set of reports allocated once, at process start.
// Slots are claimed and given back without locking or allocating.
type Arena struct {
	reports []Report
	used    []atomic.Bool
}

// NewArena allocates size reports.
func NewArena(size int) *Arena {
	size = max(size, 1)
	return &Arena{
		reports: make([]Report, size),
		used:    make([]atomic.Bool, size),
	}
}

// Acquire returns a free, zeroed report, and false when all of them are in use.
func (a *Arena) Acquire() (*Report, bool) {
	for i := range a.used {
		if a.used[i].CompareAndSwap(false, true) {
			return &a.reports[i], true
		}
	}
	return nil, false
}

// Release resets r and gives its slot back. Reports not owned by the arena are ignored.
func (a *Arena) Release(r *Report) {
	for i := range a.reports {
		if &a.reports[i] != r {
			continue
		}
		r.Reset()
		a.used[i].Store(false)
		return
	}
}

// Size returns the number of reports in the arena.
func (a *Arena) Size() int {
	return len(a.reports)
}
