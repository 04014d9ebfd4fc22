package manager

import (
	"venmux/internal/types"
)

// Allocator hands out ports from a fixed contiguous range, one per vendor
// session. The range is sized to the concurrent-session cap, so an exhausted
// pool means "at capacity", not a transient fault.
//
// The allocator carries no lock of its own: the manager's coarse mutex
// covers it together with the registry and the store snapshot, because the
// three must never disagree about which ports are held.
type Allocator struct {
	start, end int
	used       map[int]bool
}

func NewAllocator(start, end int) *Allocator {
	return &Allocator{start: start, end: end, used: make(map[int]bool)}
}

// Acquire reserves and returns the lowest free port in the range.
func (a *Allocator) Acquire() (int, error) {
	for p := a.start; p <= a.end; p++ {
		if !a.used[p] {
			a.used[p] = true
			return p, nil
		}
	}
	return 0, types.Err(types.ErrPoolExhausted, nil, "no free port in [%d, %d]", a.start, a.end)
}

// Release frees a reserved port. Releasing a port that is outside the range,
// never reserved or already free is a no-op: both the delete path and the
// failure-cleanup path may try, and only one of them can win.
func (a *Allocator) Release(port int) {
	delete(a.used, port)
}

func (a *Allocator) Capacity() int {
	return a.end - a.start + 1
}

func (a *Allocator) Free() int {
	return a.Capacity() - len(a.used)
}
