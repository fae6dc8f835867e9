package common

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrQuotaCounterOverflow = errors.New("quota counter overflow")
)

// Usage captures the operation counter of one caller within a window.
type Usage struct {
	Ops    uint32
	Window uint64
}

// Quota bounds how many mutating operations a single caller may submit per
// window of blocks. A zero MaxOps disables the limit.
type Quota struct {
	MaxOps       uint32
	WindowBlocks uint64
}

// WindowOf returns the window index containing height.
func (q Quota) WindowOf(height uint64) uint64 {
	if q.WindowBlocks == 0 {
		return 0
	}
	return height / q.WindowBlocks
}

// CheckQuota verifies whether addOps more operations fit within the quota for
// window. The returned Usage reflects the updated counter when the quota is
// not exceeded; on denial prev is returned unchanged.
func CheckQuota(q Quota, window uint64, prev Usage, addOps uint32) (Usage, error) {
	next := prev
	if prev.Window != window {
		next = Usage{Window: window}
	}
	if addOps > 0 {
		if next.Ops > math.MaxUint32-addOps {
			return prev, ErrQuotaCounterOverflow
		}
		next.Ops += addOps
	}
	if q.MaxOps > 0 && next.Ops > q.MaxOps {
		return prev, ErrQuotaExceeded
	}
	return next, nil
}

// Limiter tracks Usage per caller in memory.
type Limiter struct {
	mu    sync.Mutex
	quota Quota
	usage map[[20]byte]Usage
}

// NewLimiter returns a limiter enforcing q.
func NewLimiter(q Quota) *Limiter {
	return &Limiter{quota: q, usage: make(map[[20]byte]Usage)}
}

// Allow charges one operation to caller at height.
func (l *Limiter) Allow(caller [20]byte, height uint64) error {
	if l == nil || l.quota.MaxOps == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := CheckQuota(l.quota, l.quota.WindowOf(height), l.usage[caller], 1)
	if err != nil {
		return err
	}
	l.usage[caller] = next
	return nil
}

// Release returns one operation charged to caller at height. Charges from an
// earlier window are already gone and are ignored.
func (l *Limiter) Release(caller [20]byte, height uint64) {
	if l == nil || l.quota.MaxOps == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	usage, ok := l.usage[caller]
	if !ok || usage.Window != l.quota.WindowOf(height) || usage.Ops == 0 {
		return
	}
	usage.Ops--
	l.usage[caller] = usage
}
