package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold is the number of tracked keys above which closed windows are
// dropped.
const pruneThreshold = 1024

type slotCount struct {
	index int64
	count int
}

// MemoryLimiter keeps window counters in process. Used when Redis is off or
// unreachable.
type MemoryLimiter struct {
	mu    sync.Mutex
	slots map[string]slotCount
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{slots: make(map[string]slotCount)}
}

// Allow counts one submission for key in the window containing now.
func (l *MemoryLimiter) Allow(_ context.Context, key string, w Window, now time.Time) (Result, error) {
	if key == "" || w.Unlimited() {
		return Result{Allowed: true}, nil
	}
	index, reset := w.slot(now)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.slots) > pruneThreshold {
		l.prune(index)
	}
	current := l.slots[key]
	if current.index != index {
		current = slotCount{index: index}
	}
	if current.count >= w.Limit {
		return Result{Allowed: false, Reset: reset}, nil
	}
	current.count++
	l.slots[key] = current
	return Result{Allowed: true, Remaining: w.Limit - current.count, Reset: reset}, nil
}

// prune drops counters from windows that closed before index. Callers hold mu.
func (l *MemoryLimiter) prune(index int64) {
	for key, sc := range l.slots {
		if sc.index < index {
			delete(l.slots, key)
		}
	}
}

// Tracked reports how many keys currently hold a counter.
func (l *MemoryLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
