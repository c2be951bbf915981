package datasetlock

import (
	"sync/atomic"
	"time"
)

// lockStats tracks statistics for one lock type
type lockStats struct {
	totalAcquired    atomic.Int64
	totalContentions atomic.Int64
	totalTimeHeld    atomic.Int64 // in nanoseconds
	maxTimeHeld      atomic.Int64 // in nanoseconds
	totalWaitTime    atomic.Int64 // in nanoseconds
	maxWaitTime      atomic.Int64 // in nanoseconds
}

// LockStats is a snapshot of the counters kept for one lock type.
// Only outermost acquisitions are counted; reentrant calls by a goroutine
// that already holds the lock type are free.
type LockStats struct {
	TotalAcquired    int64
	TotalContentions int64
	TotalTimeHeld    time.Duration
	MaxTimeHeld      time.Duration
	TotalWaitTime    time.Duration
	MaxWaitTime      time.Duration
}

// AverageTimeHeld returns TotalTimeHeld divided by TotalAcquired.
func (s LockStats) AverageTimeHeld() time.Duration {
	if s.TotalAcquired == 0 {
		return 0
	}
	return s.TotalTimeHeld / time.Duration(s.TotalAcquired)
}

func (s *lockStats) recordAcquire(wait time.Duration, contended bool) {
	s.totalAcquired.Add(1)
	if contended {
		s.totalContentions.Add(1)
	}
	s.totalWaitTime.Add(int64(wait))
	storeMax(&s.maxWaitTime, int64(wait))
}

func (s *lockStats) recordRelease(held time.Duration) {
	s.totalTimeHeld.Add(int64(held))
	storeMax(&s.maxTimeHeld, int64(held))
}

func (s *lockStats) snapshot() LockStats {
	return LockStats{
		TotalAcquired:    s.totalAcquired.Load(),
		TotalContentions: s.totalContentions.Load(),
		TotalTimeHeld:    time.Duration(s.totalTimeHeld.Load()),
		MaxTimeHeld:      time.Duration(s.maxTimeHeld.Load()),
		TotalWaitTime:    time.Duration(s.totalWaitTime.Load()),
		MaxWaitTime:      time.Duration(s.maxWaitTime.Load()),
	}
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		current := v.Load()
		if n <= current {
			return
		}
		if v.CompareAndSwap(current, n) {
			return
		}
	}
}
