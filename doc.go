/*
Package datasetlock provides a reentrant, goroutine-aware read/write lock that
guards a shared data container written by producer goroutines and read by
consumer or render goroutines.

Key Features:
  - Many concurrent readers or a single writer
  - Reentrant read and write acquisition per goroutine
  - Reader barging: a read request is granted while a writer is merely queued
  - Guards that run a function under the lock and always release it
  - Lock calls return the container so a data operation can be chained
  - Optional slog logging, observers, statistics and a global registry

Basic Usage:

	ds := dataset.New("test")
	lock := ds.Lock() // a *datasetlock.Lock[*dataset.DataSet]

	// fluent style, release is always explicit
	lock.WriteLock().Add(1, 2).Add(2, 4)
	lock.WriteUnlock()

	n := lock.ReadLock().DataCount()
	lock.ReadUnlock()

	// guard style
	sum, err := datasetlock.ReadLockGuardValue(lock, func() (float64, error) {
		return ds.SumY(), nil
	})

Misuse:
Releasing a lock type the calling goroutine does not hold panics with a
*LockError wrapping ErrUnbalancedRelease, the same way sync.RWMutex treats an
unlock of an unlocked mutex. A goroutine holding read locks that asks for the
write lock while other readers are present panics with ErrUpgradeBlocked
instead of deadlocking on itself.

Starvation:
Readers barging past queued writers maximise read throughput. Under sustained
read pressure a writer may wait indefinitely; that is accepted behaviour and is
not reported as a fault. Writers among themselves are served in arrival order.

Acquisition cannot time out or be cancelled. Callers needing bounded waits
must layer that on top.
*/
package datasetlock
