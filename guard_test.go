package datasetlock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNestedGuards(t *testing.T) {
	l := newTestLock()

	var ok bool
	err := l.WriteLockGuard(func() error {
		l.container.add()
		return l.WriteLockGuard(func() error {
			l.container.add()
			return l.ReadLockGuard(func() error {
				return l.ReadLockGuard(func() error {
					reads, writes := l.HoldCounts()
					assert.Equal(t, 2, reads)
					assert.Equal(t, 2, writes)
					ok = true
					return nil
				})
			})
		})
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, l.ReaderCount())
	assert.Equal(t, 0, l.WriterCount())

	n, err := ReadLockGuardValue(l, func() (int, error) {
		return ReadLockGuardValue(l, func() (int, error) {
			return l.container.n, nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, l.ReaderCount())
}

func TestGuardErrorPassthrough(t *testing.T) {
	l := newTestLock()
	opErr := errors.New("op failed")

	err := l.ReadLockGuard(func() error { return opErr })
	assert.Same(t, opErr, err)

	err = l.WriteLockGuard(func() error { return opErr })
	assert.Same(t, opErr, err)

	v, err := WriteLockGuardValue(l, func() (string, error) { return "partial", opErr })
	assert.Same(t, opErr, err)
	assert.Equal(t, "partial", v)

	assert.Equal(t, 0, l.ReaderCount())
	assert.Equal(t, 0, l.WriterCount())
}

func TestGuardValueUnderWrite(t *testing.T) {
	l := newTestLock()

	got, err := WriteLockGuardValue(l, func() (float64, error) {
		l.container.add()
		return float64(l.container.n) * 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
	assert.Equal(t, 0, l.WriterCount())
}

func TestGuardReleasesOnPanic(t *testing.T) {
	l := newTestLock()

	assert.PanicsWithValue(t, "boom", func() {
		_ = l.WriteLockGuard(func() error {
			return l.ReadLockGuard(func() error {
				panic("boom")
			})
		})
	})
	assert.Equal(t, 0, l.ReaderCount())
	assert.Equal(t, 0, l.WriterCount())

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = ReadLockGuardValue(l, func() (int, error) { panic("boom") })
	})
	assert.Equal(t, 0, l.ReaderCount())

	// the lock is still usable by another goroutine
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.WriteLock()
		l.WriteUnlock()
	}()
	waitClosed(t, done, "writer after panicking guard")
}

func TestGuardNilOperationPanics(t *testing.T) {
	l := newTestLock()

	lerr := recoverLockError(t, func() { _ = l.ReadLockGuard(nil) })
	assert.ErrorIs(t, lerr, ErrNilOperation)
	assert.Equal(t, "ReadLockGuard", lerr.Op)

	lerr = recoverLockError(t, func() { _ = l.WriteLockGuard(nil) })
	assert.ErrorIs(t, lerr, ErrNilOperation)

	lerr = recoverLockError(t, func() { _, _ = ReadLockGuardValue[*points, int](l, nil) })
	assert.ErrorIs(t, lerr, ErrNilOperation)

	lerr = recoverLockError(t, func() { _, _ = WriteLockGuardValue[*points, int](l, nil) })
	assert.ErrorIs(t, lerr, ErrNilOperation)

	assert.Equal(t, 0, l.ReaderCount())
	assert.Equal(t, 0, l.WriterCount())
}

func TestGuardWaitsForWriter(t *testing.T) {
	l := newTestLock()
	l.WriteLock()

	result := make(chan int, 1)
	go func() {
		n, _ := ReadLockGuardValue(l, func() (int, error) { return l.container.n, nil })
		result <- n
	}()
	require.Eventually(t, func() bool { return l.PendingReaders() == 1 }, waitTimeout, tick)

	l.container.add()
	l.WriteUnlock()

	select {
	case n := <-result:
		assert.Equal(t, 1, n)
	case <-time.After(waitTimeout):
		t.Fatal("guarded reader never ran")
	}
}

func TestGuardReleasesWhenObserverPanics(t *testing.T) {
	l := newTestLock().WithObserver(ObserverFuncs{
		OnAcquired: func(e Event) {
			if e.Type == WriteLock {
				panic("observer failed")
			}
		},
	})

	assert.PanicsWithValue(t, "observer failed", func() {
		_ = l.WriteLockGuard(func() error {
			t.Error("op must not run when acquisition panicked")
			return nil
		})
	})
	assert.Equal(t, 0, l.WriterCount())
	_, writes := l.HoldCounts()
	assert.Equal(t, 0, writes)

	assert.PanicsWithValue(t, "observer failed", func() {
		_, _ = WriteLockGuardValue(l, func() (int, error) { return 1, nil })
	})
	assert.Equal(t, 0, l.WriterCount())

	// another goroutine can still take the lock
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.ReadLock()
		l.ReadUnlock()
	}()
	waitClosed(t, done, "reader after panicking observer")
}
