package datasetlock

// ReadLockGuard runs op while holding the read lock and returns op's error
// unchanged. The lock is released on every exit path, including a panic in
// op or in an observer, which keeps unwinding after the release. Guards nest: op may take the
// read lock again, directly or through another guard.
func (l *Lock[T]) ReadLockGuard(op func() error) error {
	if op == nil {
		panic(l.misuse("ReadLockGuard", ReadLock, goroutineID(), ErrNilOperation))
	}
	l.ReadLock()
	defer l.ReadUnlock()
	return op()
}

// WriteLockGuard runs op while holding the write lock and returns op's error
// unchanged. Release guarantees are the same as for ReadLockGuard.
func (l *Lock[T]) WriteLockGuard(op func() error) error {
	if op == nil {
		panic(l.misuse("WriteLockGuard", WriteLock, goroutineID(), ErrNilOperation))
	}
	l.WriteLock()
	defer l.WriteUnlock()
	return op()
}

// ReadLockGuardValue runs op under l's read lock and passes its result and
// error through unchanged.
func ReadLockGuardValue[T, R any](l *Lock[T], op func() (R, error)) (R, error) {
	if op == nil {
		panic(l.misuse("ReadLockGuardValue", ReadLock, goroutineID(), ErrNilOperation))
	}
	l.ReadLock()
	defer l.ReadUnlock()
	return op()
}

// WriteLockGuardValue runs op under l's write lock and passes its result and
// error through unchanged.
func WriteLockGuardValue[T, R any](l *Lock[T], op func() (R, error)) (R, error) {
	if op == nil {
		panic(l.misuse("WriteLockGuardValue", WriteLock, goroutineID(), ErrNilOperation))
	}
	l.WriteLock()
	defer l.WriteUnlock()
	return op()
}
