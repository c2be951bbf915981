package datasetlock

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbalancedRelease is raised when a goroutine releases a lock type it
	// does not currently hold.
	ErrUnbalancedRelease = errors.New("unbalanced lock release")

	// ErrUpgradeBlocked is raised when a goroutine holding read locks asks for
	// the write lock while other readers are present. Waiting would deadlock
	// as soon as a second reader tries the same.
	ErrUpgradeBlocked = errors.New("read lock cannot be upgraded while other readers hold the lock")

	// ErrNilOperation is raised when a guard is called without an operation.
	ErrNilOperation = errors.New("nil guard operation")
)

// LockError is the panic value for misuse of a Lock. It wraps one of the
// sentinel errors above, so a recovered value can be matched with errors.Is.
type LockError struct {
	Lock        string
	Op          string
	Type        LockType
	GoroutineID uint64
	Err         error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("datasetlock: %s on '%s' (%s, goroutine %d): %v",
		e.Op, e.Lock, e.Type, e.GoroutineID, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}
