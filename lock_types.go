package datasetlock

import (
	"fmt"
	"time"
)

// LockType is the type of lock
type LockType int

const (
	ReadLock LockType = iota
	WriteLock
)

// stringer for LockType
func (lt LockType) String() string {
	switch lt {
	case ReadLock:
		return "ReadLock"
	case WriteLock:
		return "WriteLock"
	}
	return fmt.Sprintf("LockType(%d)", int(lt))
}

// EventKind tells whether an Event reports an acquisition or a release.
type EventKind int

const (
	Acquired EventKind = iota
	Released
)

func (k EventKind) String() string {
	return []string{"ACQUIRED", "RELEASED"}[k]
}

// Event describes a single acquisition or release as seen by an Observer.
//
// Depth is the calling goroutine's reentrancy depth for Type after the
// operation. Readers and Writers are the shared counters right after the
// operation. Wait is set on acquisitions; Held is set on the release that
// brings Depth back to zero.
type Event struct {
	Kind        EventKind
	Lock        string
	Type        LockType
	GoroutineID uint64
	Depth       int
	Readers     int
	Writers     int
	Wait        time.Duration
	Held        time.Duration
	Contended   bool
}

// Outermost reports whether the event opened or closed the goroutine's
// outermost hold of its lock type.
func (e Event) Outermost() bool {
	if e.Kind == Acquired {
		return e.Depth == 1
	}
	return e.Depth == 0
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s on '%s' (goroutine %d, depth %d, readers %d, writers %d)",
		e.Type, e.Kind, e.Lock, e.GoroutineID, e.Depth, e.Readers, e.Writers)
}

// Observer receives lock events. Implementations are called synchronously
// from the goroutine that acquired or released the lock, after the lock's
// internal state is settled, so they must not block.
type Observer interface {
	Acquired(Event)
	Released(Event)
}

// ObserverFuncs adapts plain functions to the Observer interface. Nil fields
// are skipped.
type ObserverFuncs struct {
	OnAcquired func(Event)
	OnReleased func(Event)
}

func (o ObserverFuncs) Acquired(e Event) {
	if o.OnAcquired != nil {
		o.OnAcquired(e)
	}
}

func (o ObserverFuncs) Released(e Event) {
	if o.OnReleased != nil {
		o.OnReleased(e)
	}
}
