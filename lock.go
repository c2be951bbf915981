// Copyright (c) 2024 Christoph C. Cemper
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package datasetlock

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrStillHeld is returned by Close while any goroutine holds or waits for the lock.
var ErrStillHeld = errors.New("lock is still held")

// readHold is one goroutine's reentrant read acquisition
type readHold struct {
	depth int
	since time.Time
}

// Lock is a reentrant read/write lock guarding a container of type T.
//
// Any number of goroutines may hold the read lock at once; the write lock is
// exclusive. Both are reentrant per goroutine. The write owner may also take
// read locks. A read request is granted whenever no other goroutine holds the
// write lock, even if writers are already queued (readers barge). Writers are
// served one at a time in arrival order.
//
// Lock, unlock and guard calls return the container so a data operation can
// be chained right after acquisition. The returned value is not a release
// token: every ReadLock needs its ReadUnlock and every WriteLock its
// WriteUnlock, called from the same goroutine.
type Lock[T any] struct {
	container T

	id             string
	name           string
	baseLogger     *slog.Logger
	logger         *slog.Logger
	warningTimeout time.Duration
	observers      []Observer

	// Protected by mu
	mu            sync.Mutex
	registered    bool
	cond          *sync.Cond
	readers       int
	readHolds     map[uint64]*readHold
	writer        uint64 // 0 while no goroutine owns the write lock
	writerDepth   int
	writerSince   time.Time
	nextTicket    uint64
	serving       uint64
	pendingReads  map[uint64]time.Time
	pendingWrites map[uint64]time.Time

	// Lock-free mirrors of readers and writerDepth
	readerSnapshot atomic.Int32
	writerSnapshot atomic.Int32

	stats [2]lockStats
}

// New creates an unnamed lock for container.
func New[T any](container T) *Lock[T] {
	return newLock("", container)
}

// NewNamed creates a lock for container and registers it in the global
// registry under name, so it shows up in DumpAllLockInfo until Close.
func NewNamed[T any](name string, container T) *Lock[T] {
	l := newLock(name, container)
	l.registered = true
	globalRegistry.register(l)
	return l
}

func newLock[T any](name string, container T) *Lock[T] {
	id := uuid.NewString()
	if name == "" {
		name = "lock-" + id[:8]
	}
	l := &Lock[T]{
		container:     container,
		id:            id,
		name:          name,
		baseLogger:    slog.Default(),
		logger:        slog.Default().With("lock", name),
		readHolds:     make(map[uint64]*readHold),
		pendingReads:  make(map[uint64]time.Time),
		pendingWrites: make(map[uint64]time.Time),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// WithName renames the lock without registering it and returns the lock for
// chaining. Configure before sharing the lock.
func (l *Lock[T]) WithName(name string) *Lock[T] {
	if name == "" {
		return l
	}
	l.mu.Lock()
	l.name = name
	l.mu.Unlock()
	l.logger = l.baseLogger.With("lock", name)
	return l
}

// WithLogger sets the logger and returns the lock for chaining.
// A nil logger selects slog.Default(). Configure before sharing the lock.
func (l *Lock[T]) WithLogger(logger *slog.Logger) *Lock[T] {
	if logger == nil {
		logger = slog.Default()
	}
	l.baseLogger = logger
	l.logger = logger.With("lock", l.name)
	return l
}

// WithWarningTimeout makes the lock log a warning when an acquisition waited,
// or an outermost hold lasted, longer than d. Zero disables the warnings.
func (l *Lock[T]) WithWarningTimeout(d time.Duration) *Lock[T] {
	if d < 0 {
		d = 0
	}
	l.warningTimeout = d
	return l
}

// WithObserver adds an observer and returns the lock for chaining.
// Configure before sharing the lock.
//
// A panicking observer undoes the acquisition it was told about before the
// panic leaves ReadLock or WriteLock.
func (l *Lock[T]) WithObserver(o Observer) *Lock[T] {
	if o != nil {
		l.observers = append(l.observers, o)
	}
	return l
}

// Name returns the lock name.
func (l *Lock[T]) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

// ID returns the unique id the lock is registered under.
func (l *Lock[T]) ID() string { return l.id }

// ReadLock blocks until the calling goroutine may read, then returns the
// container. It only waits while another goroutine holds the write lock.
func (l *Lock[T]) ReadLock() T {
	gid := goroutineID()
	start := time.Now()

	l.mu.Lock()
	contended := l.writerDepth > 0 && l.writer != gid
	if contended {
		l.pendingReads[gid] = start
		for l.writerDepth > 0 && l.writer != gid {
			l.cond.Wait()
		}
		delete(l.pendingReads, gid)
	}

	h := l.readHolds[gid]
	if h == nil {
		h = &readHold{since: time.Now()}
		l.readHolds[gid] = h
	}
	h.depth++
	l.readers++
	ev := l.eventLocked(Acquired, ReadLock, gid, h.depth)
	l.mu.Unlock()

	ev.Wait = time.Since(start)
	ev.Contended = contended
	l.announce(ev, l.ReadUnlock)
	return l.container
}

// ReadUnlock undoes one ReadLock of the calling goroutine and returns the
// container. It panics with a *LockError wrapping ErrUnbalancedRelease if the
// goroutine holds no read lock.
func (l *Lock[T]) ReadUnlock() T {
	gid := goroutineID()

	l.mu.Lock()
	h := l.readHolds[gid]
	if h == nil {
		l.mu.Unlock()
		panic(l.misuse("ReadUnlock", ReadLock, gid, ErrUnbalancedRelease))
	}
	h.depth--
	l.readers--
	var held time.Duration
	if h.depth == 0 {
		held = time.Since(h.since)
		delete(l.readHolds, gid)
	}
	if l.readers == 0 {
		l.cond.Broadcast()
	}
	ev := l.eventLocked(Released, ReadLock, gid, h.depth)
	l.mu.Unlock()

	ev.Held = held
	l.released(ev)
	return l.container
}

// WriteLock blocks until the calling goroutine owns the lock exclusively,
// then returns the container. The owner may call it again without blocking.
//
// A goroutine holding read locks is upgraded in place when it is the only
// reader and no goroutine owns the write lock. Otherwise WriteLock panics with
// a *LockError wrapping ErrUpgradeBlocked rather than wait on its own readers.
func (l *Lock[T]) WriteLock() T {
	gid := goroutineID()
	start := time.Now()

	l.mu.Lock()
	if l.writerDepth > 0 && l.writer == gid {
		l.writerDepth++
		ev := l.eventLocked(Acquired, WriteLock, gid, l.writerDepth)
		l.mu.Unlock()
		l.announce(ev, l.WriteUnlock)
		return l.container
	}

	contended := false
	if l.readHolds[gid] != nil {
		if !l.canUpgradeLocked(gid) {
			l.mu.Unlock()
			panic(l.misuse("WriteLock", WriteLock, gid, ErrUpgradeBlocked))
		}
	} else {
		ticket := l.nextTicket
		l.nextTicket++
		contended = l.writerDepth > 0 || l.readers > 0 || ticket != l.serving
		if contended {
			l.pendingWrites[gid] = start
			for l.writerDepth > 0 || l.readers > 0 || ticket != l.serving {
				l.cond.Wait()
			}
			delete(l.pendingWrites, gid)
		}
		l.serving++
	}

	l.writer = gid
	l.writerDepth = 1
	l.writerSince = time.Now()
	ev := l.eventLocked(Acquired, WriteLock, gid, 1)
	l.mu.Unlock()

	ev.Wait = time.Since(start)
	ev.Contended = contended
	l.announce(ev, l.WriteUnlock)
	return l.container
}

// TryUpgrade takes the write lock for a goroutine that holds read locks,
// without ever waiting. It succeeds when the caller already owns the write
// lock, or when it is the only reader and no goroutine owns the write lock.
// It returns false, leaving the lock unchanged, when the caller holds
// neither lock type or other readers are present. A successful upgrade is released with
// WriteUnlock; the read locks stay held.
func (l *Lock[T]) TryUpgrade() (T, bool) {
	gid := goroutineID()
	start := time.Now()

	l.mu.Lock()
	if l.writerDepth > 0 && l.writer == gid {
		l.writerDepth++
		ev := l.eventLocked(Acquired, WriteLock, gid, l.writerDepth)
		l.mu.Unlock()
		l.announce(ev, l.WriteUnlock)
		return l.container, true
	}
	if l.readHolds[gid] == nil || !l.canUpgradeLocked(gid) {
		l.mu.Unlock()
		return l.container, false
	}
	l.writer = gid
	l.writerDepth = 1
	l.writerSince = time.Now()
	ev := l.eventLocked(Acquired, WriteLock, gid, 1)
	l.mu.Unlock()

	ev.Wait = time.Since(start)
	l.announce(ev, l.WriteUnlock)
	return l.container, true
}

// canUpgradeLocked reports whether gid is the only reader and nobody owns the
// write lock. Must hold mu.
func (l *Lock[T]) canUpgradeLocked(gid uint64) bool {
	h := l.readHolds[gid]
	return h != nil && l.writerDepth == 0 && l.readers == h.depth
}

// WriteUnlock undoes one WriteLock of the owning goroutine and returns the
// container. It panics with a *LockError wrapping ErrUnbalancedRelease if the
// calling goroutine does not own the write lock.
func (l *Lock[T]) WriteUnlock() T {
	gid := goroutineID()

	l.mu.Lock()
	if l.writerDepth == 0 || l.writer != gid {
		l.mu.Unlock()
		panic(l.misuse("WriteUnlock", WriteLock, gid, ErrUnbalancedRelease))
	}
	l.writerDepth--
	var held time.Duration
	if l.writerDepth == 0 {
		held = time.Since(l.writerSince)
		l.writer = 0
		l.cond.Broadcast()
	}
	ev := l.eventLocked(Released, WriteLock, gid, l.writerDepth)
	l.mu.Unlock()

	ev.Held = held
	l.released(ev)
	return l.container
}

// ReaderCount returns the number of read acquisitions currently held, summed
// over all goroutines. It does not block and is meant for diagnostics.
func (l *Lock[T]) ReaderCount() int {
	return int(l.readerSnapshot.Load())
}

// WriterCount returns the write reentrancy depth of the current owner, or 0.
// It does not block and is meant for diagnostics.
func (l *Lock[T]) WriterCount() int {
	return int(l.writerSnapshot.Load())
}

// HoldCounts returns the read and write depths held by the calling goroutine.
func (l *Lock[T]) HoldCounts() (reads, writes int) {
	gid := goroutineID()
	l.mu.Lock()
	defer l.mu.Unlock()
	if h := l.readHolds[gid]; h != nil {
		reads = h.depth
	}
	if l.writer == gid {
		writes = l.writerDepth
	}
	return reads, writes
}

// PendingReaders returns the number of goroutines blocked in ReadLock.
func (l *Lock[T]) PendingReaders() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pendingReads)
}

// PendingWriters returns the number of goroutines blocked in WriteLock.
func (l *Lock[T]) PendingWriters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pendingWrites)
}

// Stats returns acquisition statistics per lock type.
func (l *Lock[T]) Stats() map[LockType]LockStats {
	return map[LockType]LockStats{
		ReadLock:  l.stats[ReadLock].snapshot(),
		WriteLock: l.stats[WriteLock].snapshot(),
	}
}

// Info returns a snapshot of holders and waiters.
func (l *Lock[T]) Info() LockInfo {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	info := LockInfo{
		ID:      l.id,
		Name:    l.name,
		Readers: l.readers,
		Writers: l.writerDepth,
	}
	for gid, h := range l.readHolds {
		info.ReadHolders = append(info.ReadHolders, HolderInfo{GoroutineID: gid, Depth: h.depth, HeldFor: now.Sub(h.since)})
	}
	if l.writerDepth > 0 {
		info.WriteHolder = &HolderInfo{GoroutineID: l.writer, Depth: l.writerDepth, HeldFor: now.Sub(l.writerSince)}
	}
	for gid, since := range l.pendingReads {
		info.PendingReads = append(info.PendingReads, WaiterInfo{GoroutineID: gid, WaitingFor: now.Sub(since)})
	}
	for gid, since := range l.pendingWrites {
		info.PendingWrites = append(info.PendingWrites, WaiterInfo{GoroutineID: gid, WaitingFor: now.Sub(since)})
	}
	sort.Slice(info.ReadHolders, func(i, j int) bool { return info.ReadHolders[i].GoroutineID < info.ReadHolders[j].GoroutineID })
	sort.Slice(info.PendingReads, func(i, j int) bool { return info.PendingReads[i].GoroutineID < info.PendingReads[j].GoroutineID })
	sort.Slice(info.PendingWrites, func(i, j int) bool { return info.PendingWrites[i].GoroutineID < info.PendingWrites[j].GoroutineID })
	return info
}

// Close removes a named lock from the global registry. It refuses with
// ErrStillHeld while the lock is held or waited for.
func (l *Lock[T]) Close() error {
	l.mu.Lock()
	busy := l.readers > 0 || l.writerDepth > 0 || len(l.pendingReads) > 0 || len(l.pendingWrites) > 0
	readers, writers := l.readers, l.writerDepth
	unregister := !busy && l.registered
	if unregister {
		l.registered = false
	}
	l.mu.Unlock()

	if busy {
		l.logger.Warn("attempting to close lock with active locks", "readers", readers, "writers", writers)
		return ErrStillHeld
	}
	if unregister {
		globalRegistry.unregister(l.id)
	}
	return nil
}

// ReadLocker returns a sync.Locker that takes and releases the read lock.
func (l *Lock[T]) ReadLocker() sync.Locker {
	return readLocker[T]{l}
}

// WriteLocker returns a sync.Locker that takes and releases the write lock.
func (l *Lock[T]) WriteLocker() sync.Locker {
	return writeLocker[T]{l}
}

type readLocker[T any] struct{ l *Lock[T] }

func (r readLocker[T]) Lock()   { r.l.ReadLock() }
func (r readLocker[T]) Unlock() { r.l.ReadUnlock() }

type writeLocker[T any] struct{ l *Lock[T] }

func (w writeLocker[T]) Lock()   { w.l.WriteLock() }
func (w writeLocker[T]) Unlock() { w.l.WriteUnlock() }

// eventLocked publishes the counters and builds an event. Must hold mu.
func (l *Lock[T]) eventLocked(kind EventKind, typ LockType, gid uint64, depth int) Event {
	l.readerSnapshot.Store(int32(l.readers))
	l.writerSnapshot.Store(int32(l.writerDepth))
	return Event{
		Kind:        kind,
		Lock:        l.name,
		Type:        typ,
		GoroutineID: gid,
		Depth:       depth,
		Readers:     l.readers,
		Writers:     l.writerDepth,
	}
}

func (l *Lock[T]) misuse(op string, typ LockType, gid uint64, err error) *LockError {
	lerr := &LockError{Lock: l.Name(), Op: op, Type: typ, GoroutineID: gid, Err: err}
	l.logger.Error("lock misuse", "op", op, "type", typ.String(), "goroutine", gid, "err", err, "caller", callerInfo())
	return lerr
}

// announce reports an acquisition. If a hook panics, release undoes the
// acquisition before the panic continues, so the caller never unwinds past a
// lock it did not get to defer.
func (l *Lock[T]) announce(ev Event, release func() T) {
	done := false
	defer func() {
		if !done {
			release()
		}
	}()
	l.acquired(ev)
	done = true
}

func (l *Lock[T]) acquired(ev Event) {
	if ev.Outermost() {
		l.stats[ev.Type].recordAcquire(ev.Wait, ev.Contended)
		if l.warningTimeout > 0 && ev.Wait > l.warningTimeout {
			l.warnOnce("slow lock acquisition", ev, ev.Wait)
		}
	}
	if l.logger.Enabled(context.Background(), slog.LevelDebug) {
		l.logger.Debug("lock acquired", "type", ev.Type.String(), "goroutine", ev.GoroutineID,
			"depth", ev.Depth, "readers", ev.Readers, "writers", ev.Writers, "wait", ev.Wait)
	}
	for _, o := range l.observers {
		o.Acquired(ev)
	}
}

func (l *Lock[T]) released(ev Event) {
	if ev.Outermost() {
		l.stats[ev.Type].recordRelease(ev.Held)
		if l.warningTimeout > 0 && ev.Held > l.warningTimeout {
			l.warnOnce("lock held too long", ev, ev.Held)
		}
	}
	if l.logger.Enabled(context.Background(), slog.LevelDebug) {
		l.logger.Debug("lock released", "type", ev.Type.String(), "goroutine", ev.GoroutineID,
			"depth", ev.Depth, "readers", ev.Readers, "writers", ev.Writers, "held", ev.Held)
	}
	for _, o := range l.observers {
		o.Released(ev)
	}
}

// warnOnce logs msg once per lock, lock type and call site.
func (l *Lock[T]) warnOnce(msg string, ev Event, d time.Duration) {
	caller := callerInfo()
	if !logOncef("%s|%s|%s|%s", l.id, msg, ev.Type, caller) {
		return
	}
	l.logger.Warn(msg, "type", ev.Type.String(), "duration", d, "timeout", l.warningTimeout,
		"goroutine", ev.GoroutineID, "caller", caller)
}
