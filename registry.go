// registry.go to keep track of all named Lock instances
package datasetlock

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// HolderInfo describes one goroutine holding a lock type.
type HolderInfo struct {
	GoroutineID uint64
	Depth       int
	HeldFor     time.Duration
}

// WaiterInfo describes one goroutine blocked in ReadLock or WriteLock.
type WaiterInfo struct {
	GoroutineID uint64
	WaitingFor  time.Duration
}

// LockInfo is a point-in-time view of a lock's holders and waiters.
type LockInfo struct {
	ID            string
	Name          string
	Readers       int
	Writers       int
	ReadHolders   []HolderInfo
	WriteHolder   *HolderInfo
	PendingReads  []WaiterInfo
	PendingWrites []WaiterInfo
}

// inspectable is what the registry needs from a Lock of any container type
type inspectable interface {
	ID() string
	Name() string
	Info() LockInfo
}

var (
	// Global registry of all named locks
	globalRegistry = newRegistry()
)

type registry struct {
	sync.RWMutex
	locks map[string]inspectable
}

func newRegistry() *registry {
	return &registry{locks: make(map[string]inspectable)}
}

// register adds a lock to the registry
func (r *registry) register(l inspectable) {
	r.Lock()
	defer r.Unlock()
	r.locks[l.ID()] = l
}

// unregister removes a lock from the registry
func (r *registry) unregister(id string) {
	r.Lock()
	defer r.Unlock()
	delete(r.locks, id)
}

// all returns the registered locks sorted by name, then id
func (r *registry) all() []inspectable {
	r.RLock()
	defer r.RUnlock()

	locks := make([]inspectable, 0, len(r.locks))
	for _, l := range r.locks {
		locks = append(locks, l)
	}
	sort.Slice(locks, func(i, j int) bool {
		if locks[i].Name() != locks[j].Name() {
			return locks[i].Name() < locks[j].Name()
		}
		return locks[i].ID() < locks[j].ID()
	})
	return locks
}

// RegisteredLocks returns a snapshot of every named lock that is not closed.
func RegisteredLocks() []LockInfo {
	locks := globalRegistry.all()
	infos := make([]LockInfo, 0, len(locks))
	for _, l := range locks {
		infos = append(infos, l.Info())
	}
	return infos
}

type LockFilter uint8

const (
	ShowPendingReads LockFilter = 1 << iota
	ShowPendingWrites
	ShowActiveReads
	ShowActiveWrites
)

// DumpAllLockInfo renders holders and waiters of every named lock.
// filters selects what to show; no filters shows everything.
func DumpAllLockInfo(filters ...LockFilter) string {
	var output strings.Builder
	infos := RegisteredLocks()

	var combinedFilter LockFilter
	if len(filters) == 0 {
		combinedFilter = ShowPendingReads | ShowPendingWrites | ShowActiveReads | ShowActiveWrites
	} else {
		for _, f := range filters {
			combinedFilter |= f
		}
	}

	output.WriteString("=== datasetlock Global Status ===\n\n")
	output.WriteString(fmt.Sprintf("Total Registered Locks: %d\n", len(infos)))
	output.WriteString(fmt.Sprintf("Active Filters: %s\n\n", describeFilters(combinedFilter)))

	if combinedFilter&(ShowPendingReads|ShowPendingWrites) != 0 {
		output.WriteString("--- Locks with Pending Acquisitions ---\n")
		for _, info := range infos {
			var details strings.Builder
			if combinedFilter&ShowPendingReads != 0 && len(info.PendingReads) > 0 {
				details.WriteString(fmt.Sprintf("  Pending Reads: %d\n", len(info.PendingReads)))
				for _, w := range info.PendingReads {
					details.WriteString(fmt.Sprintf("    - Goroutine: %d, Waiting: %v\n", w.GoroutineID, w.WaitingFor))
				}
			}
			if combinedFilter&ShowPendingWrites != 0 && len(info.PendingWrites) > 0 {
				details.WriteString(fmt.Sprintf("  Pending Writes: %d\n", len(info.PendingWrites)))
				for _, w := range info.PendingWrites {
					details.WriteString(fmt.Sprintf("    - Goroutine: %d, Waiting: %v\n", w.GoroutineID, w.WaitingFor))
				}
			}
			if details.Len() > 0 {
				output.WriteString(fmt.Sprintf("• %s:\n", info.Name))
				output.WriteString(details.String())
			}
		}
		output.WriteString("\n")
	}

	if combinedFilter&(ShowActiveReads|ShowActiveWrites) != 0 {
		output.WriteString("--- Locks with Active Holders ---\n")
		for _, info := range infos {
			var details strings.Builder
			if combinedFilter&ShowActiveReads != 0 && len(info.ReadHolders) > 0 {
				details.WriteString(fmt.Sprintf("  Active Reads: %d (readers %d)\n", len(info.ReadHolders), info.Readers))
				for _, h := range info.ReadHolders {
					details.WriteString(fmt.Sprintf("    - Goroutine: %d, Depth: %d, Held: %v\n", h.GoroutineID, h.Depth, h.HeldFor))
				}
			}
			if combinedFilter&ShowActiveWrites != 0 && info.WriteHolder != nil {
				h := info.WriteHolder
				details.WriteString("  Active Write: 1\n")
				details.WriteString(fmt.Sprintf("    - Goroutine: %d, Depth: %d, Held: %v\n", h.GoroutineID, h.Depth, h.HeldFor))
			}
			if details.Len() > 0 {
				output.WriteString(fmt.Sprintf("• %s:\n", info.Name))
				output.WriteString(details.String())
			}
		}
		output.WriteString("\n")
	}

	return output.String()
}

// Helper function to describe active filters for output
func describeFilters(filter LockFilter) string {
	if filter == 0 {
		return "None"
	}

	var filters []string
	if filter&ShowPendingReads != 0 {
		filters = append(filters, "PendingReads")
	}
	if filter&ShowPendingWrites != 0 {
		filters = append(filters, "PendingWrites")
	}
	if filter&ShowActiveReads != 0 {
		filters = append(filters, "ActiveReads")
	}
	if filter&ShowActiveWrites != 0 {
		filters = append(filters, "ActiveWrites")
	}
	return strings.Join(filters, ", ")
}
