// Package dataset provides a minimal XY data container guarded by a
// datasetlock.Lock. Mutators return the data set so calls can be chained
// right after WriteLock:
//
//	ds.Lock().WriteLock().Set(0, 0, 0).Set(1, 1, 1)
//	ds.Lock().WriteUnlock()
//
// The data set itself does no locking; callers hold the write lock while
// mutating and the read lock while reading consistently.
package dataset

import (
	"math"
	"sync/atomic"

	"github.com/christophcemper/datasetlock"
)

// AutoNotifier is implemented by containers that can defer change
// notifications. Callers may consult it to decide whether to notify listeners
// while a write scope is open; the lock never reads or changes it.
type AutoNotifier interface {
	AutoNotification() bool
}

// DataSet is a named series of (x, y) points.
type DataSet struct {
	name             string
	x                []float64
	y                []float64
	autoNotification atomic.Bool
	lock             *datasetlock.Lock[*DataSet]
}

var _ AutoNotifier = (*DataSet)(nil)

// New creates an empty data set with auto notification enabled and its own
// lock, named after the data set.
func New(name string) *DataSet {
	ds := &DataSet{name: name}
	ds.autoNotification.Store(true)
	ds.lock = datasetlock.New(ds).WithName(name)
	return ds
}

// NewRegistered is New with the lock registered for DumpAllLockInfo.
// Close the lock to unregister it.
func NewRegistered(name string) *DataSet {
	ds := &DataSet{name: name}
	ds.autoNotification.Store(true)
	ds.lock = datasetlock.NewNamed(name, ds)
	return ds
}

// Lock returns the lock guarding the data set.
func (ds *DataSet) Lock() *datasetlock.Lock[*DataSet] {
	return ds.lock
}

func (ds *DataSet) Name() string {
	return ds.name
}

// AutoNotification reports whether listeners should be notified on every
// change.
func (ds *DataSet) AutoNotification() bool {
	return ds.autoNotification.Load()
}

// SetAutoNotification sets the auto notification flag.
func (ds *DataSet) SetAutoNotification(on bool) *DataSet {
	ds.autoNotification.Store(on)
	return ds
}

// Add appends a point.
func (ds *DataSet) Add(x, y float64) *DataSet {
	ds.x = append(ds.x, x)
	ds.y = append(ds.y, y)
	return ds
}

// Set stores a point at index, growing the data set with zero points when
// index is past the end. A negative index panics.
func (ds *DataSet) Set(index int, x, y float64) *DataSet {
	if index < 0 {
		panic("dataset: negative index")
	}
	for len(ds.x) <= index {
		ds.x = append(ds.x, 0)
		ds.y = append(ds.y, 0)
	}
	ds.x[index] = x
	ds.y[index] = y
	return ds
}

// Clear removes all points.
func (ds *DataSet) Clear() *DataSet {
	ds.x = ds.x[:0]
	ds.y = ds.y[:0]
	return ds
}

// DataCount returns the number of points.
func (ds *DataSet) DataCount() int {
	return len(ds.x)
}

// Get returns the point at index.
func (ds *DataSet) Get(index int) (x, y float64) {
	return ds.x[index], ds.y[index]
}

// SumY returns the sum of all y values.
func (ds *DataSet) SumY() float64 {
	var sum float64
	for _, v := range ds.y {
		sum += v
	}
	return sum
}

// RangeY returns the minimum and maximum y value, or NaN for both when the
// data set is empty.
func (ds *DataSet) RangeY() (lo, hi float64) {
	if len(ds.y) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi = ds.y[0], ds.y[0]
	for _, v := range ds.y[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
