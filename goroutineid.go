package datasetlock

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var (
	// Pool of reusable buffers for the stack header read in goroutineID.
	// Uses pointer to slice to prevent copying and reduce allocations
	bufferPool = sync.Pool{
		New: func() interface{} {
			b := make([]byte, 64)
			return &b
		},
	}

	goroutinePrefix = []byte("goroutine ")
)

// GoroutineID returns the runtime id of the calling goroutine.
// The id identifies lock holders for reentrancy and ownership checks; it is
// never zero for a running goroutine.
func GoroutineID() uint64 {
	return goroutineID()
}

// goroutineID parses the id out of the first line of the current stack,
// which always reads "goroutine N [state]:".
func goroutineID() uint64 {
	bp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bp)

	buf := *bp
	n := runtime.Stack(buf, false)
	return parseGoroutineID(buf[:n])
}

func parseGoroutineID(header []byte) uint64 {
	header = bytes.TrimPrefix(header, goroutinePrefix)
	if i := bytes.IndexByte(header, ' '); i > 0 {
		header = header[:i]
	}
	id, err := strconv.ParseUint(string(header), 10, 64)
	if err != nil {
		// runtime.Stack changed its header format
		panic("datasetlock: cannot parse goroutine id from " + strconv.Quote(string(header)))
	}
	return id
}
