package datasetlock

import (
	"fmt"
	"runtime"
	"strings"
)

// shouldIncludeFrame returns true if the frame belongs to application code,
// filtering out runtime, testing and this package's own frames.
func shouldIncludeFrame(file, function string) bool {
	// we want to see the test code in caller info
	if strings.HasSuffix(file, "_test.go") {
		return true
	}
	return !strings.Contains(file, "runtime/") &&
		!strings.Contains(file, "testing/") &&
		!strings.HasPrefix(function, "runtime.") &&
		!strings.Contains(function, "datasetlock.")
}

// callerInfo returns "func file:line" of the first application frame that
// called into the lock, or "unknown".
func callerInfo() string {
	var pcs [32]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if shouldIncludeFrame(frame.File, frame.Function) {
			// last part of the function name after the last /
			parts := strings.Split(frame.Function, "/")
			return fmt.Sprintf("%s %s:%d", parts[len(parts)-1], frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return "unknown"
}
