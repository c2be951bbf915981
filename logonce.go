package datasetlock

import (
	"fmt"
	"sync"
)

var (
	// Global map to track emitted warnings
	loggedMessages sync.Map
)

// logOnce reports whether msg is seen for the first time during the process
// lifetime. Slow-acquisition warnings use it so a hot call site does not
// flood the log.
func logOnce(msg string) bool {
	_, loaded := loggedMessages.LoadOrStore(msg, true)
	return !loaded
}

// logOncef formats a key and checks it with logOnce
func logOncef(format string, args ...interface{}) bool {
	return logOnce(fmt.Sprintf(format, args...))
}

// resetLogOnce clears all tracked messages (mainly for testing)
func resetLogOnce() {
	loggedMessages.Range(func(k, _ any) bool {
		loggedMessages.Delete(k)
		return true
	})
}
