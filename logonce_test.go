package datasetlock

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogOnce(t *testing.T) {
	resetLogOnce()

	assert.True(t, logOnce("test message"), "first call")
	assert.False(t, logOnce("test message"), "second call")
	assert.True(t, logOnce("different message"), "different message")
}

func TestLogOncef(t *testing.T) {
	resetLogOnce()

	assert.True(t, logOncef("test %s %d", "message", 1))
	assert.False(t, logOncef("test %s %d", "message", 1))
	assert.True(t, logOncef("different %s", "message"))
}

func TestResetLogOnce(t *testing.T) {
	logOnce("test message")
	resetLogOnce()
	assert.True(t, logOnce("test message"), "logOnce should return true after reset")
}

// syncBuffer is a bytes.Buffer safe for concurrent slog handlers and readers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWarningTimeout(t *testing.T) {
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))
	l := New(&points{}).WithName("slow").WithLogger(logger).WithWarningTimeout(10 * time.Millisecond)

	l.WriteLock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.WriteLock()
		l.WriteUnlock()
	}()
	require.Eventually(t, func() bool { return l.PendingWriters() == 1 }, waitTimeout, tick)
	time.Sleep(30 * time.Millisecond)
	l.WriteUnlock()
	waitClosed(t, done, "waiting writer")

	logs := out.String()
	assert.Contains(t, logs, `msg="lock held too long"`)
	assert.Contains(t, logs, `msg="slow lock acquisition"`)
	assert.Contains(t, logs, "lock=slow")
	assert.Contains(t, logs, "type=WriteLock")
	assert.Contains(t, logs, "logonce_test.go", "caller should point at the test")

	// the same call site warns only once
	for i := 0; i < 3; i++ {
		l.ReadLock()
		time.Sleep(15 * time.Millisecond)
		l.ReadUnlock()
	}
	assert.Equal(t, 1, strings.Count(out.String(), "type=ReadLock"))
}

func TestNoWarningsByDefault(t *testing.T) {
	var out syncBuffer
	l := New(&points{}).WithLogger(slog.New(slog.NewTextHandler(&out, nil)))

	l.WriteLock()
	time.Sleep(5 * time.Millisecond)
	l.WriteUnlock()

	assert.Empty(t, out.String())
}

func TestMisuseIsLogged(t *testing.T) {
	var out syncBuffer
	l := New(&points{}).WithName("misused").WithLogger(slog.New(slog.NewTextHandler(&out, nil)))

	recoverLockError(t, func() { l.WriteUnlock() })

	logs := out.String()
	assert.Contains(t, logs, "level=ERROR")
	assert.Contains(t, logs, `msg="lock misuse"`)
	assert.Contains(t, logs, "op=WriteUnlock")
	assert.Contains(t, logs, "lock=misused")
}

func TestDebugLogging(t *testing.T) {
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := New(&points{}).WithLogger(logger)

	l.ReadLock()
	l.ReadUnlock()

	logs := out.String()
	assert.Contains(t, logs, `msg="lock acquired"`)
	assert.Contains(t, logs, `msg="lock released"`)
	assert.Contains(t, logs, "depth=1")
}

func TestShouldIncludeFrame(t *testing.T) {
	tests := []struct {
		file, function string
		want           bool
	}{
		{"/src/app/main.go", "main.main", true},
		{"/src/datasetlock/lock_test.go", "github.com/christophcemper/datasetlock.TestX", true},
		{"/src/datasetlock/lock.go", "github.com/christophcemper/datasetlock.(*Lock[...]).ReadLock", false},
		{"/usr/local/go/src/runtime/proc.go", "runtime.goexit", false},
		{"/usr/local/go/src/testing/testing.go", "testing.tRunner", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shouldIncludeFrame(tt.file, tt.function), tt.function)
	}
}

func TestCallerInfo(t *testing.T) {
	info := callerInfo()
	assert.Contains(t, info, "TestCallerInfo")
	assert.Contains(t, info, "logonce_test.go:")
}
