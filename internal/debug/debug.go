// Package debug is qipu's verbose-logging sink. It is silent unless
// Enable has been called (by --verbose at the CLI boundary), mirroring
// the teacher's debug.Logf call sites that gate on a global flag rather
// than a log level.
package debug

import (
	"log"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	enabled int32
	mu      sync.Mutex
	logger  *log.Logger
)

// Enable turns on verbose logging to path, rotated by lumberjack so a
// long-running agent session never leaves an unbounded log file behind.
func Enable(path string) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, "", log.LstdFlags|log.Lmicroseconds)
	atomic.StoreInt32(&enabled, 1)
}

// Disable silences verbose logging (used by tests).
func Disable() {
	atomic.StoreInt32(&enabled, 0)
}

// Logf records a verbose-mode message. It is a no-op when disabled.
func Logf(format string, args ...interface{}) {
	if atomic.LoadInt32(&enabled) == 0 {
		return
	}
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		log.New(os.Stderr, "", log.LstdFlags).Printf(format, args...)
		return
	}
	l.Printf(format, args...)
}
