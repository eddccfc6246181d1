package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogfIsNoopWhenDisabled(t *testing.T) {
	Disable()
	// Should not panic even with no logger configured.
	Logf("message %d", 1)
}

func TestEnableThenLogfWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	Enable(path)
	defer Disable()
	Logf("hello %s", "world")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hello world") {
		t.Errorf("log file = %q, want it to contain %q", data, "hello world")
	}
}
