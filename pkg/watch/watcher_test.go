package watch

import (
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/vestige/pkg/config"
)

func TestNewWatcher(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()

	tests := []struct {
		name         string
		debounce     time.Duration
		wantDebounce time.Duration
	}{
		{name: "default debounce", debounce: 0, wantDebounce: 500 * time.Millisecond},
		{name: "custom debounce", debounce: time.Second, wantDebounce: time.Second},
		{name: "negative debounce defaults", debounce: -time.Second, wantDebounce: 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWatcher(tmpDir, cfg, tt.debounce)
			if err != nil {
				t.Fatalf("NewWatcher() error = %v", err)
			}
			defer w.Stop()

			if w.fsWatcher == nil {
				t.Error("fsWatcher should not be nil")
			}
			if w.path != tmpDir {
				t.Errorf("path = %v, want %v", w.path, tmpDir)
			}
			if w.debounce != tt.wantDebounce {
				t.Errorf("debounce = %v, want %v", w.debounce, tt.wantDebounce)
			}
			if w.pending == nil {
				t.Error("pending map should be initialized")
			}
		})
	}
}

func TestSetCallback(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), config.DefaultConfig(), time.Second)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if w.callback != nil {
		t.Error("callback should be nil initially")
	}
	w.SetCallback(func(path string) {})
	if w.callback == nil {
		t.Error("callback should be set")
	}
}

func TestHandleEventFiltering(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), config.DefaultConfig(), time.Second)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	// C source write lands in pending.
	w.handleEvent(fsnotify.Event{Name: "src/main.c", Op: fsnotify.Write})
	if len(w.pending) != 1 {
		t.Errorf("pending = %v, want 1 entry", w.pending)
	}

	// Non-source files are ignored.
	w.handleEvent(fsnotify.Event{Name: "README.md", Op: fsnotify.Write})
	if len(w.pending) != 1 {
		t.Error("non-C/C++ file should be ignored")
	}

	// Excluded paths are ignored.
	w.handleEvent(fsnotify.Event{Name: "vendor/dep.c", Op: fsnotify.Write})
	if len(w.pending) != 1 {
		t.Error("excluded path should be ignored")
	}

	// Remove-only events are ignored.
	w.handleEvent(fsnotify.Event{Name: "src/other.c", Op: fsnotify.Remove})
	if len(w.pending) != 1 {
		t.Error("remove event should be ignored")
	}
}

func TestProcessPendingDebounce(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), config.DefaultConfig(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	fired := make(chan string, 1)
	w.SetCallback(func(path string) { fired <- path })

	w.handleEvent(fsnotify.Event{Name: "src/main.c", Op: fsnotify.Write})

	// Too early: the change is still settling.
	w.processPending()
	select {
	case <-fired:
		t.Fatal("callback fired before debounce elapsed")
	case <-time.After(10 * time.Millisecond):
	}

	time.Sleep(60 * time.Millisecond)
	w.processPending()

	select {
	case path := <-fired:
		if path != "src/main.c" {
			t.Errorf("callback path = %s, want src/main.c", path)
		}
	case <-time.After(time.Second):
		t.Fatal("callback did not fire after debounce")
	}

	if len(w.pending) != 0 {
		t.Error("pending should be drained after processing")
	}
}

func TestStop(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), config.DefaultConfig(), time.Second)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
