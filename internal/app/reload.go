package app

import (
	"log/slog"
	"os"
	"time"
)

// Reloader polls the workspace's dataset file and reloads the workspace
// when the file changes on disk. Unsaved in-memory changes win: a modified
// workspace is never overwritten.
type Reloader struct {
	state         *State
	path          string
	baseline      time.Time
	checkInterval time.Duration
	stopCh        chan struct{}
	onReload      func(error) // Called after each reload attempt
}

// NewReloader creates a reloader for the dataset at path.
// Returns nil if the file cannot be stat'ed.
func NewReloader(state *State, path string, checkInterval time.Duration) *Reloader {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	return &Reloader{
		state:         state,
		path:          path,
		baseline:      info.ModTime(),
		checkInterval: checkInterval,
		stopCh:        make(chan struct{}),
	}
}

// OnReload sets the callback to invoke after a reload. The callback is
// called from a background goroutine.
func (r *Reloader) OnReload(callback func(error)) {
	r.onReload = callback
}

// Start begins polling in a background goroutine.
func (r *Reloader) Start() {
	r.stopCh = make(chan struct{})
	go r.watchLoop()
}

// Stop stops the polling goroutine.
func (r *Reloader) Stop() {
	close(r.stopCh)
}

func (r *Reloader) watchLoop() {
	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Check()
		}
	}
}

// Check reloads the dataset if the file is newer than the last load. It
// reports whether a reload was attempted.
func (r *Reloader) Check() bool {
	info, err := os.Stat(r.path)
	if err != nil || !info.ModTime().After(r.baseline) {
		return false
	}
	r.baseline = info.ModTime()

	r.state.mu.RLock()
	modified := r.state.Modified
	r.state.mu.RUnlock()
	if modified {
		slog.Warn("dataset changed on disk but workspace has unsaved changes", "path", r.path)
		return false
	}

	err = r.state.LoadDataset(r.path)
	if err != nil {
		slog.Warn("dataset reload failed", "path", r.path, "error", err)
	}
	if r.onReload != nil {
		r.onReload(err)
	}
	return true
}

// Baseline returns the modification time of the last load.
func (r *Reloader) Baseline() time.Time {
	return r.baseline
}
