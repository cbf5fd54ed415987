// Package watch ingests outline files dropped into a directory.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/bmskinner/nma-sub021/internal/app"
	"github.com/bmskinner/nma-sub021/internal/ingest"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
)

// Event reports one ingest attempt.
type Event struct {
	Path      string    `json:"path"`
	Operation string    `json:"operation"` // "created", "modified", "deleted", "scanned"
	Time      time.Time `json:"time"`
	Nuclei    int       `json:"nuclei"`
	Err       error     `json:"-"`
}

// Watcher monitors a directory and keeps the workspace in step with the
// outline files in it. Rewriting a file replaces the nuclei it produced;
// deleting it removes them.
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
	state   *app.State
	opts    nucleus.Options
	Events  chan Event

	mu     sync.Mutex
	byPath map[string][]uuid.UUID
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a watcher over dir feeding state.
func New(dir string, state *app.State, opts nucleus.Options) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher: w,
		dir:     dir,
		state:   state,
		opts:    opts,
		Events:  make(chan Event, 100),
		byPath:  make(map[string][]uuid.UUID),
		done:    make(chan struct{}),
	}, nil
}

// Start ingests the files already present, then begins monitoring.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	slog.Info("watching directory", "dir", w.dir)

	if err := w.scan(); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops the watcher and closes Events.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	close(w.Events)
	return err
}

func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && ingest.IsOutlineFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w.ingest(filepath.Join(w.dir, name), "scanned")
	}
	return nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ingest.IsOutlineFile(event.Name) {
				continue
			}

			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				w.ingest(event.Name, "created")
			case event.Op&fsnotify.Write == fsnotify.Write:
				w.ingest(event.Name, "modified")
			case event.Op&fsnotify.Remove == fsnotify.Remove,
				event.Op&fsnotify.Rename == fsnotify.Rename:
				w.forget(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("filesystem watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) ingest(path, op string) {
	ns, err := ingest.LoadFile(path, w.opts)
	if len(ns) == 0 && err != nil {
		// Probably a partial write; a later event will retry.
		slog.Debug("outline file not readable yet", "path", path, "error", err)
		w.emit(Event{Path: path, Operation: op, Time: time.Now(), Err: err})
		return
	}

	w.mu.Lock()
	old := w.byPath[path]
	ids := make([]uuid.UUID, len(ns))
	for i, n := range ns {
		ids[i] = n.ID()
	}
	w.byPath[path] = ids
	w.mu.Unlock()

	for _, id := range old {
		_ = w.state.Remove(id)
	}
	for _, n := range ns {
		w.state.Add(n)
	}
	if err != nil {
		slog.Warn("some outlines skipped", "path", path, "error", err)
	}
	slog.Info("ingested outlines", "path", path, "nuclei", len(ns), "replaced", len(old))
	w.emit(Event{Path: path, Operation: op, Time: time.Now(), Nuclei: len(ns), Err: err})
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	old := w.byPath[path]
	delete(w.byPath, path)
	w.mu.Unlock()

	for _, id := range old {
		_ = w.state.Remove(id)
	}
	if len(old) > 0 {
		slog.Info("removed nuclei of deleted outline file", "path", path, "nuclei", len(old))
	}
	w.emit(Event{Path: path, Operation: "deleted", Time: time.Now(), Nuclei: len(old)})
}

func (w *Watcher) emit(e Event) {
	select {
	case w.Events <- e:
	default:
		slog.Warn("event buffer full, dropping event", "path", e.Path)
	}
}

// Files returns the outline files currently contributing nuclei.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.byPath))
	for p := range w.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
