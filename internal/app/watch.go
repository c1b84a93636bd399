package app

import (
	"os"
	"sync"
	"time"
)

// FileWatcher polls a set of files and calls OnChange when any of them has a
// newer modification time than the last check.
type FileWatcher struct {
	paths         []string
	checkInterval time.Duration
	baseline      map[string]time.Time

	mu       sync.Mutex
	stopCh   chan struct{}
	done     chan struct{}
	onChange func(path string) // Called from the watch goroutine
}

// NewFileWatcher creates a watcher for paths. The current modification
// times become the baseline; files that do not exist yet count as changed
// once they appear.
func NewFileWatcher(checkInterval time.Duration, paths ...string) *FileWatcher {
	w := &FileWatcher{
		paths:         paths,
		checkInterval: checkInterval,
		baseline:      make(map[string]time.Time, len(paths)),
	}
	w.ResetBaseline()
	return w
}

// OnChange sets the callback to invoke for a modified file. The callback is
// called from a background goroutine.
func (w *FileWatcher) OnChange(callback func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = callback
}

// Start begins watching in a background goroutine.
func (w *FileWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopCh != nil {
		return
	}
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.watchLoop(w.stopCh, w.done)
}

// Stop stops the watcher goroutine and waits for it to exit.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	stopCh, done := w.stopCh, w.done
	w.stopCh, w.done = nil, nil
	w.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

func (w *FileWatcher) watchLoop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			for _, path := range w.Check() {
				w.mu.Lock()
				callback := w.onChange
				w.mu.Unlock()
				if callback != nil {
					callback(path)
				}
			}
		}
	}
}

// Check returns the paths modified since the previous check and advances
// the baseline for them.
func (w *FileWatcher) Check() []string {
	var changed []string
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(w.baseline[path]) {
			w.baseline[path] = info.ModTime()
			changed = append(changed, path)
		}
	}
	return changed
}

// ResetBaseline records the current modification times as unchanged.
func (w *FileWatcher) ResetBaseline() {
	for _, path := range w.paths {
		if info, err := os.Stat(path); err == nil {
			w.baseline[path] = info.ModTime()
		}
	}
}
