package roster

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the roster when its file changes on disk, so a refreshed
// collaborator sheet is picked up without restarting the service.
type Watcher struct {
	roster  *Roster
	watcher *fsnotify.Watcher

	debounce time.Duration
	mu       sync.Mutex
	timer    *time.Timer

	done chan struct{}
}

// Watch starts watching the roster's file for writes. Events are debounced
// because editors and sync tools emit bursts of writes for one save.
func Watch(r *Roster) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: many tools replace the file via
	// rename, which drops a direct file watch.
	if err := fw.Add(filepath.Dir(r.path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		roster:   r,
		watcher:  fw,
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	target := filepath.Clean(w.roster.path)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("roster watcher: %v", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.roster.Reload(); err != nil {
			log.Printf("roster reload failed: %v", err)
		}
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
