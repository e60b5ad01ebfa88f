package cache

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FSWatch bridges fsnotify filesystem events into a Watcher's invalidation
// set, feeding the incremental reindex path of spec.md §4.6. Grounded on
// the teacher's internal/watcher package (which models the same FileEvent
// concept over a pluggable backend); here fsnotify is wired directly since
// the incremental-reindex component owns its own watch loop rather than
// sharing the indexing daemon's watcher abstraction.
type FSWatch struct {
	root    string
	watcher *fsnotify.Watcher
	sink    *Watcher
	done    chan struct{}
}

// StartFSWatch recursively watches root and marks changed files invalid on
// sink. The caller owns the returned FSWatch's lifetime and must call Stop.
func StartFSWatch(root string, sink *Watcher) (*FSWatch, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := addRecursive(w, root); err != nil {
		_ = w.Close()
		return nil, err
	}

	fw := &FSWatch{root: root, watcher: w, sink: sink, done: make(chan struct{})}
	go fw.loop()
	return fw, nil
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}

func (fw *FSWatch) loop() {
	for {
		select {
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				rel, err := filepath.Rel(fw.root, ev.Name)
				if err == nil {
					fw.sink.MarkInvalid(rel)
				}
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("retrieval cache watcher error", slog.String("error", err.Error()))
		case <-fw.done:
			return
		}
	}
}

// Stop releases the fsnotify watcher.
func (fw *FSWatch) Stop() error {
	close(fw.done)
	return fw.watcher.Close()
}
