// Package watch watches a directory for file changes and triggers
// incremental re-indexing of a store.Collection using fsnotify.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arnavk/vecindex/internal/corpus"
	"github.com/arnavk/vecindex/internal/store"
)

// Watcher watches a directory tree for changes and updates a collection.
type Watcher struct {
	fw   *fsnotify.Watcher
	coll *store.Collection
}

// New creates a Watcher backed by the given collection.
func New(coll *store.Collection) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	return &Watcher{fw: fw, coll: coll}, nil
}

// Watch adds rootDir (and all subdirectories) to the watch list and begins
// processing events. It blocks until ctx is cancelled or an unrecoverable
// error occurs. Call this in a goroutine.
func (w *Watcher) Watch(ctx context.Context, rootDir string) error {
	if err := w.addDirRecursive(rootDir); err != nil {
		return err
	}

	// Debounce map: path -> timer.
	pending := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			return w.fw.Close()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			path := event.Name

			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(path); err == nil && fi.IsDir() {
					_ = w.addDirRecursive(path)
				}
			}

			if !corpus.IsSupportedFile(path) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if t, ok := pending[path]; ok {
					t.Stop()
				}
				pending[path] = time.AfterFunc(500*time.Millisecond, func() {
					fmt.Fprintf(os.Stderr, "[watch] re-indexing %s\n", path)
					if _, err := w.coll.AddFile(ctx, path); err != nil {
						fmt.Fprintf(os.Stderr, "[watch] error: %v\n", err)
					}
				})
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "[watch] error: %v\n", err)
		}
	}
}

// addDirRecursive adds dir and all non-hidden subdirectories to the watcher.
func (w *Watcher) addDirRecursive(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if err := w.fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			if err := w.addDirRecursive(filepath.Join(dir, e.Name())); err != nil {
				fmt.Fprintf(os.Stderr, "[watch] skip dir: %v\n", err)
			}
		}
	}
	return nil
}
