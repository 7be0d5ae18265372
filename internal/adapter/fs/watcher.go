package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ChangeType classifies a file change seen by a Watcher.
type ChangeType int

const (
	// ChangeUpserted means the file was created or written.
	ChangeUpserted ChangeType = iota
	// ChangeDeleted means the file was removed or renamed away.
	ChangeDeleted
)

func (c ChangeType) String() string {
	if c == ChangeDeleted {
		return "deleted"
	}
	return "upserted"
}

// Change is one file event under a watched root.
type Change struct {
	Type ChangeType
	Path string // absolute
}

// ErrWatcherClosed is returned by Watch after Close.
var ErrWatcherClosed = errors.New("watcher closed")

// Watcher reports changes to documentation files under a root directory,
// filtered by the same include and exclude patterns as the Walker.
type Watcher struct {
	root   string
	walker *Walker

	mu     sync.Mutex
	closed bool
	fsw    *fsnotify.Watcher
}

func NewWatcher(root string, walker *Walker) *Watcher {
	if walker == nil {
		walker = NewWalker(nil, nil)
	}
	return &Watcher{root: root, walker: walker}
}

// Watch starts watching the root recursively. The returned channel is closed
// when ctx is cancelled or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) (<-chan Change, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrWatcherClosed
	}

	root, err := filepath.Abs(w.root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", root)
	}
	w.root = root

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.addTree(fsw, root); err != nil {
		fsw.Close()
		return nil, err
	}
	w.fsw = fsw

	changes := make(chan Change, 64)
	go w.loop(ctx, fsw, changes)
	return changes, nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, changes chan<- Change) {
	defer close(changes)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.skipDir(event.Name) {
					_ = w.addTree(fsw, event.Name)
				}
			}
			change := w.handleEvent(event)
			if change == nil {
				continue
			}
			select {
			case changes <- *change:
			case <-ctx.Done():
				return
			}
		case _, ok := <-fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// handleEvent maps a raw event to a Change, or nil for events that do not
// concern a matching documentation file.
func (w *Watcher) handleEvent(event fsnotify.Event) *Change {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	rel = filepath.ToSlash(rel)
	if isHidden(rel) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if !w.matches(rel) {
			return nil
		}
		return &Change{Type: ChangeDeleted, Path: event.Name}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || !info.Mode().IsRegular() || !w.matches(rel) {
			return nil
		}
		return &Change{Type: ChangeUpserted, Path: event.Name}
	}
	return nil
}

func (w *Watcher) matches(rel string) bool {
	return w.walker.shouldInclude(rel) && !w.walker.shouldExclude(rel)
}

func (w *Watcher) skipDir(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	return rel != "." && (isHidden(rel) || w.walker.shouldExclude(rel+"/"))
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// isHidden reports whether any element of the slash-separated relative path
// starts with a dot.
func isHidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}
