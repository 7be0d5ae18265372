package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docWalker() *Walker {
	return NewWalker([]string{"**/*.md"}, []string{"**/drafts/**"})
}

// waitFor drains changes until one of the wanted type for a path ending in
// suffix arrives.
func waitFor(t *testing.T, changes <-chan Change, want ChangeType, suffix string) Change {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c, ok := <-changes:
			require.True(t, ok, "channel closed before %s %s", want, suffix)
			if c.Type == want && strings.HasSuffix(c.Path, suffix) {
				return c
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s %s", want, suffix)
		}
	}
}

func TestWatcher_HandleEvent(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "guide.md", "# Guide")
	writeFile(t, root, "image.png", "png")
	writeFile(t, root, ".hidden.md", "hidden")
	writeFile(t, root, "drafts/wip.md", "wip")
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub.md"), 0755))

	w := NewWatcher(root, docWalker())

	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want *ChangeType
	}{
		{"create", file, fsnotify.Create, ptr(ChangeUpserted)},
		{"write", file, fsnotify.Write, ptr(ChangeUpserted)},
		{"remove", filepath.Join(root, "gone.md"), fsnotify.Remove, ptr(ChangeDeleted)},
		{"rename", filepath.Join(root, "moved.md"), fsnotify.Rename, ptr(ChangeDeleted)},
		{"chmod ignored", file, fsnotify.Chmod, nil},
		{"unmatched extension", filepath.Join(root, "image.png"), fsnotify.Write, nil},
		{"hidden file", filepath.Join(root, ".hidden.md"), fsnotify.Write, nil},
		{"excluded dir", filepath.Join(root, "drafts", "wip.md"), fsnotify.Write, nil},
		{"directory", filepath.Join(root, "sub.md"), fsnotify.Create, nil},
		{"outside root", "/elsewhere/guide.md", fsnotify.Write, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := w.handleEvent(fsnotify.Event{Name: tt.path, Op: tt.op})
			if tt.want == nil {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, *tt.want, change.Type)
			assert.Equal(t, tt.path, change.Path)
		})
	}
}

func ptr(c ChangeType) *ChangeType { return &c }

func TestWatcher_Watch(t *testing.T) {
	root := t.TempDir()
	existing := writeFile(t, root, "docs/existing.md", "v1")

	w := NewWatcher(root, docWalker())
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := w.Watch(ctx)
	require.NoError(t, err)

	writeFile(t, root, "new.md", "fresh")
	waitFor(t, changes, ChangeUpserted, "new.md")

	require.NoError(t, os.WriteFile(existing, []byte("v2"), 0644))
	waitFor(t, changes, ChangeUpserted, "existing.md")

	require.NoError(t, os.Remove(existing))
	waitFor(t, changes, ChangeDeleted, "existing.md")
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root, docWalker())
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := w.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(root, "later"), 0755))
	// Give the loop a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, root, "later/page.md", "content")
	waitFor(t, changes, ChangeUpserted, "page.md")
}

func TestWatcher_Errors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		w := NewWatcher("/non/existent/path", nil)
		changes, err := w.Watch(context.Background())
		assert.Error(t, err)
		assert.Nil(t, changes)
		assert.Contains(t, err.Error(), "root path error")
	})

	t.Run("closed", func(t *testing.T) {
		w := NewWatcher(t.TempDir(), nil)
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())
		changes, err := w.Watch(context.Background())
		assert.ErrorIs(t, err, ErrWatcherClosed)
		assert.Nil(t, changes)
	})

	t.Run("cancel closes channel", func(t *testing.T) {
		w := NewWatcher(t.TempDir(), nil)
		defer w.Close()
		ctx, cancel := context.WithCancel(context.Background())
		changes, err := w.Watch(ctx)
		require.NoError(t, err)
		cancel()

		select {
		case _, ok := <-changes:
			if ok {
				for range changes {
				}
			}
		case <-time.After(time.Second):
			t.Fatal("channel did not close after cancellation")
		}
	})
}
