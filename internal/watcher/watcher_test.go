package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDebounce = 50 * time.Millisecond
	batchTimeout = 5 * time.Second
)

func newWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(root, testDebounce, logger), root
}

// collect drains batches until one containing a matching event arrives or
// the timeout expires.
func collect(t *testing.T, ch <-chan []Event, match func(Event) bool) Event {
	t.Helper()

	deadline := time.After(batchTimeout)

	for {
		select {
		case batch, ok := <-ch:
			require.True(t, ok, "event channel closed before expected event")

			for _, ev := range batch {
				if match(ev) {
					return ev
				}
			}

		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestWatcher_FileCreated(t *testing.T) {
	t.Parallel()

	w, root := newWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := w.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("x"), 0o644))

	ev := collect(t, ch, func(ev Event) bool { return ev.Path == "new.txt" && ev.Change == KindAdded })
	assert.Equal(t, KindAdded, ev.Change)
}

func TestWatcher_FileModified(t *testing.T) {
	t.Parallel()

	w, root := newWatcher(t)
	target := filepath.Join(root, "doc.txt")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := w.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(target, []byte("v2 longer"), 0o644))

	collect(t, ch, func(ev Event) bool { return ev.Path == "doc.txt" && ev.Change == KindModified })
}

func TestWatcher_FileRemoved(t *testing.T) {
	t.Parallel()

	w, root := newWatcher(t)
	target := filepath.Join(root, "gone.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := w.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(target))

	collect(t, ch, func(ev Event) bool { return ev.Path == "gone.txt" && ev.Change == KindRemoved })
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	t.Parallel()

	w, root := newWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := w.Run(ctx)
	require.NoError(t, err)

	// A file created inside a directory that itself appeared after Run
	// must still be observed.
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	collect(t, ch, func(ev Event) bool { return ev.Path == "sub" && ev.Change == KindAdded })

	require.NoError(t, os.WriteFile(filepath.Join(sub, "inner.txt"), []byte("x"), 0o644))

	collect(t, ch, func(ev Event) bool { return ev.Path == "sub/inner.txt" && ev.Change == KindAdded })
}

func TestWatcher_BatchesBurst(t *testing.T) {
	t.Parallel()

	w, root := newWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := w.Run(ctx)
	require.NoError(t, err)

	// A burst of writes inside one debounce window should coalesce rather
	// than arrive as one batch per event.
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	seen := map[string]bool{}
	deadline := time.After(batchTimeout)

	for len(seen) < 3 {
		select {
		case batch, ok := <-ch:
			require.True(t, ok)

			for _, ev := range batch {
				seen[ev.Path] = true
			}

		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}

	assert.True(t, seen["a.txt"] && seen["b.txt"] && seen["c.txt"])
}

func TestWatcher_ClosesOnCancel(t *testing.T) {
	t.Parallel()

	w, _ := newWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())

	ch, err := w.Run(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(batchTimeout):
		t.Fatal("channel not closed after context cancel")
	}
}
