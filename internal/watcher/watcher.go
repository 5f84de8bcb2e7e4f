// Package watcher streams filesystem change events from the sandbox tree.
// Each subscriber gets its own Watcher: an fsnotify watch over the whole
// tree (watches are added for directories created while running), with
// events translated to sandbox-relative paths and grouped into debounced
// batches — one batch per observation tick.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/waypoint/internal/sandbox"
)

// Change kinds on the wire.
const (
	KindAdded    = "added"
	KindModified = "modified"
	KindRemoved  = "removed"
	KindMoved    = "moved"
	KindUnknown  = "unknown"
)

// Event is one observed filesystem mutation. Path is sandbox-relative; an
// empty path means the absolute path could not be translated (the event is
// still delivered rather than aborting the stream).
type Event struct {
	Change string `json:"change"`
	Path   string `json:"path"`
}

// Watcher observes the sandbox root for one subscriber. A Watcher is
// single-use: Run may be called once, and the stream ends only when the
// context is canceled.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a Watcher over root. The debounce window controls how long
// the watcher waits after the last event before emitting a batch.
func New(root string, debounce time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		root:     root,
		debounce: debounce,
		logger:   logger,
	}
}

// Run starts observation and returns the batch channel. The channel is
// closed when ctx is canceled. Sends block on a slow consumer beyond one
// pending batch; a slow subscriber sees delayed delivery, never
// disconnection.
func (w *Watcher) Run(ctx context.Context) (<-chan []Event, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := addTree(fsw, w.root); err != nil {
		fsw.Close()
		return nil, err
	}

	out := make(chan []Event, 1)

	go w.loop(ctx, fsw, out)

	return out, nil
}

// loop is the select loop driving one subscription. Events accumulate in
// pending until the debounce timer fires, then go out as one batch.
func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- []Event) {
	defer close(out)
	defer fsw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop() // start idle, no events yet
	defer timer.Stop()

	var pending []Event

	for {
		select {
		case <-ctx.Done():
			return

		case fsEvent, ok := <-fsw.Events:
			if !ok {
				return
			}

			ev, keep := w.translate(fsEvent)
			if !keep {
				continue
			}

			// New directories need their own watch before their contents
			// start changing.
			if fsEvent.Has(fsnotify.Create) {
				if info, statErr := os.Stat(fsEvent.Name); statErr == nil && info.IsDir() {
					if addErr := addTree(fsw, fsEvent.Name); addErr != nil {
						w.logger.Warn("failed to watch new directory",
							slog.String("path", fsEvent.Name), slog.String("error", addErr.Error()))
					}
				}
			}

			pending = append(pending, ev)
			timer.Reset(w.debounce)

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return
			}

			w.logger.Warn("filesystem watcher error", slog.String("error", watchErr.Error()))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}

			batch := pending
			pending = nil

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// translate maps an fsnotify event to a wire event. Chmod-only events are
// dropped (mode changes are not interesting to a remote browser); a path
// that cannot be made sandbox-relative is reported with an empty path.
func (w *Watcher) translate(fsEvent fsnotify.Event) (Event, bool) {
	var kind string

	switch {
	case fsEvent.Has(fsnotify.Create):
		kind = KindAdded
	case fsEvent.Has(fsnotify.Write):
		kind = KindModified
	case fsEvent.Has(fsnotify.Remove):
		kind = KindRemoved
	case fsEvent.Has(fsnotify.Rename):
		kind = KindMoved
	case fsEvent.Op == fsnotify.Chmod:
		return Event{}, false
	default:
		kind = KindUnknown
	}

	rel, err := sandbox.Rel(w.root, fsEvent.Name)
	if err != nil {
		w.logger.Debug("untranslatable event path",
			slog.String("path", fsEvent.Name), slog.String("error", err.Error()))
		rel = ""
	}

	return Event{Change: kind, Path: rel}, true
}

// addTree registers watches for dir and every directory beneath it.
func addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Entries can vanish mid-walk; skip rather than abort.
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		return fsw.Add(path)
	})
}
