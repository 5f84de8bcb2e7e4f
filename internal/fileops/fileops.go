// Package fileops implements the sandboxed file operations behind the
// /fs/* endpoints: list, download, upload, mkdir, move, and delete. Every
// client-supplied path goes through sandbox.Resolve before any filesystem
// call, and uploads are atomic (temp file in the destination directory,
// then rename) so a reader can never observe a partially written file.
package fileops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/waypoint/internal/sandbox"
)

// Sentinel errors for HTTP status mapping. Use errors.Is to check.
var (
	ErrNotFound      = errors.New("fileops: not found")
	ErrExists        = errors.New("fileops: already exists")
	ErrNotEmpty      = errors.New("fileops: directory not empty")
	ErrTooLarge      = errors.New("fileops: upload exceeds size limit")
	ErrInvalidTarget = errors.New("fileops: sandbox root cannot be the target")
)

// Entry is a read-only projection of one filesystem node, recomputed on
// every listing and never cached.
type Entry struct {
	Path  string `json:"path"`   // sandbox-relative, forward slashes
	Name  string `json:"name"`   // base name, NFC-normalized
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"`          // modification time, epoch seconds
	ETag  string `json:"etag,omitempty"` // weak ETag, files only
}

// ETagFor derives a weak ETag from mtime and size. Cheap (no content
// hashing) and good enough for optimistic concurrency on uploads.
func ETagFor(info os.FileInfo) string {
	return fmt.Sprintf(`W/"%d-%d"`, info.ModTime().UnixNano(), info.Size())
}

// Executor runs file operations under a fixed sandbox root.
type Executor struct {
	root      string
	maxUpload int64 // bytes; 0 means unlimited
	logger    *slog.Logger
}

// NewExecutor creates an Executor. The root must be absolute and
// canonical (config.Load guarantees this).
func NewExecutor(root string, maxUpload int64, logger *slog.Logger) *Executor {
	return &Executor{
		root:      root,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Root returns the sandbox root directory.
func (e *Executor) Root() string { return e.root }

// List enumerates the immediate children of relDir, sorted directories
// first and then by case-insensitive name.
func (e *Executor) List(relDir string) ([]Entry, error) {
	abs, err := sandbox.Resolve(e.root, relDir)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, relDir)
	}

	children, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("fileops: reading directory %s: %w", relDir, err)
	}

	entries := make([]Entry, 0, len(children))

	for _, child := range children {
		childInfo, statErr := child.Info()
		if statErr != nil {
			// Entry vanished between ReadDir and stat. Skip it; the next
			// listing will be consistent again.
			e.logger.Debug("stat failed during listing",
				slog.String("name", child.Name()), slog.String("error", statErr.Error()))
			continue
		}

		rel, relErr := sandbox.Rel(e.root, filepath.Join(abs, child.Name()))
		if relErr != nil {
			continue
		}

		entry := Entry{
			Path:  rel,
			Name:  norm.NFC.String(child.Name()),
			IsDir: childInfo.IsDir(),
			Size:  childInfo.Size(),
			Mtime: childInfo.ModTime().Unix(),
		}
		if !entry.IsDir {
			entry.ETag = ETagFor(childInfo)
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}

		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	return entries, nil
}

// Open opens relFile for download and returns the open file plus its
// metadata. A missing path and a directory both fail NotFound. The caller
// owns the returned file and must close it.
func (e *Executor) Open(relFile string) (*os.File, Entry, error) {
	abs, err := sandbox.Resolve(e.root, relFile)
	if err != nil {
		return nil, Entry{}, err
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrNotFound, relFile)
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("fileops: opening %s: %w", relFile, err)
	}

	rel, _ := sandbox.Rel(e.root, abs)

	return f, Entry{
		Path:  rel,
		Name:  norm.NFC.String(filepath.Base(abs)),
		Size:  info.Size(),
		Mtime: info.ModTime().Unix(),
		ETag:  ETagFor(info),
	}, nil
}

// Stat returns the Entry for relPath, or ErrNotFound. Used by the upload
// handler's If-Match precondition check.
func (e *Executor) Stat(relPath string) (Entry, error) {
	abs, err := sandbox.Resolve(e.root, relPath)
	if err != nil {
		return Entry{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, relPath)
	}

	rel, _ := sandbox.Rel(e.root, abs)

	entry := Entry{
		Path:  rel,
		Name:  norm.NFC.String(filepath.Base(abs)),
		IsDir: info.IsDir(),
		Size:  info.Size(),
		Mtime: info.ModTime().Unix(),
	}
	if !entry.IsDir {
		entry.ETag = ETagFor(info)
	}

	return entry, nil
}

// Upload stores the bytes from r at relDest. If the destination exists and
// overwrite is false it fails with ErrExists and leaves the existing file
// untouched. Parent directories are created as needed. The write goes to a
// temp file in the destination directory followed by an atomic rename; on
// any failure before the rename the temp file is removed, so an
// interrupted upload leaves neither a partial destination nor a stray
// artifact.
func (e *Executor) Upload(relDest string, overwrite bool, r io.Reader) (Entry, error) {
	abs, err := sandbox.Resolve(e.root, relDest)
	if err != nil {
		return Entry{}, err
	}

	if abs == e.root {
		return Entry{}, ErrInvalidTarget
	}

	if info, statErr := os.Stat(abs); statErr == nil {
		if info.IsDir() || !overwrite {
			return Entry{}, fmt.Errorf("%w: %s", ErrExists, relDest)
		}
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("fileops: creating parent directories for %s: %w", relDest, err)
	}

	// Temp file in the same directory as the destination keeps the final
	// rename on one filesystem.
	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return Entry{}, fmt.Errorf("fileops: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	src := r
	if e.maxUpload > 0 {
		src = io.LimitReader(r, e.maxUpload+1)
	}

	written, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return Entry{}, fmt.Errorf("fileops: writing %s: %w", relDest, err)
	}

	if e.maxUpload > 0 && written > e.maxUpload {
		tmp.Close()
		return Entry{}, fmt.Errorf("%w: %s", ErrTooLarge, relDest)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Entry{}, fmt.Errorf("fileops: syncing %s: %w", relDest, err)
	}

	if err := tmp.Close(); err != nil {
		return Entry{}, fmt.Errorf("fileops: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, abs); err != nil {
		return Entry{}, fmt.Errorf("fileops: renaming temp file to %s: %w", relDest, err)
	}

	success = true

	rel, _ := sandbox.Rel(e.root, abs)

	return Entry{
		Path: rel,
		Name: norm.NFC.String(filepath.Base(abs)),
		Size: written,
	}, nil
}

// Mkdir creates a directory at relDir, optionally creating missing
// ancestors. Fails with ErrExists if the path already exists.
func (e *Executor) Mkdir(relDir string, parents bool) error {
	abs, err := sandbox.Resolve(e.root, relDir)
	if err != nil {
		return err
	}

	if abs == e.root {
		return fmt.Errorf("%w: %s", ErrExists, relDir)
	}

	if _, statErr := os.Stat(abs); statErr == nil {
		return fmt.Errorf("%w: %s", ErrExists, relDir)
	}

	if parents {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("fileops: creating %s: %w", relDir, err)
		}

		return nil
	}

	if err := os.Mkdir(abs, 0o755); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: parent of %s", ErrNotFound, relDir)
		}

		return fmt.Errorf("fileops: creating %s: %w", relDir, err)
	}

	return nil
}

// Move renames relSrc to relDst. With overwrite set, an existing
// destination is removed first (recursively for directories) and then the
// rename runs. The remove+rename pair is not atomic: a crash between the
// two steps can leave the destination gone without the source having
// moved. Callers tolerate that window.
func (e *Executor) Move(relSrc, relDst string, overwrite bool) error {
	src, err := sandbox.Resolve(e.root, relSrc)
	if err != nil {
		return err
	}

	dst, err := sandbox.Resolve(e.root, relDst)
	if err != nil {
		return err
	}

	if src == e.root || dst == e.root {
		return ErrInvalidTarget
	}

	if _, statErr := os.Lstat(src); statErr != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, relSrc)
	}

	if _, statErr := os.Lstat(dst); statErr == nil {
		if !overwrite {
			return fmt.Errorf("%w: %s", ErrExists, relDst)
		}

		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("fileops: removing existing %s: %w", relDst, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("fileops: creating parent directories for %s: %w", relDst, err)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("fileops: moving %s to %s: %w", relSrc, relDst, err)
	}

	return nil
}

// Delete removes relPath. A directory must be empty unless recursive is
// set, in which case the whole subtree goes.
func (e *Executor) Delete(relPath string, recursive bool) error {
	abs, err := sandbox.Resolve(e.root, relPath)
	if err != nil {
		return err
	}

	if abs == e.root {
		return ErrInvalidTarget
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, relPath)
	}

	if info.IsDir() && recursive {
		if err := os.RemoveAll(abs); err != nil {
			return fmt.Errorf("fileops: removing %s: %w", relPath, err)
		}

		return nil
	}

	if err := os.Remove(abs); err != nil {
		if info.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotEmpty, relPath)
		}

		return fmt.Errorf("fileops: removing %s: %w", relPath, err)
	}

	return nil
}
