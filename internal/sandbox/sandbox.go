// Package sandbox confines all filesystem access to a single root directory.
// Resolve is the only way a client-supplied path may be turned into an
// absolute path — every file operation funnels through it, so the
// containment check cannot be bypassed by construction.
package sandbox

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrOutsideRoot is returned when a resolved path escapes the sandbox root.
// Use errors.Is(err, sandbox.ErrOutsideRoot) to check.
var ErrOutsideRoot = errors.New("sandbox: path outside root")

// Resolve maps a client-supplied relative path onto root and returns the
// canonical absolute path, or ErrOutsideRoot if the result escapes root.
//
// The caller must pass a root that is already absolute and symlink-free
// (config.Load guarantees this for the configured sandbox root). Both
// forward and backward slashes are accepted as separators; leading
// separators are stripped, so "/etc/passwd" means "<root>/etc/passwd".
// An empty path resolves to root itself.
//
// Symlinks inside the tree are followed: the deepest existing ancestor of
// the joined path is canonicalized before the containment check, so a
// symlink pointing outside root is rejected even when the final component
// does not exist yet. The check races with concurrent symlink swaps
// (classic TOCTOU); single-user deployments accept that window.
func Resolve(root, userPath string) (string, error) {
	cleaned := strings.ReplaceAll(userPath, "\\", "/")
	cleaned = strings.TrimLeft(cleaned, "/")

	joined := filepath.Join(root, filepath.FromSlash(cleaned))

	resolved, err := canonicalize(joined)
	if err != nil {
		// Unexpected filesystem error during symlink resolution (permission
		// denied on an ancestor, etc). Treat as a containment failure rather
		// than touching storage with an unverified path.
		return "", ErrOutsideRoot
	}

	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}

	return resolved, nil
}

// Rel translates an absolute path inside the sandbox back to the
// forward-slash relative form used on the wire. The result is
// NFC-normalized for cross-platform consistency.
func Rel(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}

	if rel == "." {
		return "", nil
	}

	return norm.NFC.String(filepath.ToSlash(rel)), nil
}

// canonicalize resolves symlinks in path. Missing trailing components are
// allowed: the deepest existing ancestor is resolved and the remaining
// components are re-joined literally. The input is already cleaned by
// filepath.Join, so the remainder never contains "." or ".." segments.
func canonicalize(path string) (string, error) {
	remainder := ""
	current := path

	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Walked all the way up without finding an existing directory.
			return "", err
		}

		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}
