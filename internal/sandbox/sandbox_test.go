package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRoot returns a canonical temp directory to act as the sandbox root.
// EvalSymlinks matters on macOS where /tmp is a symlink to /private/tmp.
func newRoot(t *testing.T) string {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	return root
}

func TestResolve_ContainedPaths(t *testing.T) {
	t.Parallel()

	root := newRoot(t)

	tests := []struct {
		name     string
		userPath string
		want     string
	}{
		{"empty path is root", "", root},
		{"plain file", "notes.txt", filepath.Join(root, "notes.txt")},
		{"nested", "a/b/c.txt", filepath.Join(root, "a", "b", "c.txt")},
		{"leading slash stripped", "/etc/passwd", filepath.Join(root, "etc", "passwd")},
		{"leading backslash stripped", `\etc\passwd`, filepath.Join(root, "etc", "passwd")},
		{"backslash separators", `a\b\c.txt`, filepath.Join(root, "a", "b", "c.txt")},
		{"dot segments collapse", "a/./b/../c.txt", filepath.Join(root, "a", "c.txt")},
		{"internal dotdot stays inside", "a/b/../../d.txt", filepath.Join(root, "d.txt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Resolve(root, tt.userPath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_EscapeAttempts(t *testing.T) {
	t.Parallel()

	root := newRoot(t)

	tests := []struct {
		name     string
		userPath string
	}{
		{"plain dotdot", ".."},
		{"traversal", "../../etc/passwd"},
		{"traversal after segment", "a/../../outside.txt"},
		{"backslash traversal", `..\..\Windows\System32`},
		{"mixed separators", `a/..\..\outside`},
		{"deep traversal", "../../../../../../../../etc/shadow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Resolve(root, tt.userPath)
			assert.ErrorIs(t, err, ErrOutsideRoot)
		})
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}

	root := newRoot(t)
	outside := newRoot(t)

	// A symlink inside the sandbox pointing out of it.
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	_, err := Resolve(root, "escape")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	// A path through the symlink must be rejected too, even when the
	// final component does not exist.
	_, err = Resolve(root, "escape/file.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestResolve_SymlinkInside(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}

	root := newRoot(t)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")))

	got, err := Resolve(root, "alias/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "real", "file.txt"), got)
}

func TestResolve_MissingPathAllowed(t *testing.T) {
	t.Parallel()

	root := newRoot(t)

	// Resolution is about containment, not existence: upload and mkdir
	// legitimately resolve paths that do not exist yet.
	got, err := Resolve(root, "brand/new/dir/file.bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "brand", "new", "dir", "file.bin"), got)
}

func TestRel(t *testing.T) {
	t.Parallel()

	root := newRoot(t)

	rel, err := Rel(root, filepath.Join(root, "a", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a/b.txt", rel)

	rel, err = Rel(root, root)
	require.NoError(t, err)
	assert.Equal(t, "", rel)

	_, err = Rel(root, filepath.Dir(root))
	assert.Error(t, err)
}
