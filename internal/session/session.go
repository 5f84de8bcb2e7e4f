// Package session persists the single refresh-token fingerprint across
// process restarts. The state is one small JSON file written atomically
// (temp file in the same directory, then rename), so a crash mid-write can
// never leave a corrupt state file observable on the next load.
//
// This is a leaf package: it knows nothing about tokens or HTTP. The auth
// manager owns all mutation and serializes access; Store itself does no
// locking.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FilePerms restricts the state file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the state directory.
const DirPerms = 0o700

// stateFileName is the session state file inside the state directory.
const stateFileName = "session.json"

// state is the on-disk format. A null refresh_hash means "no session".
type state struct {
	RefreshHash *string `json:"refresh_hash"`
}

// Store reads and writes the session state file.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a Store rooted at stateDir. The directory is created
// lazily on first Save.
func NewStore(stateDir string, logger *slog.Logger) *Store {
	return &Store{
		path:   filepath.Join(stateDir, stateFileName),
		logger: logger,
	}
}

// Load reads the persisted fingerprint. A missing file, unreadable file,
// or parse failure all mean "no session" — the server fails safe to
// logged-out instead of refusing to start.
func (s *Store) Load() (string, bool) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false
	}

	if err != nil {
		s.logger.Warn("session state unreadable, treating as logged out",
			slog.String("path", s.path), slog.String("error", err.Error()))
		return "", false
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("session state corrupt, treating as logged out",
			slog.String("path", s.path), slog.String("error", err.Error()))
		return "", false
	}

	if st.RefreshHash == nil || *st.RefreshHash == "" {
		return "", false
	}

	return *st.RefreshHash, true
}

// Save persists a new refresh fingerprint atomically.
func (s *Store) Save(fingerprint string) error {
	return s.write(state{RefreshHash: &fingerprint})
}

// Clear removes the current session, leaving an explicit null on disk so a
// later Load is unambiguous. Idempotent.
func (s *Store) Clear() error {
	return s.write(state{RefreshHash: nil})
}

// write marshals st and performs the atomic temp-file-then-rename dance.
// The temp file lives in the same directory as the state file, which
// guarantees the rename stays on one filesystem.
func (s *Store) write(st state) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session: encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("session: creating state directory %s: %w", dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("session: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up the temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("session: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close
	// and rename cannot leave an empty state file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("session: renaming: %w", err)
	}

	success = true

	return nil
}
