package server

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tonimelisma/waypoint/internal/audit"
	"github.com/tonimelisma/waypoint/internal/fileops"
	"github.com/tonimelisma/waypoint/internal/sandbox"
)

// writeOpError maps the fileops/sandbox error taxonomy onto HTTP status
// codes. Sandbox escapes are logged as security-relevant events.
func (s *Server) writeOpError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sandbox.ErrOutsideRoot):
		s.logger.Warn("sandbox escape attempt",
			slog.String("path", r.URL.RawQuery),
			slog.String("remote", r.RemoteAddr),
		)
		writeError(w, http.StatusBadRequest, "invalid path (outside sandbox root)")

	case errors.Is(err, fileops.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, "sandbox root cannot be the target")

	case errors.Is(err, fileops.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")

	case errors.Is(err, fileops.ErrExists):
		writeError(w, http.StatusConflict, "already exists")

	case errors.Is(err, fileops.ErrNotEmpty):
		writeError(w, http.StatusConflict, "directory not empty")

	case errors.Is(err, fileops.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")

	default:
		s.logger.Error("file operation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// boolParam parses a boolean query parameter; missing or malformed
// values are false.
func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// handleList enumerates a directory.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")

	entries, err := s.files.List(relPath)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"path":  relPath,
		"items": entries,
	})
}

// handleDownload streams a file verbatim, with its base name suggested as
// the download filename and a weak ETag for client-side caching.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")

	f, entry, err := s.files.Open(relPath)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	defer f.Close()

	s.recorder.Record(r.Context(), audit.Record{Op: "download", Path: entry.Path, OK: true})

	w.Header().Set("ETag", entry.ETag)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": entry.Name}))

	// ServeContent handles If-None-Match/If-Modified-Since and ranges.
	http.ServeContent(w, r, entry.Name, time.Unix(entry.Mtime, 0), f)
}

// handleUpload stores the request's file bytes at the destination path.
// The body is either a multipart form with a "file" field (what the web
// client sends) or the raw bytes. An If-Match header makes the write
// conditional on the destination's current ETag (412 on mismatch).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")
	overwrite := boolParam(r, "overwrite")

	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
		current, statErr := s.files.Stat(relPath)
		if statErr != nil || current.ETag != ifMatch {
			writeError(w, http.StatusPreconditionFailed, "file changed on server")
			return
		}
	}

	body, err := uploadBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload body")
		return
	}
	defer body.Close()

	entry, err := s.files.Upload(relPath, overwrite, body)
	s.record(r, "upload", relPath, "", err)

	if err != nil {
		s.writeOpError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "item": entry})
}

// handleMkdir creates a directory, optionally with missing ancestors.
func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")
	parents := boolParam(r, "parents")

	err := s.files.Mkdir(relPath, parents)
	s.record(r, "mkdir", relPath, "", err)

	if err != nil {
		s.writeOpError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleMove renames or relocates a file or directory.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")
	dst := r.URL.Query().Get("dst")
	overwrite := boolParam(r, "overwrite")

	err := s.files.Move(src, dst, overwrite)
	s.record(r, "move", src, dst, err)

	if err != nil {
		s.writeOpError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleDelete removes a file or directory.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")
	recursive := boolParam(r, "recursive")

	err := s.files.Delete(relPath, recursive)
	s.record(r, "delete", relPath, "", err)

	if err != nil {
		s.writeOpError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// record writes one audit ledger row for a mutating operation.
func (s *Server) record(r *http.Request, op, path, dst string, err error) {
	rec := audit.Record{Op: op, Path: path, DstPath: dst, OK: err == nil}
	if err != nil {
		rec.Detail = err.Error()
	}

	s.recorder.Record(r.Context(), rec)
}

// uploadBody returns the file bytes of an upload request: the "file"
// field for multipart forms, the raw body otherwise.
func uploadBody(r *http.Request) (io.ReadCloser, error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return r.Body, nil
	}

	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}

	return f, nil
}
