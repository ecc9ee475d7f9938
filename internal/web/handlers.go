package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"staffshift/internal/legacy"
	"staffshift/internal/migrate"
	"staffshift/internal/transform"
)

// DownloadName is the attachment filename offered for the regenerated
// destination database.
const DownloadName = "new_database.db"

// filenameUnsafeRe matches every character stripped from an uploaded
// filename before it touches the filesystem.
var filenameUnsafeRe = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// --- JSON Helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("writeJSON encode", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// --- Page Handlers ---

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		MaxUploadMB int
		Usage       template.HTML
	}{
		MaxUploadMB: s.cfg.MaxUploadMB,
		Usage:       s.usageHTML,
	}
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.log.Error("render index", zap.Error(err))
	}
}

// handleUpload receives the legacy database, runs the migration, and on
// success streams the regenerated destination database back as an
// attachment. Failures come back as a plain message, mirroring the API
// the legacy tool exposed.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	staged, ok := s.stageUpload(w, r, func(status int, msg string) {
		http.Error(w, msg, status)
	})
	if !ok {
		return
	}

	if _, err := s.runner.Run(r.Context(), staged); err != nil {
		s.log.Error("migration failed", zap.String("upload", staged), zap.Error(err))
		http.Error(w, "error occurred during data transfer", migrationStatus(err))
		return
	}

	if err := s.db.Checkpoint(); err != nil {
		s.log.Error("checkpoint before download", zap.Error(err))
		http.Error(w, "error occurred during data transfer", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", DownloadName))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, s.db.Path())
}

// --- API Handlers ---

// handleAPIHealth returns a simple health check response.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAPIMigrate runs a migration for an uploaded legacy database and
// returns the per-table transfer report as JSON. Clients fetch the
// regenerated database separately through the HTML flow or from disk.
func (s *Server) handleAPIMigrate(w http.ResponseWriter, r *http.Request) {
	staged, ok := s.stageUpload(w, r, func(status int, msg string) {
		s.writeError(w, status, msg)
	})
	if !ok {
		return
	}

	rep, err := s.runner.Run(r.Context(), staged)
	if err != nil {
		s.log.Error("migration failed", zap.String("upload", staged), zap.Error(err))
		s.writeError(w, migrationStatus(err), "error occurred during data transfer")
		return
	}

	s.writeJSON(w, http.StatusOK, struct {
		Report   *migrate.Report `json:"report"`
		Download string          `json:"download"`
	}{Report: rep, Download: DownloadName})
}

// --- Upload Staging ---

// stageUpload validates the multipart upload and copies it into the
// upload directory under a collision-free name. The fail callback lets
// the HTML and JSON flows shape their own error bodies.
func (s *Server) stageUpload(w http.ResponseWriter, r *http.Request, fail func(status int, msg string)) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())

	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes()); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			fail(http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB limit", s.cfg.MaxUploadMB))
		} else {
			fail(http.StatusBadRequest, "malformed multipart request")
		}
		return "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		fail(http.StatusBadRequest, "no file part")
		return "", false
	}
	defer file.Close() //nolint:errcheck

	if header.Filename == "" {
		fail(http.StatusBadRequest, "no selected file")
		return "", false
	}

	staged, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.log.Error("stage upload", zap.Error(err))
		fail(http.StatusInternalServerError, "could not store upload")
		return "", false
	}
	return staged, true
}

func (s *Server) saveUpload(file multipart.File, name string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	staged := filepath.Join(s.cfg.UploadDir, uuid.NewString()+"_"+SanitizeFilename(name))
	out, err := os.Create(staged)
	if err != nil {
		return "", fmt.Errorf("create staged upload: %w", err)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, file); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("write staged upload: %w", err)
	}
	return staged, nil
}

// SanitizeFilename reduces an uploaded filename to a safe basename:
// path components are dropped and anything outside [A-Za-z0-9_.-]
// collapses to an underscore.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = filenameUnsafeRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload.db"
	}
	return name
}

// migrationStatus maps a migration error to an HTTP status: caller
// mistakes (bad file, bad data) are 4xx, everything else is a 500.
func migrationStatus(err error) int {
	switch {
	case errors.Is(err, legacy.ErrSourceNotFound):
		return http.StatusBadRequest
	case errors.Is(err, transform.ErrDateFormat), errors.Is(err, transform.ErrNotNumeric):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
