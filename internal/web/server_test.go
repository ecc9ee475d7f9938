package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"staffshift/internal/config"
	"staffshift/internal/db"
	"staffshift/internal/migrate"
	"staffshift/internal/transform"
)

type mockRunner struct {
	rep      *migrate.Report
	err      error
	lastPath string
}

func (m *mockRunner) Run(ctx context.Context, sourcePath string) (*migrate.Report, error) {
	m.lastPath = sourcePath
	return m.rep, m.err
}

func newTestServer(t *testing.T, runner Runner) (*Server, *db.DB) {
	t.Helper()
	dest, err := db.Open(filepath.Join(t.TempDir(), "dest.db"))
	if err != nil {
		t.Fatalf("open destination: %v", err)
	}
	t.Cleanup(func() { dest.Close() })

	cfg := &config.Config{
		DatabasePath: dest.Path(),
		UploadDir:    t.TempDir(),
		ListenPort:   0,
		MaxUploadMB:  16,
	}
	if runner == nil {
		runner = migrate.New(dest, transform.NewRandomSynthesizer("", 365), zap.NewNop())
	}
	return New(cfg, dest, runner, zap.NewNop()), dest
}

// legacyFixture builds a minimal but complete legacy database and
// returns its raw bytes, ready to upload.
func legacyFixture(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer conn.Close() //nolint:errcheck

	stmts := []string{
		`CREATE TABLE staff (id INTEGER PRIMARY KEY, name TEXT, email TEXT, leave_days_remaining REAL, is_team_leader INTEGER, receive_notifications INTEGER)`,
		`CREATE TABLE engagement (id INTEGER PRIMARY KEY, name TEXT, team_leader_id INTEGER, status TEXT)`,
		`CREATE TABLE proposal (id INTEGER PRIMARY KEY, name TEXT, team_leader_id INTEGER, status TEXT)`,
		`CREATE TABLE non_billable (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE hours_log (id INTEGER PRIMARY KEY, staff_id INTEGER, category TEXT, item_id INTEGER, hours REAL, date TEXT)`,
		`CREATE TABLE leave_record (id INTEGER PRIMARY KEY, staff_id INTEGER, date TEXT)`,
		`CREATE TABLE utilization (id INTEGER PRIMARY KEY, staff_id INTEGER, week_start TEXT, c_ytd REAL, c_mtd REAL, r_ytd REAL, r_mtd REAL)`,
		`INSERT INTO staff VALUES (1, 'Ada', 'ada@example.com', 10.0, 1, 1)`,
		`INSERT INTO engagement VALUES (1, 'Rebuild', 1, 'active')`,
		`INSERT INTO leave_record VALUES (1, 1, '2024-05-06')`,
	}
	for _, s := range stmts {
		if _, err := conn.Exec(s); err != nil {
			t.Fatalf("fixture exec: %v", err)
		}
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &mockRunner{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestIndexRendersUploadForm(t *testing.T) {
	s, _ := newTestServer(t, &mockRunner{})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `enctype="multipart/form-data"`) {
		t.Fatal("expected upload form in index page")
	}
	// Usage notes come from embedded markdown rendered to HTML.
	if !strings.Contains(body, "<h1") {
		t.Fatal("expected rendered usage markdown in index page")
	}
}

func TestUploadNoFilePart(t *testing.T) {
	s, _ := newTestServer(t, &mockRunner{})

	body, ct := multipartBody(t, "wrong_field", "legacy.db", []byte("x"))
	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUploadEndToEnd(t *testing.T) {
	s, dest := newTestServer(t, nil)

	body, ct := multipartBody(t, "file", "old database (1).db", legacyFixture(t))
	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, DownloadName) {
		t.Fatalf("expected attachment disposition, got %q", cd)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("SQLite format 3")) {
		t.Fatal("download is not a SQLite database")
	}

	// The upload actually migrated.
	n, err := dest.CountRows("staff")
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 staff row after upload, got %d", n)
	}
}

func TestUploadMigrationFailure(t *testing.T) {
	s, _ := newTestServer(t, &mockRunner{err: errors.New("boom")})

	body, ct := multipartBody(t, "file", "legacy.db", []byte("not really a database"))
	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "error occurred during data transfer") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestUploadTooLarge(t *testing.T) {
	s, _ := newTestServer(t, &mockRunner{})
	s.cfg.MaxUploadMB = 1

	body, ct := multipartBody(t, "file", "big.db", make([]byte, 2<<20))
	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestAPIMigrateReturnsReport(t *testing.T) {
	rep := &migrate.Report{Counts: map[string]int{"staff": 3}, SkippedDuplicates: 1}
	runner := &mockRunner{rep: rep}
	s, _ := newTestServer(t, runner)

	body, ct := multipartBody(t, "file", "legacy.db", []byte("stub"))
	req := httptest.NewRequest("POST", "/api/v1/migrations", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Report   *migrate.Report `json:"report"`
		Download string          `json:"download"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Report == nil || resp.Report.Counts["staff"] != 3 || resp.Report.SkippedDuplicates != 1 {
		t.Fatalf("unexpected report: %+v", resp.Report)
	}
	if resp.Download != DownloadName {
		t.Fatalf("unexpected download name %q", resp.Download)
	}

	// The staged upload landed in the upload dir under a sanitized name.
	if runner.lastPath == "" || !strings.HasPrefix(runner.lastPath, s.cfg.UploadDir) {
		t.Fatalf("upload staged outside upload dir: %q", runner.lastPath)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"legacy.db", "legacy.db"},
		{"old database (1).db", "old_database_1_.db"},
		{"../../etc/passwd", "passwd"},
		{`..\..\windows\system.db`, "system.db"},
		{"ωωω.db", "db"},
		{"", "upload.db"},
		{"...", "upload.db"},
	}
	for _, tc := range tests {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
