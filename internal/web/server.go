package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"staffshift/internal/config"
	"staffshift/internal/db"
	"staffshift/internal/migrate"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed usage.md
var usageMarkdown []byte

// Runner is the interface the web server uses to execute a migration.
type Runner interface {
	Run(ctx context.Context, sourcePath string) (*migrate.Report, error)
}

// Server is the HTTP server for the migration upload UI and API.
type Server struct {
	cfg       *config.Config
	db        *db.DB
	runner    Runner
	log       *zap.Logger
	mux       *http.ServeMux
	tmpl      *template.Template
	server    *http.Server
	usageHTML template.HTML
}

// New creates a new web server.
func New(cfg *config.Config, dest *db.DB, runner Runner, log *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		db:     dest,
		runner: runner,
		log:    log,
		mux:    http.NewServeMux(),
	}

	s.usageHTML = renderUsage()
	s.parseTemplates()
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ListenPort),
		Handler:      s.mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second, // migrations of large uploads take a while
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving HTTP requests. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.log.Info("upload endpoint listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) parseTemplates() {
	s.tmpl = template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /{$}", s.handleUpload)
	s.mux.HandleFunc("GET /api/v1/health", s.handleAPIHealth)
	s.mux.HandleFunc("POST /api/v1/migrations", s.handleAPIMigrate)
}

// renderUsage converts the embedded usage notes to HTML once at startup.
func renderUsage() template.HTML {
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := gm.Convert(usageMarkdown, &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(string(usageMarkdown)))
	}
	return template.HTML(buf.String()) //nolint:gosec // source is the embedded usage.md, not user input
}
