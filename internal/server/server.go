package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/database"
	"github.com/TobiSchelling/autoblog/internal/frontmatter"
	"github.com/TobiSchelling/autoblog/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Generator runs a batch of rounds.
type Generator interface {
	Run(ctx context.Context, job pipeline.Job) *pipeline.Report
}

// NextRun reports when the next scheduled batch starts.
type NextRun interface {
	Next() time.Time
}

// Options configures the optional parts of a Server.
type Options struct {
	// Generator enables POST /api/generate when set.
	Generator Generator
	// Schedule is shown on the history page when set.
	Schedule NextRun
	// DefaultTags apply to prompt-driven requests that carry no tags.
	DefaultTags []string
	// StaticDir overrides the embedded static assets.
	StaticDir string
	Logger    *zap.Logger
}

// Server serves the round history and the generate API.
type Server struct {
	db    *database.DB
	opts  Options
	log   *zap.Logger
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"formatDate": database.FormatDateDisplay,
		"join":       strings.Join,
		"shortRef":   shortRef,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} and
	// {{define "title"}} don't collide.
	pageNames := []string{"index.html", "round.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, opts: opts, log: opts.Logger, pages: pages, mux: http.NewServeMux()}
	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() error {
	var static http.FileSystem
	if s.opts.StaticDir != "" {
		static = http.Dir(s.opts.StaticDir)
	} else {
		sub, err := fs.Sub(staticFS, "static")
		if err != nil {
			return fmt.Errorf("opening embedded static files: %w", err)
		}
		static = http.FS(sub)
	}
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(static)))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /rounds/{id}", s.handleRound)
	s.mux.HandleFunc("GET /rounds/{id}/cover.png", s.handleCover)
	s.mux.HandleFunc("GET /api/rounds", s.handleListRounds)
	s.mux.HandleFunc("POST /api/generate", s.handleGenerate)
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	rounds, err := s.db.ListRounds(100)
	if err != nil {
		s.log.Error("listing rounds", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, err := s.db.GetStats()
	if err != nil {
		s.log.Error("reading stats", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var next time.Time
	if s.opts.Schedule != nil {
		next = s.opts.Schedule.Next()
	}
	s.render(w, "index.html", map[string]any{
		"Rounds":  rounds,
		"Stats":   stats,
		"NextRun": next,
	})
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	round, ok := s.lookupRound(w, r)
	if !ok {
		return
	}

	var (
		header frontmatter.Header
		body   string
	)
	if round.Document != "" {
		h, b, err := frontmatter.ParseHeader(round.Document)
		if err != nil {
			s.log.Warn("stored document has no readable header", zap.Int64("round", round.ID), zap.Error(err))
		}
		header, body = h, b
	}

	s.render(w, "round.html", map[string]any{
		"Round":  round,
		"Header": header,
		"Body":   body,
	})
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	cover, err := s.db.GetRoundCover(id)
	if err != nil {
		s.log.Error("reading cover", zap.Int64("round", id), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if len(cover) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(cover)
}

func (s *Server) lookupRound(w http.ResponseWriter, r *http.Request) (*database.Round, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	round, err := s.db.GetRound(id)
	if err != nil {
		s.log.Error("reading round", zap.Int64("round", id), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	if round == nil {
		http.NotFound(w, r)
		return nil, false
	}
	return round, true
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.log.Error("rendering template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func shortRef(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("url", "http://"+addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
