package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/HugeFrog24/gpt-video-translator/internal/media"
	"github.com/HugeFrog24/gpt-video-translator/internal/pipeline"
	"github.com/HugeFrog24/gpt-video-translator/internal/services"
)

//go:embed templates/*.html
var templateFS embed.FS

// multipartOverhead is allowed on top of the upload limit for form fields
// and multipart boundaries.
const multipartOverhead = 1 << 20

// defaultSessionTTL applies when Options.SessionTTL is unset.
const defaultSessionTTL = time.Hour

// Runner is the part of the pipeline the web front end drives.
type Runner interface {
	Start(upload media.Upload) (*pipeline.Run, error)
	Analyze(ctx context.Context, run *pipeline.Run) error
	Translate(ctx context.Context, run *pipeline.Run, editedTranscript string, languages []string) error
}

// Options configures a Server.
type Options struct {
	Bind       string
	Runner     Runner
	Languages  []string
	MaxUpload  int64
	Extensions []string
	// SessionTTL is how long a complete or aborted run stays in memory.
	SessionTTL time.Duration
	Logger     *slog.Logger
}

type session struct {
	run         *pipeline.Run
	languages   []string
	translating bool
}

// Server is the HTML front end: upload form, transcript editor, progress
// and downloads. Runs live in memory until they have been finished for
// longer than the session TTL.
type Server struct {
	bind       string
	runner     Runner
	languages  []string
	maxUpload  int64
	extensions []string
	logger     *slog.Logger
	pages      map[string]*template.Template

	// ctx outlives requests so background stages keep running after the
	// response is sent; it is cancelled on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	sessions   map[string]*session
	sessionTTL time.Duration
	now        func() time.Time

	server *http.Server
}

// New builds a Server. Call Serve to start listening.
func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("web: runner is required")
	}
	if opts.MaxUpload <= 0 {
		return nil, errors.New("web: upload limit must be positive")
	}
	pages, err := parsePages(templateFS)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		bind:       strings.TrimSpace(opts.Bind),
		runner:     opts.Runner,
		languages:  append([]string(nil), opts.Languages...),
		maxUpload:  opts.MaxUpload,
		extensions: append([]string(nil), opts.Extensions...),
		logger:     logger,
		pages:      pages,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*session),
		sessionTTL: ttl,
		now:        time.Now,
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /runs", s.handleUpload)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("POST /runs/{id}/translate", s.handleTranslate)
	mux.HandleFunc("GET /runs/{id}/progress", s.handleProgress)
	mux.HandleFunc("GET /runs/{id}/files/{language}", s.handleDownload)
	return mux
}

// Serve listens on the configured address until ctx is cancelled, then shuts
// down and waits for background stages to stop.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("web listen: %w", err)
	}
	s.logger.Info("web server listening", slog.String("address", "http://"+listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	s.wg.Add(1)
	go s.sweepLoop()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = s.server.Shutdown(shutdownCtx)
	s.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web shutdown: %w", err)
	}
	return nil
}

// Close cancels in-flight runs and waits for their goroutines.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) session(id string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// addSession registers a new run and drops expired ones.
func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	s.sessions[sess.run.ID()] = sess
}

// evictExpired drops runs that reached a terminal state more than the
// session TTL ago. It returns how many were removed.
func (s *Server) evictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked()
}

func (s *Server) evictLocked() int {
	cutoff := s.now().Add(-s.sessionTTL)
	removed := 0
	for id, sess := range s.sessions {
		snap := sess.run.Snapshot()
		if snap.State.IsTerminal() && snap.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()
	interval := s.sessionTTL / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.evictExpired(); n > 0 {
				s.logger.Debug("evicted finished runs", slog.Int("count", n))
			}
		}
	}
}

func (s *Server) background(name string, run *pipeline.Run, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.ctx); err != nil {
			s.logger.Debug("background stage ended with error",
				slog.String("stage", name),
				slog.String("run_id", run.ID()),
				slog.String("error", err.Error()))
		}
	}()
}

func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"bytes":   func(n int64) string { return humanize.IBytes(uint64(n)) },
		"message": services.Message,
		"join":    strings.Join,
		"selected": func(list []string, value string) bool {
			for _, item := range list {
				if strings.EqualFold(item, value) {
					return true
				}
			}
			return false
		},
	}
	pages := make(map[string]*template.Template)
	for _, page := range []string{"index.html", "run.html"} {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(fsys, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		pages[page] = tmpl
	}
	return pages, nil
}
