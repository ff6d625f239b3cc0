// Package web serves the browser front-end: landing page, editor, shared
// and saved views.
package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rcliao/reunify/internal/archive"
	"github.com/rcliao/reunify/internal/capture"
	"github.com/rcliao/reunify/internal/logging"
	"github.com/rcliao/reunify/internal/session"
)

// SessionCookie names the browser session cookie.
const SessionCookie = "reunify_session"

// Options configures a Server.
type Options struct {
	Sessions       *session.Manager
	Archive        *archive.Archive // nil disables short links
	Logger         logging.Logger
	BaseURL        string
	MaxUploadBytes int64
	LocketTTL      string
}

// Server holds the handlers' dependencies.
type Server struct {
	sessions  *session.Manager
	archive   *archive.Archive
	log       logging.Logger
	baseURL   string
	maxUpload int64
	ttl       string
	pages     map[string]*template.Template
	started   time.Time
}

// New parses the embedded templates and returns a Server.
func New(opts Options) (*Server, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("web: session manager is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = capture.DefaultMaxImageBytes
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080"
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Server{
		sessions:  opts.Sessions,
		archive:   opts.Archive,
		log:       opts.Logger,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		maxUpload: opts.MaxUploadBytes,
		ttl:       opts.LocketTTL,
		pages:     pages,
		started:   time.Now(),
	}, nil
}

// maxBody bounds every request body. A shared payload nests the image in
// base64 twice and may carry audio, so it gets a multiple of the photo cap.
func (s *Server) maxBody() int64 { return 4*s.maxUpload + 1<<20 }

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(headToGet)
	r.Use(securityHeaders(defaultHeaders()))
	r.Use(maxBody(s.maxBody()))

	r.Get("/health", s.handleHealth)
	r.Handle("/static/*", http.FileServerFS(staticFS))

	r.Get("/", s.handleLanding)
	r.Get("/shared", s.handleShared)
	r.Post("/shared", s.handleShared)
	r.Get("/l/{id}", s.handleSaved)

	r.Route("/editor", func(r chi.Router) {
		r.Get("/", s.handleEditor)
		r.Post("/photos/{slot}", s.handlePhoto)
		r.Post("/style", s.handleStyle)
		r.Post("/generate", s.handleGenerate)
		r.Post("/reset", s.handleReset)
		r.Post("/letter", s.handleLetter)
		r.Post("/audio", s.handleAudio)
		r.Post("/audio/retake", s.handleRetake)
		r.Post("/share", s.handleShare)
		r.Get("/result", s.handleResult)
	})
	r.Get("/api/editor", s.handleEditorJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusNotFound, "shared", sharedPage{NotFound: true, Message: "Page not found."})
	})
	return r
}

// controller returns the caller's editor session, issuing a cookie when
// the browser has none (or an expired one).
func (s *Server) controller(w http.ResponseWriter, r *http.Request) *session.Controller {
	var have string
	if c, err := r.Cookie(SessionCookie); err == nil {
		have = c.Value
	}
	id, c := s.sessions.Get(have)
	if id != have {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   strings.HasPrefix(s.baseURL, "https://"),
			SameSite: http.SameSiteLaxMode,
		})
	}
	return c
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, code int, page string, data any) {
	t, ok := s.pages[page]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	var buf strings.Builder
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.log.Error(r.Context(), "render page", "page", page, "error", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprint(w, buf.String())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"uptime_s": int(time.Since(s.started).Seconds()),
	})
}
