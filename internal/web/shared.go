package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/rcliao/reunify/internal/archive"
	"github.com/rcliao/reunify/internal/locket"
	"github.com/rcliao/reunify/internal/model"
	"github.com/rcliao/reunify/internal/style"
)

type landingPage struct {
	Styles []style.Info
}

type sharedPage struct {
	Locket    *model.Locket
	ShortLink string
	NotFound  bool
	Message   string
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "landing", landingPage{Styles: style.All()})
}

// handleShared renders the read-only view of a fragment link. The landing
// page script forwards the fragment as f, since browsers never send it.
// A payload whose media cannot be shown gets the not-found screen.
func (s *Server) handleShared(w http.ResponseWriter, r *http.Request) {
	f := r.PostFormValue("f")
	if f == "" {
		f = locket.QueryFragment(r.URL.RawQuery)
	}
	if f == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	l := locket.Load(r.Context(), &url.URL{Path: r.URL.Path, Fragment: f}, s.log)
	if l != nil && mediaSrc(l.MediaURL) == "" {
		s.log.Warn(r.Context(), "shared locket media is not renderable")
		l = nil
	}
	if l == nil {
		s.render(w, r, http.StatusNotFound, "shared", sharedPage{NotFound: true, Message: locket.NotFoundMessage})
		return
	}
	s.render(w, r, http.StatusOK, "shared", sharedPage{Locket: l})
}

func (s *Server) handleSaved(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.archive == nil {
		s.render(w, r, http.StatusNotFound, "shared", sharedPage{NotFound: true, Message: locket.NotFoundMessage})
		return
	}
	l, _, err := s.archive.Load(r.Context(), id)
	if errors.Is(err, archive.ErrNotFound) {
		s.render(w, r, http.StatusNotFound, "shared", sharedPage{NotFound: true, Message: locket.NotFoundMessage})
		return
	}
	if err != nil {
		s.log.Error(r.Context(), "load saved locket", "id", id, "error", err)
		s.render(w, r, http.StatusInternalServerError, "shared", sharedPage{NotFound: true, Message: locket.NotFoundMessage})
		return
	}
	s.render(w, r, http.StatusOK, "shared", sharedPage{Locket: &l, ShortLink: archive.ShortLink(s.baseURL, id)})
}
