package web

import (
	"context"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rcliao/reunify/internal/archive"
	"github.com/rcliao/reunify/internal/capture"
	"github.com/rcliao/reunify/internal/locket"
	"github.com/rcliao/reunify/internal/model"
	"github.com/rcliao/reunify/internal/session"
	"github.com/rcliao/reunify/internal/style"
)

const (
	busyMessage       = "A reunification is already in progress."
	needImageMessage  = "Generate an image first."
	needLetterMessage = "Write a letter before adding a voice note."
	needLocketMessage = "Generate an image and a letter before sharing."
	saveFailedMessage = "Could not save the locket. The share link still works."
	resultFilename    = "reunify-moment.png"
)

type editorPage struct {
	View      session.View
	Styles    []style.Info
	Notice    string
	ShareLink string
	ShortLink string
	CanSave   bool
}

// editorState is the JSON form of the editor, polled by the page script.
type editorState struct {
	State       string `json:"state"`
	Style       string `json:"style"`
	HasPhotoA   bool   `json:"has_photo_a"`
	HasPhotoB   bool   `json:"has_photo_b"`
	CanGenerate bool   `json:"can_generate"`
	Progress    string `json:"progress,omitempty"`
	Error       string `json:"error,omitempty"`
	Result      string `json:"result,omitempty"`
	Letter      string `json:"letter,omitempty"`
	LetterState string `json:"letter_state"`
	LetterError string `json:"letter_error,omitempty"`
	Audio       string `json:"audio,omitempty"`
	AudioError  string `json:"audio_error,omitempty"`
}

func newEditorState(v session.View) editorState {
	return editorState{
		State:       string(v.State),
		Style:       string(v.Style),
		HasPhotoA:   !v.PhotoA.IsZero(),
		HasPhotoB:   !v.PhotoB.IsZero(),
		CanGenerate: v.CanGenerate(),
		Progress:    v.Progress,
		Error:       v.Error,
		Result:      v.Result.String(),
		Letter:      v.Letter,
		LetterState: string(v.LetterState),
		LetterError: v.LetterError,
		Audio:       v.Audio.String(),
		AudioError:  v.AudioError,
	}
}

func (s *Server) renderEditor(w http.ResponseWriter, r *http.Request, code int, c *session.Controller, p editorPage) {
	p.View = c.Snapshot()
	p.Styles = style.All()
	p.CanSave = s.archive != nil
	s.render(w, r, code, "editor", p)
}

// done answers a successful editor action: JSON callers get the new
// state, forms are sent back to the editor.
func (s *Server) done(w http.ResponseWriter, r *http.Request, c *session.Controller) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, newEditorState(c.Snapshot()))
		return
	}
	http.Redirect(w, r, "/editor", http.StatusSeeOther)
}

// fail answers a rejected editor action with an inline message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, c *session.Controller, code int, msg string) {
	if wantsJSON(r) {
		writeJSON(w, code, map[string]string{"error": msg})
		return
	}
	s.renderEditor(w, r, code, c, editorPage{Notice: msg})
}

func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request) {
	s.renderEditor(w, r, http.StatusOK, s.controller(w, r), editorPage{})
}

func (s *Server) handleEditorJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newEditorState(s.controller(w, r).Snapshot()))
}

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	slot := model.Slot(chi.URLParam(r, "slot"))
	if !model.ValidSlots[slot] {
		s.fail(w, r, c, http.StatusNotFound, session.ErrInvalidSlot.Error())
		return
	}

	file, hdr, err := r.FormFile("photo")
	if err != nil {
		s.fail(w, r, c, uploadStatus(err), "Choose a photo to upload.")
		return
	}
	defer file.Close()

	img, err := capture.ReadImage(file, hdr.Header.Get("Content-Type"), s.maxUpload)
	if err != nil {
		s.fail(w, r, c, uploadStatus(err), err.Error())
		return
	}
	if err := c.SetPhoto(slot, img); err != nil {
		s.fail(w, r, c, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Debug(r.Context(), "photo uploaded", "slot", string(slot), "type", img.MIMEType)
	s.done(w, r, c)
}

func uploadStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) || errors.Is(err, capture.ErrTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, capture.ErrUnsupportedImage) {
		return http.StatusUnsupportedMediaType
	}
	return http.StatusBadRequest
}

func (s *Server) handleStyle(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	preset, err := style.Parse(r.FormValue("style"))
	if err != nil {
		s.fail(w, r, c, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.SetStyle(r.Context(), preset); errors.Is(err, session.ErrBusy) {
		s.fail(w, r, c, http.StatusConflict, busyMessage)
		return
	}
	s.done(w, r, c)
}

// handleGenerate runs the generation within the request. Generation
// failures land in the editor state; only a concurrent run is rejected.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	if err := c.Generate(r.Context()); errors.Is(err, session.ErrBusy) {
		s.fail(w, r, c, http.StatusConflict, busyMessage)
		return
	}
	s.done(w, r, c)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	c.Reset()
	s.done(w, r, c)
}

func (s *Server) handleLetter(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	if c.Snapshot().State != session.StateSuccess {
		s.fail(w, r, c, http.StatusConflict, needImageMessage)
		return
	}
	if err := c.GenerateLetter(r.Context(), r.FormValue("context")); errors.Is(err, session.ErrBusy) {
		s.fail(w, r, c, http.StatusConflict, busyMessage)
		return
	}
	s.done(w, r, c)
}

// handleAudio takes a finished browser recording. The page posts
// denied=1 when the microphone could not be opened.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	if c.Snapshot().Letter == "" {
		s.fail(w, r, c, http.StatusConflict, needLetterMessage)
		return
	}
	if r.FormValue("denied") != "" {
		c.SetAudioError(capture.PermissionDeniedMessage)
		s.done(w, r, c)
		return
	}

	rec, err := s.record(r.Context(), uploadMic{r: r})
	if err != nil {
		s.log.Warn(r.Context(), "recording failed", "error", err)
		c.SetAudioError(recorderMessage(err))
		s.done(w, r, c)
		return
	}
	if err := c.SetAudio(rec); err != nil {
		s.fail(w, r, c, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	s.done(w, r, c)
}

// record drives a Recorder over an uploaded stream: start, wait for the
// end of the upload, stop. The stream is released on every path.
func (s *Server) record(ctx context.Context, mic capture.Microphone) (model.DataURL, error) {
	rec := capture.NewRecorder(mic)
	defer rec.Close()

	if err := rec.Start(ctx); err != nil {
		return model.DataURL{}, &recordError{rec: rec, err: err}
	}
	select {
	case <-rec.Done():
	case <-ctx.Done():
		return model.DataURL{}, ctx.Err()
	}
	data, err := rec.Stop()
	if err != nil {
		return model.DataURL{}, &recordError{rec: rec, err: err}
	}
	return data, nil
}

type recordError struct {
	rec *capture.Recorder
	err error
}

func (e *recordError) Error() string { return e.err.Error() }
func (e *recordError) Unwrap() error { return e.err }

func recorderMessage(err error) string {
	var re *recordError
	if errors.As(err, &re) {
		if _, msg := re.rec.State(); msg != "" {
			return msg
		}
	}
	return "Recording failed. Please try again."
}

type uploadMic struct{ r *http.Request }

func (m uploadMic) Open(ctx context.Context) (capture.Stream, error) {
	f, hdr, err := m.r.FormFile("audio")
	if err != nil {
		return nil, err
	}
	mt, _, err := mime.ParseMediaType(hdr.Header.Get("Content-Type"))
	if err != nil {
		mt = ""
	}
	return &uploadStream{File: f, mime: mt}, nil
}

type uploadStream struct {
	multipart.File
	mime string
}

func (s *uploadStream) MIMEType() string { return s.mime }

func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	c.ClearAudio()
	s.done(w, r, c)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	l, err := c.Locket()
	if err != nil {
		s.fail(w, r, c, http.StatusConflict, needLocketMessage)
		return
	}
	link, err := locket.Link(s.baseURL+"/", l)
	if err != nil {
		s.log.Error(r.Context(), "encode locket", "error", err)
		s.fail(w, r, c, http.StatusInternalServerError, needLocketMessage)
		return
	}

	p := editorPage{ShareLink: link}
	if r.FormValue("save") != "" && s.archive != nil {
		saved, err := s.archive.Save(r.Context(), l, s.ttl)
		if err != nil {
			s.log.Error(r.Context(), "save locket", "error", err)
			p.Notice = saveFailedMessage
		} else {
			p.ShortLink = archive.ShortLink(s.baseURL, saved.ID)
		}
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]string{"link": p.ShareLink, "short_link": p.ShortLink, "notice": p.Notice})
		return
	}
	s.renderEditor(w, r, http.StatusOK, c, p)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	v := s.controller(w, r).Snapshot()
	if v.Result.IsZero() {
		writeError(w, http.StatusNotFound, session.ErrNoResult)
		return
	}
	b, err := v.Result.Bytes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", v.Result.MIMEType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+resultFilename+`"`)
	w.Write(b)
}
