package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/reunify/internal/archive"
	"github.com/rcliao/reunify/internal/blob"
	"github.com/rcliao/reunify/internal/capture"
	"github.com/rcliao/reunify/internal/locket"
	"github.com/rcliao/reunify/internal/logging"
	"github.com/rcliao/reunify/internal/model"
	"github.com/rcliao/reunify/internal/session"
	"github.com/rcliao/reunify/internal/store"
	"github.com/rcliao/reunify/internal/style"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image")

type fakeGen struct {
	mu     sync.Mutex
	calls  int
	styles []style.Preset
}

func (f *fakeGen) Reunify(ctx context.Context, a, b model.DataURL, p style.Preset) (model.DataURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.styles = append(f.styles, p)
	return model.NewDataURL("image/png", []byte("reunified-"+string(p))), nil
}

func (f *fakeGen) GenerateLetter(ctx context.Context, about string) (string, error) {
	return "Dear <b>" + about + "</b>,\n\nWe are together at last.", nil
}

func (f *fakeGen) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	ts     *httptest.Server
	client *http.Client
	gen    *fakeGen
}

func newTestEnv(t *testing.T, withArchive bool) *testEnv {
	t.Helper()
	gen := &fakeGen{}
	opts := Options{
		Sessions: session.NewManager(gen, logging.Discard(), 0),
		Logger:   logging.Discard(),
	}
	if withArchive {
		dir := t.TempDir()
		st, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		blobs, err := blob.NewFSStore(filepath.Join(dir, "blobs"))
		require.NoError(t, err)
		opts.Archive = archive.New(st, blobs, logging.Discard())
	}

	ts := httptest.NewUnstartedServer(nil)
	opts.BaseURL = "http://" + ts.Listener.Addr().String()
	srv, err := New(opts)
	require.NoError(t, err)
	ts.Config.Handler = srv.Handler()
	ts.Start()
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{ts: ts, client: &http.Client{Jar: jar}, gen: gen}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.ts.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func (e *testEnv) upload(t *testing.T, path, field, contentType string, data []byte) (*http.Response, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="upload"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	part.Write(data)
	require.NoError(t, mw.Close())

	resp, err := e.client.Post(e.ts.URL+path, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func (e *testEnv) state(t *testing.T) editorState {
	t.Helper()
	_, body := e.get(t, "/api/editor")
	var st editorState
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	return st
}

func (e *testEnv) readyForShare(t *testing.T) {
	t.Helper()
	resp, _ := e.upload(t, "/editor/photos/a", "photo", "image/png", pngBytes)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.upload(t, "/editor/photos/b", "photo", "image/png", pngBytes)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.postForm(t, "/editor/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.postForm(t, "/editor/letter", url.Values{"context": {"Grandpa"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	resp, body := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)
}

func TestLanding(t *testing.T) {
	env := newTestEnv(t, false)
	resp, body := env.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "How it works")
	assert.Contains(t, body, "Pencil Sketch")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "img-src 'self' data:")

	req, _ := http.NewRequest(http.MethodHead, env.ts.URL+"/", nil)
	head, err := env.client.Do(req)
	require.NoError(t, err)
	head.Body.Close()
	assert.Equal(t, http.StatusOK, head.StatusCode)
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, false)
	resp, body := env.get(t, "/static/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "#locket-")
}

func TestEditor_GenerateWithoutPhotos(t *testing.T) {
	env := newTestEnv(t, false)
	resp, body := env.postForm(t, "/editor/generate", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, session.MissingPhotosMessage)
	assert.Zero(t, env.gen.callCount())
	assert.Equal(t, "error", env.state(t).State)
}

func TestEditor_FullFlow(t *testing.T) {
	env := newTestEnv(t, true)
	env.readyForShare(t)

	st := env.state(t)
	assert.Equal(t, "success", st.State)
	assert.Equal(t, "success", st.LetterState)
	assert.Equal(t, "Dear Grandpa,\n\nWe are together at last.", st.Letter)
	assert.Equal(t, model.NewDataURL("image/png", []byte("reunified-natural")).String(), st.Result)

	resp, body := env.get(t, "/editor/result")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reunified-natural", body)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "reunify-moment.png")

	resp, _ = env.upload(t, "/editor/audio", "audio", "audio/webm;codecs=opus", []byte("voice"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	st = env.state(t)
	assert.Equal(t, model.NewDataURL("audio/webm", []byte("voice")).String(), st.Audio)

	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/editor/share",
		strings.NewReader(url.Values{"save": {"1"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var share map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&share))
	link, short := share["link"], share["short_link"]
	require.True(t, strings.HasPrefix(link, env.ts.URL+"/#locket-"), link)
	require.True(t, strings.HasPrefix(short, env.ts.URL+"/l/"), short)

	_, frag, _ := strings.Cut(link, "#")
	l, err := locket.Decode(frag)
	require.NoError(t, err)
	assert.Equal(t, st.Result, l.MediaURL)
	assert.Equal(t, st.Letter, l.Letter)
	assert.Equal(t, st.Audio, l.AudioURL)

	resp, body = env.postForm(t, "/shared", url.Values{"f": {frag}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "We are together at last.")
	assert.Contains(t, body, "data:audio/webm;base64,")

	resp, body = env.get(t, strings.TrimPrefix(short, env.ts.URL))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "We are together at last.")
	assert.Contains(t, body, "data:image/png;base64,")
}

func TestEditor_StyleChangeRegenerates(t *testing.T) {
	env := newTestEnv(t, false)

	resp, _ := env.postForm(t, "/editor/style", url.Values{"style": {"anime"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, env.gen.callCount(), "no regeneration before a first success")

	env.upload(t, "/editor/photos/a", "photo", "image/png", pngBytes)
	env.upload(t, "/editor/photos/b", "photo", "image/png", pngBytes)
	env.postForm(t, "/editor/generate", nil)
	env.postForm(t, "/editor/style", url.Values{"style": {"ghibli"}})

	assert.Equal(t, 2, env.gen.callCount())
	assert.Equal(t, []style.Preset{style.Anime, style.Ghibli}, env.gen.styles)

	resp, body := env.postForm(t, "/editor/style", url.Values{"style": {"cubist"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "cubist")
}

func TestEditor_ResetClearsState(t *testing.T) {
	env := newTestEnv(t, false)
	env.readyForShare(t)

	env.postForm(t, "/editor/reset", nil)
	st := env.state(t)
	assert.Equal(t, "idle", st.State)
	assert.False(t, st.HasPhotoA)
	assert.Empty(t, st.Letter)
	assert.Equal(t, string(style.Natural), st.Style)
}

func TestEditor_RejectsBadUploads(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.upload(t, "/editor/photos/a", "photo", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Contains(t, body, "unsupported image type")

	resp, _ = env.upload(t, "/editor/photos/c", "photo", "image/png", pngBytes)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.postForm(t, "/editor/photos/a", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEditor_LetterAndAudioGating(t *testing.T) {
	env := newTestEnv(t, false)

	resp, _ := env.postForm(t, "/editor/letter", url.Values{"context": {"x"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.upload(t, "/editor/audio", "audio", "audio/webm", []byte("voice"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.postForm(t, "/editor/share", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEditor_AudioDeniedAndRetake(t *testing.T) {
	env := newTestEnv(t, false)
	env.readyForShare(t)

	env.postForm(t, "/editor/audio", url.Values{"denied": {"1"}})
	assert.Equal(t, capture.PermissionDeniedMessage, env.state(t).AudioError)

	env.upload(t, "/editor/audio", "audio", "audio/webm", []byte("voice"))
	st := env.state(t)
	assert.NotEmpty(t, st.Audio)
	assert.Empty(t, st.AudioError)

	env.postForm(t, "/editor/audio/retake", nil)
	assert.Empty(t, env.state(t).Audio)
}

func TestEditor_ShareWithoutArchive(t *testing.T) {
	env := newTestEnv(t, false)
	env.readyForShare(t)

	resp, body := env.postForm(t, "/editor/share", url.Values{"save": {"1"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "#locket-")
	assert.NotContains(t, body, "/l/")
}

func TestShared_InvalidLink(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.get(t, "/shared?f=locket-%25%25%25")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Could not read locket data.")
	assert.Contains(t, body, "Back Home")

	resp, body = env.get(t, "/shared")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "redirected home")
	assert.Contains(t, body, "How it works")
}

func TestShared_QueryLink(t *testing.T) {
	env := newTestEnv(t, false)
	frag, err := locket.Encode(model.Locket{
		MediaURL: model.NewDataURL("image/png", pngBytes).String(),
		Letter:   "Hello there",
	})
	require.NoError(t, err)

	resp, body := env.get(t, "/shared?f="+url.QueryEscape(frag))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Hello there")
	assert.NotContains(t, body, "<audio")
}

func TestShared_StandardAlphabetQueryLink(t *testing.T) {
	env := newTestEnv(t, false)
	var frag string
	for pad := 0; pad < 3 && frag == ""; pad++ {
		payload := `{"mediaUrl":"` + model.NewDataURL("image/png", pngBytes).String() +
			`","mediaType":"image","letter":"` + strings.Repeat("x", pad) + `?>>?>> see you"}`
		enc := base64.StdEncoding.EncodeToString([]byte(payload))
		if strings.Contains(enc, "+") {
			frag = locket.Marker + enc
		}
	}
	require.NotEmpty(t, frag)

	resp, body := env.get(t, "/shared?f="+frag)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "see you")
}

func TestShared_UnrenderableMedia(t *testing.T) {
	env := newTestEnv(t, false)
	frag, err := locket.Encode(model.Locket{MediaURL: "https://elsewhere.example/a.png", Letter: "Hi"})
	require.NoError(t, err)

	resp, body := env.get(t, "/shared?f="+url.QueryEscape(frag))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, locket.NotFoundMessage)
}

func TestSaved_Unknown(t *testing.T) {
	env := newTestEnv(t, true)
	resp, body := env.get(t, "/l/01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, locket.NotFoundMessage)
}

func TestMediaSrc(t *testing.T) {
	img := model.NewDataURL("image/png", []byte("x"))
	assert.Equal(t, img.String(), string(mediaSrc(img)))
	assert.Equal(t, img.String(), string(mediaSrc(img.String())))
	assert.Empty(t, string(mediaSrc("javascript:alert(1)")))
	assert.Empty(t, string(mediaSrc(model.NewDataURL("text/html", []byte("<b>")))))
	assert.Empty(t, string(mediaSrc(42)))
}
