// Package session holds the editor state machine for one browser session
// and the manager that maps session ids to controllers.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rcliao/reunify/internal/generation"
	"github.com/rcliao/reunify/internal/letter"
	"github.com/rcliao/reunify/internal/logging"
	"github.com/rcliao/reunify/internal/model"
	"github.com/rcliao/reunify/internal/style"
)

// State is the editor screen state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// LetterState tracks the letter independently of the image.
type LetterState string

const (
	LetterIdle    LetterState = "idle"
	LetterLoading LetterState = "loading"
	LetterSuccess LetterState = "success"
	LetterError   LetterState = "error"
)

const (
	MissingPhotosMessage = "Please upload both photos before generating."
	ProgressMessage      = "Bridging your photos..."
	fallbackFailure      = "Failed to create a connection. Please try different images."
)

var (
	ErrMissingPhotos = errors.New(MissingPhotosMessage)
	ErrBusy          = errors.New("a generation is already in progress")
	ErrNoResult      = errors.New("no generated image yet")
	ErrNoLetter      = errors.New("no letter yet")
	ErrInvalidSlot   = errors.New("invalid photo slot")
	ErrNotImage      = errors.New("photo must be an image")
	ErrNotAudio      = errors.New("recording must be audio")

	errGeneratorPanic = errors.New("generator panicked")
)

// View is a point-in-time copy of the controller state.
type View struct {
	State        State
	PhotoA       model.DataURL
	PhotoB       model.DataURL
	Result       model.DataURL
	Style        style.Preset
	Error        string
	Progress     string
	Letter       string
	LetterState  LetterState
	LetterError  string
	Audio        model.DataURL
	AudioError   string
	GeneratedAny bool
}

// CanGenerate reports whether the generate trigger should be enabled.
func (v View) CanGenerate() bool {
	return v.State != StateLoading && !v.PhotoA.IsZero() && !v.PhotoB.IsZero()
}

// Controller is the editor state machine. Every method is safe for
// concurrent use; external calls run without the lock held.
type Controller struct {
	gen generation.Generator
	log logging.Logger

	mu           sync.Mutex
	state        State
	photoA       model.DataURL
	photoB       model.DataURL
	result       model.DataURL
	preset       style.Preset
	errMsg       string
	progress     string
	letter       string
	letterState  LetterState
	letterErr    string
	audio        model.DataURL
	audioErr     string
	generatedAny bool
	epoch        uint64
	lastSeen     time.Time
}

func NewController(gen generation.Generator, log logging.Logger) *Controller {
	if log == nil {
		log = logging.Discard()
	}
	return &Controller{
		gen:         gen,
		log:         log,
		state:       StateIdle,
		preset:      style.Default,
		letterState: LetterIdle,
		lastSeen:    time.Now(),
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		State:        c.state,
		PhotoA:       c.photoA,
		PhotoB:       c.photoB,
		Result:       c.result,
		Style:        c.preset,
		Error:        c.errMsg,
		Progress:     c.progress,
		Letter:       c.letter,
		LetterState:  c.letterState,
		LetterError:  c.letterErr,
		Audio:        c.audio,
		AudioError:   c.audioErr,
		GeneratedAny: c.generatedAny,
	}
}

// SetPhoto stores (or replaces) a source photo.
func (c *Controller) SetPhoto(slot model.Slot, photo model.DataURL) error {
	if !model.ValidSlots[slot] {
		return ErrInvalidSlot
	}
	if !photo.IsImage() {
		return ErrNotImage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot == model.SlotA {
		c.photoA = photo
	} else {
		c.photoB = photo
	}
	return nil
}

// Generate runs idle/error/success -> loading -> success/error with the
// current photos and style. Without both photos it moves to error without
// contacting the generator.
func (c *Controller) Generate(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.photoA.IsZero() || c.photoB.IsZero() {
		c.state = StateError
		c.errMsg = MissingPhotosMessage
		c.mu.Unlock()
		return ErrMissingPhotos
	}

	c.state = StateLoading
	c.errMsg = ""
	c.progress = ProgressMessage
	c.result = model.DataURL{}
	c.epoch++
	epoch := c.epoch
	a, b, preset := c.photoA, c.photoB, c.preset
	c.mu.Unlock()

	start := time.Now()
	img, err := c.reunify(ctx, a, b, preset)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		// reset (or another run) happened meanwhile; nobody wants this result
		c.log.Debug(ctx, "discarding stale generation", "style", string(preset))
		return err
	}
	defer func() { c.progress = "" }()

	if err != nil {
		c.state = StateError
		c.errMsg = userMessage(err)
		c.log.Warn(ctx, "generation failed", "style", string(preset), "error", err)
		return err
	}
	c.result = img
	c.state = StateSuccess
	c.generatedAny = true
	c.log.Info(ctx, "generation finished", "style", string(preset), "ms", time.Since(start).Milliseconds())
	return nil
}

// SetStyle changes the preset. After at least one successful generation
// a change triggers exactly one Regenerate with the same photos. While a
// generation is loading the preset is left as is and ErrBusy is returned.
func (c *Controller) SetStyle(ctx context.Context, preset style.Preset) error {
	c.mu.Lock()
	if c.state == StateLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	changed := c.preset != preset
	c.preset = preset
	regen := changed && c.generatedAny
	c.mu.Unlock()

	if !regen {
		return nil
	}
	return c.Regenerate(ctx)
}

// Regenerate re-runs generation with the stored photos and current style.
func (c *Controller) Regenerate(ctx context.Context) error {
	return c.Generate(ctx)
}

// Reset returns to idle and clears photos, result, letter and recording;
// the style goes back to the default.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.photoA = model.DataURL{}
	c.photoB = model.DataURL{}
	c.result = model.DataURL{}
	c.preset = style.Default
	c.errMsg = ""
	c.progress = ""
	c.letter = ""
	c.letterState = LetterIdle
	c.letterErr = ""
	c.audio = model.DataURL{}
	c.audioErr = ""
	c.generatedAny = false
	c.epoch++
}

// GenerateLetter asks the text model for a letter about the given context.
func (c *Controller) GenerateLetter(ctx context.Context, about string) error {
	c.mu.Lock()
	if c.letterState == LetterLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.letterState = LetterLoading
	c.letterErr = ""
	epoch := c.epoch
	c.mu.Unlock()

	text, err := c.writeLetter(ctx, about)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return err
	}
	if err != nil {
		c.letterState = LetterError
		c.letterErr = userMessage(err)
		return err
	}
	text = letter.Clean(text)
	if n := len(letter.Paragraphs(text)); n != letter.WantParagraphs {
		c.log.Debug(ctx, "letter paragraph count differs", "paragraphs", n)
	}
	c.letter = text
	c.letterState = LetterSuccess
	return nil
}

// SetAudio stores a recording, replacing any previous one.
func (c *Controller) SetAudio(rec model.DataURL) error {
	if _, err := model.ParseDataURL(rec.String()); err != nil {
		return err
	}
	if !strings.HasPrefix(rec.MIMEType, "audio/") {
		return ErrNotAudio
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = rec
	c.audioErr = ""
	return nil
}

// SetAudioError records a capture failure such as a denied microphone.
func (c *Controller) SetAudioError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioErr = msg
}

// ClearAudio discards the recording (retake).
func (c *Controller) ClearAudio() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = model.DataURL{}
	c.audioErr = ""
}

// Locket assembles the shareable payload. It needs a generated image and a
// letter; the recording is optional.
func (c *Controller) Locket() (model.Locket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSuccess || c.result.IsZero() {
		return model.Locket{}, ErrNoResult
	}
	if c.letter == "" {
		return model.Locket{}, ErrNoLetter
	}
	return model.Locket{
		MediaURL:  c.result.String(),
		MediaType: model.MediaTypeImage,
		Letter:    c.letter,
		AudioURL:  c.audio.String(),
	}, nil
}

func (c *Controller) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

func (c *Controller) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// reunify and writeLetter turn a generator panic into an error so the
// loading state is always left.
func (c *Controller) reunify(ctx context.Context, a, b model.DataURL, p style.Preset) (img model.DataURL, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errGeneratorPanic, r)
		}
	}()
	return c.gen.Reunify(ctx, a, b, p)
}

func (c *Controller) writeLetter(ctx context.Context, about string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errGeneratorPanic, r)
		}
	}()
	return c.gen.GenerateLetter(ctx, about)
}

func userMessage(err error) string {
	var ge *generation.Error
	if errors.As(err, &ge) {
		return ge.Error()
	}
	if errors.Is(err, errGeneratorPanic) {
		return fallbackFailure
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallbackFailure
}
