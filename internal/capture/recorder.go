package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rcliao/reunify/internal/model"
)

// State is the recorder lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateRecorded  State = "recorded"
	StateError     State = "error"
)

// PermissionDeniedMessage is shown when the microphone cannot be opened.
const PermissionDeniedMessage = "Microphone access denied. Please enable it in your browser settings."

var (
	ErrPermissionDenied = errors.New(PermissionDeniedMessage)
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// DefaultAudioType is used when a stream does not declare its type.
const DefaultAudioType = "audio/webm"

// Stream is an open, exclusive audio source. Close releases the device.
type Stream interface {
	io.Reader
	MIMEType() string
	Close() error
}

// Microphone grants access to an audio stream.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// Recorder drives one idle -> recording -> recorded sequence. A Recorder
// always releases its stream: on Stop, and on Close even if Stop was never
// called.
type Recorder struct {
	mic Microphone

	mu      sync.Mutex
	state   State
	errMsg  string
	stream  Stream
	buf     bytes.Buffer
	done    chan struct{}
	readErr error
	result  model.DataURL
}

func NewRecorder(mic Microphone) *Recorder {
	return &Recorder{mic: mic, state: StateIdle}
}

// State returns the current state and, in StateError, the message to show.
func (r *Recorder) State() (State, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.errMsg
}

// Start opens the microphone and begins capturing in the background.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		return ErrAlreadyRecording
	}

	stream, err := r.mic.Open(ctx)
	if err != nil {
		r.state = StateError
		r.errMsg = PermissionDeniedMessage
		return errors.Join(ErrPermissionDenied, err)
	}

	r.stream = stream
	r.buf.Reset()
	r.readErr = nil
	r.result = model.DataURL{}
	r.errMsg = ""
	r.state = StateRecording
	r.done = make(chan struct{})

	go r.capture(stream, r.done)
	return nil
}

func (r *Recorder) capture(s Stream, done chan struct{}) {
	defer close(done)
	var local bytes.Buffer
	_, err := io.Copy(&local, s)

	r.mu.Lock()
	r.buf.Write(local.Bytes())
	r.readErr = err
	r.mu.Unlock()
}

// Done is closed once the stream reaches its end. Nil before Start.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Stop releases the stream, then exposes the captured audio as a data URL.
func (r *Recorder) Stop() (model.DataURL, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return model.DataURL{}, ErrNotRecording
	}
	stream, done := r.stream, r.done
	r.stream = nil
	r.mu.Unlock()

	closeErr := stream.Close()
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()

	// A read cut short by our own Close is the normal way a recording ends.
	if r.buf.Len() == 0 {
		r.state = StateError
		r.errMsg = "No audio was captured."
		return model.DataURL{}, errors.Join(errors.New("empty recording"), r.readErr, closeErr)
	}
	mt := stream.MIMEType()
	if mt == "" {
		mt = DefaultAudioType
	}
	r.result = model.NewDataURL(mt, r.buf.Bytes())
	r.state = StateRecorded
	return r.result, nil
}

// Result returns the last recording, zero unless StateRecorded.
func (r *Recorder) Result() model.DataURL {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Retake discards the recording and returns to idle.
func (r *Recorder) Retake() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		return
	}
	r.result = model.DataURL{}
	r.buf.Reset()
	r.errMsg = ""
	r.state = StateIdle
}

// Close is the teardown path: a stream still open is released.
func (r *Recorder) Close() error {
	r.mu.Lock()
	stream, done := r.stream, r.done
	r.stream = nil
	if r.state == StateRecording {
		r.state = StateIdle
	}
	r.mu.Unlock()

	if stream == nil {
		return nil
	}
	err := stream.Close()
	<-done
	return err
}
