// Package generation talks to the hosted image and text models. It only
// translates requests and responses: data URLs in, data URL or text out.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/reunify/internal/model"
	"github.com/rcliao/reunify/internal/style"
)

// Generator produces reunified images and accompanying letters.
type Generator interface {
	Reunify(ctx context.Context, photoA, photoB model.DataURL, preset style.Preset) (model.DataURL, error)
	GenerateLetter(ctx context.Context, about string) (string, error)
}

var (
	ErrMissingAPIKey = errors.New("API_KEY environment variable is not set.")
	ErrNoCandidate   = errors.New("Failed to generate the reunified image.")
	ErrNoImage       = errors.New("No image data found in the response.")
	ErrEmptyContext  = errors.New("Please provide some context for the letter.")
	ErrEmptyLetter   = errors.New("empty letter in response")
)

const (
	OpReunify = "reunify"
	OpLetter  = "letter"

	letterFailure = "Failed to generate the accompanying letter."
)

// Error is the single user-facing error of a generation call. Error() is
// shown verbatim; the underlying cause stays reachable through Unwrap for
// logs and errors.Is.
type Error struct {
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

// reunifyError normalises any reunify failure. The message of the root
// sentinel (or the cause) is prefixed so the user sees one consistent shape.
func reunifyError(cause error) error {
	var ge *Error
	if errors.As(cause, &ge) {
		return ge
	}
	return &Error{Op: OpReunify, Msg: "Reunification Error: " + rootMessage(cause), Err: cause}
}

func letterError(cause error) error {
	var ge *Error
	if errors.As(cause, &ge) {
		return ge
	}
	return &Error{Op: OpLetter, Msg: letterFailure, Err: cause}
}

func rootMessage(err error) string {
	for _, s := range []error{ErrMissingAPIKey, ErrNoCandidate, ErrNoImage, model.ErrInvalidDataURL} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}

// ReunifyPrompt composes the instruction sent alongside the two photos.
func ReunifyPrompt(preset style.Preset) string {
	return "Reunify the two people from these separate photos into one single, high-quality image. " +
		"They should be posed together in a respectful and heartwarming way, showing a clear connection, " +
		"like standing next to each other or sharing a friendly interaction. " +
		"The person from the second photo should look like they are part of the first person's scene. " +
		style.Modifier(preset) +
		" Ensure the final image is a 1:1 square."
}

// LetterPrompt composes the text-model prompt for a letter about the given context.
func LetterPrompt(about string) string {
	return fmt.Sprintf("Write a thoughtful, short letter about connection and shared memories based on the following context: %q. "+
		"The letter should be exactly two paragraphs long and have a warm, sincere tone. Plain text only.", strings.TrimSpace(about))
}

// validatePhotos checks both payloads before any request is built.
func validatePhotos(photoA, photoB model.DataURL) error {
	for i, p := range []model.DataURL{photoA, photoB} {
		if _, err := model.ParseDataURL(p.String()); err != nil {
			return fmt.Errorf("photo %c: %w", 'A'+i, err)
		}
	}
	return nil
}
