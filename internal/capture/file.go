// Package capture turns user-provided media into embedded payloads: image
// uploads and voice recordings.
package capture

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcliao/reunify/internal/model"
)

// DefaultMaxImageBytes caps a single uploaded photo.
const DefaultMaxImageBytes = 10 << 20

var (
	ErrUnsupportedImage = errors.New("unsupported image type (use PNG, JPEG or WebP)")
	ErrTooLarge         = errors.New("file too large")
	ErrEmptyFile        = errors.New("empty file")
)

// AcceptedImageTypes are the photo formats the editor takes.
var AcceptedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// ReadImage reads an uploaded photo fully and returns it as a data URL.
// declared is the client-declared content type; when it is empty or
// generic the type is sniffed from the bytes. maxBytes <= 0 means
// DefaultMaxImageBytes.
func ReadImage(r io.Reader, declared string, maxBytes int64) (model.DataURL, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	b, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return model.DataURL{}, fmt.Errorf("read image: %w", err)
	}
	if len(b) == 0 {
		return model.DataURL{}, ErrEmptyFile
	}
	if int64(len(b)) > maxBytes {
		return model.DataURL{}, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}

	mt := mediaType(declared)
	if mt == "" || mt == "application/octet-stream" {
		mt = mediaType(http.DetectContentType(b))
	}
	if !AcceptedImageTypes[mt] {
		return model.DataURL{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, mt)
	}
	return model.NewDataURL(mt, b), nil
}

// ReadImageFile loads a photo from disk. The type comes from the extension,
// falling back to content sniffing.
func ReadImageFile(path string) (model.DataURL, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.DataURL{}, err
	}
	defer f.Close()
	return ReadImage(f, mime.TypeByExtension(strings.ToLower(filepath.Ext(path))), 0)
}

func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}
