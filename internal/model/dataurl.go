package model

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidDataURL is returned when a string is not an embedded base64 payload.
var ErrInvalidDataURL = errors.New("invalid data URL")

var dataURLPattern = regexp.MustCompile(`^data:(.+);base64,(.+)$`)

// DataURL is an embedded payload: a MIME type plus base64 content, usable
// directly as an image or audio source in a page.
type DataURL struct {
	MIMEType string
	Data     string // base64, standard alphabet
}

// ParseDataURL splits a "data:<mime>;base64,<payload>" string.
func ParseDataURL(s string) (DataURL, error) {
	m := dataURLPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return DataURL{}, ErrInvalidDataURL
	}
	return DataURL{MIMEType: m[1], Data: m[2]}, nil
}

// NewDataURL encodes raw bytes as a DataURL.
func NewDataURL(mimeType string, b []byte) DataURL {
	return DataURL{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(b)}
}

// String renders the embedded form.
func (d DataURL) String() string {
	if d.IsZero() {
		return ""
	}
	return "data:" + d.MIMEType + ";base64," + d.Data
}

// IsZero reports whether the payload is absent.
func (d DataURL) IsZero() bool {
	return d.MIMEType == "" && d.Data == ""
}

// Bytes decodes the base64 content.
func (d DataURL) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return b, nil
}

// IsImage reports whether the declared MIME type is an image type.
func (d DataURL) IsImage() bool {
	return strings.HasPrefix(d.MIMEType, "image/")
}
