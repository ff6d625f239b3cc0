// Package locket encodes a locket into a URL fragment and reads it back.
//
// Wire format: <page-url>#locket-<urlsafe-base64(JSON(locket))>. Links
// made by earlier builds used the standard base64 alphabet with padding;
// Decode accepts both.
package locket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rcliao/reunify/internal/logging"
	"github.com/rcliao/reunify/internal/model"
)

// Marker prefixes every locket fragment.
const Marker = "locket-"

// NotFoundMessage is shown when a shared link cannot be read.
const NotFoundMessage = "Could not read locket data. The link may be corrupted or expired."

var (
	ErrNoMarker       = errors.New("fragment has no locket marker")
	ErrInvalidPayload = errors.New("invalid locket payload")
)

// Validate checks the invariants of a payload: mediaUrl and letter
// non-empty and media type image. The content of mediaUrl is not
// inspected; views decide whether they can render it.
func Validate(l model.Locket) error {
	if l.MediaURL == "" {
		return fmt.Errorf("%w: mediaUrl is required", ErrInvalidPayload)
	}
	if l.Letter == "" {
		return fmt.Errorf("%w: letter is required", ErrInvalidPayload)
	}
	if l.MediaType != model.MediaTypeImage {
		return fmt.Errorf("%w: unsupported mediaType %q", ErrInvalidPayload, l.MediaType)
	}
	return nil
}

// Encode returns the fragment (without '#') for l.
func Encode(l model.Locket) (string, error) {
	if l.MediaType == "" {
		l.MediaType = model.MediaTypeImage
	}
	if err := Validate(l); err != nil {
		return "", err
	}
	b, err := json.Marshal(l)
	if err != nil {
		return "", err
	}
	return Marker + base64.RawURLEncoding.EncodeToString(b), nil
}

// Link appends the encoded fragment to pageURL, replacing any fragment it
// already had.
func Link(pageURL string, l model.Locket) (string, error) {
	frag, err := Encode(l)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String() + "#" + frag, nil
}

// Decode parses a fragment, with or without the leading '#'.
func Decode(fragment string) (model.Locket, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	enc, ok := strings.CutPrefix(fragment, Marker)
	if !ok {
		return model.Locket{}, ErrNoMarker
	}

	raw, err := decodeBase64(enc)
	if err != nil {
		return model.Locket{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var l model.Locket
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	if err := dec.Decode(&l); err != nil {
		return model.Locket{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if l.MediaType == "" {
		l.MediaType = model.MediaTypeImage
	}
	if err := Validate(l); err != nil {
		return model.Locket{}, err
	}
	return l, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "+/") {
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Load is the page-load step of the read-only view. It takes the current
// location, and returns the locket it carries or nil. Any failure is
// logged and the location's fragment is cleared; it never panics past this
// boundary.
func Load(ctx context.Context, loc *url.URL, log logging.Logger) (l *model.Locket) {
	if loc == nil {
		return nil
	}
	if log == nil {
		log = logging.Discard()
	}
	frag := loc.Fragment
	if frag == "" {
		frag = QueryFragment(loc.RawQuery)
	}
	if !strings.HasPrefix(strings.TrimPrefix(frag, "#"), Marker) {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "locket decode panicked", "panic", r)
			clearFragment(loc)
			l = nil
		}
	}()

	got, err := Decode(frag)
	if err != nil {
		log.Warn(ctx, "failed to parse locket data from link", "error", err)
		clearFragment(loc)
		return nil
	}
	return &got
}

// QueryFragment returns the f parameter of a raw query. Unlike form
// decoding it keeps '+' as is, so standard-alphabet payloads survive.
func QueryFragment(rawQuery string) string {
	for _, part := range strings.Split(rawQuery, "&") {
		k, v, _ := strings.Cut(part, "=")
		if k != "f" {
			continue
		}
		if u, err := url.PathUnescape(v); err == nil {
			return u
		}
		return v
	}
	return ""
}

func clearFragment(loc *url.URL) {
	loc.Fragment = ""
	loc.RawFragment = ""
	q := loc.Query()
	if q.Has("f") {
		q.Del("f")
		loc.RawQuery = q.Encode()
	}
}
