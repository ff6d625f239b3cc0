// Package archive saves lockets behind short links: media bytes go to a
// blob store, metadata and the letter go to the locket store.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/reunify/internal/blob"
	"github.com/rcliao/reunify/internal/locket"
	"github.com/rcliao/reunify/internal/logging"
	"github.com/rcliao/reunify/internal/model"
	"github.com/rcliao/reunify/internal/store"
)

// ErrNotFound is returned for unknown, deleted or expired lockets.
var ErrNotFound = errors.New("saved locket not found")

// Record is one saved locket in portable form: its row plus the payload
// with media embedded.
type Record struct {
	Saved  model.SavedLocket `json:"saved"`
	Locket model.Locket      `json:"locket"`
}

// Archive composes the locket store and a blob store.
type Archive struct {
	store store.Store
	blobs blob.Store
	log   logging.Logger
}

// New returns an Archive.
func New(st store.Store, blobs blob.Store, log logging.Logger) *Archive {
	if log == nil {
		log = logging.Discard()
	}
	return &Archive{store: st, blobs: blobs, log: log}
}

// ImageKey returns the blob key of a saved locket's image.
func ImageKey(id string) string { return "lockets/" + id + "/image" }

// AudioKey returns the blob key of a saved locket's voice note.
func AudioKey(id string) string { return "lockets/" + id + "/audio" }

// ShortLink returns the short link for id under baseURL.
func ShortLink(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/l/" + id
}

// Save stores l and returns its row. ttl follows the store format ("7d",
// "24h"...); empty means the locket never expires.
func (a *Archive) Save(ctx context.Context, l model.Locket, ttl string) (*model.SavedLocket, error) {
	if l.MediaType == "" {
		l.MediaType = model.MediaTypeImage
	}
	if err := locket.Validate(l); err != nil {
		return nil, err
	}
	if err := store.ValidateTTL(ttl); err != nil {
		return nil, fmt.Errorf("invalid ttl: %w", err)
	}

	image, err := model.ParseDataURL(l.MediaURL)
	if err != nil || !image.IsImage() {
		return nil, fmt.Errorf("%w: media is not an embedded image", locket.ErrInvalidPayload)
	}
	var audio model.DataURL
	if l.AudioURL != "" {
		if audio, err = model.ParseDataURL(l.AudioURL); err != nil {
			return nil, fmt.Errorf("%w: audio is not embedded", locket.ErrInvalidPayload)
		}
	}

	id := a.store.NewID()
	params := store.PutParams{
		ID:        id,
		ImageKey:  ImageKey(id),
		ImageType: image.MIMEType,
		Letter:    l.Letter,
		TTL:       ttl,
	}

	written, err := a.writeBlobs(ctx, id, image, audio)
	if err != nil {
		a.removeBlobs(ctx, written)
		return nil, err
	}
	if !audio.IsZero() {
		params.AudioKey = AudioKey(id)
		params.AudioType = audio.MIMEType
	}

	saved, err := a.store.Put(ctx, params)
	if err != nil {
		a.removeBlobs(ctx, written)
		return nil, fmt.Errorf("save locket: %w", err)
	}
	a.log.Info(ctx, "saved locket", "id", id, "audio", !audio.IsZero(), "ttl", ttl)
	return saved, nil
}

func (a *Archive) writeBlobs(ctx context.Context, id string, image, audio model.DataURL) ([]string, error) {
	var written []string
	put := func(key string, d model.DataURL) error {
		b, err := d.Bytes()
		if err != nil {
			return fmt.Errorf("%w: %v", locket.ErrInvalidPayload, err)
		}
		if err := a.blobs.Put(ctx, key, b, d.MIMEType); err != nil {
			return fmt.Errorf("store %s: %w", key, err)
		}
		written = append(written, key)
		return nil
	}
	if err := put(ImageKey(id), image); err != nil {
		return written, err
	}
	if !audio.IsZero() {
		if err := put(AudioKey(id), audio); err != nil {
			return written, err
		}
	}
	return written, nil
}

func (a *Archive) removeBlobs(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := a.blobs.Delete(ctx, k); err != nil && !errors.Is(err, blob.ErrNotFound) {
			a.log.Warn(ctx, "delete blob", "key", k, "error", err)
		}
	}
}

// Load rebuilds the shareable payload of a saved locket and records the
// view.
func (a *Archive) Load(ctx context.Context, id string) (model.Locket, *model.SavedLocket, error) {
	saved, err := a.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Locket{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Locket{}, nil, err
	}
	l, err := a.payload(ctx, *saved)
	if err != nil {
		return model.Locket{}, nil, err
	}
	return l, saved, nil
}

func (a *Archive) payload(ctx context.Context, saved model.SavedLocket) (model.Locket, error) {
	img, err := a.blobs.Get(ctx, saved.ImageKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return model.Locket{}, fmt.Errorf("%w: %s image missing", ErrNotFound, saved.ID)
		}
		return model.Locket{}, fmt.Errorf("read image: %w", err)
	}
	l := model.Locket{
		MediaURL:  model.NewDataURL(saved.ImageType, img).String(),
		MediaType: model.MediaTypeImage,
		Letter:    saved.Letter,
	}
	if saved.AudioKey != "" {
		rec, err := a.blobs.Get(ctx, saved.AudioKey)
		switch {
		case errors.Is(err, blob.ErrNotFound):
			a.log.Warn(ctx, "saved locket audio missing", "id", saved.ID)
		case err != nil:
			return model.Locket{}, fmt.Errorf("read audio: %w", err)
		default:
			l.AudioURL = model.NewDataURL(saved.AudioType, rec).String()
		}
	}
	return l, nil
}

// Delete removes a saved locket. A hard delete also removes its media.
func (a *Archive) Delete(ctx context.Context, id string, hard bool) error {
	removed, err := a.store.Rm(ctx, store.RmParams{ID: id, Hard: hard})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if hard {
		a.removeBlobs(ctx, mediaKeys(*removed))
	}
	return nil
}

// Purge hard-deletes lockets expired at now, media included.
func (a *Archive) Purge(ctx context.Context, now time.Time) (int, error) {
	expired, err := a.store.PurgeExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, s := range expired {
		a.removeBlobs(ctx, mediaKeys(s))
	}
	return len(expired), nil
}

// Run purges expired lockets every interval until ctx is done.
func (a *Archive) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			n, err := a.Purge(ctx, now)
			if err != nil {
				a.log.Error(ctx, "purge expired lockets", "error", err)
				continue
			}
			if n > 0 {
				a.log.Debug(ctx, "purged expired lockets", "removed", n)
			}
		}
	}
}

func mediaKeys(s model.SavedLocket) []string {
	keys := []string{s.ImageKey}
	if s.AudioKey != "" {
		keys = append(keys, s.AudioKey)
	}
	return keys
}

// Export returns every live saved locket with its media embedded.
func (a *Archive) Export(ctx context.Context) ([]Record, error) {
	rows, err := a.store.ExportAll(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(rows))
	for _, s := range rows {
		l, err := a.payload(ctx, s)
		if err != nil {
			a.log.Warn(ctx, "skip locket on export", "id", s.ID, "error", err)
			continue
		}
		records = append(records, Record{Saved: s, Locket: l})
	}
	return records, nil
}

// Import writes the media of each record and inserts the rows, keeping
// ids. Records whose id already exists, or repeats an earlier record, are
// skipped without touching stored media.
func (a *Archive) Import(ctx context.Context, records []Record) (int, error) {
	rows := make([]model.SavedLocket, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.Saved.ID == "" {
			r.Saved.ID = a.store.NewID()
		}
		if seen[r.Saved.ID] {
			continue
		}
		seen[r.Saved.ID] = true
		exists, err := a.store.Exists(ctx, r.Saved.ID)
		if err != nil {
			return 0, fmt.Errorf("record %s: %w", r.Saved.ID, err)
		}
		if exists {
			a.log.Debug(ctx, "skip existing locket on import", "id", r.Saved.ID)
			continue
		}
		if err := locket.Validate(r.Locket); err != nil {
			return 0, fmt.Errorf("record %s: %w", r.Saved.ID, err)
		}
		image, err := model.ParseDataURL(r.Locket.MediaURL)
		if err != nil {
			return 0, fmt.Errorf("record %s: %w", r.Saved.ID, err)
		}
		var audio model.DataURL
		if r.Locket.AudioURL != "" {
			if audio, err = model.ParseDataURL(r.Locket.AudioURL); err != nil {
				return 0, fmt.Errorf("record %s: %w", r.Saved.ID, err)
			}
		}
		if _, err := a.writeBlobs(ctx, r.Saved.ID, image, audio); err != nil {
			return 0, fmt.Errorf("record %s: %w", r.Saved.ID, err)
		}

		row := r.Saved
		row.ImageKey = ImageKey(row.ID)
		row.ImageType = image.MIMEType
		row.Letter = r.Locket.Letter
		row.AudioKey, row.AudioType = "", ""
		if !audio.IsZero() {
			row.AudioKey = AudioKey(row.ID)
			row.AudioType = audio.MIMEType
		}
		rows = append(rows, row)
	}
	return a.store.Import(ctx, rows)
}
