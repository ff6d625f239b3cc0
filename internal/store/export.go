package store

import (
	"context"
	"time"

	"github.com/rcliao/reunify/internal/model"
)

// ExportAll returns all non-deleted lockets, oldest first.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]model.SavedLocket, error) {
	return s.query(ctx,
		`SELECT `+locketColumns+` FROM lockets WHERE deleted_at IS NULL ORDER BY created_at, id`)
}

// Exists reports whether a row with id is present, including deleted and
// expired ones.
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lockets WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Import stores lockets from an export, keeping ids and timestamps.
// Rows whose id already exists are skipped.
func (s *SQLiteStore) Import(ctx context.Context, lockets []model.SavedLocket) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	imported := 0
	for _, l := range lockets {
		if l.ID == "" {
			l.ID = s.NewID()
		}
		created := l.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		var expiresAt *string
		if l.ExpiresAt != nil {
			e := l.ExpiresAt.UTC().Format(time.RFC3339)
			expiresAt = &e
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO lockets (id, image_key, image_type, letter, audio_key, audio_type, created_at, access_count, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.ImageKey, l.ImageType, l.Letter, nullIfEmpty(l.AudioKey), nullIfEmpty(l.AudioType),
			created.UTC().Format(time.RFC3339), l.AccessCount, expiresAt)
		if err != nil {
			return imported, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	return imported, tx.Commit()
}
