package store

import (
	"context"
	"os"
	"time"
)

// Stats holds database statistics.
type Stats struct {
	DBPath        string `json:"db_path"`
	DBSizeBytes   int64  `json:"db_size_bytes"`
	TotalLockets  int    `json:"total_lockets"`
	ActiveLockets int    `json:"active_lockets"`
	Expired       int    `json:"expired"`
	Deleted       int    `json:"deleted"`
	WithAudio     int    `json:"with_audio"`
	TotalViews    int    `json:"total_views"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN deleted_at IS NULL AND (expires_at IS NULL OR expires_at > ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NULL AND audio_key IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(access_count), 0)
		FROM lockets`, now, now).Scan(
		&st.TotalLockets, &st.ActiveLockets, &st.Expired, &st.Deleted, &st.WithAudio, &st.TotalViews)
	if err != nil {
		return st, err
	}
	return st, nil
}
