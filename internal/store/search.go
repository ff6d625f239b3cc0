package store

import (
	"context"
	"strings"
	"time"

	"github.com/rcliao/reunify/internal/model"
)

// Search finds live lockets whose letter contains the query substring
// (case-insensitive for ASCII).
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.SavedLocket, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	q := strings.TrimSpace(p.Query)
	if q == "" {
		return s.List(ctx, ListParams{Limit: limit})
	}

	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
	now := time.Now().UTC().Format(time.RFC3339)

	return s.query(ctx, `
		SELECT `+locketColumns+` FROM lockets
		WHERE deleted_at IS NULL
		  AND (expires_at IS NULL OR expires_at > ?)
		  AND letter LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, now, "%"+escaped+"%", limit)
}
