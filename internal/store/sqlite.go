package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/reunify/internal/model"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewID returns a ULID. Ids minted in the same millisecond stay ordered.
func (s *SQLiteStore) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS lockets (
		id               TEXT PRIMARY KEY,
		image_key        TEXT NOT NULL,
		image_type       TEXT NOT NULL,
		letter           TEXT NOT NULL,
		audio_key        TEXT,
		audio_type       TEXT,
		created_at       TEXT NOT NULL,
		deleted_at       TEXT,
		access_count     INTEGER NOT NULL DEFAULT 0,
		last_accessed_at TEXT,
		expires_at       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_lockets_created ON lockets(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_lockets_deleted ON lockets(deleted_at);
	CREATE INDEX IF NOT EXISTS idx_lockets_expires ON lockets(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

const locketColumns = `id, image_key, image_type, letter, audio_key, audio_type,
	created_at, deleted_at, access_count, last_accessed_at, expires_at`

func (s *SQLiteStore) Put(ctx context.Context, p PutParams) (*model.SavedLocket, error) {
	if p.ImageKey == "" || p.ImageType == "" {
		return nil, errors.New("image key and type are required")
	}
	if p.Letter == "" {
		return nil, errors.New("letter is required")
	}

	now := time.Now().UTC()
	id := p.ID
	if id == "" {
		id = s.NewID()
	}

	var expiresAt *string
	if p.TTL != "" {
		d, err := parseTTL(p.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid ttl: %w", err)
		}
		exp := now.Add(d).Format(time.RFC3339)
		expiresAt = &exp
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lockets (id, image_key, image_type, letter, audio_key, audio_type, created_at, access_count, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		id, p.ImageKey, p.ImageType, p.Letter, nullIfEmpty(p.AudioKey), nullIfEmpty(p.AudioType),
		now.Format(time.RFC3339), expiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert locket: %w", err)
	}

	l := &model.SavedLocket{
		ID:        id,
		ImageKey:  p.ImageKey,
		ImageType: p.ImageType,
		Letter:    p.Letter,
		AudioKey:  p.AudioKey,
		AudioType: p.AudioType,
		CreatedAt: now.Truncate(time.Second),
	}
	if expiresAt != nil {
		t, _ := time.Parse(time.RFC3339, *expiresAt)
		l.ExpiresAt = &t
	}
	return l, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.SavedLocket, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+locketColumns+` FROM lockets
		 WHERE id = ? AND deleted_at IS NULL AND (expires_at IS NULL OR expires_at > ?)`, id, now)
	l, err := scanLocket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	s.db.ExecContext(ctx,
		`UPDATE lockets SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`, now, id)
	return &l, nil
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.SavedLocket, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + locketColumns + ` FROM lockets WHERE deleted_at IS NULL`
	args := []interface{}{}
	if !p.IncludeExpired {
		query += ` AND (expires_at IS NULL OR expires_at > ?)`
		args = append(args, time.Now().UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	return s.query(ctx, query, args...)
}

func (s *SQLiteStore) Rm(ctx context.Context, p RmParams) (*model.SavedLocket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+locketColumns+` FROM lockets WHERE id = ? AND deleted_at IS NULL`, p.ID)
	l, err := scanLocket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	if err != nil {
		return nil, err
	}

	if p.Hard {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM lockets WHERE id = ?`, p.ID); err != nil {
			return nil, err
		}
		return &l, nil
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE lockets SET deleted_at = ? WHERE id = ?`, now.Format(time.RFC3339), p.ID); err != nil {
		return nil, err
	}
	l.DeletedAt = &now
	return &l, nil
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) ([]model.SavedLocket, error) {
	cutoff := now.UTC().Format(time.RFC3339)
	expired, err := s.query(ctx,
		`SELECT `+locketColumns+` FROM lockets WHERE expires_at IS NOT NULL AND expires_at <= ?`, cutoff)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM lockets WHERE expires_at IS NOT NULL AND expires_at <= ?`, cutoff); err != nil {
		return nil, err
	}
	return expired, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]model.SavedLocket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lockets []model.SavedLocket
	for rows.Next() {
		l, err := scanLocket(rows)
		if err != nil {
			return nil, err
		}
		lockets = append(lockets, l)
	}
	return lockets, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLocket(row scanner) (model.SavedLocket, error) {
	var l model.SavedLocket
	var audioKey, audioType, deletedAt, lastAccessed, expiresAt sql.NullString
	var createdAt string

	err := row.Scan(
		&l.ID, &l.ImageKey, &l.ImageType, &l.Letter, &audioKey, &audioType,
		&createdAt, &deletedAt, &l.AccessCount, &lastAccessed, &expiresAt,
	)
	if err != nil {
		return l, err
	}

	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	l.AudioKey = audioKey.String
	l.AudioType = audioType.String
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339, deletedAt.String)
		l.DeletedAt = &t
	}
	if lastAccessed.Valid {
		t, _ := time.Parse(time.RFC3339, lastAccessed.String)
		l.LastAccessedAt = &t
	}
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339, expiresAt.String)
		l.ExpiresAt = &t
	}

	return l, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseTTL parses a TTL string like "7d", "24h", "30m" into a time.Duration.
var ttlRegex = regexp.MustCompile(`^(\d+)([dhms])$`)

func parseTTL(s string) (time.Duration, error) {
	m := ttlRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid format %q (use e.g. 7d, 24h, 30m, 60s)", s)
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("unknown unit %q", m[2])
}

// ValidateTTL reports whether s is an accepted TTL ("" means none).
func ValidateTTL(s string) error {
	if s == "" {
		return nil
	}
	_, err := parseTTL(s)
	return err
}
