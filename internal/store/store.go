// Package store provides saved-locket persistence and its SQLite
// implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/reunify/internal/model"
)

// ErrNotFound is returned when no live locket has the requested id.
var ErrNotFound = errors.New("locket not found")

// PutParams holds parameters for storing a locket. Media bytes live in the
// blob store; only their keys and types are kept here.
type PutParams struct {
	ID        string // optional; generated when empty
	ImageKey  string
	ImageType string
	Letter    string
	AudioKey  string
	AudioType string
	TTL       string // e.g. "7d", "24h"; empty means no expiry
}

// ListParams holds parameters for listing lockets.
type ListParams struct {
	Limit          int
	IncludeExpired bool
}

// SearchParams holds parameters for searching lockets by letter text.
type SearchParams struct {
	Query string
	Limit int
}

// RmParams holds parameters for deleting a locket.
type RmParams struct {
	ID   string
	Hard bool
}

// Store defines the saved-locket storage interface.
type Store interface {
	// NewID returns a fresh sortable id.
	NewID() string

	// Put stores a locket row and returns it.
	Put(ctx context.Context, p PutParams) (*model.SavedLocket, error)

	// Get returns a live (not deleted, not expired) locket and records the access.
	Get(ctx context.Context, id string) (*model.SavedLocket, error)

	// List lists live lockets, newest first.
	List(ctx context.Context, p ListParams) ([]model.SavedLocket, error)

	// Search finds live lockets whose letter contains the query.
	Search(ctx context.Context, p SearchParams) ([]model.SavedLocket, error)

	// Rm soft-deletes (or hard-deletes) a locket and returns the removed row.
	Rm(ctx context.Context, p RmParams) (*model.SavedLocket, error)

	// PurgeExpired hard-deletes lockets expired at now and returns them.
	PurgeExpired(ctx context.Context, now time.Time) ([]model.SavedLocket, error)

	// ExportAll returns every non-deleted row.
	ExportAll(ctx context.Context) ([]model.SavedLocket, error)

	// Exists reports whether any row, live or not, has the id.
	Exists(ctx context.Context, id string) (bool, error)

	// Import inserts rows keeping their ids; existing ids are skipped.
	Import(ctx context.Context, lockets []model.SavedLocket) (int, error)

	// Close closes the store.
	Close() error
}
