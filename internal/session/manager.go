package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcliao/reunify/internal/generation"
	"github.com/rcliao/reunify/internal/logging"
)

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 2 * time.Hour

// Manager maps browser session ids to controllers.
type Manager struct {
	gen generation.Generator
	log logging.Logger
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Controller
}

func NewManager(gen generation.Generator, log logging.Logger, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{
		gen:      gen,
		log:      log,
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]*Controller{},
	}
}

// Get returns the controller for id. Unknown or malformed ids get a fresh
// session; the returned id is the one to hand back to the browser.
func (m *Manager) Get(id string) (string, *Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, err := uuid.Parse(id); err == nil {
		if c, ok := m.sessions[id]; ok {
			c.touch(now)
			return id, c
		}
	}

	id = uuid.NewString()
	c := NewController(m.gen, m.log.With("session", id))
	c.touch(now)
	m.sessions[id] = c
	return id, c
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, c := range m.sessions {
		if now.Sub(c.idleSince()) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = m.ttl / 4
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if n := m.Sweep(now); n > 0 {
				m.log.Debug(ctx, "swept idle sessions", "removed", n)
			}
		}
	}
}
