// Package session caches the active credentials on top of the stored
// session row, so request building never blocks on storage after the first
// read.
package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"fintrack/internal/core"
)

// Store is the slice of the ledger the manager needs.
type Store interface {
	GetSession(ctx context.Context) (core.Session, error)
	SaveSession(ctx context.Context, sess core.Session) error
	ClearSession(ctx context.Context) error
}

// Manager hands out an immutable snapshot of the current session. The cache
// is refreshed on Activate and Clear; everything else reads through it.
type Manager struct {
	store  Store
	active atomic.Pointer[core.Session]
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Current returns the active session. A logged-out state is a zero session,
// not an error.
func (m *Manager) Current(ctx context.Context) (core.Session, error) {
	if sess := m.active.Load(); sess != nil {
		return *sess, nil
	}
	sess, err := m.store.GetSession(ctx)
	if err != nil {
		return core.Session{}, fmt.Errorf("load session: %w", err)
	}
	m.active.Store(&sess)
	return sess, nil
}

// Activate persists the session and makes it the cached credentials.
func (m *Manager) Activate(ctx context.Context, sess core.Session) error {
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return err
	}
	m.active.Store(&sess)
	return nil
}

// Clear wipes the stored session and the cache.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.ClearSession(ctx); err != nil {
		return err
	}
	m.active.Store(&core.Session{})
	return nil
}
