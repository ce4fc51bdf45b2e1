// Package session holds the identity of the signed-in user.
//
// Context is the in-memory session: a single user id swapped atomically so
// concurrent readers observe either the old or the new value, never a torn
// one. Persistence is the durable side, read once at startup and written on
// login and logout. Manager ties the two together.
package session

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrActive is returned when a login is attempted while another user is
// signed in.
var ErrActive = errors.New("session: another user is signed in")

// Viewer exposes the current user id to the query and mutation services.
// ok is false when nobody is signed in.
type Viewer interface {
	UserID() (id string, ok bool)
}

// Context is the process-wide session. The zero value is signed out.
type Context struct {
	id atomic.Pointer[string]
}

// UserID implements Viewer.
func (c *Context) UserID() (string, bool) {
	p := c.id.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// Begin sets the current user if nobody is signed in. Beginning the same
// user again is a no-op; a different user gets ErrActive.
func (c *Context) Begin(id string) error {
	if c.id.CompareAndSwap(nil, &id) {
		return nil
	}
	if cur, ok := c.UserID(); ok && cur == id {
		return nil
	}
	return ErrActive
}

// End clears the session and returns the id that was signed in.
func (c *Context) End() (string, bool) {
	p := c.id.Swap(nil)
	if p == nil {
		return "", false
	}
	return *p, true
}

// Static is a fixed Viewer, handy for background jobs and tests.
type Static string

// UserID implements Viewer. The empty string means signed out.
func (s Static) UserID() (string, bool) { return string(s), s != "" }

// Persistence durably stores the current user id.
type Persistence interface {
	// Load returns the stored id, or "" when none is stored.
	Load(ctx context.Context) (string, error)
	// Save stores id; "" clears it.
	Save(ctx context.Context, id string) error
}

// Manager keeps a Context and its Persistence in step.
type Manager struct {
	Current *Context
	Store   Persistence
}

// NewManager returns a signed-out manager writing through store.
func NewManager(store Persistence) *Manager {
	return &Manager{Current: &Context{}, Store: store}
}

// Restore reads the persisted id into the in-memory session. It is meant to
// run once at startup.
func (m *Manager) Restore(ctx context.Context) (string, error) {
	id, err := m.Store.Load(ctx)
	if err != nil || id == "" {
		return "", err
	}
	if err := m.Current.Begin(id); err != nil {
		return "", err
	}
	return id, nil
}

// Login signs id in and persists it. The in-memory session is only set
// after the write succeeded.
func (m *Manager) Login(ctx context.Context, id string) error {
	if cur, ok := m.Current.UserID(); ok && cur != id {
		return ErrActive
	}
	if err := m.Store.Save(ctx, id); err != nil {
		return err
	}
	return m.Current.Begin(id)
}

// Logout clears both the in-memory session and the stored id.
func (m *Manager) Logout(ctx context.Context) error {
	m.Current.End()
	return m.Store.Save(ctx, "")
}

// UserID implements Viewer.
func (m *Manager) UserID() (string, bool) { return m.Current.UserID() }
