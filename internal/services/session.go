package services

import (
	"time"

	"github.com/tbourn/feedcache/internal/session"
)

// Clock returns the current time. A nil Clock reads the wall clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// viewerOf returns the signed-in user id of v. A nil viewer has no session.
func viewerOf(v session.Viewer) (string, bool) {
	if v == nil {
		return "", false
	}
	return v.UserID()
}

// requireViewer is viewerOf for operations that cannot run anonymously.
func requireViewer(v session.Viewer) (string, error) {
	id, ok := viewerOf(v)
	if !ok {
		return "", ErrUnauthenticated
	}
	return id, nil
}
