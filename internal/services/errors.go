// Package services implements the feed cache use-cases on top of the entity
// store: composed read models, interaction toggles, expiry sweeps, remote
// sync, and local content edits.
//
// This file centralizes the service-level error taxonomy. Every error a
// service returns wraps exactly one of the sentinels below, so handlers can
// translate it into a user-facing message or HTTP status with errors.Is.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/feedcache/internal/remote"
	"github.com/tbourn/feedcache/internal/repo"
)

var (
	// ErrUnauthenticated is returned when an operation needs a signed-in
	// user and the session is empty.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound indicates that a referenced user, post, story or comment
	// does not exist in the local store.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when a user edits or deletes content
	// they do not own.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation is returned for malformed input: blank required fields,
	// over-long captions, self-follows.
	ErrValidation = errors.New("validation failed")

	// ErrRemoteUnavailable wraps transport failures of the remote feed service.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrUnexpected wraps any other failure together with its cause.
	ErrUnexpected = errors.New("unexpected error")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnauthenticated, "Unauthenticated"},
	{ErrNotFound, "NotFound"},
	{ErrPermissionDenied, "PermissionDenied"},
	{ErrValidation, "ValidationFailed"},
	{ErrRemoteUnavailable, "RemoteUnavailable"},
	{ErrUnexpected, "Unexpected"},
}

// Kind names the taxonomy entry err belongs to, or "" for nil.
// Errors outside the taxonomy report "Unexpected".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unexpected"
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// classify maps store and transport errors onto the taxonomy. Errors that
// already carry a kind pass through.
func classify(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, remote.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrUnexpected, what, err)
}
