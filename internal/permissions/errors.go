package permissions

import (
	"errors"
	"strings"
)

var (
	// ErrUnauthorized is returned when a non-admin tries to replace the map.
	ErrUnauthorized = errors.New("only admins can change role permissions")
	// ErrForbidden is returned when the role lacks the requested capability.
	ErrForbidden = errors.New("insufficient permissions")
	// ErrUnavailable is returned while the configuration has not been loaded.
	ErrUnavailable = errors.New("permission configuration unavailable")
	// ErrInvalidMap is returned for maps naming unknown roles or capabilities.
	ErrInvalidMap = errors.New("invalid role permission map")
	// ErrNotConfigured is returned by a Store that holds no configuration yet.
	ErrNotConfigured = errors.New("permission configuration not found")
	// ErrStoreUnavailable wraps failures of the underlying store.
	ErrStoreUnavailable = errors.New("permission store unavailable")
	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("permission engine already started")
)

// InvalidMapError lists every problem found in a submitted map. It matches
// ErrInvalidMap under errors.Is.
type InvalidMapError struct {
	Problems []string
}

func (e *InvalidMapError) Error() string {
	return ErrInvalidMap.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *InvalidMapError) Unwrap() error { return ErrInvalidMap }
