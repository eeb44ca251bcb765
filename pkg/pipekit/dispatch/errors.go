package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for dispatch resolution and registration.
var (
	// ErrNotImplemented indicates no implementation is registered for the
	// dispatch key.
	ErrNotImplemented = errors.New("no implementation registered")

	// ErrBackendNotFound indicates an explicitly requested backend has no
	// registrations at all.
	ErrBackendNotFound = errors.New("backend not found")

	// ErrDuplicateFavored indicates a second favored implementation was
	// registered for the same dispatch key.
	ErrDuplicateFavored = errors.New("duplicate favored implementation")
)

// NotImplementedError indicates dispatch failed to find an implementation.
// It names the generic and the dispatch key to aid debugging.
type NotImplementedError struct {
	// Generic is the name of the generic callable.
	Generic string
	// Key describes the dispatch key (the argument type, or type list).
	Key string
	// Backend is the requested backend, when resolution was restricted.
	Backend string
}

// Error implements the error interface.
func (e *NotImplementedError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s: %v for type %s on backend %q", e.Generic, ErrNotImplemented, e.Key, e.Backend)
	}
	return fmt.Sprintf("%s: %v for type %s", e.Generic, ErrNotImplemented, e.Key)
}

// Unwrap returns ErrNotImplemented for errors.Is support.
func (e *NotImplementedError) Unwrap() error {
	return ErrNotImplemented
}

// BackendNotFoundError indicates a backend hint named a backend with no
// registrations.
type BackendNotFoundError struct {
	// Generic is the name of the generic callable.
	Generic string
	// Backend is the requested backend name.
	Backend string
}

// Error implements the error interface.
func (e *BackendNotFoundError) Error() string {
	return fmt.Sprintf("%s: %v: %q", e.Generic, ErrBackendNotFound, e.Backend)
}

// Unwrap returns ErrBackendNotFound for errors.Is support.
func (e *BackendNotFoundError) Unwrap() error {
	return ErrBackendNotFound
}
